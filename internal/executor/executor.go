package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/riftscan/sentinel/internal/credentials"
	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/license"
	"github.com/riftscan/sentinel/internal/objectstore"
	"github.com/riftscan/sentinel/internal/policy"
	"github.com/riftscan/sentinel/internal/runner"
	"github.com/riftscan/sentinel/internal/shards"
	"github.com/riftscan/sentinel/internal/siem"
	"github.com/riftscan/sentinel/internal/store"
)

// Worker process exit codes.
const (
	ExitOK                     = 0
	ExitUnexpected             = 1
	ExitLicenseDenied          = 2
	ExitEventDrivenRecoverable = 126
)

// Driver is the worker facade: one instance is built per worker process and
// Run is called exactly once with the decoded envelope.
type Driver struct {
	Tenants          store.TenantStore
	BatchResults     store.BatchResultsStore
	RuleSets         store.RuleSetStore
	Licenses         store.LicenseStore
	TenantSettings   store.TenantSettingsStore
	CustomerSettings store.CustomerSettingsStore
	Jobs             store.JobStore
	Platforms        store.PlatformStore

	Credentials   *credentials.Resolver
	PlatformCreds *credentials.PlatformResolver
	License       *license.Client

	Bundles    objectstore.Store
	Reports    objectstore.Store
	Statistics objectstore.Store

	Spawner RegionSpawner

	SIEM       *siem.Uploader
	SIEMConfig siem.Config

	Metrics *Metrics
	Log     *zap.Logger

	TempDir string
	Clock   func() time.Time
}

func (d *Driver) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// Run executes one job envelope end to end and returns the process exit
// code the worker's main should use.
func (d *Driver) Run(ctx context.Context, env map[string]string) int {
	in := DecodeEnvelope(env)
	startedAt := d.now()
	deadline := startedAt.Add(time.Duration(in.JobLifetimeMin) * time.Minute)

	tenant, err := d.Tenants.Get(ctx, in.TenantName)
	if err != nil {
		d.fail(ctx, in.JobID, fmt.Sprintf("tenant lookup failed: %v", err))
		return ExitUnexpected
	}

	if err := d.Jobs.UpdateStatus(ctx, in.JobID, domain.JobRunning, ""); err != nil {
		d.logWarn("mark job running failed", in.JobID, err)
	}

	var batchResults *domain.BatchResults
	if len(in.BatchResultsIDs) > 0 && d.BatchResults != nil {
		if br, err := d.BatchResults.Get(ctx, in.BatchResultsIDs[0]); err == nil {
			batchResults = br
		}
	}

	creds, err := d.resolveCredentials(ctx, in, tenant, batchResults)
	if err != nil {
		if eventDriven(in.JobType) {
			// Recoverable: leave the job row as-is so the batch backend's
			// retry lands on a job still eligible for a RUNNING transition.
			d.logWarn("credential resolution failed, recoverable", in.JobID, err)
			return ExitEventDrivenRecoverable
		}
		d.fail(ctx, in.JobID, fmt.Sprintf("credential resolution failed: %v", err))
		return ExitUnexpected
	}

	excludedRules, err := ExcludedRules(ctx, d.TenantSettings, d.CustomerSettings, in.TenantName, tenant.Customer)
	if err != nil {
		d.fail(ctx, in.JobID, fmt.Sprintf("excluded rules lookup failed: %v", err))
		return ExitUnexpected
	}

	descriptors, err := d.loadDescriptors(ctx, in, tenant, excludedRules)
	if err != nil {
		var denied errLMDenied
		if errors.As(err, &denied) {
			d.fail(ctx, in.JobID, err.Error())
			d.reportLicenseStatus(ctx, in, tenant, startedAt, domain.JobFailed)
			return ExitLicenseDenied
		}
		d.fail(ctx, in.JobID, fmt.Sprintf("policy load failed: %v", err))
		return ExitUnexpected
	}
	if len(descriptors) == 0 {
		d.fail(ctx, in.JobID, "no policies matched after rules_to_scan/excluded-rules filtering")
		return ExitUnexpected
	}

	// Event-driven jobs scope both the region list and the per-region
	// rule selection to the batch-results mapping.
	targetRegions := in.TargetRegions
	var regionsToRules map[string][]string
	if batchResults != nil && len(batchResults.RegionsToRules) > 0 {
		regionsToRules = make(map[string][]string, len(batchResults.RegionsToRules))
		targetRegions = targetRegions[:0:0]
		for region, rules := range batchResults.RegionsToRules {
			targetRegions = append(targetRegions, region)
			names := make([]string, 0, len(rules))
			for name := range rules {
				names = append(names, name)
			}
			sort.Strings(names)
			regionsToRules[region] = names
		}
	}

	descriptorsPath, cleanup, err := writeDescriptorsFile(d.TempDir, descriptors, regionsToRules)
	if err != nil {
		d.fail(ctx, in.JobID, err.Error())
		return ExitUnexpected
	}
	defer cleanup()

	var results []RegionResult
	for _, region := range orderedRegions(targetRegions) {
		res, err := d.Spawner.Spawn(ctx, tenant.Cloud, region, descriptorsPath, deadline, in.JobID, creds)
		if err != nil {
			d.logWarn("region spawn failed", in.JobID, err)
			res = RegionResult{Region: region, Failures: []runner.Failure{
				{Region: region, Kind: runner.ErrInternal, Message: err.Error()},
			}}
		}
		results = append(results, res)
	}

	collection := shards.NewCollection(tenant.Name, in.JobID, targetRegions)
	collection.UpdateMeta(ruleMeta(descriptors))
	for _, res := range results {
		if err := collection.PutParts(res.Findings); err != nil {
			d.logWarn("merge region findings failed", in.JobID, err)
		}
	}

	if d.SIEM != nil {
		d.SIEM.Upload(ctx, in.JobID, d.SIEMConfig, collection)
	}

	if d.Reports != nil {
		if _, err := shards.Publish(ctx, d.Reports, collection); err != nil {
			d.fail(ctx, in.JobID, fmt.Sprintf("shard publish failed: %v", err))
			return ExitUnexpected
		}
	}

	stoppedAt := d.now()
	if d.Statistics != nil {
		stats := buildStatistics(tenant.Name, startedAt, stoppedAt, results)
		if err := writeStatistics(ctx, d.Statistics, in.JobID, stats); err != nil {
			d.logWarn("write statistics failed", in.JobID, err)
		}
	}

	if d.Metrics != nil {
		if err := d.Metrics.PutJobDuration(ctx, tenant.Name, string(domain.JobSucceeded), stoppedAt.Sub(startedAt)); err != nil {
			d.logWarn("put job duration metric failed", in.JobID, err)
		}
	}

	if err := d.Jobs.UpdateStatus(ctx, in.JobID, domain.JobSucceeded, ""); err != nil {
		d.logWarn("mark job succeeded failed", in.JobID, err)
	}
	d.reportLicenseStatus(ctx, in, tenant, startedAt, domain.JobSucceeded)

	return ExitOK
}

// resolveCredentials dispatches to the platform (Kubernetes) credential
// chain when the envelope names a platform id, and to the tenant chain
// otherwise.
func (d *Driver) resolveCredentials(ctx context.Context, in Input, tenant *domain.Tenant, batchResults *domain.BatchResults) (map[string]string, error) {
	if in.PlatformID != "" && d.PlatformCreds != nil && d.Platforms != nil {
		platform, err := d.Platforms.Get(ctx, in.PlatformID)
		if err != nil {
			return nil, fmt.Errorf("executor: platform lookup failed: %w", err)
		}
		return d.PlatformCreds.Resolve(ctx, tenant, platform)
	}
	return d.Credentials.Resolve(ctx, tenant, batchResults)
}

func (d *Driver) fail(ctx context.Context, jobID, reason string) {
	if err := d.Jobs.UpdateStatus(ctx, jobID, domain.JobFailed, reason); err != nil {
		d.logWarn("mark job failed failed", jobID, err)
	}
}

// reportLicenseStatus is the best-effort UpdateJob call back to the
// license manager for licensed jobs: never allowed to fail the worker.
func (d *Driver) reportLicenseStatus(ctx context.Context, in Input, tenant *domain.Tenant, startedAt time.Time, status domain.JobStatus) {
	if d.License == nil || len(in.AffectedLicenses) == 0 {
		return
	}
	now := d.now()
	if err := d.License.UpdateJob(ctx, license.UpdateJobRequest{
		JobID:     in.JobID,
		Customer:  tenant.Customer,
		CreatedAt: in.SubmittedAt,
		StartedAt: &startedAt,
		StoppedAt: &now,
		Status:    string(status),
	}); err != nil {
		d.logWarn("license manager update_job failed", in.JobID, err)
	}
}

func (d *Driver) logWarn(msg, jobID string, err error) {
	if d.Log == nil {
		return
	}
	d.Log.Warn(msg, zap.String("job_id", jobID), zap.Error(err))
}

func eventDriven(t domain.JobType) bool {
	return t == domain.JobTypeEventDriven || t == domain.JobTypeEventDrivenMultiAcct
}

// ruleMeta builds the per-rule descriptor dictionary attached to the
// shard collection, the meta document readers use to interpret latest
// state without refetching the bundles.
func ruleMeta(descriptors []policy.Descriptor) shards.RuleMeta {
	meta := make(shards.RuleMeta, len(descriptors))
	for _, d := range descriptors {
		meta[d.Name] = map[string]any{
			"resource": d.Resource,
			"provider": d.Provider,
			"comment":  d.Comment,
		}
	}
	return meta
}

// orderedRegions fixes the per-job region processing order:
// [global] + sorted(target_regions).
func orderedRegions(target []string) []string {
	out := []string{domain.GlobalRegion}
	seen := map[string]struct{}{domain.GlobalRegion: {}}
	sorted := append([]string(nil), target...)
	sort.Strings(sorted)
	for _, r := range sorted {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
