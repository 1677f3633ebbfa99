package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riftscan/sentinel/internal/apierr"
	"github.com/riftscan/sentinel/internal/batchbackend"
	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/license"
	"github.com/riftscan/sentinel/internal/lock"
	"github.com/riftscan/sentinel/internal/secretstore"
	"github.com/riftscan/sentinel/internal/store"
)

// Controller is the submission facade: one instance per process,
// constructed at startup with the stores and clients the deployment has
// configured.
type Controller struct {
	Tenants        store.TenantStore
	Parents        store.ParentStore
	Applications   store.ApplicationStore
	Platforms      store.PlatformStore
	Licenses       store.LicenseStore
	RuleSets       store.RuleSetStore
	TenantSettings store.TenantSettingsStore
	Jobs           store.JobStore
	Lock           *lock.Manager
	Secrets        secretstore.Store
	Batch          batchbackend.Backend
	License        *license.Client
	Validator      CredentialsValidator

	AllowedClouds  map[domain.Cloud]bool
	JobLifetimeMin int
	MemoryMiB      int32
	VCPUs          float64
	AWSRegion      string

	// Clock and NewID are overridden in tests; default to time.Now and
	// uuid.NewString.
	Clock func() time.Time
	NewID func() string
}

func (c *Controller) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c *Controller) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

func (c *Controller) cloudAllowed(cl domain.Cloud) bool {
	if len(c.AllowedClouds) == 0 {
		return true
	}
	return c.AllowedClouds[cl]
}

// StandardRequest is SubmitStandard's command struct; the HTTP layer
// fills it from the validated body.
type StandardRequest struct {
	TenantName   string
	Customer     string
	Owner        string
	Regions      []string
	RuleSetNames []string
	Credentials  map[string]string // optional inline credentials to stage
}

// LicensedRequest extends StandardRequest with the licensed-path extras.
type LicensedRequest struct {
	StandardRequest
	RulesToScan []string // optional filter, validated against the license's rule universe
}

// K8sRequest is SubmitK8s's command struct.
type K8sRequest struct {
	PlatformID   string
	Customer     string
	Owner        string
	Token        string // optional inline bearer token to stage
	RuleSetNames []string
	RulesToScan  []string
}

// guard runs the checks common to every submit path: tenant cloud
// allow-listing, the early (read-only) lock check, and the cooldown.
// Credential identity validation is the caller's job since only the
// standard/licensed tenant paths carry inline credentials.
func (c *Controller) guard(ctx context.Context, tenant *domain.Tenant) error {
	if !c.cloudAllowed(tenant.Cloud) {
		return apierr.New(apierr.Forbidden, fmt.Sprintf("cloud %s is not enabled for scanning", tenant.Cloud))
	}
	if locked, _, err := c.Lock.IsLocked(ctx, tenant.Name); err != nil {
		return fmt.Errorf("submission: check tenant lock: %w", err)
	} else if locked {
		return apierr.New(apierr.Forbidden, "tenant already has an active job")
	}
	if err := checkCooldown(ctx, c.TenantSettings, c.Jobs, tenant.Name, tenant.Customer, c.now()); err != nil {
		return err
	}
	return nil
}

func (c *Controller) validateCredentials(ctx context.Context, tenant *domain.Tenant, creds map[string]string) error {
	if len(creds) == 0 || c.Validator == nil {
		return nil
	}
	ok, err := c.Validator.Validate(ctx, tenant.Cloud, tenant.Project, creds)
	if err != nil {
		return fmt.Errorf("submission: validate credentials identity: %w", err)
	}
	if !ok {
		return apierr.New(apierr.Validation, "credentials do not correspond to tenant identity")
	}
	return nil
}

// stageCredentials writes inline credentials to the secret store under a
// job-scoped key, the CREDENTIALS_KEY the worker's credential resolver
// (resolution step 1) will consume and delete.
func (c *Controller) stageCredentials(ctx context.Context, jobID string, creds map[string]string) (string, error) {
	if len(creds) == 0 {
		return "", nil
	}
	blob, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("submission: encode staged credentials: %w", err)
	}
	key := "job-creds-" + jobID
	if err := c.Secrets.Put(ctx, key, string(blob)); err != nil {
		return "", fmt.Errorf("submission: stage credentials: %w", err)
	}
	return key, nil
}

// submitParams is the internal, fully-resolved shape finishSubmit turns
// into an envelope, a batch submission, and a job row.
type submitParams struct {
	JobID              string
	Tenant             *domain.Tenant
	Owner              string
	JobType            domain.JobType
	PlatformID         string
	Regions            []string
	RuleSets           []domain.RuleSetRef
	RulesToScan        []string
	LicensedRuleSetIDs []string
	AffectedLicenses   []string
	CredentialsKey     string
	ScheduledJobName   string
	SubmittedAt        time.Time
}

// finishSubmit is the tail shared by every submit path:
// build the envelope, submit to the batch backend, create the job row,
// and acquire the tenant lock last — if batch-submit fails, neither the
// job row nor the lock exist.
func (c *Controller) finishSubmit(ctx context.Context, p submitParams) (*domain.Job, error) {
	env := Build(BuildInput{
		TenantName:         p.Tenant.Name,
		PlatformID:         p.PlatformID,
		JobID:              p.JobID,
		JobType:            p.JobType,
		TargetRegions:      p.Regions,
		TargetRuleSets:     p.RuleSets,
		RulesToScan:        p.RulesToScan,
		LicensedRuleSetIDs: p.LicensedRuleSetIDs,
		AffectedLicenses:   p.AffectedLicenses,
		CredentialsKey:     p.CredentialsKey,
		SubmittedAt:        p.SubmittedAt,
		JobLifetimeMin:     c.JobLifetimeMin,
		ScheduledJobName:   p.ScheduledJobName,
		AWSRegion:          c.AWSRegion,
	})

	backendJobID, err := c.Batch.Submit(ctx, batchbackend.SubmitInput{
		JobName:     p.JobID,
		Envelope:    env,
		MemoryMiB:   c.MemoryMiB,
		VCPUs:       c.VCPUs,
		TimeoutSecs: int32(c.JobLifetimeMin * 60),
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.UpstreamUnavailable, "batch backend refused submission", err)
	}

	job := &domain.Job{
		ID:            p.JobID,
		TenantName:    p.Tenant.Name,
		Customer:      p.Tenant.Customer,
		Owner:         p.Owner,
		Type:          p.JobType,
		Status:        domain.JobSubmitted,
		SubmittedAt:   p.SubmittedAt,
		PlatformID:    p.PlatformID,
		RuleSets:      p.RuleSets,
		RulesToScan:   p.RulesToScan,
		TargetRegions: p.Regions,
		ScheduledName: p.ScheduledJobName,
		BackendJobID:  backendJobID,
	}
	created, err := c.Jobs.Create(ctx, job)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("submission: create job row: %w", err)
	}

	if err := c.Lock.Acquire(ctx, p.Tenant.Name, p.JobID, p.Regions); err != nil {
		return nil, apierr.Wrap(apierr.Forbidden, "tenant lock held by another job", err)
	}
	return created, nil
}

func ruleSetRefs(rulesets []*domain.RuleSet) []domain.RuleSetRef {
	out := make([]domain.RuleSetRef, 0, len(rulesets))
	for _, r := range rulesets {
		out = append(out, domain.RuleSetRef{ID: r.ID, Name: r.Name, Version: r.Version})
	}
	return out
}

// ruleUniverse unions the rule ids of a set of rule-sets, the universe
// rules_to_scan is validated against.
func ruleUniverse(rulesets []*domain.RuleSet) map[string]struct{} {
	out := make(map[string]struct{})
	for _, r := range rulesets {
		for _, id := range r.RuleIDs {
			out[id] = struct{}{}
		}
	}
	return out
}

// validateRulesToScan rejects any requested rule names outside the
// available universe, enumerating the offenders.
func validateRulesToScan(requested []string, universe map[string]struct{}) error {
	if len(requested) == 0 {
		return nil
	}
	var offenders []string
	for _, name := range requested {
		if _, ok := universe[name]; !ok {
			offenders = append(offenders, name)
		}
	}
	if len(offenders) == 0 {
		return nil
	}
	sort.Strings(offenders)
	return apierr.New(apierr.Validation, fmt.Sprintf("rules_to_scan outside licensed rule universe: %s", strings.Join(offenders, ", ")))
}

// SubmitStandard submits a standard-rule-set scan job for a tenant.
func (c *Controller) SubmitStandard(ctx context.Context, req StandardRequest) (*domain.Job, error) {
	tenant, err := c.Tenants.Get(ctx, req.TenantName)
	if err != nil {
		return nil, apierr.Wrap(apierr.NotFound, "tenant not found", err)
	}
	if tenant.Customer != req.Customer {
		return nil, apierr.New(apierr.NotFound, "tenant not found")
	}
	if err := c.validateCredentials(ctx, tenant, req.Credentials); err != nil {
		return nil, err
	}
	if err := c.guard(ctx, tenant); err != nil {
		return nil, err
	}

	regions := ResolveRegions(tenant, req.Regions)
	rulesets, err := c.RuleSets.ListActiveStandard(ctx, tenant.Customer, tenant.Cloud, req.RuleSetNames)
	if err != nil {
		return nil, fmt.Errorf("submission: list standard rule-sets: %w", err)
	}
	if len(rulesets) == 0 {
		return nil, apierr.New(apierr.Validation, "no active standard rule-sets matched the request")
	}

	jobID := c.newID()
	credKey, err := c.stageCredentials(ctx, jobID, req.Credentials)
	if err != nil {
		return nil, err
	}

	return c.finishSubmit(ctx, submitParams{
		JobID:          jobID,
		Tenant:         tenant,
		Owner:          req.Owner,
		JobType:        domain.JobTypeStandard,
		Regions:        regions,
		RuleSets:       ruleSetRefs(rulesets),
		CredentialsKey: credKey,
		SubmittedAt:    c.now(),
	})
}

// SubmitLicensed submits a licensed-rule-set scan job, pre-authorized
// through the license manager.
func (c *Controller) SubmitLicensed(ctx context.Context, req LicensedRequest) (*domain.Job, error) {
	tenant, err := c.Tenants.Get(ctx, req.TenantName)
	if err != nil {
		return nil, apierr.Wrap(apierr.NotFound, "tenant not found", err)
	}
	if tenant.Customer != req.Customer {
		return nil, apierr.New(apierr.NotFound, "tenant not found")
	}
	if err := c.validateCredentials(ctx, tenant, req.Credentials); err != nil {
		return nil, err
	}
	if err := c.guard(ctx, tenant); err != nil {
		return nil, err
	}

	lic, err := c.Licenses.GetByCustomerAndCloud(ctx, tenant.Customer, tenant.Cloud)
	if err != nil {
		return nil, apierr.Wrap(apierr.NotFound, "no license for tenant's cloud", err)
	}
	now := c.now()
	if lic.Expired(now) {
		return nil, apierr.New(apierr.Validation, "license expired")
	}
	tlk, ok := lic.TenantLicenseKeyFor(tenant.Name)
	if !ok {
		return nil, apierr.New(apierr.Forbidden, "tenant has no tenant-license-key for this license")
	}

	return c.submitLicensedCommon(ctx, tenant, lic, tlk, req.RuleSetNames, req.RulesToScan, "", "", req.Owner, req.Credentials, now)
}

// submitLicensedCommon is shared by SubmitLicensed and SubmitK8s once
// each has resolved its tenant, license, and tenant-license-key.
func (c *Controller) submitLicensedCommon(ctx context.Context, tenant *domain.Tenant, lic *domain.License, tlk string, ruleSetNames, rulesToScan []string, platformID, regionOverride, owner string, creds map[string]string, now time.Time) (*domain.Job, error) {
	rulesets, err := c.RuleSets.ListLicensed(ctx, tenant.Customer, lic.Cloud, ruleSetNames)
	if err != nil {
		return nil, fmt.Errorf("submission: list licensed rule-sets: %w", err)
	}
	if len(rulesets) == 0 {
		return nil, apierr.New(apierr.Validation, "no licensed rule-sets matched the request")
	}
	if err := validateRulesToScan(rulesToScan, ruleUniverse(rulesets)); err != nil {
		return nil, err
	}

	rulesetMap := make(map[string]string, len(rulesets))
	licensedIDs := make([]string, 0, len(rulesets))
	for _, rs := range rulesets {
		rulesetMap[rs.ID] = tlk
		licensedIDs = append(licensedIDs, LicensedRuleSetID(rs.ID))
	}

	jobID := c.newID()
	if _, err := c.License.IsAllowedToLicenseAJob(ctx, jobID, tenant.Customer, tenant.Name, rulesetMap); err != nil {
		var denied *license.ErrDenied
		if errors.As(err, &denied) {
			return nil, apierr.Wrap(apierr.Forbidden, "license manager denied job", err)
		}
		return nil, apierr.Wrap(apierr.UpstreamUnavailable, "license manager unavailable", err)
	}

	credKey, err := c.stageCredentials(ctx, jobID, creds)
	if err != nil {
		return nil, err
	}

	regions := ResolveRegions(tenant, nil)
	if platformID != "" && regionOverride != "" {
		regions = []string{regionOverride}
	}

	return c.finishSubmit(ctx, submitParams{
		JobID:              jobID,
		Tenant:             tenant,
		Owner:              owner,
		JobType:            domain.JobTypeStandard,
		PlatformID:         platformID,
		Regions:            regions,
		RuleSets:           ruleSetRefs(rulesets),
		RulesToScan:        rulesToScan,
		LicensedRuleSetIDs: licensedIDs,
		AffectedLicenses:   []string{lic.Key},
		CredentialsKey:     credKey,
		SubmittedAt:        now,
	})
}

// SubmitK8s submits a scan against a Kubernetes platform: resolve the
// platform, confirm it's active and customer-owned, then run the
// licensed flow against the KUBERNETES domain.
func (c *Controller) SubmitK8s(ctx context.Context, req K8sRequest) (*domain.Job, error) {
	platform, err := c.Platforms.Get(ctx, req.PlatformID)
	if err != nil {
		return nil, apierr.Wrap(apierr.NotFound, "platform not found", err)
	}
	if !platform.Active || platform.Customer != req.Customer {
		return nil, apierr.New(apierr.NotFound, "platform not found")
	}

	tenant, err := c.Tenants.Get(ctx, platform.TenantName)
	if err != nil {
		return nil, apierr.Wrap(apierr.NotFound, "tenant not found", err)
	}
	if err := c.guard(ctx, tenant); err != nil {
		return nil, err
	}

	lic, err := c.Licenses.GetByCustomerAndCloud(ctx, req.Customer, domain.KUBERNETES)
	if err != nil {
		return nil, apierr.Wrap(apierr.NotFound, "no kubernetes license for customer", err)
	}
	now := c.now()
	if lic.Expired(now) {
		return nil, apierr.New(apierr.Validation, "license expired")
	}
	tlk, ok := lic.TenantLicenseKeyFor(tenant.Name)
	if !ok {
		return nil, apierr.New(apierr.Forbidden, "tenant has no tenant-license-key for this license")
	}

	var creds map[string]string
	if req.Token != "" {
		creds = map[string]string{"token": req.Token}
	}

	job, err := c.submitLicensedCommon(ctx, tenant, lic, tlk, req.RuleSetNames, req.RulesToScan, platform.ID, platform.Region, req.Owner, creds, now)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns the customer's jobs, optionally filtered to a tenant
// set.
func (c *Controller) List(ctx context.Context, customer string, tenants []string) ([]*domain.Job, error) {
	return c.Jobs.List(ctx, customer, tenants)
}

// Get returns one job by id, scoped the same way.
func (c *Controller) Get(ctx context.Context, customer string, tenants []string, id string) (*domain.Job, error) {
	job, err := c.Jobs.Get(ctx, id)
	if err != nil {
		return nil, apierr.Wrap(apierr.NotFound, "job not found", err)
	}
	if !jobInScope(job, customer, tenants) {
		return nil, apierr.New(apierr.NotFound, "job not found")
	}
	return job, nil
}

func jobInScope(job *domain.Job, customer string, tenants []string) bool {
	if job.Customer != customer {
		return false
	}
	if len(tenants) == 0 {
		return true
	}
	for _, t := range tenants {
		if t == job.TenantName {
			return true
		}
	}
	return false
}

// Terminate cancels a live job: a terminal job
// cannot be terminated again; otherwise the job row is set FAILED with a
// reason naming the initiating user and customer, the lock is released,
// and the batch backend is asked (best-effort) to terminate the
// underlying execution.
func (c *Controller) Terminate(ctx context.Context, customer string, tenants []string, id, requestingUser string) error {
	job, err := c.Get(ctx, customer, tenants, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return apierr.New(apierr.Validation, fmt.Sprintf("job %s is already %s", job.ID, job.Status))
	}

	reason := fmt.Sprintf("terminated by %s (customer %s)", requestingUser, customer)
	if err := c.Jobs.UpdateStatus(ctx, job.ID, domain.JobFailed, reason); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return apierr.New(apierr.Validation, fmt.Sprintf("job %s is already terminal", job.ID))
		}
		return fmt.Errorf("submission: update job status: %w", err)
	}
	if err := c.Lock.Release(ctx, job.TenantName); err != nil {
		return fmt.Errorf("submission: release tenant lock: %w", err)
	}
	if job.BackendJobID != "" {
		// Best-effort: the batch runtime may already be done, or may
		// simply not honor the terminate call promptly. The worker's own
		// conditional status update is what actually enforces "no
		// transition out of terminal states" if it races this call.
		_ = c.Batch.Terminate(ctx, job.BackendJobID, reason)
	}
	return nil
}
