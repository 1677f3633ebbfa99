package executor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftscan/sentinel/internal/credentials"
	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/objectstore"
	"github.com/riftscan/sentinel/internal/policy"
	"github.com/riftscan/sentinel/internal/secretstore"
	"github.com/riftscan/sentinel/internal/shards"
	"github.com/riftscan/sentinel/internal/store"
	"github.com/riftscan/sentinel/internal/submission"
)

type stubSpawner struct {
	resultFor map[string]RegionResult
}

func (s stubSpawner) Spawn(_ context.Context, _ domain.Cloud, region, _ string, _ time.Time, _ string, _ map[string]string) (RegionResult, error) {
	if r, ok := s.resultFor[region]; ok {
		return r, nil
	}
	return RegionResult{Region: region}, nil
}

func bundleYAML() []byte {
	return []byte(`
policies:
  - name: s3-public-read
    resource: aws.s3
    comment: "global"
  - name: ec2-unencrypted-volume
    resource: aws.ec2
    region: eu-west-1
`)
}

func newTestDriver(t *testing.T) (*Driver, *store.Memory, string) {
	t.Helper()
	mem := store.NewMemory()
	tenant := domain.NewTenant("acme-aws", "acme", domain.AWS, "111122223333", []string{"eu-west-1"})
	mem.PutTenant(tenant)
	mem.PutRuleSet(&domain.RuleSet{ID: "rs-1", Name: "baseline", Version: "1", Cloud: domain.AWS, Customer: "acme", Active: true, Source: "bundles/rs-1.yaml"})

	job := &domain.Job{ID: "job-1", TenantName: tenant.Name, Customer: "acme", Type: domain.JobTypeStandard, Status: domain.JobSubmitted, TargetRegions: []string{"eu-west-1"}}
	_, err := mem.Jobs().Create(context.Background(), job)
	require.NoError(t, err)

	bundles := objectstore.NewMemory()
	require.NoError(t, bundles.Put(context.Background(), "bundles/rs-1.yaml", bytes.NewReader(bundleYAML()), "application/yaml"))

	resolver := &credentials.Resolver{
		Secrets: secretstore.NewMemory(),
		Identity: ambientAlwaysMatches{},
	}

	d := &Driver{
		Tenants:          mem.Tenants(),
		RuleSets:         mem.RuleSets(),
		Licenses:         mem.Licenses(),
		TenantSettings:   mem.TenantSettings(),
		CustomerSettings: mem.CustomerSettings(),
		Jobs:             mem.Jobs(),
		Credentials:      resolver,
		Bundles:          bundles,
		Reports:          objectstore.NewMemory(),
		Statistics:       objectstore.NewMemory(),
		Spawner: stubSpawner{resultFor: map[string]RegionResult{
			"eu-west-1": {Region: "eu-west-1", Findings: []shards.Finding{
				{ResourceID: "vol-1", Rule: "ec2-unencrypted-volume", Region: "eu-west-1"},
			}, Succeeded: map[string]int{"ec2-unencrypted-volume": 1}},
			domain.GlobalRegion: {Region: domain.GlobalRegion, Findings: []shards.Finding{
				{ResourceID: "bucket-1", Rule: "s3-public-read", Region: domain.GlobalRegion},
			}, Succeeded: map[string]int{"s3-public-read": 1}},
		}},
		TempDir: t.TempDir(),
	}
	return d, mem, job.ID
}

type ambientAlwaysMatches struct{}

func (ambientAlwaysMatches) MatchesTenant(context.Context, domain.Cloud, string) (bool, error) {
	return true, nil
}

func TestRun_Succeeds(t *testing.T) {
	d, mem, jobID := newTestDriver(t)
	env := submission.Build(submission.BuildInput{
		TenantName:     "acme-aws",
		JobID:          jobID,
		JobType:        domain.JobTypeStandard,
		TargetRegions:  []string{"eu-west-1"},
		TargetRuleSets: []domain.RuleSetRef{{ID: "rs-1", Name: "baseline", Version: "1"}},
		SubmittedAt:    time.Now(),
		JobLifetimeMin: 30,
	})

	code := d.Run(context.Background(), env)
	assert.Equal(t, ExitOK, code)

	job, err := mem.Jobs().Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobSucceeded, job.Status)
}

func TestRun_UnknownTenantFailsJob(t *testing.T) {
	d, mem, jobID := newTestDriver(t)
	env := submission.Build(submission.BuildInput{
		TenantName:     "does-not-exist",
		JobID:          jobID,
		JobType:        domain.JobTypeStandard,
		SubmittedAt:    time.Now(),
		JobLifetimeMin: 30,
	})

	code := d.Run(context.Background(), env)
	assert.Equal(t, ExitUnexpected, code)

	job, err := mem.Jobs().Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
}

func TestFilterDescriptors_ExcludedRulesSubtractedAndScanListIntersected(t *testing.T) {
	descriptors := []policy.Descriptor{
		{Name: "a", Resource: "aws.ec2"},
		{Name: "b", Resource: "aws.ec2"},
		{Name: "c", Resource: "aws.ec2"},
	}
	out := filterDescriptors(descriptors, []string{"a", "b"}, []string{"b"})
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Name)
}

func TestOrderedRegions_GlobalFirstThenSorted(t *testing.T) {
	got := orderedRegions([]string{"us-east-1", "eu-west-1", "eu-west-1"})
	assert.Equal(t, []string{domain.GlobalRegion, "eu-west-1", "us-east-1"}, got)
}
