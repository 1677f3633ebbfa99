package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftscan/sentinel/internal/apierr"
	"github.com/riftscan/sentinel/internal/batchbackend"
	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/license"
	"github.com/riftscan/sentinel/internal/lock"
	"github.com/riftscan/sentinel/internal/secretstore"
	"github.com/riftscan/sentinel/internal/store"
)

type stubBatch struct {
	submitted  []batchbackend.SubmitInput
	terminated []string
	submitErr  error
}

func (b *stubBatch) Submit(_ context.Context, in batchbackend.SubmitInput) (string, error) {
	if b.submitErr != nil {
		return "", b.submitErr
	}
	b.submitted = append(b.submitted, in)
	return "backend-" + in.JobName, nil
}

func (b *stubBatch) Describe(context.Context, string) (batchbackend.Status, error) {
	return batchbackend.StatusRunning, nil
}

func (b *stubBatch) Terminate(_ context.Context, backendJobID, _ string) error {
	b.terminated = append(b.terminated, backendJobID)
	return nil
}

// newLicenseManager stands up a token endpoint plus a license-manager
// endpoint whose /jobs response is controlled by allowed.
func newLicenseManager(t *testing.T, allowed bool) *license.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"test-token","token_type":"bearer"}`)
	})
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(license.PostJobResponse{
			Allowed:        allowed,
			RulesetContent: map[string]string{"rs-lic": "bundles/rs-lic.yaml"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return license.NewClient(context.Background(), license.Config{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/token",
		ClientID:     "test",
		ClientSecret: "test",
	})
}

type controllerFixture struct {
	controller *Controller
	mem        *store.Memory
	batch      *stubBatch
	now        time.Time
}

func newFixture(t *testing.T, lmAllowed bool) *controllerFixture {
	t.Helper()
	mem := store.NewMemory()
	batch := &stubBatch{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mem.PutTenant(domain.NewTenant("t1", "acme", domain.AWS, "111122223333", []string{"us-east-1", "eu-west-1"}))
	mem.PutTenant(domain.NewTenant("t2", "acme", domain.GCP, "acme-prod", []string{"us-central1", "europe-west1"}))
	mem.PutRuleSet(&domain.RuleSet{ID: "rs-std", Name: "base", Version: "1", Cloud: domain.AWS, Customer: "acme", Active: true, Source: "bundles/rs-std.yaml"})
	mem.PutRuleSet(&domain.RuleSet{ID: "rs-gcp", Name: "base", Version: "1", Cloud: domain.GCP, Customer: "acme", Active: true, Source: "bundles/rs-gcp.yaml"})
	mem.PutRuleSet(&domain.RuleSet{ID: "rs-lic", Name: "premium", Version: "2", Cloud: domain.AWS, Customer: "acme", Licensed: true, Active: true, Source: "bundles/rs-lic.yaml", RuleIDs: []string{"r1", "r2"}})
	mem.PutLicense(&domain.License{
		Key:              "lic-1",
		Customer:         "acme",
		Cloud:            domain.AWS,
		Expiration:       now.Add(365 * 24 * time.Hour),
		RuleSetIDs:       map[string]struct{}{"rs-lic": {}},
		TenantLicenseKey: map[string]string{"t1": "tlk-1"},
	})

	ids := 0
	c := &Controller{
		Tenants:        mem.Tenants(),
		Parents:        mem.Parents(),
		Applications:   mem.Applications(),
		Platforms:      mem.Platforms(),
		Licenses:       mem.Licenses(),
		RuleSets:       mem.RuleSets(),
		TenantSettings: mem.TenantSettings(),
		Jobs:           mem.Jobs(),
		Lock:           lock.NewManager(lock.NewMemoryConditionalStore(), true),
		Secrets:        secretstore.NewMemory(),
		Batch:          batch,
		License:        newLicenseManager(t, lmAllowed),
		JobLifetimeMin: 60,
		AWSRegion:      "us-east-1",
		Clock:          func() time.Time { return now },
		NewID: func() string {
			ids++
			return fmt.Sprintf("job-%d", ids)
		},
	}
	return &controllerFixture{controller: c, mem: mem, batch: batch, now: now}
}

func TestSubmitStandard_HappyAWS(t *testing.T) {
	f := newFixture(t, true)

	job, err := f.controller.SubmitStandard(context.Background(), StandardRequest{
		TenantName: "t1", Customer: "acme", Owner: "alice",
		RuleSetNames: []string{"base"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobSubmitted, job.Status)
	assert.Equal(t, "t1", job.TenantName)

	require.Len(t, f.batch.submitted, 1)
	env := f.batch.submitted[0].Envelope
	assert.Equal(t, "eu-west-1,us-east-1", env[KeyTargetRegions])
	assert.Equal(t, "rs-std:base:1", env[KeyTargetRuleSets])
	assert.Equal(t, string(domain.JobTypeStandard), env[KeyJobType])

	locked, lockedBy, err := f.controller.Lock.IsLocked(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, job.ID, lockedBy)
}

func TestSubmitStandard_GCPCollapsesRegions(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.controller.SubmitStandard(context.Background(), StandardRequest{
		TenantName: "t2", Customer: "acme", Owner: "alice",
		Regions: []string{"us-central1", "europe-west1"},
	})
	require.NoError(t, err)

	require.Len(t, f.batch.submitted, 1)
	assert.Equal(t, domain.MultiRegion, f.batch.submitted[0].Envelope[KeyTargetRegions])
}

func TestSubmitStandard_LockHeldRejects(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.controller.Lock.Acquire(context.Background(), "t1", "other-job", nil))

	_, err := f.controller.SubmitStandard(context.Background(), StandardRequest{
		TenantName: "t1", Customer: "acme", Owner: "alice",
	})
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Forbidden, apiErr.Kind)
	assert.Empty(t, f.batch.submitted)
}

func TestSubmitStandard_CooldownActive(t *testing.T) {
	f := newFixture(t, true)
	f.mem.SetCooldown("acme", 3600)
	_, err := f.mem.Jobs().Create(context.Background(), &domain.Job{
		ID: "old", TenantName: "t1", Customer: "acme",
		Status: domain.JobSucceeded, SubmittedAt: f.now.Add(-10 * time.Minute),
	})
	require.NoError(t, err)

	_, err = f.controller.SubmitStandard(context.Background(), StandardRequest{
		TenantName: "t1", Customer: "acme", Owner: "alice",
	})
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Forbidden, apiErr.Kind)
	assert.Contains(t, apiErr.Message, "remaining")
}

func TestSubmitStandard_BatchFailureLeavesNoState(t *testing.T) {
	f := newFixture(t, true)
	f.batch.submitErr = errors.New("queue full")

	_, err := f.controller.SubmitStandard(context.Background(), StandardRequest{
		TenantName: "t1", Customer: "acme", Owner: "alice",
	})
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.UpstreamUnavailable, apiErr.Kind)

	jobs, err := f.controller.List(context.Background(), "acme", nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	locked, _, _ := f.controller.Lock.IsLocked(context.Background(), "t1")
	assert.False(t, locked)
}

func TestSubmitLicensed_Denied(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.controller.SubmitLicensed(context.Background(), LicensedRequest{
		StandardRequest: StandardRequest{TenantName: "t1", Customer: "acme", Owner: "alice"},
	})
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Forbidden, apiErr.Kind)

	jobs, err := f.controller.List(context.Background(), "acme", nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	locked, _, _ := f.controller.Lock.IsLocked(context.Background(), "t1")
	assert.False(t, locked)
}

func TestSubmitLicensed_CarriesTaggedRuleSetIDs(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.controller.SubmitLicensed(context.Background(), LicensedRequest{
		StandardRequest: StandardRequest{TenantName: "t1", Customer: "acme", Owner: "alice"},
	})
	require.NoError(t, err)

	require.Len(t, f.batch.submitted, 1)
	env := f.batch.submitted[0].Envelope
	assert.Equal(t, "0:rs-lic", env[KeyLicensedRuleSets])
	assert.Equal(t, "lic-1", env[KeyAffectedLicenses])
}

func TestSubmitLicensed_ExpiredLicense(t *testing.T) {
	f := newFixture(t, true)
	f.mem.PutLicense(&domain.License{
		Key: "lic-1", Customer: "acme", Cloud: domain.AWS,
		Expiration:       f.now.Add(-time.Hour),
		TenantLicenseKey: map[string]string{"t1": "tlk-1"},
	})

	_, err := f.controller.SubmitLicensed(context.Background(), LicensedRequest{
		StandardRequest: StandardRequest{TenantName: "t1", Customer: "acme", Owner: "alice"},
	})
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Validation, apiErr.Kind)
	assert.Contains(t, apiErr.Message, "license expired")
}

func TestSubmitLicensed_RulesToScanOutsideUniverse(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.controller.SubmitLicensed(context.Background(), LicensedRequest{
		StandardRequest: StandardRequest{TenantName: "t1", Customer: "acme", Owner: "alice"},
		RulesToScan:     []string{"r1", "zz-bogus", "aa-bogus"},
	})
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Validation, apiErr.Kind)
	assert.Contains(t, apiErr.Message, "aa-bogus, zz-bogus")
}

func TestTerminate_RunningJob(t *testing.T) {
	f := newFixture(t, true)
	job, err := f.controller.SubmitStandard(context.Background(), StandardRequest{
		TenantName: "t1", Customer: "acme", Owner: "alice",
	})
	require.NoError(t, err)

	require.NoError(t, f.controller.Terminate(context.Background(), "acme", nil, job.ID, "bob"))

	got, err := f.controller.Get(context.Background(), "acme", nil, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Contains(t, got.Reason, "bob")
	assert.Contains(t, got.Reason, "acme")

	locked, _, _ := f.controller.Lock.IsLocked(context.Background(), "t1")
	assert.False(t, locked)
	assert.Equal(t, []string{"backend-" + job.ID}, f.batch.terminated)
}

func TestTerminate_TerminalJobRejected(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.mem.Jobs().Create(context.Background(), &domain.Job{
		ID: "done", TenantName: "t1", Customer: "acme", Status: domain.JobSucceeded,
	})
	require.NoError(t, err)

	err = f.controller.Terminate(context.Background(), "acme", nil, "done", "bob")
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Validation, apiErr.Kind)
}

func TestGet_OtherCustomersJobHidden(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.mem.Jobs().Create(context.Background(), &domain.Job{
		ID: "theirs", TenantName: "t9", Customer: "globex", Status: domain.JobRunning,
	})
	require.NoError(t, err)

	_, err = f.controller.Get(context.Background(), "acme", nil, "theirs")
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.NotFound, apiErr.Kind)
}
