package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftscan/sentinel/internal/batchbackend"
	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/store"
	"github.com/riftscan/sentinel/internal/submission"
)

type stubBatch struct {
	submitted []batchbackend.SubmitInput
}

func (b *stubBatch) Submit(_ context.Context, in batchbackend.SubmitInput) (string, error) {
	b.submitted = append(b.submitted, in)
	return "backend-" + in.JobName, nil
}

func (b *stubBatch) Describe(context.Context, string) (batchbackend.Status, error) {
	return batchbackend.StatusRunning, nil
}

func (b *stubBatch) Terminate(context.Context, string, string) error { return nil }

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("*/15 * * * *"))
	assert.NoError(t, ValidateSchedule("0 3 * * 1"))
	assert.Error(t, ValidateSchedule("every day at noon"))
	assert.Error(t, ValidateSchedule(""))
}

func TestRegisterGetUpdateDelete(t *testing.T) {
	mem := store.NewMemory()
	m := &Manager{Store: mem.ScheduledJobs()}
	ctx := context.Background()

	sj, err := m.Register(ctx, RegisterInput{
		Name:           "nightly",
		TenantName:     "t1",
		Customer:       "acme",
		Schedule:       "0 3 * * *",
		RuleSets:       []domain.RuleSetRef{{ID: "rs-1", Name: "base", Version: "1"}},
		JobLifetimeMin: 60,
	})
	require.NoError(t, err)
	assert.True(t, sj.Enabled)
	assert.Equal(t, "rs-1:base:1", sj.Envelope[submission.KeyTargetRuleSets])

	got, err := m.Get(ctx, "nightly", "acme", nil)
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", got.Schedule)

	disabled := false
	require.NoError(t, m.Update(ctx, "nightly", &disabled, nil))
	got, err = m.Get(ctx, "nightly", "acme", nil)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	require.NoError(t, m.Delete(ctx, "nightly"))
	_, err = m.Get(ctx, "nightly", "acme", nil)
	assert.Error(t, err)
}

func TestRegister_RejectsBadSchedule(t *testing.T) {
	mem := store.NewMemory()
	m := &Manager{Store: mem.ScheduledJobs()}

	_, err := m.Register(context.Background(), RegisterInput{
		Name: "broken", TenantName: "t1", Customer: "acme", Schedule: "not-cron",
	})
	assert.Error(t, err)
}

func newRegistered(t *testing.T) (*Firer, *store.Memory, *stubBatch, *domain.ScheduledJob) {
	t.Helper()
	mem := store.NewMemory()
	batch := &stubBatch{}
	m := &Manager{Store: mem.ScheduledJobs()}
	sj, err := m.Register(context.Background(), RegisterInput{
		Name:           "nightly",
		TenantName:     "t1",
		Customer:       "acme",
		Schedule:       "0 3 * * *",
		RuleSets:       []domain.RuleSetRef{{ID: "rs-1", Name: "base", Version: "1"}},
		JobLifetimeMin: 60,
	})
	require.NoError(t, err)
	f := &Firer{Jobs: mem.Jobs(), ScheduledJobs: mem.ScheduledJobs(), Batch: batch}
	return f, mem, batch, sj
}

func TestFire_CreatesJobAndStampsLastExecution(t *testing.T) {
	f, mem, batch, sj := newRegistered(t)
	firedAt := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

	require.NoError(t, f.Fire(context.Background(), sj, firedAt))

	require.Len(t, batch.submitted, 1)
	env := batch.submitted[0].Envelope
	assert.Equal(t, "nightly", env[submission.KeyScheduledJobName])
	assert.NotEmpty(t, env[submission.KeyJobID])

	jobs, err := mem.Jobs().List(context.Background(), "acme", nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobTypeScheduled, jobs[0].Type)

	got, err := mem.ScheduledJobs().Get(context.Background(), "nightly", "acme", nil)
	require.NoError(t, err)
	require.NotNil(t, got.LastExecution)
	assert.Equal(t, firedAt.Unix(), got.LastExecution.Unix())
}

func TestFire_RedeliveredTickIsAbsorbed(t *testing.T) {
	f, mem, batch, sj := newRegistered(t)
	firedAt := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

	require.NoError(t, f.Fire(context.Background(), sj, firedAt))
	require.NoError(t, f.Fire(context.Background(), sj, firedAt))

	jobs, err := mem.Jobs().List(context.Background(), "acme", nil)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "same tick must dedupe to one job row")
	assert.Len(t, batch.submitted, 2)
}

func TestFire_DisabledJobIsSkipped(t *testing.T) {
	f, mem, batch, sj := newRegistered(t)
	disabled := false
	require.NoError(t, mem.ScheduledJobs().Update(context.Background(), "nightly", &disabled, nil))
	sj.Enabled = false

	require.NoError(t, f.Fire(context.Background(), sj, time.Now()))
	assert.Empty(t, batch.submitted)
}
