package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/riftscan/sentinel/internal/batchbackend"
	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/store"
	"github.com/riftscan/sentinel/internal/submission"
)

// Firer fires a single scheduled job tick into a new Job row and a
// batch submission. The id is derived
// deterministically from the schedule name and fire time so that an
// at-least-once re-delivery of the same tick lands on the same id and
// is absorbed by JobStore.Create's conflict-as-noop behavior.
type Firer struct {
	Jobs          store.JobStore
	ScheduledJobs store.ScheduledJobStore
	Batch         batchbackend.Backend
	MemoryMiB     int32
	VCPUs         float64
}

// jobIDFor derives the deterministic per-fire job id.
func jobIDFor(scheduledJobName string, firedAt time.Time) string {
	return fmt.Sprintf("%s-%d", scheduledJobName, firedAt.Unix())
}

// Fire implements one tick of sj's schedule. last_execution_time is
// stamped only once the batch submission (which is what actually
// resolves/stages credentials, downstream in the executor) succeeds.
func (f *Firer) Fire(ctx context.Context, sj *domain.ScheduledJob, firedAt time.Time) error {
	if !sj.Enabled {
		return nil
	}

	jobID := jobIDFor(sj.Name, firedAt)
	env := make(submission.Envelope, len(sj.Envelope)+4)
	for k, v := range sj.Envelope {
		env[k] = v
	}
	env[submission.KeyJobID] = jobID
	env[submission.KeySubmittedAt] = strconv.FormatInt(firedAt.Unix(), 10)
	env[submission.KeyScheduledJobName] = sj.Name

	timeoutSecs, _ := strconv.Atoi(env[submission.KeyJobLifetimeMin])
	backendJobID, err := f.Batch.Submit(ctx, batchbackend.SubmitInput{
		JobName:     jobID,
		Envelope:    env,
		MemoryMiB:   f.MemoryMiB,
		VCPUs:       f.VCPUs,
		TimeoutSecs: int32(timeoutSecs * 60),
	})
	if err != nil {
		return fmt.Errorf("scheduler: submit fire %s: %w", jobID, err)
	}

	job := &domain.Job{
		ID:            jobID,
		TenantName:    sj.TenantName,
		Customer:      sj.Customer,
		Type:          domain.JobTypeScheduled,
		Status:        domain.JobSubmitted,
		SubmittedAt:   firedAt,
		RuleSets:      submission.DecodeRuleSetRefs(env[submission.KeyTargetRuleSets]),
		TargetRegions: splitNonEmpty(env[submission.KeyTargetRegions]),
		ScheduledName: sj.Name,
		BackendJobID:  backendJobID,
	}
	if _, err := f.Jobs.Create(ctx, job); err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("scheduler: create job row for fire %s: %w", jobID, err)
	}

	if err := f.ScheduledJobs.StampLastExecution(ctx, sj.Name, firedAt.Unix()); err != nil {
		return fmt.Errorf("scheduler: stamp last execution for %s: %w", sj.Name, err)
	}
	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
