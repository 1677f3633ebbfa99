// Package batchbackend defines the executor-launching contract the
// submission controller submits jobs through, and two concrete
// implementations: AWS Batch and ECS RunTask.
package batchbackend

import "context"

// SubmitInput carries everything the worker envelope needs, plus the
// execution sizing the backend cares about (job queue / task
// definition selection is deployment configuration, not per-job).
type SubmitInput struct {
	JobName     string
	Envelope    map[string]string
	MemoryMiB   int32
	VCPUs       float64
	TimeoutSecs int32
}

// Status mirrors the subset of states Job.Status cares about;
// backend-specific states map down into these.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunnable  Status = "RUNNABLE"
	StatusStarting  Status = "STARTING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Backend is the contract the executor-launching batch runtime
// satisfies: submit, describe, and best-effort terminate.
type Backend interface {
	Submit(ctx context.Context, in SubmitInput) (backendJobID string, err error)
	Describe(ctx context.Context, backendJobID string) (Status, error)
	Terminate(ctx context.Context, backendJobID, reason string) error
}
