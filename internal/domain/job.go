package domain

import "time"

// JobStatus is the lifecycle state of a Job. Jobs are created by the
// submission controller, mutated only by the executor (status
// transitions) and the lock (release), and expire by TTL at the store
// layer.
type JobStatus string

const (
	JobSubmitted JobStatus = "SUBMITTED"
	JobPending   JobStatus = "PENDING"
	JobRunnable  JobStatus = "RUNNABLE"
	JobStarting  JobStatus = "STARTING"
	JobRunning   JobStatus = "RUNNING"
	JobFailed    JobStatus = "FAILED"
	JobSucceeded JobStatus = "SUCCEEDED"
)

// Terminal reports whether the status can no longer transition (a
// termination request against a terminal job is rejected).
func (s JobStatus) Terminal() bool {
	return s == JobFailed || s == JobSucceeded
}

// JobType classifies how a job entered the system; it rides in the
// worker envelope as JOB_TYPE.
type JobType string

const (
	JobTypeStandard               JobType = "standard"
	JobTypeEventDriven            JobType = "event-driven"
	JobTypeEventDrivenMultiAcct   JobType = "event-driven-multi-account"
	JobTypeScheduled              JobType = "scheduled"
)

// RuleSetRef is the (id, name, version) triple carried in the envelope
// for each target rule-set.
type RuleSetRef struct {
	ID      string
	Name    string
	Version string
}

// Job is a single scan request/execution record.
type Job struct {
	ID            string
	TenantName    string
	Customer      string
	Owner         string
	Type          JobType
	Status        JobStatus
	SubmittedAt   time.Time
	StartedAt     *time.Time
	StoppedAt     *time.Time
	PlatformID    string
	RuleSets      []RuleSetRef
	RulesToScan   []string // optional filter, empty means "all selected rule-set rules"
	TargetRegions []string
	TTL           time.Duration
	Reason        string // failure/termination reason
	ScheduledName string
	BackendJobID  string // batch backend's own job id, used for Terminate
}

// BatchResults is created by an external event-driven ingestor and only
// mutated by the executor.
type BatchResults struct {
	ID              string
	TenantName      string
	RegionsToRules  map[string]map[string]struct{} // region -> set of rule ids
	Status          JobStatus
	CredentialsKey  string
	StoppedAt       *time.Time
	FailureReason   string
}

// ScheduledJob registers a recurring job.
type ScheduledJob struct {
	Name            string
	TenantName      string
	Customer        string
	Schedule        string // standard 5-field cron expression; intervals as e.g. "*/15 * * * *"
	Enabled         bool
	LastExecution   *time.Time
	Envelope        map[string]string // the submission envelope to replay on each fire
}

// TenantSettingJobLock is the tenant-scoped, at-most-one-active-job
// lock record. Its presence means a job is in flight for the tenant.
type TenantSettingJobLock struct {
	TenantName string
	JobID      string
	Regions    map[string]struct{}
}
