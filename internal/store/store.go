// Package store defines the persistence contracts for tenants, platforms,
// licenses, rule-sets, jobs, batch-results, and scheduled jobs, plus an
// in-memory implementation of all of them (tests, local dev) and a
// SQL-backed JobStore selectable by DSN scheme (see drivers.go and
// sql_jobs.go).
package store

import (
	"context"
	"errors"

	"github.com/riftscan/sentinel/internal/domain"
)

var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned by JobStore.Create when a row with the same id
// already exists; scheduled-job re-fires and event-driven retries rely
// on this being non-fatal.
var ErrConflict = errors.New("store: conflict")

type TenantStore interface {
	Get(ctx context.Context, name string) (*domain.Tenant, error)
}

type ParentStore interface {
	GetLinkedParentByTenant(ctx context.Context, tenantName string, typ domain.ParentType) (*domain.Parent, error)
}

type ApplicationStore interface {
	Get(ctx context.Context, id string) (*domain.Application, error)
}

type PlatformStore interface {
	Get(ctx context.Context, id string) (*domain.Platform, error)
}

type LicenseStore interface {
	GetByCustomerAndCloud(ctx context.Context, customer string, cloud domain.Cloud) (*domain.License, error)
}

type RuleSetStore interface {
	ListActiveStandard(ctx context.Context, customer string, cloud domain.Cloud, names []string) ([]*domain.RuleSet, error)
	// ListLicensed returns the customer's active, licensed rule-sets for
	// cloud, optionally filtered to names. The licensed submit path uses
	// it to compute the candidate rule-set list before it is further
	// filtered against the license's rule universe.
	ListLicensed(ctx context.Context, customer string, cloud domain.Cloud, names []string) ([]*domain.RuleSet, error)
	GetByID(ctx context.Context, id string) (*domain.RuleSet, error)
}

// TenantSettingsStore resolves per-tenant settings the executor and the
// cooldown check consult.
type TenantSettingsStore interface {
	ExcludedRules(ctx context.Context, tenantName string) ([]string, error)
	LastScanThresholdSeconds(ctx context.Context, customer string) (int64, bool, error)
}

type CustomerSettingsStore interface {
	ExcludedRules(ctx context.Context, customer string) ([]string, error)
}

type JobStore interface {
	// Create inserts a job. If a job with the same ID already exists,
	// it returns the existing row and ErrConflict so callers (the
	// scheduler's at-least-once re-fire) can treat it as a no-op.
	Create(ctx context.Context, job *domain.Job) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, customer string, tenants []string) ([]*domain.Job, error)
	MostRecentSucceeded(ctx context.Context, tenantName string) (*domain.Job, error)
	// UpdateStatus is a conditional update: it fails if the current
	// status is terminal; transitions out of terminal states are
	// forbidden.
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, reason string) error
}

type BatchResultsStore interface {
	Get(ctx context.Context, id string) (*domain.BatchResults, error)
}

type ScheduledJobStore interface {
	Register(ctx context.Context, job *domain.ScheduledJob) error
	List(ctx context.Context, customer string, tenants []string) ([]*domain.ScheduledJob, error)
	Get(ctx context.Context, name, customer string, tenants []string) (*domain.ScheduledJob, error)
	Update(ctx context.Context, name string, enabled *bool, schedule *string) error
	Delete(ctx context.Context, name string) error
	StampLastExecution(ctx context.Context, name string, ts int64) error
}
