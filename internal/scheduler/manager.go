// Package scheduler implements the scheduled-job manager:
// register/list/update/delete recurring jobs backed by a scheduler
// store, and fire them into new Job rows on each tick. Schedule
// parsing and next-fire computation go through
// github.com/robfig/cron/v3.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/riftscan/sentinel/internal/apierr"
	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/store"
	"github.com/riftscan/sentinel/internal/submission"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether schedule parses as a standard 5-field
// cron expression, the only form this manager accepts; intervals are
// expressed as cron expressions, e.g. "*/15 * * * *", rather than a
// second schedule grammar.
func ValidateSchedule(schedule string) error {
	if _, err := parser.Parse(schedule); err != nil {
		return apierr.Wrap(apierr.Validation, "invalid schedule expression", err)
	}
	return nil
}

// Manager is the scheduled-job CRUD facade.
type Manager struct {
	Store store.ScheduledJobStore
}

// RegisterInput carries everything Register needs to build the stored
// envelope template a fire replays (see fire.go).
type RegisterInput struct {
	Name           string
	TenantName     string
	Customer       string
	Schedule       string
	RuleSets       []domain.RuleSetRef
	LicensedIDs    []string
	AffectedLicense string
	PlatformID     string
	AWSRegion      string
	JobLifetimeMin int
}

// Register stores a new scheduled job with its replayable envelope.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (*domain.ScheduledJob, error) {
	if err := ValidateSchedule(in.Schedule); err != nil {
		return nil, err
	}

	env := submission.Build(submission.BuildInput{
		TenantName:         in.TenantName,
		PlatformID:         in.PlatformID,
		JobType:            domain.JobTypeScheduled,
		TargetRuleSets:     in.RuleSets,
		LicensedRuleSetIDs: in.LicensedIDs,
		JobLifetimeMin:     in.JobLifetimeMin,
		AWSRegion:          in.AWSRegion,
	})
	if in.AffectedLicense != "" {
		env[submission.KeyAffectedLicenses] = in.AffectedLicense
	}

	sj := &domain.ScheduledJob{
		Name:       in.Name,
		TenantName: in.TenantName,
		Customer:   in.Customer,
		Schedule:   in.Schedule,
		Enabled:    true,
		Envelope:   env,
	}
	if err := m.Store.Register(ctx, sj); err != nil {
		return nil, fmt.Errorf("scheduler: register %s: %w", in.Name, err)
	}
	return sj, nil
}

// List returns the customer's scheduled jobs, optionally tenant-scoped.
func (m *Manager) List(ctx context.Context, customer string, tenants []string) ([]*domain.ScheduledJob, error) {
	return m.Store.List(ctx, customer, tenants)
}

// Get returns one scheduled job by name, customer-scoped.
func (m *Manager) Get(ctx context.Context, name, customer string, tenants []string) (*domain.ScheduledJob, error) {
	sj, err := m.Store.Get(ctx, name, customer, tenants)
	if err != nil {
		return nil, apierr.Wrap(apierr.NotFound, "scheduled job not found", err)
	}
	return sj, nil
}

// Update changes a scheduled job's enabled flag and/or schedule, each
// independently optional.
func (m *Manager) Update(ctx context.Context, name string, enabled *bool, schedule *string) error {
	if schedule != nil {
		if err := ValidateSchedule(*schedule); err != nil {
			return err
		}
	}
	if err := m.Store.Update(ctx, name, enabled, schedule); err != nil {
		return apierr.Wrap(apierr.NotFound, "scheduled job not found", err)
	}
	return nil
}

// Delete removes a scheduled job.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := m.Store.Delete(ctx, name); err != nil {
		return apierr.Wrap(apierr.NotFound, "scheduled job not found", err)
	}
	return nil
}
