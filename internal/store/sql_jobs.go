package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/riftscan/sentinel/internal/domain"
)

// SQLJobStore backs JobStore with a `jobs` table over any of the three
// registered drivers (see drivers.go). It is the persistence layer a
// production deployment runs the submission controller and the worker's
// status callback against; Memory remains the default for tests.
type SQLJobStore struct {
	db *sql.DB
	d  Dialect
}

func NewSQLJobStore(db *sql.DB, d Dialect) *SQLJobStore {
	return &SQLJobStore{db: db, d: d}
}

// EnsureSchema creates the jobs table if it does not exist. It uses only
// portable SQL types so the same call works against all three dialects.
func (s *SQLJobStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	tenant_name TEXT NOT NULL,
	customer TEXT NOT NULL,
	owner TEXT NOT NULL,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL,
	submitted_at TEXT NOT NULL,
	started_at TEXT,
	stopped_at TEXT,
	platform_id TEXT,
	rulesets_json TEXT NOT NULL,
	rules_to_scan_json TEXT NOT NULL,
	target_regions_json TEXT NOT NULL,
	ttl_seconds INTEGER NOT NULL,
	reason TEXT,
	scheduled_name TEXT,
	backend_job_id TEXT
)`)
	if err != nil {
		return fmt.Errorf("store: ensure jobs schema: %w", err)
	}
	return nil
}

func (s *SQLJobStore) ph(n int) string { return s.d.Placeholder(n) }

func (s *SQLJobStore) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	rulesets, _ := json.Marshal(job.RuleSets)
	rts, _ := json.Marshal(job.RulesToScan)
	regions, _ := json.Marshal(job.TargetRegions)

	q := fmt.Sprintf(`INSERT INTO jobs
		(id, tenant_name, customer, owner, job_type, status, submitted_at, started_at,
		 stopped_at, platform_id, rulesets_json, rules_to_scan_json, target_regions_json,
		 ttl_seconds, reason, scheduled_name, backend_job_id)
		VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8),
		s.ph(9), s.ph(10), s.ph(11), s.ph(12), s.ph(13), s.ph(14), s.ph(15), s.ph(16), s.ph(17))

	_, err := s.db.ExecContext(ctx, q,
		job.ID, job.TenantName, job.Customer, job.Owner, string(job.Type), string(job.Status),
		job.SubmittedAt.UTC().Format(time.RFC3339Nano), nullableTime(job.StartedAt),
		nullableTime(job.StoppedAt), job.PlatformID, string(rulesets), string(rts), string(regions),
		int64(job.TTL.Seconds()), job.Reason, job.ScheduledName, job.BackendJobID)
	if err != nil {
		// Re-delivery of an already-registered scheduled job (or a retried
		// event-driven submission) hits the primary key; surface it as a
		// conflict rather than an error so callers can no-op.
		if existing, getErr := s.Get(ctx, job.ID); getErr == nil {
			return existing, ErrConflict
		}
		return nil, fmt.Errorf("store: create job: %w", err)
	}
	return job, nil
}

func (s *SQLJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	q := fmt.Sprintf(`SELECT id, tenant_name, customer, owner, job_type, status, submitted_at,
		started_at, stopped_at, platform_id, rulesets_json, rules_to_scan_json,
		target_regions_json, ttl_seconds, reason, scheduled_name, backend_job_id FROM jobs WHERE id = %s`, s.ph(1))
	row := s.db.QueryRowContext(ctx, q, id)
	return scanJob(row)
}

func (s *SQLJobStore) List(ctx context.Context, customer string, tenants []string) ([]*domain.Job, error) {
	q := fmt.Sprintf(`SELECT id, tenant_name, customer, owner, job_type, status, submitted_at,
		started_at, stopped_at, platform_id, rulesets_json, rules_to_scan_json,
		target_regions_json, ttl_seconds, reason, scheduled_name, backend_job_id
		FROM jobs WHERE customer = %s ORDER BY submitted_at DESC`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, q, customer)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	wanted := toSet(tenants)
	var out []*domain.Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		if len(wanted) > 0 {
			if _, ok := wanted[j.TenantName]; !ok {
				continue
			}
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLJobStore) MostRecentSucceeded(ctx context.Context, tenantName string) (*domain.Job, error) {
	q := fmt.Sprintf(`SELECT id, tenant_name, customer, owner, job_type, status, submitted_at,
		started_at, stopped_at, platform_id, rulesets_json, rules_to_scan_json,
		target_regions_json, ttl_seconds, reason, scheduled_name, backend_job_id
		FROM jobs WHERE tenant_name = %s AND status = %s
		ORDER BY submitted_at DESC LIMIT 1`, s.ph(1), s.ph(2))
	row := s.db.QueryRowContext(ctx, q, tenantName, string(domain.JobSucceeded))
	return scanJob(row)
}

func (s *SQLJobStore) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	q := fmt.Sprintf(`UPDATE jobs SET status = %s, reason = %s,
		started_at = CASE WHEN %s = '%s' AND started_at IS NULL THEN %s ELSE started_at END,
		stopped_at = CASE WHEN %s IN ('%s','%s') THEN %s ELSE stopped_at END
		WHERE id = %s AND status NOT IN ('%s','%s')`,
		s.ph(1), s.ph(2),
		s.ph(3), domain.JobRunning, s.ph(4),
		s.ph(5), domain.JobFailed, domain.JobSucceeded, s.ph(6),
		s.ph(7),
		domain.JobFailed, domain.JobSucceeded)

	res, err := s.db.ExecContext(ctx, q, string(status), reason, string(status), now, string(status), now, id)
	if err != nil {
		return fmt.Errorf("store: update job status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, getErr := s.Get(ctx, id); getErr == nil {
			return ErrConflict
		}
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row *sql.Row) (*domain.Job, error) {
	return scanJobGeneric(row)
}

func scanJobRows(rows *sql.Rows) (*domain.Job, error) {
	return scanJobGeneric(rows)
}

func scanJobGeneric(r rowScanner) (*domain.Job, error) {
	var (
		j                                      domain.Job
		jobType, status                        string
		submittedAt                            string
		startedAt, stoppedAt, platformID, reason, scheduledName, backendJobID sql.NullString
		rulesetsJSON, rtsJSON, regionsJSON      string
		ttlSeconds                              int64
	)
	err := r.Scan(&j.ID, &j.TenantName, &j.Customer, &j.Owner, &jobType, &status, &submittedAt,
		&startedAt, &stoppedAt, &platformID, &rulesetsJSON, &rtsJSON, &regionsJSON,
		&ttlSeconds, &reason, &scheduledName, &backendJobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan job: %w", err)
	}
	j.Type = domain.JobType(jobType)
	j.Status = domain.JobStatus(status)
	j.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
	j.StartedAt = parseNullableTime(startedAt)
	j.StoppedAt = parseNullableTime(stoppedAt)
	j.PlatformID = platformID.String
	j.Reason = reason.String
	j.ScheduledName = scheduledName.String
	j.BackendJobID = backendJobID.String
	j.TTL = time.Duration(ttlSeconds) * time.Second
	_ = json.Unmarshal([]byte(rulesetsJSON), &j.RuleSets)
	_ = json.Unmarshal([]byte(rtsJSON), &j.RulesToScan)
	_ = json.Unmarshal([]byte(regionsJSON), &j.TargetRegions)
	return &j, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
