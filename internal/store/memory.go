package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riftscan/sentinel/internal/domain"
)

// Memory is an in-memory backing store for every interface in this
// package. It powers unit tests and a "no database configured" local
// dev mode; a single mutex guards all state, short critical sections
// only.
//
// Memory itself only holds data. Each store interface is exposed through
// a small typed view (Tenants(), Jobs(), ...) so that method names like
// Get don't collide across interfaces with different signatures.
type Memory struct {
	mu sync.Mutex

	tenants      map[string]*domain.Tenant
	parents      map[string][]*domain.Parent
	applications map[string]*domain.Application
	platforms    map[string]*domain.Platform
	licenses     map[string]*domain.License
	rulesets     map[string]*domain.RuleSet
	excluded     map[string][]string
	custExcluded map[string][]string
	cooldown     map[string]int64

	jobs          map[string]*domain.Job
	batchResults  map[string]*domain.BatchResults
	scheduledJobs map[string]*domain.ScheduledJob
}

func NewMemory() *Memory {
	return &Memory{
		tenants:       make(map[string]*domain.Tenant),
		parents:       make(map[string][]*domain.Parent),
		applications:  make(map[string]*domain.Application),
		platforms:     make(map[string]*domain.Platform),
		licenses:      make(map[string]*domain.License),
		rulesets:      make(map[string]*domain.RuleSet),
		excluded:      make(map[string][]string),
		custExcluded:  make(map[string][]string),
		cooldown:      make(map[string]int64),
		jobs:          make(map[string]*domain.Job),
		batchResults:  make(map[string]*domain.BatchResults),
		scheduledJobs: make(map[string]*domain.ScheduledJob),
	}
}

func licenseKey(customer string, cloud domain.Cloud) string { return customer + ":" + string(cloud) }

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, i := range items {
		out[i] = struct{}{}
	}
	return out
}

// ---- seeding helpers (used by tests and local bootstrapping) ----

func (m *Memory) PutTenant(t *domain.Tenant)          { m.mu.Lock(); defer m.mu.Unlock(); m.tenants[t.Name] = t }
func (m *Memory) PutPlatform(p *domain.Platform)      { m.mu.Lock(); defer m.mu.Unlock(); m.platforms[p.ID] = p }
func (m *Memory) PutApplication(a *domain.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications[a.ID] = a
}
func (m *Memory) PutLicense(l *domain.License) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.licenses[licenseKey(l.Customer, l.Cloud)] = l
}
func (m *Memory) PutRuleSet(r *domain.RuleSet) { m.mu.Lock(); defer m.mu.Unlock(); m.rulesets[r.ID] = r }
func (m *Memory) PutParent(p *domain.Parent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parents[p.TenantName] = append(m.parents[p.TenantName], p)
}
func (m *Memory) PutBatchResults(b *domain.BatchResults) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchResults[b.ID] = b
}
func (m *Memory) SetExcludedRules(tenant string, rules []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.excluded[tenant] = rules
}
func (m *Memory) SetCustomerExcludedRules(customer string, rules []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.custExcluded[customer] = rules
}
func (m *Memory) SetCooldown(customer string, seconds int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldown[customer] = seconds
}

// ---- typed views ----

func (m *Memory) Tenants() TenantStore             { return memTenants{m} }
func (m *Memory) Parents() ParentStore             { return memParents{m} }
func (m *Memory) Applications() ApplicationStore   { return memApplications{m} }
func (m *Memory) Platforms() PlatformStore         { return memPlatforms{m} }
func (m *Memory) Licenses() LicenseStore           { return memLicenses{m} }
func (m *Memory) RuleSets() RuleSetStore           { return memRuleSets{m} }
func (m *Memory) TenantSettings() TenantSettingsStore { return memTenantSettings{m} }
func (m *Memory) CustomerSettings() CustomerSettingsStore { return memCustomerSettings{m} }
func (m *Memory) Jobs() JobStore                   { return memJobs{m} }
func (m *Memory) BatchResultsStore() BatchResultsStore { return memBatchResults{m} }
func (m *Memory) ScheduledJobs() ScheduledJobStore { return memScheduledJobs{m} }

type memTenants struct{ m *Memory }

func (v memTenants) Get(_ context.Context, name string) (*domain.Tenant, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	t, ok := v.m.tenants[name]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

type memParents struct{ m *Memory }

func (v memParents) GetLinkedParentByTenant(_ context.Context, tenantName string, typ domain.ParentType) (*domain.Parent, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, p := range v.m.parents[tenantName] {
		if p.Type == typ {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

type memApplications struct{ m *Memory }

func (v memApplications) Get(_ context.Context, id string) (*domain.Application, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	a, ok := v.m.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

type memPlatforms struct{ m *Memory }

func (v memPlatforms) Get(_ context.Context, id string) (*domain.Platform, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	p, ok := v.m.platforms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

type memLicenses struct{ m *Memory }

func (v memLicenses) GetByCustomerAndCloud(_ context.Context, customer string, cloud domain.Cloud) (*domain.License, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	l, ok := v.m.licenses[licenseKey(customer, cloud)]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

type memRuleSets struct{ m *Memory }

func (v memRuleSets) ListActiveStandard(_ context.Context, customer string, cloud domain.Cloud, names []string) ([]*domain.RuleSet, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	wanted := toSet(names)
	var out []*domain.RuleSet
	for _, r := range v.m.rulesets {
		if r.Customer != customer || r.Cloud != cloud || r.Licensed || !r.Active {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[r.Name]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v memRuleSets) ListLicensed(_ context.Context, customer string, cloud domain.Cloud, names []string) ([]*domain.RuleSet, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	wanted := toSet(names)
	var out []*domain.RuleSet
	for _, r := range v.m.rulesets {
		if r.Customer != customer || r.Cloud != cloud || !r.Licensed || !r.Active {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[r.Name]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v memRuleSets) GetByID(_ context.Context, id string) (*domain.RuleSet, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	r, ok := v.m.rulesets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

type memTenantSettings struct{ m *Memory }

func (v memTenantSettings) ExcludedRules(_ context.Context, tenantName string) ([]string, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return append([]string(nil), v.m.excluded[tenantName]...), nil
}

func (v memTenantSettings) LastScanThresholdSeconds(_ context.Context, customer string) (int64, bool, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	val, ok := v.m.cooldown[customer]
	return val, ok, nil
}

type memCustomerSettings struct{ m *Memory }

func (v memCustomerSettings) ExcludedRules(_ context.Context, customer string) ([]string, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return append([]string(nil), v.m.custExcluded[customer]...), nil
}

type memJobs struct{ m *Memory }

func (v memJobs) Create(_ context.Context, job *domain.Job) (*domain.Job, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if existing, ok := v.m.jobs[job.ID]; ok {
		return existing, ErrConflict
	}
	cp := *job
	v.m.jobs[job.ID] = &cp
	return &cp, nil
}

func (v memJobs) Get(_ context.Context, id string) (*domain.Job, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	j, ok := v.m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j, nil
}

func (v memJobs) List(_ context.Context, customer string, tenants []string) ([]*domain.Job, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	wanted := toSet(tenants)
	var out []*domain.Job
	for _, j := range v.m.jobs {
		if j.Customer != customer {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[j.TenantName]; !ok {
				continue
			}
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (v memJobs) MostRecentSucceeded(_ context.Context, tenantName string) (*domain.Job, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var best *domain.Job
	for _, j := range v.m.jobs {
		if j.TenantName != tenantName || j.Status != domain.JobSucceeded {
			continue
		}
		if best == nil || j.SubmittedAt.After(best.SubmittedAt) {
			best = j
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (v memJobs) UpdateStatus(_ context.Context, id string, status domain.JobStatus, reason string) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	j, ok := v.m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status.Terminal() {
		return ErrConflict
	}
	j.Status = status
	j.Reason = reason
	now := time.Now()
	if status == domain.JobRunning && j.StartedAt == nil {
		j.StartedAt = &now
	}
	if status.Terminal() {
		j.StoppedAt = &now
	}
	return nil
}

type memBatchResults struct{ m *Memory }

func (v memBatchResults) Get(_ context.Context, id string) (*domain.BatchResults, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	b, ok := v.m.batchResults[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

type memScheduledJobs struct{ m *Memory }

func (v memScheduledJobs) Register(_ context.Context, job *domain.ScheduledJob) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	v.m.scheduledJobs[job.Name] = job
	return nil
}

func (v memScheduledJobs) List(_ context.Context, customer string, tenants []string) ([]*domain.ScheduledJob, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	wanted := toSet(tenants)
	var out []*domain.ScheduledJob
	for _, s := range v.m.scheduledJobs {
		// An empty customer is the scheduler runner's unscoped reload.
		if customer != "" && s.Customer != customer {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[s.TenantName]; !ok {
				continue
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v memScheduledJobs) Get(_ context.Context, name, customer string, tenants []string) (*domain.ScheduledJob, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	s, ok := v.m.scheduledJobs[name]
	if !ok || s.Customer != customer {
		return nil, ErrNotFound
	}
	if len(tenants) > 0 {
		wanted := toSet(tenants)
		if _, ok := wanted[s.TenantName]; !ok {
			return nil, ErrNotFound
		}
	}
	return s, nil
}

func (v memScheduledJobs) Update(_ context.Context, name string, enabled *bool, schedule *string) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	s, ok := v.m.scheduledJobs[name]
	if !ok {
		return ErrNotFound
	}
	if enabled != nil {
		s.Enabled = *enabled
	}
	if schedule != nil {
		s.Schedule = *schedule
	}
	return nil
}

func (v memScheduledJobs) Delete(_ context.Context, name string) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.scheduledJobs[name]; !ok {
		return ErrNotFound
	}
	delete(v.m.scheduledJobs, name)
	return nil
}

func (v memScheduledJobs) StampLastExecution(_ context.Context, name string, ts int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	s, ok := v.m.scheduledJobs[name]
	if !ok {
		return ErrNotFound
	}
	t := time.Unix(ts, 0).UTC()
	if s.LastExecution != nil && s.LastExecution.After(t) {
		return nil
	}
	s.LastExecution = &t
	return nil
}
