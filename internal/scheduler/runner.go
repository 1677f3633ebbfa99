package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/store"
)

// Runner drives an in-process cron.Cron instance that reloads the
// scheduled-job set periodically and fires due jobs through Firer. A
// multi-node deployment would instead run one Runner per leader-elected
// process; that election is outside this package's scope.
type Runner struct {
	Store        store.ScheduledJobStore
	Firer        *Firer
	Log          *zap.Logger
	ReloadPeriod time.Duration // how often the entry set is rescanned for new/changed jobs

	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// Start builds a cron.Cron, registers every enabled scheduled job of
// every customer, and begins firing. The reload loop runs until ctx is
// done; Stop should be called on shutdown.
func (r *Runner) Start(ctx context.Context) error {
	r.cron = cron.New()
	r.entries = make(map[string]cron.EntryID)

	if err := r.reload(ctx); err != nil {
		return err
	}
	r.cron.Start()

	if r.ReloadPeriod <= 0 {
		r.ReloadPeriod = 5 * time.Minute
	}
	go r.reloadLoop(ctx)
	return nil
}

func (r *Runner) reloadLoop(ctx context.Context) {
	ticker := time.NewTicker(r.ReloadPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.reload(ctx); err != nil && r.Log != nil {
				r.Log.Warn("scheduler: reload failed", zap.Error(err))
			}
		}
	}
}

func (r *Runner) reload(ctx context.Context) error {
	jobs, err := r.Store.List(ctx, "", nil)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(jobs))
	for _, sj := range jobs {
		seen[sj.Name] = struct{}{}
		if !sj.Enabled {
			r.unschedule(sj.Name)
			continue
		}
		if _, ok := r.entries[sj.Name]; ok {
			continue // already scheduled; schedule changes pick up next full restart
		}
		r.schedule(sj)
	}
	for name := range r.entries {
		if _, ok := seen[name]; !ok {
			r.unschedule(name)
		}
	}
	return nil
}

func (r *Runner) schedule(sj *domain.ScheduledJob) {
	name := sj.Name
	id, err := r.cron.AddFunc(sj.Schedule, func() {
		if err := r.Firer.Fire(context.Background(), sj, time.Now()); err != nil && r.Log != nil {
			r.Log.Error("scheduler: fire failed", zap.String("scheduled_job", name), zap.Error(err))
		}
	})
	if err != nil {
		if r.Log != nil {
			r.Log.Error("scheduler: invalid schedule, skipping", zap.String("scheduled_job", name), zap.Error(err))
		}
		return
	}
	r.entries[name] = id
}

func (r *Runner) unschedule(name string) {
	if id, ok := r.entries[name]; ok {
		r.cron.Remove(id)
		delete(r.entries, name)
	}
}

// Stop drains in-flight fires and stops the cron scheduler.
func (r *Runner) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}
