package shards

import (
	"context"
	"fmt"

	"github.com/riftscan/sentinel/internal/objectstore"
)

// Publish implements the latest-state write protocol: given
// the collection freshly built from this job's run, diff it against the
// tenant's current "latest" state, persist the diff under the job's
// difference key, then fold the new findings into "latest" and write it
// back. Returns the diff collection (the per-job changelog).
func Publish(ctx context.Context, store objectstore.Store, new *Collection) (*Collection, error) {
	jobKeys := JobKeys{Tenant: new.Tenant, JobID: new.JobID}
	if err := new.WriteAll(ctx, store, jobKeys); err != nil {
		return nil, fmt.Errorf("shards: write job shards: %w", err)
	}
	if err := new.WriteMeta(ctx, store, jobKeys); err != nil {
		return nil, fmt.Errorf("shards: write job meta: %w", err)
	}

	latest := NewCollection(new.Tenant, new.JobID, new.regions)
	latestKeys := LatestKeys{Tenant: new.Tenant}

	if err := latest.FetchByIndexes(ctx, store, latestKeys, new.ShardIndexes()); err != nil {
		return nil, fmt.Errorf("shards: fetch latest shards: %w", err)
	}
	if err := latest.FetchMeta(ctx, store, latestKeys); err != nil {
		return nil, fmt.Errorf("shards: fetch latest meta: %w", err)
	}

	diff := Difference(new, latest)
	diffKeys := DifferenceKeys{Tenant: new.Tenant, JobID: new.JobID}
	if err := diff.WriteAll(ctx, store, diffKeys); err != nil {
		return nil, fmt.Errorf("shards: write difference: %w", err)
	}

	latest.Update(new)
	latest.UpdateMeta(new.meta)
	if err := latest.WriteAll(ctx, store, latestKeys); err != nil {
		return nil, fmt.Errorf("shards: write latest: %w", err)
	}
	if err := latest.WriteMeta(ctx, store, latestKeys); err != nil {
		return nil, fmt.Errorf("shards: write latest meta: %w", err)
	}
	return diff, nil
}
