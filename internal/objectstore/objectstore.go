// Package objectstore defines the pluggable blob-storage contract used
// by the shard collection and the executor to persist scan shards,
// diffs, and statistics, plus the deterministic key layout those callers
// build paths with.
package objectstore

import (
	"context"
	"fmt"
	"io"
)

// Store is satisfied by the S3 and GCS adapters in this package. Keys
// are always forward-slash paths; callers never see bucket names.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// List returns keys sharing the given prefix, used to discover shard
	// part counts without a separate manifest round-trip.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ShardKey is the object key for shard index idx of jobID's output.
func ShardKey(tenant, jobID string, idx int) string {
	return fmt.Sprintf("reports/%s/%s/shards/%d.json.gz", tenant, jobID, idx)
}

// ShardPrefix is the prefix all of jobID's shard parts live under.
func ShardPrefix(tenant, jobID string) string {
	return fmt.Sprintf("reports/%s/%s/shards/", tenant, jobID)
}

// MetaKey is the object key for jobID's shard collection metadata
// (the rule descriptor dictionary, keyed by rule name).
func MetaKey(tenant, jobID string) string {
	return fmt.Sprintf("reports/%s/%s/meta.json", tenant, jobID)
}

// LatestKey mirrors tenant's most recently written shard at the given
// relative path (e.g. "meta.json", "shards/0.json.gz") under a stable
// "latest" alias so downstream consumers don't need a job id.
func LatestKey(tenant, relPath string) string {
	return fmt.Sprintf("reports/%s/latest/%s", tenant, relPath)
}

// DifferenceKey is the object key for the diff computed between jobID's
// output and the tenant's prior latest state, at relPath.
func DifferenceKey(tenant, jobID, relPath string) string {
	return fmt.Sprintf("reports/%s/%s/difference/%s", tenant, jobID, relPath)
}

// StatisticsKey is the object key for jobID's gzip-compressed execution
// statistics document.
func StatisticsKey(jobID string) string {
	return fmt.Sprintf("statistics/%s.json.gz", jobID)
}
