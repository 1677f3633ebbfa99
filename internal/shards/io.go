package shards

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/riftscan/sentinel/internal/objectstore"
)

// JobKeys lays out a collection under a specific job id
// (reports/<tenant>/<job_id>/shards/<idx>.json.gz + meta.json).
type JobKeys struct {
	Tenant string
	JobID  string
}

func (k JobKeys) ShardKey(idx int) string { return objectstore.ShardKey(k.Tenant, k.JobID, idx) }
func (k JobKeys) MetaKey() string         { return objectstore.MetaKey(k.Tenant, k.JobID) }

// LatestKeys lays out a collection under the tenant's stable "latest"
// alias.
type LatestKeys struct {
	Tenant string
}

func (k LatestKeys) ShardKey(idx int) string {
	return objectstore.LatestKey(k.Tenant, fmt.Sprintf("shards/%d.json.gz", idx))
}
func (k LatestKeys) MetaKey() string { return objectstore.LatestKey(k.Tenant, "meta.json") }

// DifferenceKeys lays out a collection under a job's "difference"
// changelog key.
type DifferenceKeys struct {
	Tenant string
	JobID  string
}

func (k DifferenceKeys) ShardKey(idx int) string {
	return objectstore.DifferenceKey(k.Tenant, k.JobID, fmt.Sprintf("shards/%d.json.gz", idx))
}
func (k DifferenceKeys) MetaKey() string {
	return objectstore.DifferenceKey(k.Tenant, k.JobID, "meta.json")
}

// WriteAll persists every populated shard to store under the layout
// keys builds, as gzip-compressed JSON.
func (c *Collection) WriteAll(ctx context.Context, store objectstore.Store, keys KeyBuilder) error {
	for _, idx := range c.ShardIndexes() {
		body, err := gzipJSON(c.shards[idx])
		if err != nil {
			return fmt.Errorf("shards: encode shard %d: %w", idx, err)
		}
		if err := store.Put(ctx, keys.ShardKey(idx), bytes.NewReader(body), "application/gzip"); err != nil {
			return fmt.Errorf("shards: write shard %d: %w", idx, err)
		}
	}
	return nil
}

// WriteMeta persists the attached rule descriptor dictionary.
func (c *Collection) WriteMeta(ctx context.Context, store objectstore.Store, keys KeyBuilder) error {
	body, err := json.Marshal(c.meta)
	if err != nil {
		return fmt.Errorf("shards: encode meta: %w", err)
	}
	if err := store.Put(ctx, keys.MetaKey(), bytes.NewReader(body), "application/json"); err != nil {
		return fmt.Errorf("shards: write meta: %w", err)
	}
	return nil
}

// FetchByIndexes materializes only the requested shard indexes from
// storage, merging them into c; untouched shards stay unfetched.
func (c *Collection) FetchByIndexes(ctx context.Context, store objectstore.Store, keys KeyBuilder, indexes []int) error {
	for _, idx := range indexes {
		rc, err := store.Get(ctx, keys.ShardKey(idx))
		if err != nil {
			if errors.Is(err, objectstore.ErrNotFound) {
				continue // no prior state for this shard: nothing to merge
			}
			return fmt.Errorf("shards: fetch shard %d: %w", idx, err)
		}
		findings, err := ungzipJSON[[]Finding](rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("shards: decode shard %d: %w", idx, err)
		}
		c.shards[idx] = findings
	}
	return nil
}

// FetchMeta loads a previously persisted meta document, if any.
func (c *Collection) FetchMeta(ctx context.Context, store objectstore.Store, keys KeyBuilder) error {
	rc, err := store.Get(ctx, keys.MetaKey())
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("shards: fetch meta: %w", err)
	}
	defer rc.Close()
	var meta RuleMeta
	if err := json.NewDecoder(rc).Decode(&meta); err != nil {
		return fmt.Errorf("shards: decode meta: %w", err)
	}
	c.UpdateMeta(meta)
	return nil
}

func gzipJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gw).Encode(v); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ungzipJSON[T any](r io.Reader) (T, error) {
	var zero T
	gr, err := gzip.NewReader(r)
	if err != nil {
		return zero, err
	}
	defer gr.Close()
	var v T
	if err := json.NewDecoder(gr).Decode(&v); err != nil {
		return zero, err
	}
	return v, nil
}
