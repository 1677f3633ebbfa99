// Package shards implements shard collection & diff: findings
// partitioned by a stable shard index derived from region (or the
// synthetic "global" bucket), persisted to object storage, and diffed
// against a tenant's prior "latest" state.
package shards

import (
	"fmt"
	"sort"

	"github.com/riftscan/sentinel/internal/domain"
)

// Finding is a single policy match. Identity is the tuple the diff
// unions/subtracts by: two findings are "the same" iff ResourceID and
// Rule match, regardless of when they were collected.
type Finding struct {
	ResourceID string
	Rule       string
	Region     string
	Data       map[string]any
}

func (f Finding) key() string { return f.Rule + "\x00" + f.ResourceID }

// RuleMeta is the descriptor dictionary attached to a collection (the
// rule definitions that produced it), keyed by rule name.
type RuleMeta map[string]map[string]any

// Collection partitions Findings by shard index. Indexes are assigned
// deterministically from an ordered region list supplied at
// construction (GlobalRegion first, then regions in sorted order),
// matching "a stable shard index computed from the policy's region".
type Collection struct {
	Tenant  string
	JobID   string
	regions []string // index -> region name
	shards  map[int][]Finding
	meta    RuleMeta
}

// NewCollection builds an (initially empty) collection whose shard
// layout is fixed by regions. Callers building a "latest" collection
// pass the same region list as the job's "new" collection, so indexes
// line up when diffing.
func NewCollection(tenant, jobID string, regions []string) *Collection {
	ordered := append([]string{domain.GlobalRegion}, sortedUnique(regions)...)
	return &Collection{
		Tenant:  tenant,
		JobID:   jobID,
		regions: ordered,
		shards:  make(map[int][]Finding),
		meta:    make(RuleMeta),
	}
}

func sortedUnique(regions []string) []string {
	seen := make(map[string]struct{}, len(regions))
	var out []string
	for _, r := range regions {
		if r == domain.GlobalRegion {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// ShardIndex returns the stable index for a region (or -1 if the region
// isn't part of this collection's layout).
func (c *Collection) ShardIndex(region string) int {
	for i, r := range c.regions {
		if r == region {
			return i
		}
	}
	return -1
}

// RegionForIndex is ShardIndex's inverse, used when materializing keys
// for object-store I/O.
func (c *Collection) RegionForIndex(idx int) (string, bool) {
	if idx < 0 || idx >= len(c.regions) {
		return "", false
	}
	return c.regions[idx], true
}

// PutParts appends findings to the shard their Region maps to.
func (c *Collection) PutParts(parts []Finding) error {
	for _, f := range parts {
		idx := c.ShardIndex(f.Region)
		if idx < 0 {
			return fmt.Errorf("shards: region %q not part of this collection's layout", f.Region)
		}
		c.shards[idx] = append(c.shards[idx], f)
	}
	return nil
}

// Meta returns the attached rule descriptor dictionary.
func (c *Collection) Meta() RuleMeta { return c.meta }

// UpdateMeta merges other's rule descriptors into this collection's.
func (c *Collection) UpdateMeta(other RuleMeta) {
	for k, v := range other {
		c.meta[k] = v
	}
}

// ShardIndexes returns every populated shard index, sorted.
func (c *Collection) ShardIndexes() []int {
	out := make([]int, 0, len(c.shards))
	for idx := range c.shards {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Shard returns the findings for one shard index, or nil if empty.
func (c *Collection) Shard(idx int) []Finding { return c.shards[idx] }

// Update merges other into c: findings are unioned by stable identity
// (Rule, ResourceID) within each shard.
func (c *Collection) Update(other *Collection) {
	for idx, findings := range other.shards {
		existing := c.shards[idx]
		seen := make(map[string]struct{}, len(existing))
		for _, f := range existing {
			seen[f.key()] = struct{}{}
		}
		for _, f := range findings {
			if _, ok := seen[f.key()]; ok {
				continue
			}
			existing = append(existing, f)
			seen[f.key()] = struct{}{}
		}
		c.shards[idx] = existing
	}
}

// Difference returns a − b: a new Collection containing, for each
// shard present in a, the findings not present in the corresponding
// shard of b.
func Difference(a, b *Collection) *Collection {
	diff := &Collection{
		Tenant:  a.Tenant,
		JobID:   a.JobID,
		regions: a.regions,
		shards:  make(map[int][]Finding),
		meta:    a.meta,
	}
	for idx, findings := range a.shards {
		bKeys := make(map[string]struct{})
		for _, f := range b.shards[idx] {
			bKeys[f.key()] = struct{}{}
		}
		var missing []Finding
		for _, f := range findings {
			if _, ok := bKeys[f.key()]; !ok {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			diff.shards[idx] = missing
		}
	}
	return diff
}

// KeyBuilder supplies the object-store key for a shard/meta write or
// read; see io.go for the three layouts (job shards, tenant latest, job
// difference) that plug in here.
type KeyBuilder interface {
	ShardKey(idx int) string
	MetaKey() string
}
