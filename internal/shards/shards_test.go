package shards

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftscan/sentinel/internal/objectstore"
)

func TestCollection_PutPartsAndShardIndex(t *testing.T) {
	c := NewCollection("t1", "job1", []string{"eu-west-1", "eu-central-1"})
	err := c.PutParts([]Finding{
		{ResourceID: "i-1", Rule: "ec2-unencrypted", Region: "eu-west-1"},
		{ResourceID: "bucket-1", Rule: "s3-public", Region: "global"},
	})
	require.NoError(t, err)

	regionIdx := c.ShardIndex("eu-west-1")
	globalIdx := c.ShardIndex("global")
	assert.NotEqual(t, regionIdx, globalIdx)
	assert.Len(t, c.Shard(regionIdx), 1)
	assert.Len(t, c.Shard(globalIdx), 1)
}

func TestDifference_OnlyReturnsMissingFindings(t *testing.T) {
	a := NewCollection("t1", "job-new", []string{"eu-west-1"})
	b := NewCollection("t1", "job-old", []string{"eu-west-1"})

	shared := Finding{ResourceID: "i-1", Rule: "r1", Region: "eu-west-1"}
	onlyInA := Finding{ResourceID: "i-2", Rule: "r1", Region: "eu-west-1"}

	require.NoError(t, a.PutParts([]Finding{shared, onlyInA}))
	require.NoError(t, b.PutParts([]Finding{shared}))

	diff := Difference(a, b)
	idx := a.ShardIndex("eu-west-1")
	require.Len(t, diff.Shard(idx), 1)
	assert.Equal(t, "i-2", diff.Shard(idx)[0].ResourceID)
}

func TestUpdate_UnionsByStableIdentity(t *testing.T) {
	a := NewCollection("t1", "job1", []string{"eu-west-1"})
	b := NewCollection("t1", "job2", []string{"eu-west-1"})

	f := Finding{ResourceID: "i-1", Rule: "r1", Region: "eu-west-1"}
	require.NoError(t, a.PutParts([]Finding{f}))
	require.NoError(t, b.PutParts([]Finding{f, {ResourceID: "i-2", Rule: "r1", Region: "eu-west-1"}}))

	a.Update(b)
	idx := a.ShardIndex("eu-west-1")
	assert.Len(t, a.Shard(idx), 2, "duplicate finding must not be counted twice")
}

func TestPublish_FirstRunHasEmptyDiffAgainstNothingButWritesLatest(t *testing.T) {
	store := objectstore.NewMemory()
	ctx := context.Background()

	job1 := NewCollection("t1", "job1", []string{"eu-west-1"})
	require.NoError(t, job1.PutParts([]Finding{{ResourceID: "i-1", Rule: "r1", Region: "eu-west-1"}}))

	diff, err := Publish(ctx, store, job1)
	require.NoError(t, err)
	idx := job1.ShardIndex("eu-west-1")
	assert.Len(t, diff.Shard(idx), 1, "first publish: everything is new relative to an empty latest")

	exists, err := store.Exists(ctx, objectstore.LatestKey("t1", "meta.json"))
	require.NoError(t, err)
	assert.True(t, exists)

	// Second run with the same finding plus one new one: diff should only
	// contain the new finding.
	job2 := NewCollection("t1", "job2", []string{"eu-west-1"})
	require.NoError(t, job2.PutParts([]Finding{
		{ResourceID: "i-1", Rule: "r1", Region: "eu-west-1"},
		{ResourceID: "i-2", Rule: "r1", Region: "eu-west-1"},
	}))
	diff2, err := Publish(ctx, store, job2)
	require.NoError(t, err)
	assert.Len(t, diff2.Shard(idx), 1)
	assert.Equal(t, "i-2", diff2.Shard(idx)[0].ResourceID)
}
