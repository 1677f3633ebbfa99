package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SecondCallerLosesRace(t *testing.T) {
	m := NewManager(NewMemoryConditionalStore(), true)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "t1", "job-1", []string{"us-east-1"}))
	err := m.Acquire(ctx, "t1", "job-2", nil)
	assert.ErrorIs(t, err, ErrAlreadyLocked)

	locked, jobID, err := m.IsLocked(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, "job-1", jobID)
}

func TestRelease_ReopensTenant(t *testing.T) {
	m := NewManager(NewMemoryConditionalStore(), true)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "t1", "job-1", nil))
	require.NoError(t, m.Release(ctx, "t1"))

	locked, _, err := m.IsLocked(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, locked)
	assert.NoError(t, m.Acquire(ctx, "t1", "job-2", nil))
}

func TestRelease_UnlockedTenantIsNoop(t *testing.T) {
	m := NewManager(NewMemoryConditionalStore(), true)
	assert.NoError(t, m.Release(context.Background(), "t1"))
}

func TestDisabledManagerPermitsParallelJobs(t *testing.T) {
	m := NewManager(NewMemoryConditionalStore(), false)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "t1", "job-1", nil))
	require.NoError(t, m.Acquire(ctx, "t1", "job-2", nil))

	locked, _, err := m.IsLocked(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLocksArePerTenant(t *testing.T) {
	m := NewManager(NewMemoryConditionalStore(), true)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "t1", "job-1", nil))
	assert.NoError(t, m.Acquire(ctx, "t2", "job-2", nil))
}
