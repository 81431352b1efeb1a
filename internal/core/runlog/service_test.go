package runlog

import (
	"context"
	"testing"
	"time"

	rds "storescraper/internal/platform/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	redisSvc, err := rds.New(rds.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisSvc.Close() })
	return NewService(redisSvc)
}

func TestCreateOpensRunningRow(t *testing.T) {
	s := testService(t)

	entry, err := s.Create(context.Background(), "job-1", "nightly sweep")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, StatusRunning, entry.Status)
	assert.NotNil(t, entry.CategoriesProcessed)

	stored, err := s.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "job-1", stored.JobID)
	assert.Equal(t, "nightly sweep", stored.JobName)
	assert.Equal(t, StatusRunning, stored.Status)

	history, err := s.ListByJob(context.Background(), "job-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entry.ID, history[0].ID)
}

func TestSnapshotUpdatesRunningRow(t *testing.T) {
	s := testService(t)

	entry, err := s.Create(context.Background(), "job-1", "nightly sweep")
	require.NoError(t, err)

	snap := *entry
	snap.ProductsAdded = 5
	snap.ProductsUpdated = 2
	snap.TotalProductsScraped = 7
	require.NoError(t, s.Snapshot(context.Background(), &snap))

	stored, err := s.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, stored.Status)
	assert.EqualValues(t, 7, stored.TotalProductsScraped)
	assert.EqualValues(t, 5, stored.ProductsAdded)
}

func TestStaleSnapshotCannotOverwriteFinalizedRow(t *testing.T) {
	s := testService(t)

	entry, err := s.Create(context.Background(), "job-1", "nightly sweep")
	require.NoError(t, err)

	now := time.Now()
	final := *entry
	final.Status = StatusCompleted
	final.CompletedAt = &now
	final.TotalProductsScraped = 42
	require.NoError(t, s.Finalize(context.Background(), &final))

	// A heartbeat that was in flight when the run finished must not drag the
	// row back to running or shrink its totals.
	stale := *entry
	stale.Status = StatusRunning
	stale.TotalProductsScraped = 7
	require.NoError(t, s.Snapshot(context.Background(), &stale))

	stored, err := s.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.EqualValues(t, 42, stored.TotalProductsScraped)
	require.NotNil(t, stored.CompletedAt)
}

func TestListByJobNewestFirst(t *testing.T) {
	s := testService(t)

	first, err := s.Create(context.Background(), "job-1", "run one")
	require.NoError(t, err)
	second, err := s.Create(context.Background(), "job-1", "run two")
	require.NoError(t, err)
	third, err := s.Create(context.Background(), "job-1", "run three")
	require.NoError(t, err)

	history, err := s.ListByJob(context.Background(), "job-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, third.ID, history[0].ID)
	assert.Equal(t, second.ID, history[1].ID)

	all, err := s.ListByJob(context.Background(), "job-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, first.ID, all[2].ID)
}

func TestPurgeRemovesHistory(t *testing.T) {
	s := testService(t)

	entry, err := s.Create(context.Background(), "job-1", "nightly sweep")
	require.NoError(t, err)
	require.NoError(t, s.Purge(context.Background(), "job-1"))

	history, err := s.ListByJob(context.Background(), "job-1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = s.Get(context.Background(), entry.ID)
	assert.Error(t, err)
}
