package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk/internal/timekey"
)

// fixedClock pins "today" for the backward day walk.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedShard(t *testing.T, shard *MemoryShard, l Log) {
	t.Helper()
	if l.ID == "" {
		l.ID = timekey.LogID(l.UID, l.Timestamp)
	}
	require.NoError(t, shard.Append(context.Background(), timekey.DateKey(l.Timestamp), l.ID, l))
}

func TestAppendLogDefaults(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 10, 30, 0, 0, time.Local)
	shard := NewMemoryShard()
	store := NewTieredLogStore(shard, NewMemoryLegacy()).WithClock(fixedClock(now))

	require.NoError(t, store.AppendLog(ctx, Log{UID: "u1", Type: TypeEntry}))

	logs, err := shard.DateLogs(ctx, "2025-06-15")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, timekey.LogID("u1", now), logs[0].ID)
	assert.Equal(t, now, logs[0].Timestamp)
}

func TestLatestLogLookbackBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)

	t.Run("364 days back is found", func(t *testing.T) {
		shard := NewMemoryShard()
		store := NewTieredLogStore(shard, NewMemoryLegacy()).WithClock(fixedClock(now))
		old := Log{UID: "u1", Type: TypeEntry, Timestamp: now.AddDate(0, 0, -364)}
		seedShard(t, shard, old)

		got, err := store.LatestLogForUser(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, old.Timestamp, got.Timestamp)
	})

	t.Run("366 days back is outside the window", func(t *testing.T) {
		shard := NewMemoryShard()
		store := NewTieredLogStore(shard, NewMemoryLegacy()).WithClock(fixedClock(now))
		seedShard(t, shard, Log{UID: "u1", Type: TypeEntry, Timestamp: now.AddDate(0, 0, -366)})

		got, err := store.LatestLogForUser(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("legacy fallback when window is empty", func(t *testing.T) {
		legacy := NewMemoryLegacy()
		old := Log{ID: "old", UID: "u1", Type: TypeExit, Timestamp: now.AddDate(-2, 0, 0)}
		legacy.Add(old)
		store := NewTieredLogStore(NewMemoryShard(), legacy).WithClock(fixedClock(now))

		got, err := store.LatestLogForUser(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "old", got.ID)
	})
}

func TestLatestLogNewestInPartitionWins(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 20, 0, 0, 0, time.Local)
	shard := NewMemoryShard()
	store := NewTieredLogStore(shard, NewMemoryLegacy()).WithClock(fixedClock(now))

	seedShard(t, shard, Log{UID: "u1", Type: TypeEntry, Timestamp: now.Add(-4 * time.Hour)})
	seedShard(t, shard, Log{UID: "u1", Type: TypeExit, Timestamp: now.Add(-1 * time.Hour)})

	got, err := store.LatestLogForUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, TypeExit, got.Type)
}

func TestQueryUserLogsMergesLegacy(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)
	shard := NewMemoryShard()
	legacy := NewMemoryLegacy()
	store := NewTieredLogStore(shard, legacy).WithClock(fixedClock(now))

	seedShard(t, shard, Log{UID: "u1", Type: TypeEntry, Timestamp: now.Add(-2 * time.Hour)})
	seedShard(t, shard, Log{UID: "u1", Type: TypeExit, Timestamp: now.Add(-1 * time.Hour)})
	legacy.Add(Log{ID: "l1", UID: "u1", Type: TypeEntry, Timestamp: now.AddDate(0, -1, 0)})
	legacy.Add(Log{ID: "l2", UID: "u1", Type: TypeExit, Timestamp: now.AddDate(0, -1, 0).Add(time.Hour)})

	logs, err := store.QueryUserLogs(ctx, "u1", now.AddDate(0, -2, 0), now, 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	// newest first: the two sharded logs, then the newest legacy one
	assert.Equal(t, TypeExit, logs[0].Type)
	assert.Equal(t, TypeEntry, logs[1].Type)
	assert.Equal(t, "l2", logs[2].ID)
}

func TestQueryUserLogsRespectsRange(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)
	shard := NewMemoryShard()
	store := NewTieredLogStore(shard, NewMemoryLegacy()).WithClock(fixedClock(now))

	inside := Log{UID: "u1", Type: TypeEntry, Timestamp: now.Add(-time.Hour)}
	outside := Log{UID: "u1", Type: TypeEntry, Timestamp: now.AddDate(0, 0, -10)}
	seedShard(t, shard, inside)
	seedShard(t, shard, outside)

	logs, err := store.QueryUserLogs(ctx, "u1", now.AddDate(0, 0, -1), now, 50)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, inside.Timestamp, logs[0].Timestamp)
}

func TestMonthLogsSource(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)

	t.Run("sharded month wins", func(t *testing.T) {
		shard := NewMemoryShard()
		legacy := NewMemoryLegacy()
		legacy.Add(Log{ID: "l1", UID: "u1", Type: TypeEntry, Timestamp: now})
		seedShard(t, shard, Log{UID: "u2", Type: TypeEntry, Timestamp: now})
		store := NewTieredLogStore(shard, legacy).WithClock(fixedClock(now))

		logs, source, err := store.MonthLogs(ctx, 2025, time.June)
		require.NoError(t, err)
		assert.Equal(t, SourceSharded, source)
		require.Len(t, logs, 1)
		assert.Equal(t, "u2", logs[0].UID)
	})

	t.Run("empty sharded month falls back to legacy", func(t *testing.T) {
		legacy := NewMemoryLegacy()
		legacy.Add(Log{ID: "l1", UID: "u1", Type: TypeEntry, Timestamp: now})
		store := NewTieredLogStore(NewMemoryShard(), legacy).WithClock(fixedClock(now))

		logs, source, err := store.MonthLogs(ctx, 2025, time.June)
		require.NoError(t, err)
		assert.Equal(t, SourceLegacy, source)
		require.Len(t, logs, 1)
		assert.Equal(t, "l1", logs[0].ID)
	})

	t.Run("legacy logs outside the month are excluded", func(t *testing.T) {
		legacy := NewMemoryLegacy()
		legacy.Add(Log{ID: "may", UID: "u1", Type: TypeEntry, Timestamp: time.Date(2025, time.May, 31, 23, 0, 0, 0, time.Local)})
		legacy.Add(Log{ID: "june", UID: "u1", Type: TypeEntry, Timestamp: time.Date(2025, time.June, 1, 1, 0, 0, 0, time.Local)})
		store := NewTieredLogStore(NewMemoryShard(), legacy).WithClock(fixedClock(now))

		logs, _, err := store.MonthLogs(ctx, 2025, time.June)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "june", logs[0].ID)
	})
}
