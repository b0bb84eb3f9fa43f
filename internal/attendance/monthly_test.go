package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk/internal/directory"
	"kiosk/internal/timekey"
)

type monthlyFixture struct {
	manager *MonthlyCacheManager
	dir     *directory.Memory
	shard   *MemoryShard
	legacy  *MemoryLegacy
	cache   *MemoryCache
}

func newMonthlyFixture(t *testing.T, now time.Time) *monthlyFixture {
	t.Helper()
	dir := directory.NewMemory()
	shard := NewMemoryShard()
	legacy := NewMemoryLegacy()
	cache := NewMemoryCache()
	store := NewTieredLogStore(shard, legacy).WithClock(fixedClock(now))
	daily := NewDailyAggregator(store, dir)
	return &monthlyFixture{
		manager: NewMonthlyCacheManager(store, dir, daily, cache),
		dir:     dir,
		shard:   shard,
		legacy:  legacy,
		cache:   cache,
	}
}

func TestMonthStatsComputesEveryDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)
	f := newMonthlyFixture(t, now)
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "a", Grade: 10, TeamID: "t1"}))
	seedShard(t, f.shard, Log{UID: "a", Type: TypeEntry, Timestamp: now.Add(-time.Hour)})

	stats, err := f.manager.MonthStats(ctx, 2025, time.June)
	require.NoError(t, err)
	require.Len(t, stats, 30)

	assert.Equal(t, 1, stats["2025-06-15"].TotalCount)
	assert.Equal(t, DayStats{Date: "2025-06-01"}, stats["2025-06-01"])
}

func TestMonthStatsCacheHitMatchesFresh(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)
	f := newMonthlyFixture(t, now)
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "a", Grade: 10, TeamID: "t1"}))
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "b", Grade: 9, TeamID: "t1"}))
	_, err := f.dir.CreateTeam(ctx, directory.Team{ID: "t1", Name: "Robotics"})
	require.NoError(t, err)
	seedShard(t, f.shard, Log{UID: "a", Type: TypeEntry, Timestamp: now.Add(-time.Hour)})
	seedShard(t, f.shard, Log{UID: "a", Type: TypeExit, Timestamp: now.Add(-30 * time.Minute)})

	fresh, err := f.manager.MonthStats(ctx, 2025, time.June)
	require.NoError(t, err)

	rec, err := f.cache.Get(ctx, 2025, time.June)
	require.NoError(t, err)
	require.NotNil(t, rec)
	calculatedAt := rec.LastCalculated

	// cache stores id lists, not full user records
	day := rec.Days["2025-06-15"]
	require.Len(t, day.Teams, 1)
	require.Len(t, day.Teams[0].Grades, 2)
	assert.Equal(t, []string{"a"}, day.Teams[0].Grades[0].UserIDs)
	assert.Equal(t, []string{"a"}, day.Teams[0].Grades[0].PresentIDs)

	cachedRead, err := f.manager.MonthStats(ctx, 2025, time.June)
	require.NoError(t, err)
	assert.Equal(t, fresh, cachedRead)

	// record untouched, so the second read was served from cache
	rec2, err := f.cache.Get(ctx, 2025, time.June)
	require.NoError(t, err)
	assert.Equal(t, calculatedAt, rec2.LastCalculated)
}

func TestMonthStatsInvalidatedByNewLog(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)
	f := newMonthlyFixture(t, now)
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "a", Grade: 10, TeamID: "t1"}))
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "b", Grade: 10, TeamID: "t1"}))
	seedShard(t, f.shard, Log{UID: "a", Type: TypeEntry, Timestamp: now.Add(-time.Hour)})

	first, err := f.manager.MonthStats(ctx, 2025, time.June)
	require.NoError(t, err)
	assert.Equal(t, 1, first["2025-06-15"].TotalCount)
	rec, err := f.cache.Get(ctx, 2025, time.June)
	require.NoError(t, err)
	staleHash := rec.DataHash

	seedShard(t, f.shard, Log{UID: "b", Type: TypeEntry, Timestamp: now.Add(-10 * time.Minute)})

	second, err := f.manager.MonthStats(ctx, 2025, time.June)
	require.NoError(t, err)
	assert.Equal(t, 2, second["2025-06-15"].TotalCount)

	rec, err = f.cache.Get(ctx, 2025, time.June)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.LastLogCount)
	assert.NotEqual(t, staleHash, rec.DataHash)
}

func TestMonthStatsInvalidatedByUserChange(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)
	f := newMonthlyFixture(t, now)
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "a", Grade: 10, TeamID: "t1"}))
	seedShard(t, f.shard, Log{UID: "a", Type: TypeEntry, Timestamp: now.Add(-time.Hour)})

	_, err := f.manager.MonthStats(ctx, 2025, time.June)
	require.NoError(t, err)

	// a new user changes the population hash even with no new logs
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "b", Grade: 9, TeamID: "t1"}))

	stats, err := f.manager.MonthStats(ctx, 2025, time.June)
	require.NoError(t, err)
	day := stats["2025-06-15"]
	require.Len(t, day.Teams, 1)
	total := 0
	for _, g := range day.Teams[0].Grades {
		total += g.Total
	}
	assert.Equal(t, 2, total)
}

func TestMonthStatsTombstoneForcesRecompute(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)
	f := newMonthlyFixture(t, now)
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "a", Grade: 10, TeamID: "t1"}))
	seedShard(t, f.shard, Log{UID: "a", Type: TypeEntry, Timestamp: now.Add(-time.Hour)})

	first, err := f.manager.MonthStats(ctx, 2025, time.June)
	require.NoError(t, err)

	require.NoError(t, f.manager.Invalidate(ctx, 2025, time.June))
	rec, err := f.cache.Get(ctx, 2025, time.June)
	require.NoError(t, err)
	assert.True(t, rec.Deleted)
	require.NotNil(t, rec.DeletedAt)

	second, err := f.manager.MonthStats(ctx, 2025, time.June)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	rec, err = f.cache.Get(ctx, 2025, time.June)
	require.NoError(t, err)
	assert.False(t, rec.Deleted)
}

func TestMonthStatsLegacyMonth(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)
	f := newMonthlyFixture(t, now)
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "a", Grade: 10, TeamID: "t1"}))
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "b", Grade: 10, TeamID: "t1"}))

	// a month that predates the partitioned layout entirely
	f.legacy.Add(Log{ID: "l1", UID: "a", Type: TypeEntry, Timestamp: time.Date(2024, time.March, 3, 10, 0, 0, 0, time.Local)})
	f.legacy.Add(Log{ID: "l2", UID: "b", Type: TypeEntry, Timestamp: time.Date(2024, time.March, 20, 10, 0, 0, 0, time.Local)})

	stats, err := f.manager.MonthStats(ctx, 2024, time.March)
	require.NoError(t, err)
	require.Len(t, stats, 31)
	assert.Equal(t, 1, stats["2024-03-03"].TotalCount)
	assert.Equal(t, 1, stats["2024-03-20"].TotalCount)
	assert.Equal(t, 0, stats["2024-03-04"].TotalCount)
}

func TestInvalidateAll(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.Local)
	f := newMonthlyFixture(t, now)
	require.NoError(t, f.dir.CreateUser(ctx, directory.User{UID: "a", Grade: 10}))
	seedShard(t, f.shard, Log{UID: "a", Type: TypeEntry, Timestamp: now.Add(-time.Hour)})
	seedShard(t, f.shard, Log{UID: "a", Type: TypeEntry, Timestamp: time.Date(2025, time.May, 10, 9, 0, 0, 0, time.Local)})

	_, err := f.manager.MonthStats(ctx, 2025, time.June)
	require.NoError(t, err)
	_, err = f.manager.MonthStats(ctx, 2025, time.May)
	require.NoError(t, err)

	require.NoError(t, f.manager.InvalidateAll(ctx))
	for _, month := range []time.Month{time.May, time.June} {
		rec, err := f.cache.Get(ctx, 2025, month)
		require.NoError(t, err)
		assert.True(t, rec.Deleted, "%s not tombstoned", timekey.MonthCacheID(2025, month))
	}
}
