package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk/internal/directory"
)

func TestForcedCheckout(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 23, 59, 0, 0, time.Local)
	dir := directory.NewMemory()
	shard := NewMemoryShard()
	store := NewTieredLogStore(shard, NewMemoryLegacy()).WithClock(fixedClock(now))
	sweep := NewForcedCheckout(dir, store).WithClock(fixedClock(now))

	// a: open entry, needs a forced exit
	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "a", CardID: "card-a", Status: directory.StatusActive}))
	seedShard(t, shard, Log{UID: "a", Type: TypeEntry, Timestamp: now.Add(-5 * time.Hour)})
	// b: already left
	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "b", Status: directory.StatusInactive}))
	seedShard(t, shard, Log{UID: "b", Type: TypeEntry, Timestamp: now.Add(-5 * time.Hour)})
	seedShard(t, shard, Log{UID: "b", Type: TypeExit, Timestamp: now.Add(-2 * time.Hour)})
	// c: never came in today
	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "c"}))

	res, err := sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Swept)
	assert.Equal(t, 2, res.NoAction)
	assert.Equal(t, 0, res.Failed)

	logs, err := shard.UserLogsOnDate(ctx, "2025-06-15", "a")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, TypeExit, logs[0].Type)
	assert.Equal(t, "Forced checkout by system", logs[0].Memo)
	assert.Equal(t, "card-a", logs[0].CardID)

	u, err := dir.GetUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, directory.StatusInactive, u.Status)
}

func TestForcedCheckoutCardFallback(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 23, 59, 0, 0, time.Local)
	dir := directory.NewMemory()
	shard := NewMemoryShard()
	store := NewTieredLogStore(shard, NewMemoryLegacy()).WithClock(fixedClock(now))
	sweep := NewForcedCheckout(dir, store).WithClock(fixedClock(now))

	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "a"}))
	seedShard(t, shard, Log{UID: "a", Type: TypeEntry, Timestamp: now.Add(-time.Hour)})

	res, err := sweep.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Swept)

	logs, err := shard.UserLogsOnDate(ctx, "2025-06-15", "a")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "auto_checkout", logs[0].CardID)
}

func TestForcedCheckoutIgnoresYesterdaysEntry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 15, 23, 59, 0, 0, time.Local)
	dir := directory.NewMemory()
	shard := NewMemoryShard()
	store := NewTieredLogStore(shard, NewMemoryLegacy()).WithClock(fixedClock(now))
	sweep := NewForcedCheckout(dir, store).WithClock(fixedClock(now))

	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "a"}))
	seedShard(t, shard, Log{UID: "a", Type: TypeEntry, Timestamp: now.AddDate(0, 0, -1)})

	res, err := sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Swept)
	assert.Equal(t, 1, res.NoAction)
}
