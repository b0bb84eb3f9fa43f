package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk/internal/directory"
)

// tickClock advances a minute per reading so sequential taps get strictly
// increasing timestamps while staying on the same day.
type tickClock struct {
	t time.Time
}

func (c *tickClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newToggleFixture(t *testing.T) (*ToggleEngine, *directory.Memory, *MemoryShard, *tickClock) {
	t.Helper()
	clk := &tickClock{t: time.Date(2025, time.June, 15, 9, 0, 0, 0, time.Local)}
	dir := directory.NewMemory()
	shard := NewMemoryShard()
	store := NewTieredLogStore(shard, NewMemoryLegacy()).WithClock(clk.Now)
	engine := NewToggleEngine(dir, store).WithClock(clk.Now)
	return engine, dir, shard, clk
}

func TestTapAlternates(t *testing.T) {
	ctx := context.Background()
	engine, dir, shard, _ := newToggleFixture(t)
	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "u1", CardID: "card-1", Grade: 10}))

	want := []TapStatus{TapEntry, TapExit, TapEntry, TapExit}
	for i, expected := range want {
		outcome, err := engine.Tap(ctx, "card-1")
		require.NoError(t, err, "tap %d", i)
		assert.Equal(t, expected, outcome.Status, "tap %d", i)
		assert.Equal(t, "u1", outcome.User.UID)
		assert.Equal(t, Type(expected), outcome.Log.Type)
	}

	logs, err := shard.DateLogs(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.Len(t, logs, len(want))
}

func TestTapDenormalizesUserStatus(t *testing.T) {
	ctx := context.Background()
	engine, dir, _, _ := newToggleFixture(t)
	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "u1", CardID: "card-1"}))

	_, err := engine.Tap(ctx, "card-1")
	require.NoError(t, err)
	u, err := dir.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, directory.StatusActive, u.Status)
	require.NotNil(t, u.LastActivity)

	_, err = engine.Tap(ctx, "card-1")
	require.NoError(t, err)
	u, err = dir.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, directory.StatusInactive, u.Status)
}

func TestTapUnregisteredCard(t *testing.T) {
	ctx := context.Background()
	engine, dir, shard, _ := newToggleFixture(t)
	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "u1", CardID: "card-1"}))

	outcome, err := engine.Tap(ctx, "no-such-card")
	require.NoError(t, err)
	assert.Equal(t, TapUnregistered, outcome.Status)
	assert.Empty(t, outcome.User.UID)

	// nothing was written
	logs, err := shard.DateLogs(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestToggleUserManual(t *testing.T) {
	ctx := context.Background()
	engine, dir, _, _ := newToggleFixture(t)
	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "u1"}))

	outcome, err := engine.ToggleUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, TapEntry, outcome.Status)
	assert.Empty(t, outcome.Log.CardID)

	_, err = engine.ToggleUser(ctx, "missing")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestToggleCrossDayCarryOver(t *testing.T) {
	ctx := context.Background()
	engine, dir, shard, clk := newToggleFixture(t)
	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "u1", CardID: "card-1"}))

	// open entry left yesterday still toggles to exit on today's first tap
	yesterday := clk.t.AddDate(0, 0, -1)
	seedShard(t, shard, Log{UID: "u1", Type: TypeEntry, Timestamp: yesterday})

	outcome, err := engine.Tap(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, TapExit, outcome.Status)
}

func TestToggleReadsLegacyHistory(t *testing.T) {
	ctx := context.Background()
	clk := &tickClock{t: time.Date(2025, time.June, 15, 9, 0, 0, 0, time.Local)}
	dir := directory.NewMemory()
	legacy := NewMemoryLegacy()
	legacy.Add(Log{ID: "old", UID: "u1", Type: TypeEntry, Timestamp: clk.t.AddDate(-2, 0, 0)})
	store := NewTieredLogStore(NewMemoryShard(), legacy).WithClock(clk.Now)
	engine := NewToggleEngine(dir, store).WithClock(clk.Now)
	require.NoError(t, dir.CreateUser(ctx, directory.User{UID: "u1", CardID: "card-1"}))

	outcome, err := engine.Tap(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, TapExit, outcome.Status)
}
