package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewMemory(4)

	ev := TapEvent{DateKey: "2025-06-15", TappedAt: time.Date(2025, time.June, 15, 9, 0, 0, 0, time.Local)}
	require.NoError(t, q.Publish(ctx, ev))

	out, err := q.Consume(ctx)
	require.NoError(t, err)
	select {
	case got := <-out:
		assert.Equal(t, ev, got)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestMemoryPublishCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewMemory(1)
	require.NoError(t, q.Publish(ctx, TapEvent{DateKey: "2025-06-15"}))

	// buffer full and nobody consuming; a cancelled publish must not block
	cancel()
	err := q.Publish(ctx, TapEvent{DateKey: "2025-06-16"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryConsumeStopsWithoutReader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewMemory(1)
	require.NoError(t, q.Publish(ctx, TapEvent{DateKey: "2025-06-15"}))

	out, err := q.Consume(ctx)
	require.NoError(t, err)

	// cancel while the goroutine holds an undelivered event and no one is
	// reading; it must close out instead of blocking on the forward
	cancel()
	time.Sleep(50 * time.Millisecond)

	select {
	case _, open := <-out:
		assert.False(t, open, "expected a closed stream, got a delivered event")
	default:
		t.Fatal("consume goroutine still blocked after cancel")
	}
}
