package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFeedRecent(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFeed()
	base := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.Local)
	for i, title := range []string{"first", "second", "third"} {
		f.Add(Notification{
			ID:        title,
			Title:     title,
			Level:     LevelInfo,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	items, err := f.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "third", items[0].ID)
	assert.Equal(t, "second", items[1].ID)

	// non-positive limit falls back to the default of five
	all, err := f.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
