// Package notify serves the read-only announcement feed the kiosk cycles
// through on its idle screen.
package notify

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// Level is an announcement's severity for display styling.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelUrgent  Level = "urgent"
)

// Notification is one announcement.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Level     Level     `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}

// Feed lists recent announcements, newest first.
type Feed interface {
	Recent(ctx context.Context, limit int) ([]Notification, error)
}

// PostgresFeed reads announcements from Postgres.
type PostgresFeed struct {
	db *sql.DB
}

// NewPostgresFeed creates the feed.
func NewPostgresFeed(db *sql.DB) *PostgresFeed {
	return &PostgresFeed{db: db}
}

// Recent returns the newest announcements up to limit.
func (f *PostgresFeed) Recent(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := f.db.QueryContext(ctx, `
		SELECT id, title, body, level, created_at
		FROM notifications ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var (
			n     Notification
			body  sql.NullString
			level string
		)
		if err := rows.Scan(&n.ID, &n.Title, &body, &level, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Body = body.String
		n.Level = Level(level)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MemoryFeed is an in-memory Feed for tests and dev.
type MemoryFeed struct {
	mu    sync.RWMutex
	items []Notification
}

// NewMemoryFeed creates an empty feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{}
}

// Add appends an announcement.
func (f *MemoryFeed) Add(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
}

// Recent returns the newest announcements up to limit.
func (f *MemoryFeed) Recent(_ context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 5
	}
	f.mu.RLock()
	items := make([]Notification, len(f.items))
	copy(items, f.items)
	f.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
