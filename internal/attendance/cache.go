package attendance

import (
	"context"
	"sync"
	"time"

	"kiosk/internal/timekey"
)

// CachedGrade is the compact cache form of a GradeBucket: member ids only,
// never full user records, to keep cache documents small. Present ids are
// kept alongside so a cache hit can rebuild the annotated member list
// exactly.
type CachedGrade struct {
	Grade      int      `json:"grade"`
	Count      int      `json:"count"`
	UserIDs    []string `json:"user_ids"`
	PresentIDs []string `json:"present_ids,omitempty"`
}

// CachedTeam is the compact cache form of TeamStats.
type CachedTeam struct {
	TeamID   string        `json:"team_id"`
	TeamName string        `json:"team_name"`
	Grades   []CachedGrade `json:"grades"`
}

// CachedDay is one day of a monthly cache record.
type CachedDay struct {
	Date       string       `json:"date"`
	TotalCount int          `json:"total_count"`
	Teams      []CachedTeam `json:"teams"`
}

// CacheRecord is the persisted monthly aggregate, rebuildable at any time.
// Valid iff DataHash and LastLogCount match freshly recomputed values.
type CacheRecord struct {
	Year           int                  `json:"year"`
	Month          time.Month           `json:"month"`
	Days           map[string]CachedDay `json:"days"`
	LastLogCount   int                  `json:"last_log_count"`
	DataHash       string               `json:"data_hash"`
	LastCalculated time.Time            `json:"last_calculated"`
	Deleted        bool                 `json:"deleted,omitempty"`
	DeletedAt      *time.Time           `json:"deleted_at,omitempty"`
}

// CacheStore persists monthly cache records, whole-document overwrite,
// last write wins.
type CacheStore interface {
	// Get returns the record for the month, or nil when none exists.
	Get(ctx context.Context, year int, month time.Month) (*CacheRecord, error)
	Put(ctx context.Context, rec CacheRecord) error
	// Tombstone marks the month's record deleted so the next read recomputes.
	Tombstone(ctx context.Context, year int, month time.Month) error
	// TombstoneAll marks every record deleted, for bulk invalidation after
	// data migrations.
	TombstoneAll(ctx context.Context) error
}

// MemoryCache is an in-memory CacheStore for tests and dev.
type MemoryCache struct {
	mu   sync.RWMutex
	recs map[string]CacheRecord
}

// NewMemoryCache creates an empty in-memory cache store.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{recs: make(map[string]CacheRecord)}
}

// Get returns the month's record, or nil.
func (c *MemoryCache) Get(_ context.Context, year int, month time.Month) (*CacheRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.recs[timekey.MonthCacheID(year, month)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Put overwrites the month's record.
func (c *MemoryCache) Put(_ context.Context, rec CacheRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs[timekey.MonthCacheID(rec.Year, rec.Month)] = rec
	return nil
}

// Tombstone marks a record deleted.
func (c *MemoryCache) Tombstone(_ context.Context, year int, month time.Month) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.recs[timekey.MonthCacheID(year, month)] = CacheRecord{
		Year: year, Month: month, Deleted: true, DeletedAt: &now,
	}
	return nil
}

// TombstoneAll marks every record deleted.
func (c *MemoryCache) TombstoneAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, rec := range c.recs {
		c.recs[id] = CacheRecord{
			Year: rec.Year, Month: rec.Month, Deleted: true, DeletedAt: &now,
		}
	}
	return nil
}
