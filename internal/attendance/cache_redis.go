package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"kiosk/internal/timekey"
)

// RedisCache stores monthly cache records as JSON values keyed by the
// attendance_stats_YYYY_MM id. Writes overwrite the whole value; concurrent
// writers are last-write-wins, which matches the cache's rebuildable nature.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a redis-backed CacheStore.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the month's record, or nil when the key is absent.
func (c *RedisCache) Get(ctx context.Context, year int, month time.Month) (*CacheRecord, error) {
	raw, err := c.client.Get(ctx, timekey.MonthCacheID(year, month)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec CacheRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A malformed record is as good as no record.
		return nil, nil
	}
	return &rec, nil
}

// Put overwrites the month's record.
func (c *RedisCache) Put(ctx context.Context, rec CacheRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, timekey.MonthCacheID(rec.Year, rec.Month), raw, 0).Err()
}

// Tombstone replaces the month's record with a deleted marker.
func (c *RedisCache) Tombstone(ctx context.Context, year int, month time.Month) error {
	now := time.Now()
	return c.Put(ctx, CacheRecord{
		Year: year, Month: month, Deleted: true, DeletedAt: &now,
	})
}

// TombstoneAll walks every attendance_stats_* key and tombstones it.
func (c *RedisCache) TombstoneAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "attendance_stats_*", 0).Iterator()
	now := time.Now()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var rec CacheRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		rec = CacheRecord{Year: rec.Year, Month: rec.Month, Deleted: true, DeletedAt: &now}
		out, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := c.client.Set(ctx, key, out, 0).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
