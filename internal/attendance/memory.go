package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryShard is an in-memory ShardStore for tests and dev.
type MemoryShard struct {
	mu   sync.RWMutex
	days map[string][]Log // dateKey -> logs, insertion order
	ids  map[string]bool
}

// NewMemoryShard creates an empty in-memory sharded store.
func NewMemoryShard() *MemoryShard {
	return &MemoryShard{days: make(map[string][]Log), ids: make(map[string]bool)}
}

// Append stores a log under the date partition. Append-only: a duplicate id
// overwrites nothing and is dropped silently, mirroring a document set on an
// existing key being the same content.
func (m *MemoryShard) Append(_ context.Context, dateKey, id string, l Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids[dateKey+"/"+id] {
		return nil
	}
	m.ids[dateKey+"/"+id] = true
	l.ID = id
	m.days[dateKey] = append(m.days[dateKey], l)
	return nil
}

// DateLogs returns the partition's logs in insertion order.
func (m *MemoryShard) DateLogs(_ context.Context, dateKey string) ([]Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	logs := make([]Log, len(m.days[dateKey]))
	copy(logs, m.days[dateKey])
	return logs, nil
}

// UserLogsOnDate returns one user's logs in the partition, newest first.
func (m *MemoryShard) UserLogsOnDate(_ context.Context, dateKey, uid string) ([]Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var logs []Log
	for _, l := range m.days[dateKey] {
		if l.UID == uid {
			logs = append(logs, l)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Timestamp.After(logs[j].Timestamp) })
	return logs, nil
}

// MemoryLegacy is an in-memory LegacyStore.
type MemoryLegacy struct {
	mu   sync.RWMutex
	logs []Log
}

// NewMemoryLegacy creates an empty in-memory legacy store.
func NewMemoryLegacy() *MemoryLegacy {
	return &MemoryLegacy{}
}

// Add seeds a legacy log; the real legacy collection is read-only in
// production, this exists for tests and migrations.
func (m *MemoryLegacy) Add(l Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
}

// UserLogs returns a user's logs in [from, to], newest first, up to limit.
func (m *MemoryLegacy) UserLogs(_ context.Context, uid string, from, to time.Time, limit int) ([]Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var logs []Log
	for _, l := range m.logs {
		if l.UID == uid && !l.Timestamp.Before(from) && !l.Timestamp.After(to) {
			logs = append(logs, l)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Timestamp.After(logs[j].Timestamp) })
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// LatestForUser returns the user's most recent log, or nil.
func (m *MemoryLegacy) LatestForUser(_ context.Context, uid string) (*Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Log
	for i := range m.logs {
		l := m.logs[i]
		if l.UID != uid {
			continue
		}
		if latest == nil || l.Timestamp.After(latest.Timestamp) {
			latest = &l
		}
	}
	return latest, nil
}

// RangeLogs returns all logs in [from, to], newest first.
func (m *MemoryLegacy) RangeLogs(_ context.Context, from, to time.Time) ([]Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var logs []Log
	for _, l := range m.logs {
		if !l.Timestamp.Before(from) && !l.Timestamp.After(to) {
			logs = append(logs, l)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Timestamp.After(logs[j].Timestamp) })
	return logs, nil
}
