package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kiosk/internal/timekey"
)

// TieredLogStore composes the sharded store with the legacy flat collection
// so callers see one log history. Reads try the partitioned layout first and
// fall back to legacy data where the sharded scan comes up short.
type TieredLogStore struct {
	shard  ShardStore
	legacy LegacyStore
	now    func() time.Time
}

// NewTieredLogStore builds the composed store.
func NewTieredLogStore(shard ShardStore, legacy LegacyStore) *TieredLogStore {
	return &TieredLogStore{shard: shard, legacy: legacy, now: time.Now}
}

// WithClock overrides the time source; used by tests to pin "today".
func (s *TieredLogStore) WithClock(now func() time.Time) *TieredLogStore {
	s.now = now
	return s
}

// AppendLog writes a log into today's partition. The id defaults to
// <uid>_<epochMillis> so entries sort naturally by time within a user.
func (s *TieredLogStore) AppendLog(ctx context.Context, l Log) error {
	if l.Timestamp.IsZero() {
		l.Timestamp = s.now()
	}
	if l.ID == "" {
		l.ID = timekey.LogID(l.UID, l.Timestamp)
	}
	if err := s.shard.Append(ctx, timekey.DateKey(l.Timestamp), l.ID, l); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// QueryUserLogs scans every month intersecting [from, to], most recent month
// first, walking days in descending order and short-circuiting once limit
// sharded matches are collected. A shortfall is filled from the legacy
// collection. Result is newest first, truncated to limit.
func (s *TieredLogStore) QueryUserLogs(ctx context.Context, uid string, from, to time.Time, limit int) ([]Log, error) {
	if limit <= 0 {
		limit = 50
	}
	fromKey := timekey.DateKey(from)
	toKey := timekey.DateKey(to)

	var logs []Log
	months := timekey.MonthsBetween(from, to)
	for i := len(months) - 1; i >= 0 && len(logs) < limit; i-- {
		ym := months[i]
		for day := timekey.DaysInMonth(ym.Year, ym.Month); day >= 1 && len(logs) < limit; day-- {
			key := fmt.Sprintf("%04d-%02d-%02d", ym.Year, int(ym.Month), day)
			if key > toKey || key < fromKey {
				continue
			}
			dayLogs, err := s.shard.UserLogsOnDate(ctx, key, uid)
			if err != nil {
				return nil, err
			}
			logs = append(logs, dayLogs...)
		}
	}

	if len(logs) < limit {
		old, err := s.legacy.UserLogs(ctx, uid, from, to, limit-len(logs))
		if err != nil {
			return nil, err
		}
		logs = append(logs, old...)
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i].Timestamp.After(logs[j].Timestamp) })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// QueryDateLogs returns all logs for exactly one date partition.
func (s *TieredLogStore) QueryDateLogs(ctx context.Context, dateKey string) ([]Log, error) {
	return s.shard.DateLogs(ctx, dateKey)
}

// LatestLogForUser walks backward day by day from today, bounded to
// latestLookback days, and returns the newest log in the first non-empty
// partition. Falls back to the legacy collection when the window has no
// sharded match. A true latest log older than the window is missed; that is
// the accepted cost of avoiding a full history scan.
func (s *TieredLogStore) LatestLogForUser(ctx context.Context, uid string) (*Log, error) {
	today := s.now()
	for i := 0; i < latestLookback; i++ {
		key := timekey.DateKey(today.AddDate(0, 0, -i))
		dayLogs, err := s.shard.UserLogsOnDate(ctx, key, uid)
		if err != nil {
			return nil, err
		}
		if len(dayLogs) > 0 {
			l := dayLogs[0]
			return &l, nil
		}
	}
	return s.legacy.LatestForUser(ctx, uid)
}

// MonthLogs concatenates every day partition of the month. Only when the
// sharded layout holds nothing for the entire month does it fall back to a
// legacy range scan, reporting the source so the monthly calculator can
// bucket legacy logs by timestamp instead of by partition.
func (s *TieredLogStore) MonthLogs(ctx context.Context, year int, month time.Month) ([]Log, MonthSource, error) {
	var logs []Log
	for _, key := range timekey.DayKeys(year, month) {
		dayLogs, err := s.shard.DateLogs(ctx, key)
		if err != nil {
			return nil, SourceSharded, err
		}
		logs = append(logs, dayLogs...)
	}
	if len(logs) > 0 {
		return logs, SourceSharded, nil
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	old, err := s.legacy.RangeLogs(ctx, start, end)
	if err != nil {
		return nil, SourceLegacy, err
	}
	return old, SourceLegacy, nil
}
