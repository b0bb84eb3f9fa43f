package attendance

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"time"

	"kiosk/internal/directory"
	"kiosk/internal/grade"
	"kiosk/internal/metrics"
	"kiosk/internal/timekey"
)

// MonthStats maps date keys (YYYY-MM-DD) to that day's breakdown; every
// calendar day of the month has an entry, empty days included.
type MonthStats map[string]DayStats

// MonthlyCacheManager computes per-day aggregates for a whole month and
// skips the work when a persisted cache record still describes the current
// log/user population. Freshness is a content hash over log count, user
// count and the newest log timestamp plus an exact log-count match; the hash
// is deliberately weak, a collision only delays recomputation until the next
// count change.
type MonthlyCacheManager struct {
	logs  LogStore
	dir   directory.Directory
	daily *DailyAggregator
	cache CacheStore
}

// NewMonthlyCacheManager wires the manager. The cache store is owned by the
// caller, constructed per session rather than living as package state.
func NewMonthlyCacheManager(logs LogStore, dir directory.Directory, daily *DailyAggregator, cache CacheStore) *MonthlyCacheManager {
	return &MonthlyCacheManager{logs: logs, dir: dir, daily: daily, cache: cache}
}

// MonthStats returns the per-day breakdown for the month, from cache when
// fresh, recomputed and re-persisted otherwise.
func (m *MonthlyCacheManager) MonthStats(ctx context.Context, year int, month time.Month) (MonthStats, error) {
	logs, source, err := m.logs.MonthLogs(ctx, year, month)
	if err != nil {
		return nil, err
	}
	users, err := m.dir.AllUsers(ctx)
	if err != nil {
		return nil, err
	}

	hash := dataHash(logs, len(users))
	cached, err := m.cache.Get(ctx, year, month)
	if err != nil {
		// Cache trouble never fails the read path.
		log.Printf("monthly cache read failed for %d-%02d: %v", year, month, err)
		cached = nil
	}
	if cached != nil && !cached.Deleted && cached.DataHash == hash && cached.LastLogCount == len(logs) {
		metrics.MonthlyCacheHits.Inc()
		return rehydrate(cached, users), nil
	}

	metrics.MonthlyCacheMisses.Inc()
	started := time.Now()
	fresh, err := m.recompute(ctx, year, month, logs, source, users)
	if err != nil {
		return nil, err
	}
	metrics.AggregationSeconds.Observe(time.Since(started).Seconds())

	rec := compact(year, month, fresh)
	rec.LastLogCount = len(logs)
	rec.DataHash = hash
	rec.LastCalculated = time.Now()
	if err := m.cache.Put(ctx, rec); err != nil {
		log.Printf("monthly cache write failed for %d-%02d: %v", year, month, err)
	}
	return fresh, nil
}

// Invalidate tombstones the month's cache record; the next read recomputes.
func (m *MonthlyCacheManager) Invalidate(ctx context.Context, year int, month time.Month) error {
	return m.cache.Tombstone(ctx, year, month)
}

// InvalidateAll tombstones every cache record, for bulk migrations.
func (m *MonthlyCacheManager) InvalidateAll(ctx context.Context) error {
	return m.cache.TombstoneAll(ctx)
}

func (m *MonthlyCacheManager) recompute(ctx context.Context, year int, month time.Month, logs []Log, source MonthSource, users []directory.User) (MonthStats, error) {
	out := make(MonthStats, timekey.DaysInMonth(year, month))

	if source == SourceLegacy && len(logs) > 0 {
		// Legacy logs carry no partition key; bucket them by timestamp.
		teams, err := m.dir.AllTeams(ctx)
		if err != nil {
			return nil, err
		}
		buckets := make(map[string][]Log)
		for _, l := range logs {
			buckets[timekey.DateKey(l.Timestamp)] = append(buckets[timekey.DateKey(l.Timestamp)], l)
		}
		for _, key := range timekey.DayKeys(year, month) {
			if dayLogs := buckets[key]; len(dayLogs) > 0 {
				out[key] = buildDayStats(key, dayLogs, users, teams)
			} else {
				out[key] = DayStats{Date: key}
			}
		}
		return out, nil
	}

	for _, key := range timekey.DayKeys(year, month) {
		date, err := timekey.ParseDateKey(key)
		if err != nil {
			return nil, err
		}
		day, err := m.daily.Aggregate(ctx, date)
		if err != nil {
			return nil, err
		}
		out[key] = day
	}
	return out, nil
}

// dataHash summarizes the log/user population. Matches the original scheme:
// a base64 of the JSON {logCount, userCount, lastLogTimestamp}. Not
// cryptographic and not meant to be.
func dataHash(logs []Log, userCount int) string {
	var latest time.Time
	for _, l := range logs {
		if l.Timestamp.After(latest) {
			latest = l.Timestamp
		}
	}
	lastTs := ""
	if !latest.IsZero() {
		lastTs = latest.Format(time.RFC3339Nano)
	}
	payload, _ := json.Marshal(struct {
		LogCount  int    `json:"logCount"`
		UserCount int    `json:"userCount"`
		LastLogTS string `json:"lastLogTimestamp"`
	}{len(logs), userCount, lastTs})
	return base64.StdEncoding.EncodeToString(payload)
}

// compact strips full user records down to id lists for persistence.
func compact(year int, month time.Month, fresh MonthStats) CacheRecord {
	rec := CacheRecord{Year: year, Month: month, Days: make(map[string]CachedDay, len(fresh))}
	for key, day := range fresh {
		cd := CachedDay{Date: day.Date, TotalCount: day.TotalCount}
		for _, team := range day.Teams {
			ct := CachedTeam{TeamID: team.TeamID, TeamName: team.TeamName}
			for _, g := range team.Grades {
				cg := CachedGrade{Grade: g.Grade, Count: g.Count}
				for _, member := range g.Members {
					cg.UserIDs = append(cg.UserIDs, member.UID)
					if member.Present {
						cg.PresentIDs = append(cg.PresentIDs, member.UID)
					}
				}
				ct.Grades = append(ct.Grades, cg)
			}
			cd.Teams = append(cd.Teams, ct)
		}
		rec.Days[key] = cd
	}
	return rec
}

// rehydrate rebuilds full aggregator output from a compact cache record
// using the current user directory, so callers always see one shape.
func rehydrate(rec *CacheRecord, users []directory.User) MonthStats {
	byUID := make(map[string]directory.User, len(users))
	for _, u := range users {
		byUID[u.UID] = u
	}
	out := make(MonthStats, len(rec.Days))
	for key, cd := range rec.Days {
		day := DayStats{Date: cd.Date, TotalCount: cd.TotalCount}
		for _, ct := range cd.Teams {
			team := TeamStats{TeamID: ct.TeamID, TeamName: ct.TeamName}
			for _, cg := range ct.Grades {
				present := make(map[string]bool, len(cg.PresentIDs))
				for _, uid := range cg.PresentIDs {
					present[uid] = true
				}
				bucket := GradeBucket{
					Grade: cg.Grade,
					Label: grade.Label(cg.Grade, statsYear(cd.Date)),
					Count: cg.Count,
					Total: len(cg.UserIDs),
				}
				for _, uid := range cg.UserIDs {
					bucket.Members = append(bucket.Members, Member{User: byUID[uid], Present: present[uid]})
				}
				team.Grades = append(team.Grades, bucket)
			}
			day.Teams = append(day.Teams, team)
		}
		out[key] = day
	}
	return out
}
