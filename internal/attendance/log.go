// Package attendance holds the event log, the entry/exit toggle engine and
// the daily/monthly aggregation pipeline.
package attendance

import (
	"context"
	"errors"
	"time"
)

// Type is the kind of attendance event.
type Type string

const (
	TypeEntry Type = "entry"
	TypeExit  Type = "exit"
)

// Log is one immutable attendance event. Logs are append-only; nothing in
// this package mutates a log after it is written.
type Log struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	CardID    string    `json:"card_id,omitempty"`
	Type      Type      `json:"type"`
	Memo      string    `json:"memo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrWrite wraps any backend failure while persisting a log.
var ErrWrite = errors.New("attendance: write failed")

// latestLookback bounds the backward day walk in LatestLogForUser. A log
// older than this is never considered the "latest" one; accepted trade-off
// for keeping the common lookup cheap.
const latestLookback = 365

// ShardStore is the primary, date-partitioned log collection.
type ShardStore interface {
	// Append writes a log under the date partition with the given id.
	Append(ctx context.Context, dateKey, id string, l Log) error
	// DateLogs returns all logs in one partition, store-native order.
	DateLogs(ctx context.Context, dateKey string) ([]Log, error)
	// UserLogsOnDate returns one user's logs in one partition, newest first.
	UserLogsOnDate(ctx context.Context, dateKey, uid string) ([]Log, error)
}

// LegacyStore is the flat pre-sharding collection, read as a fallback when
// a user's history predates the partitioned layout.
type LegacyStore interface {
	// UserLogs returns a user's logs in [from, to], newest first, up to limit.
	UserLogs(ctx context.Context, uid string, from, to time.Time, limit int) ([]Log, error)
	// LatestForUser returns the user's most recent log, or nil.
	LatestForUser(ctx context.Context, uid string) (*Log, error)
	// RangeLogs returns all logs in [from, to], newest first.
	RangeLogs(ctx context.Context, from, to time.Time) ([]Log, error)
}

// MonthSource tells a caller which collection a month scan was served from.
type MonthSource int

const (
	SourceSharded MonthSource = iota
	SourceLegacy
)

// LogStore is the single read/write surface the engines consume. The
// sharded/legacy split stays behind this interface.
type LogStore interface {
	AppendLog(ctx context.Context, l Log) error
	QueryUserLogs(ctx context.Context, uid string, from, to time.Time, limit int) ([]Log, error)
	QueryDateLogs(ctx context.Context, dateKey string) ([]Log, error)
	LatestLogForUser(ctx context.Context, uid string) (*Log, error)
	// MonthLogs returns every log of the month. Served from the sharded
	// partitions; falls back to the legacy collection only when the whole
	// month is empty there.
	MonthLogs(ctx context.Context, year int, month time.Month) ([]Log, MonthSource, error)
}
