// Package timekey converts points in time into the hierarchical keys the
// sharded attendance store is partitioned by.
package timekey

import (
	"fmt"
	"strconv"
	"time"
)

// YearMonth identifies one calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// DateKey returns the partition key for t's calendar date in t's location,
// formatted YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DateParts returns the zero-padded year, month and day strings for t.
func DateParts(t time.Time) (year, month, day string) {
	return fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day())
}

// ParseDateKey parses a YYYY-MM-DD key back into a local-midnight time.
func ParseDateKey(key string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", key, time.Local)
}

// MonthsBetween enumerates every (year, month) pair intersecting the range
// [start, end], ascending, inclusive of both endpoints' months.
func MonthsBetween(start, end time.Time) []YearMonth {
	if end.Before(start) {
		return nil
	}
	var months []YearMonth
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, end.Location())
	for !cur.After(last) {
		months = append(months, YearMonth{Year: cur.Year(), Month: cur.Month()})
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// DaysInMonth returns the number of calendar days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.Local).Day()
}

// DayKeys returns the ordered partition keys for every day of the month.
func DayKeys(year int, month time.Month) []string {
	n := DaysInMonth(year, month)
	keys := make([]string, 0, n)
	for day := 1; day <= n; day++ {
		keys = append(keys, fmt.Sprintf("%04d-%02d-%02d", year, int(month), day))
	}
	return keys
}

// MonthCacheID builds the monthly cache document id, attendance_stats_YYYY_MM.
func MonthCacheID(year int, month time.Month) string {
	return fmt.Sprintf("attendance_stats_%04d_%02d", year, int(month))
}

// LogID generates a log document id that sorts by time within a user.
func LogID(uid string, at time.Time) string {
	return uid + "_" + strconv.FormatInt(at.UnixMilli(), 10)
}
