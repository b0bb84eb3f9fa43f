// Package grade translates organizational cohort numbers into human-facing
// grade labels. A "grade" on a user record is a joining-year cohort (期生),
// not a literal school year; the display label depends on the current year.
package grade

import "fmt"

// baseYear anchors the cohort-to-grade mapping: in 2025 cohort 10 is the
// first-year class.
const (
	baseYear   = 2025
	baseCohort = 10
)

// Year converts a cohort number to a school year (1-3) as of the given
// calendar year. The second return is false when the cohort falls outside
// the 1-3 range in that year (graduated or not yet enrolled).
func Year(cohort, calendarYear int) (int, bool) {
	y := 1 + (baseCohort - cohort) + (calendarYear - baseYear)
	return y, y >= 1 && y <= 3
}

// Label renders the display label for a cohort as of the given calendar year,
// e.g. "1年生 (10期生)". Cohorts outside the active range render as "N期生".
func Label(cohort, calendarYear int) string {
	if y, ok := Year(cohort, calendarYear); ok {
		return fmt.Sprintf("%d年生 (%d期生)", y, cohort)
	}
	return fmt.Sprintf("%d期生", cohort)
}
