package grade

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestYear(t *testing.T) {
	tests := []struct {
		cohort       int
		calendarYear int
		want         int
		ok           bool
	}{
		{10, 2025, 1, true},
		{9, 2025, 2, true},
		{8, 2025, 3, true},
		{10, 2026, 2, true},
		{10, 2027, 3, true},
		{7, 2025, 0, false},  // already graduated
		{11, 2025, 0, false}, // not enrolled yet
	}
	for _, tt := range tests {
		y, ok := Year(tt.cohort, tt.calendarYear)
		assert.Equal(t, tt.ok, ok, "cohort %d year %d", tt.cohort, tt.calendarYear)
		if tt.ok {
			assert.Equal(t, tt.want, y, "cohort %d year %d", tt.cohort, tt.calendarYear)
		}
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "1年生 (10期生)", Label(10, 2025))
	assert.Equal(t, "3年生 (8期生)", Label(8, 2025))
	assert.Equal(t, "2年生 (10期生)", Label(10, 2026))

	// out of the three enrolled years the label degrades to cohort only
	assert.Equal(t, "7期生", Label(7, 2025))
	assert.Equal(t, "12期生", Label(12, 2025))
}

func TestLabelDeterministic(t *testing.T) {
	first := Label(9, 2025)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Label(9, 2025))
	}
}
