package tier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRollingPeriod_Idempotent(t *testing.T) {
	now := date(2024, time.March, 7)
	p1 := rollingPeriod(now, 14, responsesEpoch)
	p2 := rollingPeriod(now, 14, responsesEpoch)
	assert.Equal(t, p1, p2)
}

func TestRollingPeriod_ConstantWithinWindow(t *testing.T) {
	// All instants within one window map to the same key.
	start := rollingPeriod(date(2024, time.January, 1), 14, responsesEpoch)
	for day := 0; day < 14; day++ {
		p := rollingPeriod(date(2024, time.January, 1+day), 14, responsesEpoch)
		assert.Equal(t, start.Key, p.Key, "day %d", day)
	}

	// The 15th day starts the next window.
	next := rollingPeriod(date(2024, time.January, 15), 14, responsesEpoch)
	assert.NotEqual(t, start.Key, next.Key)
	assert.Equal(t, "2024-01-15", next.Key)
}

func TestRollingPeriod_Boundaries(t *testing.T) {
	p := rollingPeriod(date(2024, time.January, 10), 14, responsesEpoch)
	assert.Equal(t, "2024-01-01", p.Key)
	assert.Equal(t, date(2024, time.January, 1), p.Start)
	assert.Equal(t, date(2024, time.January, 14), p.End)
}

func TestRollingPeriod_AcrossYearBoundary(t *testing.T) {
	// 2025-01-03 is day 368 since the epoch; window 26 spans the year end.
	p := rollingPeriod(date(2025, time.January, 3), 14, responsesEpoch)
	assert.Equal(t, "2024-12-30", p.Key)
	assert.Equal(t, date(2024, time.December, 30), p.Start)
	assert.Equal(t, date(2025, time.January, 12), p.End)
}

func TestRollingPeriod_TimeOfDayIgnored(t *testing.T) {
	morning := time.Date(2024, time.June, 3, 0, 1, 0, 0, time.UTC)
	night := time.Date(2024, time.June, 3, 23, 59, 59, 0, time.UTC)
	assert.Equal(t,
		rollingPeriod(morning, 14, responsesEpoch).Key,
		rollingPeriod(night, 14, responsesEpoch).Key,
	)
}

func TestMonthlyPeriod(t *testing.T) {
	p := monthlyPeriod(date(2024, time.February, 15))
	assert.Equal(t, "2024-02", p.Key)
	assert.Equal(t, date(2024, time.February, 1), p.Start)
	assert.Equal(t, date(2024, time.February, 29), p.End) // leap year

	dec := monthlyPeriod(date(2024, time.December, 31))
	assert.Equal(t, "2024-12", dec.Key)
	assert.Equal(t, date(2024, time.December, 31), dec.End)

	jan := monthlyPeriod(date(2025, time.January, 1))
	assert.Equal(t, "2025-01", jan.Key)
}

func TestPeriodFor_ResourcesUseDifferentBucketing(t *testing.T) {
	policy := DefaultPolicy()
	now := date(2024, time.January, 20)

	responses := policy.PeriodFor(ResourceResponses, now)
	premium := policy.PeriodFor(ResourcePremiumCalls, now)

	assert.Equal(t, "2024-01-15", responses.Key)
	assert.Equal(t, "2024-01", premium.Key)
}
