package tier

import "time"

// responsesEpoch anchors the rolling response window. Every process derives
// the same bucket boundaries from it without shared clock state.
var responsesEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Period is one usage-accounting bucket. Key is stable for any instant
// inside [Start, End]; End is the last UTC day of the period.
type Period struct {
	Key   string    `json:"key"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PeriodFor maps an instant to the active bucket for a resource.
func (p *Policy) PeriodFor(r Resource, now time.Time) Period {
	if r == ResourcePremiumCalls {
		return monthlyPeriod(now)
	}
	return rollingPeriod(now, p.ResponsePeriodDays, responsesEpoch)
}

// rollingPeriod buckets time into fixed-length windows of lengthDays UTC
// calendar days anchored at epoch. Operating on calendar days (not raw
// durations) keeps boundaries stable across DST shifts in local time.
func rollingPeriod(now time.Time, lengthDays int, epoch time.Time) Period {
	days := daysSince(epoch, now)
	idx := days / lengthDays
	if days < 0 {
		// Before the epoch: clamp to the first period.
		idx = 0
	}

	start := epoch.AddDate(0, 0, idx*lengthDays)
	return Period{
		Key:   start.Format("2006-01-02"),
		Start: start,
		End:   start.AddDate(0, 0, lengthDays-1),
	}
}

// monthlyPeriod buckets time into UTC calendar months, keyed "YYYY-MM".
func monthlyPeriod(now time.Time) Period {
	n := now.UTC()
	start := time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Key:   start.Format("2006-01"),
		Start: start,
		End:   start.AddDate(0, 1, -1),
	}
}

// daysSince counts whole UTC calendar days from epoch to now.
func daysSince(epoch, now time.Time) int {
	e := epoch.UTC()
	n := now.UTC()
	ed := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	nd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return int(nd.Sub(ed) / (24 * time.Hour))
}
