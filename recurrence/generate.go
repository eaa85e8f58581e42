package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"
)

// Generate returns, in ascending order, every date of pattern anchored at
// start that falls strictly after after and on or before min(end, horizon).
//
// The anchor date itself belongs to the base template and is never returned
// for repeating patterns. A ONCE pattern yields start alone, and only while
// the checkpoint sits on the day before it. All arithmetic happens on UTC-midnight
// dates; months and years clamp to the last day when the anchor day does not
// exist (Jan 31 -> Feb 28, Feb 29 -> Feb 28).
//
// Dates later than MaxSpanYears after start are never produced; the bound is
// clipped there so a checkpoint cannot move past what the generator covers.
func Generate(p Pattern, start, after time.Time, end *time.Time, horizon time.Time) []time.Time {
	start, after = Day(start), Day(after)

	bound := Day(horizon)
	if end != nil && Day(*end).Before(bound) {
		bound = Day(*end)
	}
	if limit := start.AddDate(MaxSpanYears, 0, 0); limit.Before(bound) {
		bound = limit
	}
	if !after.Before(bound) {
		return nil
	}

	if p == Once {
		if after.AddDate(0, 0, 1).Equal(start) && !start.After(bound) {
			return []time.Time{start}
		}
		return nil
	}

	r, err := newRRule(p, start)
	if err != nil {
		return nil
	}

	lower := after
	if lower.Before(start) {
		lower = start
	}

	occurrences := r.Between(lower, bound, true)
	dates := make([]time.Time, 0, len(occurrences))
	for _, occ := range occurrences {
		d := Day(occ)
		if d.After(lower) && !d.After(bound) {
			dates = append(dates, d)
		}
	}
	return dates
}

// MaxSpanYears bounds how far past its start a rule generates. The rrule
// iterator stops a little before 292 years.
const MaxSpanYears = 290

// Dates returns the dates rule still needs instances for, up to horizon.
func Dates(rule *Rule, horizon time.Time) []time.Time {
	return Generate(rule.Pattern, rule.StartDate, rule.LatestInstanceDate, rule.EndDate, horizon)
}

// newRRule builds the rrule for a repeating pattern. Anchor days past the
// 28th use BYMONTHDAY=d,-1 with BYSETPOS=1 so short months fall back to their
// last day instead of being skipped.
func newRRule(p Pattern, start time.Time) (*rrule.RRule, error) {
	opt := rrule.ROption{Dtstart: start}

	switch p {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
	case Monthly:
		opt.Freq = rrule.MONTHLY
		if start.Day() > 28 {
			opt.Bymonthday = []int{start.Day(), -1}
			opt.Bysetpos = []int{1}
		}
	case Yearly:
		opt.Freq = rrule.YEARLY
		if start.Month() == time.February && start.Day() == 29 {
			opt.Bymonth = []int{int(time.February)}
			opt.Bymonthday = []int{29, -1}
			opt.Bysetpos = []int{1}
		}
	default:
		return nil, errUnsupportedPattern
	}

	return rrule.NewRRule(opt)
}
