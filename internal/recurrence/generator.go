package recurrence

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"
)

// ErrExhausted signals that a rule has no further occurrences, either
// because its count bound is spent or because the next computed date would
// pass its end date. It is a generator signal, not a failure.
var ErrExhausted = errors.New("recurrence exhausted")

const (
	// maxBarrenBlocks bounds how many consecutive empty expansion blocks
	// (e.g. monthDays=[31] aligned onto February forever) the generator
	// scans before giving up. Empty blocks are skipped without counting
	// toward the occurrence index; only a rule whose filters can never
	// match again hits this limit.
	maxBarrenBlocks = 600

	// maxCustomScanSteps bounds how many cursor steps a custom rule may
	// take without a single filter match before the scan gives up.
	maxCustomScanSteps = 150000

	// maxSearchIndex caps the galloping search for range queries.
	maxSearchIndex = 1 << 30
)

// OccurrenceAt returns the date of the index-th occurrence (0-based) under
// the rule, or ErrExhausted once the rule's count or end-date bound is
// reached. Dates are strictly increasing in index, and the result is a pure
// function of (rule, index): recomputing the same index always yields the
// same date.
func (r Rule) OccurrenceAt(index int) (time.Time, error) {
	if index < 0 {
		return time.Time{}, fmt.Errorf("%w: negative occurrence index %d", ErrInvalidRule, index)
	}
	if r.Count != nil && index >= *r.Count {
		return time.Time{}, ErrExhausted
	}

	var (
		date time.Time
		err  error
	)
	switch r.Frequency {
	case FrequencyDaily:
		date = r.StartDate.AddDate(0, 0, index*r.Interval)
	case FrequencyWeekly:
		date, err = r.weeklyAt(index)
	case FrequencyMonthly:
		date, err = r.monthlyAt(index)
	case FrequencyYearly:
		date, err = r.yearlyAt(index)
	case FrequencyCustom:
		date, err = r.customAt(index)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Frequency)
	}
	if err != nil {
		return time.Time{}, err
	}
	if r.EndDate != nil && date.After(*r.EndDate) {
		return time.Time{}, ErrExhausted
	}
	return date, nil
}

// weeklyAt expands weekday sets over consecutive interval-week blocks
// starting at the week containing the start date.
func (r Rule) weeklyAt(index int) (time.Time, error) {
	weekdays := r.effectiveWeekdays()
	week0 := startOfWeek(r.StartDate)

	emitted := 0
	for block := 0; ; block++ {
		blockStart := week0.AddDate(0, 0, block*r.Interval*7)
		if r.EndDate != nil && blockStart.After(*r.EndDate) {
			return time.Time{}, ErrExhausted
		}
		for _, d := range WeekdaysInRange(blockStart, blockStart.AddDate(0, 0, 6), weekdays) {
			if d.Before(r.StartDate) {
				continue
			}
			if r.EndDate != nil && d.After(*r.EndDate) {
				return time.Time{}, ErrExhausted
			}
			if emitted == index {
				return d, nil
			}
			emitted++
		}
	}
}

// monthlyAt expands month-day sets over consecutive interval-month blocks
// starting at the start date's month. A month in which no set member exists
// (day 31 in February) contributes nothing and is skipped; only actually
// emitted dates count toward the index.
func (r Rule) monthlyAt(index int) (time.Time, error) {
	days := r.effectiveMonthDays()
	month0 := time.Date(r.StartDate.Year(), r.StartDate.Month(), 1, 0, 0, 0, 0, r.StartDate.Location())

	emitted, barren := 0, 0
	for block := 0; ; block++ {
		ref := addMonthsClamped(month0, block*r.Interval)
		if r.EndDate != nil && ref.After(*r.EndDate) {
			return time.Time{}, ErrExhausted
		}
		contributed := false
		for _, d := range MonthDaysInMonth(ref, days) {
			if d.Before(r.StartDate) {
				continue
			}
			if r.EndDate != nil && d.After(*r.EndDate) {
				return time.Time{}, ErrExhausted
			}
			if emitted == index {
				return d, nil
			}
			emitted++
			contributed = true
		}
		if contributed {
			barren = 0
		} else if barren++; barren > maxBarrenBlocks {
			return time.Time{}, ErrExhausted
		}
	}
}

// yearlyAt expands like monthlyAt, scoped by the months-of-year set and
// stepping by interval years.
func (r Rule) yearlyAt(index int) (time.Time, error) {
	days := r.effectiveMonthDays()
	months := r.effectiveMonths()

	emitted, barren := 0, 0
	for block := 0; ; block++ {
		year := r.StartDate.Year() + block*r.Interval
		if r.EndDate != nil && year > r.EndDate.Year() {
			return time.Time{}, ErrExhausted
		}
		contributed := false
		for _, month := range months {
			ref := time.Date(year, month, 1, 0, 0, 0, 0, r.StartDate.Location())
			for _, d := range MonthDaysInMonth(ref, days) {
				if d.Before(r.StartDate) {
					continue
				}
				if r.EndDate != nil && d.After(*r.EndDate) {
					return time.Time{}, ErrExhausted
				}
				if emitted == index {
					return d, nil
				}
				emitted++
				contributed = true
			}
		}
		if contributed {
			barren = 0
		} else if barren++; barren > maxBarrenBlocks {
			return time.Time{}, ErrExhausted
		}
	}
}

// customAt advances a daily cursor in interval-day steps and emits every
// date matching the conjunction of the rule's non-empty filters. The scan
// short-circuits as soon as the index is satisfied or a bound is hit.
func (r Rule) customAt(index int) (time.Time, error) {
	emitted, sinceMatch := 0, 0
	for d := r.StartDate; ; d = d.AddDate(0, 0, r.Interval) {
		if r.EndDate != nil && d.After(*r.EndDate) {
			return time.Time{}, ErrExhausted
		}
		if !r.matchesFilters(d) {
			if sinceMatch++; sinceMatch > maxCustomScanSteps {
				return time.Time{}, ErrExhausted
			}
			continue
		}
		sinceMatch = 0
		if emitted == index {
			return d, nil
		}
		emitted++
	}
}

// matchesFilters reports whether date satisfies every non-empty filter of a
// custom rule.
func (r Rule) matchesFilters(date time.Time) bool {
	if len(r.Weekdays) > 0 {
		ok := false
		for _, wd := range r.Weekdays {
			if time.Weekday(wd) == date.Weekday() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(r.MonthsOfYear) > 0 {
		ok := false
		for _, m := range r.MonthsOfYear {
			if time.Month(m) == date.Month() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(r.MonthDays) > 0 {
		last := DaysInMonth(date.Year(), date.Month())
		ok := false
		for _, d := range r.MonthDays {
			if d < 0 {
				d = last + 1 + d
			}
			if d == date.Day() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// OccurrencesBetween returns a lazy, restartable sequence of the rule's
// occurrence dates within [from, to], ascending. The first matching index
// is located by a galloping search followed by a binary search, which is
// valid because dates are monotonically non-decreasing in index.
func (r Rule) OccurrencesBetween(from, to time.Time) iter.Seq[time.Time] {
	from, to = DayOf(from), DayOf(to)
	return func(yield func(time.Time) bool) {
		if to.Before(from) {
			return
		}
		start, ok := r.firstIndexAtOrAfter(from)
		if !ok {
			return
		}
		for i := start; ; i++ {
			d, err := r.OccurrenceAt(i)
			if err != nil || d.After(to) {
				return
			}
			if !yield(d) {
				return
			}
		}
	}
}

// firstIndexAtOrAfter returns the smallest index whose date is >= from.
// The second return is false when the rule has no occurrences at all. The
// returned index may itself be exhausted, which callers detect on the first
// OccurrenceAt call.
func (r Rule) firstIndexAtOrAfter(from time.Time) (int, bool) {
	first, err := r.OccurrenceAt(0)
	if err != nil {
		return 0, false
	}
	if !first.Before(from) {
		return 0, true
	}

	// Gallop until the date at hi reaches from, exhausts, or the cap hits.
	lo, hi := 0, 1
	for hi < maxSearchIndex {
		d, err := r.OccurrenceAt(hi)
		if err != nil || !d.Before(from) {
			break
		}
		lo = hi
		hi *= 2
	}

	// Smallest index in (lo, hi] whose date is >= from or exhausted.
	off := sort.Search(hi-lo, func(k int) bool {
		d, err := r.OccurrenceAt(lo + 1 + k)
		return err != nil || !d.Before(from)
	})
	return lo + 1 + off, true
}
