package recurrence

import (
	"sort"
	"time"
)

// DaysInMonth returns the number of days in the given month.
// Leap years are resolved by the proleptic Gregorian calendar, which is
// what the time package implements.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DayOf truncates t to midnight in its own location.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AddUnits adds n periods of the given frequency to date. Monthly and
// yearly addition clamp the day-of-month to the last valid day of the
// resulting month, so Jan 31 + 1 month is Feb 28 (or 29), never Mar 3.
// For custom rules a unit is a single day.
func AddUnits(date time.Time, freq Frequency, n int) time.Time {
	switch freq {
	case FrequencyDaily, FrequencyCustom:
		return date.AddDate(0, 0, n)
	case FrequencyWeekly:
		return date.AddDate(0, 0, 7*n)
	case FrequencyMonthly:
		return addMonthsClamped(date, n)
	case FrequencyYearly:
		return addMonthsClamped(date, 12*n)
	default:
		return date
	}
}

// addMonthsClamped adds n months keeping the day-of-month, clamped to the
// length of the target month. time.AddDate would normalize Feb 31 into
// early March instead.
func addMonthsClamped(date time.Time, n int) time.Time {
	firstOfTarget := time.Date(date.Year(), date.Month()+time.Month(n), 1,
		date.Hour(), date.Minute(), date.Second(), date.Nanosecond(), date.Location())

	day := date.Day()
	if last := DaysInMonth(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		date.Hour(), date.Minute(), date.Second(), date.Nanosecond(), date.Location())
}

// WeekdaysInRange returns every date in [start, end] whose weekday is in
// weekdaySet, ascending. Weekday ordinals follow time.Weekday (0 = Sunday).
// The returned dates carry start's wall-clock time.
func WeekdaysInRange(start, end time.Time, weekdaySet []int) []time.Time {
	if end.Before(start) || len(weekdaySet) == 0 {
		return nil
	}

	wanted := make(map[time.Weekday]bool, len(weekdaySet))
	for _, wd := range weekdaySet {
		wanted[time.Weekday(wd)] = true
	}

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wanted[d.Weekday()] {
			dates = append(dates, d)
		}
	}
	return dates
}

// MonthDaysInMonth returns the valid dates in the month containing ref
// whose day-of-month is in dayOfMonthSet, ascending. Negative values count
// from the end of the month (-1 is the last day). Values that do not exist
// in the month (e.g. 31 in February) are silently dropped, not clamped:
// a monthly rule produces fewer occurrences that month, never shifted ones.
// The returned dates carry ref's wall-clock time.
func MonthDaysInMonth(ref time.Time, dayOfMonthSet []int) []time.Time {
	if len(dayOfMonthSet) == 0 {
		return nil
	}

	last := DaysInMonth(ref.Year(), ref.Month())
	seen := make(map[int]bool, len(dayOfMonthSet))
	days := make([]int, 0, len(dayOfMonthSet))
	for _, d := range dayOfMonthSet {
		if d < 0 {
			d = last + 1 + d
		}
		if d < 1 || d > last || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	sort.Ints(days)

	dates := make([]time.Time, 0, len(days))
	for _, d := range days {
		dates = append(dates, time.Date(ref.Year(), ref.Month(), d,
			ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location()))
	}
	return dates
}

// startOfWeek returns the Sunday starting the week containing date.
func startOfWeek(date time.Time) time.Time {
	return date.AddDate(0, 0, -int(date.Weekday()))
}
