package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRule(t *testing.T, rule Rule) Rule {
	t.Helper()
	r, err := NewRule(rule)
	require.NoError(t, err)
	return r
}

func collect(t *testing.T, rule Rule, n int) []time.Time {
	t.Helper()
	var dates []time.Time
	for i := 0; i < n; i++ {
		d, err := rule.OccurrenceAt(i)
		require.NoError(t, err)
		dates = append(dates, d)
	}
	return dates
}

func TestOccurrenceAtDaily(t *testing.T) {
	t.Parallel()

	t.Run("count termination", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency: FrequencyDaily, Interval: 1,
			StartDate: date(2024, time.January, 1), Count: intPtr(3),
		})

		assert.Equal(t, []time.Time{
			date(2024, time.January, 1),
			date(2024, time.January, 2),
			date(2024, time.January, 3),
		}, collect(t, rule, 3))

		_, err := rule.OccurrenceAt(3)
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("interval stride", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency: FrequencyDaily, Interval: 3,
			StartDate: date(2024, time.February, 27),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.February, 27),
			date(2024, time.March, 1), // leap year: Feb 29 exists, +3 from the 27th
			date(2024, time.March, 4),
		}, collect(t, rule, 3))
	})

	t.Run("end date bound", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency: FrequencyDaily, Interval: 1,
			StartDate: date(2024, time.January, 1),
			EndDate:   datePtr(date(2024, time.January, 2)),
		})
		assert.Len(t, collect(t, rule, 2), 2)
		_, err := rule.OccurrenceAt(2)
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("first reached bound wins", func(t *testing.T) {
		t.Parallel()
		// Count allows 10 but the end date cuts off after 2.
		byDate := mustRule(t, Rule{
			Frequency: FrequencyDaily, Interval: 1,
			StartDate: date(2024, time.January, 1),
			EndDate:   datePtr(date(2024, time.January, 2)),
			Count:     intPtr(10),
		})
		_, err := byDate.OccurrenceAt(2)
		assert.ErrorIs(t, err, ErrExhausted)

		// End date allows a week but the count cuts off after 2.
		byCount := mustRule(t, Rule{
			Frequency: FrequencyDaily, Interval: 1,
			StartDate: date(2024, time.January, 1),
			EndDate:   datePtr(date(2024, time.January, 7)),
			Count:     intPtr(2),
		})
		_, err = byCount.OccurrenceAt(2)
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("negative index rejected", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{Frequency: FrequencyDaily, Interval: 1, StartDate: date(2024, time.January, 1)})
		_, err := rule.OccurrenceAt(-1)
		assert.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestOccurrenceAtWeekly(t *testing.T) {
	t.Parallel()

	t.Run("biweekly on Monday and Wednesday", func(t *testing.T) {
		t.Parallel()
		// 2024-01-01 is a Monday.
		rule := mustRule(t, Rule{
			Frequency: FrequencyWeekly, Interval: 2,
			Weekdays:  []int{1, 3},
			StartDate: date(2024, time.January, 1),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.January, 1),
			date(2024, time.January, 3),
			date(2024, time.January, 15),
			date(2024, time.January, 17),
		}, collect(t, rule, 4))
	})

	t.Run("weekday set defaults to start weekday", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency: FrequencyWeekly, Interval: 1,
			StartDate: date(2024, time.January, 3), // a Wednesday
		})
		assert.Equal(t, []time.Time{
			date(2024, time.January, 3),
			date(2024, time.January, 10),
		}, collect(t, rule, 2))
	})

	t.Run("days before start within first week are skipped", func(t *testing.T) {
		t.Parallel()
		// Start on Wednesday; Monday of the same week must not appear.
		rule := mustRule(t, Rule{
			Frequency: FrequencyWeekly, Interval: 1,
			Weekdays:  []int{1, 3},
			StartDate: date(2024, time.January, 3),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.January, 3),
			date(2024, time.January, 8),
			date(2024, time.January, 10),
		}, collect(t, rule, 3))
	})
}

func TestOccurrenceAtMonthly(t *testing.T) {
	t.Parallel()

	t.Run("skips February without terminating", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency: FrequencyMonthly, Interval: 1,
			MonthDays: []int{31},
			StartDate: date(2024, time.January, 1),
		})
		// February contributes nothing; March 31 must still arrive at
		// index 1, and the series keeps going.
		assert.Equal(t, []time.Time{
			date(2024, time.January, 31),
			date(2024, time.March, 31),
			date(2024, time.May, 31),
		}, collect(t, rule, 3))
	})

	t.Run("first of every month", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency: FrequencyMonthly, Interval: 1,
			MonthDays: []int{1},
			StartDate: date(2024, time.January, 1),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.January, 1),
			date(2024, time.February, 1),
			date(2024, time.March, 1),
		}, collect(t, rule, 3))
	})

	t.Run("last day via negative ordinal", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency: FrequencyMonthly, Interval: 1,
			MonthDays: []int{-1},
			StartDate: date(2024, time.January, 1),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.January, 31),
			date(2024, time.February, 29),
			date(2024, time.March, 31),
		}, collect(t, rule, 3))
	})

	t.Run("month day set defaults to start day", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency: FrequencyMonthly, Interval: 2,
			StartDate: date(2024, time.January, 15),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.January, 15),
			date(2024, time.March, 15),
			date(2024, time.May, 15),
		}, collect(t, rule, 3))
	})

	t.Run("never-matching rule eventually exhausts", func(t *testing.T) {
		t.Parallel()
		// Every block lands on February, which never has a day 30.
		rule := mustRule(t, Rule{
			Frequency: FrequencyMonthly, Interval: 12,
			MonthDays: []int{30},
			StartDate: date(2024, time.February, 1),
		})
		_, err := rule.OccurrenceAt(0)
		assert.ErrorIs(t, err, ErrExhausted)
	})
}

func TestOccurrenceAtYearly(t *testing.T) {
	t.Parallel()

	t.Run("yearly on March 3rd", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency:    FrequencyYearly,
			Interval:     1,
			MonthsOfYear: []int{3},
			StartDate:    date(2024, time.March, 3),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.March, 3),
			date(2025, time.March, 3),
			date(2026, time.March, 3),
		}, collect(t, rule, 3))
	})

	t.Run("multiple months per year", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency:    FrequencyYearly,
			Interval:     1,
			MonthsOfYear: []int{6, 3},
			MonthDays:    []int{10},
			StartDate:    date(2024, time.January, 1),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.March, 10),
			date(2024, time.June, 10),
			date(2025, time.March, 10),
			date(2025, time.June, 10),
		}, collect(t, rule, 4))
	})

	t.Run("leap day only emits on leap years", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency:    FrequencyYearly,
			Interval:     1,
			MonthsOfYear: []int{2},
			MonthDays:    []int{29},
			StartDate:    date(2024, time.January, 1),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.February, 29),
			date(2028, time.February, 29),
		}, collect(t, rule, 2))
	})
}

func TestOccurrenceAtCustom(t *testing.T) {
	t.Parallel()

	t.Run("weekend days", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency: FrequencyCustom, Interval: 1,
			Weekdays:  []int{0, 6},
			StartDate: date(2024, time.January, 1),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.January, 6),
			date(2024, time.January, 7),
			date(2024, time.January, 13),
		}, collect(t, rule, 3))
	})

	t.Run("conjunction of weekday and month filters", func(t *testing.T) {
		t.Parallel()
		// Fridays in March only.
		rule := mustRule(t, Rule{
			Frequency:    FrequencyCustom,
			Interval:     1,
			Weekdays:     []int{5},
			MonthsOfYear: []int{3},
			StartDate:    date(2024, time.January, 1),
		})
		assert.Equal(t, []time.Time{
			date(2024, time.March, 1),
			date(2024, time.March, 8),
			date(2024, time.March, 15),
		}, collect(t, rule, 3))
	})

	t.Run("interval multiplies the cursor step", func(t *testing.T) {
		t.Parallel()
		// Step of 2 days only ever visits odd days of January; the 15th
		// matches, the 16th is never visited.
		rule := mustRule(t, Rule{
			Frequency: FrequencyCustom, Interval: 2,
			MonthDays: []int{15, 16},
			StartDate: date(2024, time.January, 1),
		})
		first, err := rule.OccurrenceAt(0)
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.January, 15), first)
	})

	t.Run("end date bounds the scan", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, Rule{
			Frequency: FrequencyCustom, Interval: 1,
			MonthDays: []int{15},
			StartDate: date(2024, time.January, 1),
			EndDate:   datePtr(date(2024, time.February, 1)),
		})
		assert.Equal(t, []time.Time{date(2024, time.January, 15)}, collect(t, rule, 1))
		_, err := rule.OccurrenceAt(1)
		assert.ErrorIs(t, err, ErrExhausted)
	})
}

func TestOccurrenceMonotonicityAndDeterminism(t *testing.T) {
	t.Parallel()

	rules := map[string]Rule{
		"daily": mustRule(t, Rule{
			Frequency: FrequencyDaily, Interval: 2, StartDate: date(2024, time.January, 1),
		}),
		"weekly": mustRule(t, Rule{
			Frequency: FrequencyWeekly, Interval: 2, Weekdays: []int{1, 4, 6},
			StartDate: date(2024, time.January, 3),
		}),
		"monthly": mustRule(t, Rule{
			Frequency: FrequencyMonthly, Interval: 1, MonthDays: []int{29, 31},
			StartDate: date(2024, time.January, 15),
		}),
		"yearly": mustRule(t, Rule{
			Frequency: FrequencyYearly, Interval: 1, MonthsOfYear: []int{2, 11},
			MonthDays: []int{29}, StartDate: date(2023, time.June, 1),
		}),
		"custom": mustRule(t, Rule{
			Frequency: FrequencyCustom, Interval: 1, Weekdays: []int{2}, MonthDays: []int{1, 2, 3, 4, 5, 6, 7},
			StartDate: date(2024, time.January, 1),
		}),
	}

	for name, rule := range rules {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			first := collect(t, rule, 24)
			for i := 1; i < len(first); i++ {
				assert.True(t, first[i].After(first[i-1]),
					"occurrence %d (%s) must be strictly after %d (%s)",
					i, first[i].Format(time.DateOnly), i-1, first[i-1].Format(time.DateOnly))
			}
			assert.Equal(t, first, collect(t, rule, 24), "recomputation must be deterministic")
		})
	}
}

func TestOccurrencesBetween(t *testing.T) {
	t.Parallel()

	rule := mustRule(t, Rule{
		Frequency: FrequencyDaily, Interval: 7,
		StartDate: date(2024, time.January, 1),
		Count:     intPtr(10),
	})

	t.Run("window inside the series", func(t *testing.T) {
		t.Parallel()
		var got []time.Time
		for d := range rule.OccurrencesBetween(date(2024, time.January, 10), date(2024, time.February, 6)) {
			got = append(got, d)
		}
		assert.Equal(t, []time.Time{
			date(2024, time.January, 15),
			date(2024, time.January, 22),
			date(2024, time.January, 29),
			date(2024, time.February, 5),
		}, got)
	})

	t.Run("restartable with identical results", func(t *testing.T) {
		t.Parallel()
		seq := rule.OccurrencesBetween(date(2024, time.January, 1), date(2024, time.December, 31))
		var first, second []time.Time
		for d := range seq {
			first = append(first, d)
		}
		for d := range seq {
			second = append(second, d)
		}
		assert.Equal(t, first, second)
		assert.Len(t, first, 10, "count bound limits the window")
	})

	t.Run("early break leaves the sequence reusable", func(t *testing.T) {
		t.Parallel()
		seq := rule.OccurrencesBetween(date(2024, time.January, 1), date(2024, time.December, 31))
		for range seq {
			break
		}
		var got []time.Time
		for d := range seq {
			got = append(got, d)
		}
		assert.Len(t, got, 10)
	})

	t.Run("window before the series is empty", func(t *testing.T) {
		t.Parallel()
		for range rule.OccurrencesBetween(date(2020, time.January, 1), date(2020, time.December, 31)) {
			t.Fatal("expected no occurrences")
		}
	})

	t.Run("window after exhaustion is empty", func(t *testing.T) {
		t.Parallel()
		for range rule.OccurrencesBetween(date(2025, time.January, 1), date(2025, time.December, 31)) {
			t.Fatal("expected no occurrences")
		}
	})

	t.Run("inverted window is empty", func(t *testing.T) {
		t.Parallel()
		for range rule.OccurrencesBetween(date(2024, time.February, 1), date(2024, time.January, 1)) {
			t.Fatal("expected no occurrences")
		}
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		t.Parallel()
		var got []time.Time
		for d := range rule.OccurrencesBetween(date(2024, time.January, 8), date(2024, time.January, 15)) {
			got = append(got, d)
		}
		assert.Equal(t, []time.Time{
			date(2024, time.January, 8),
			date(2024, time.January, 15),
		}, got)
	})
}
