// Package recurrence implements the recurrence rule model, calendar
// arithmetic, and the occurrence generator that expands a rule into a
// deterministic ordered sequence of dates.
package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRule is returned when a rule violates a construction invariant.
// It is only ever produced by NewRule; generation never fails with it.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Frequency identifies how a rule's interval is interpreted.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
	FrequencyCustom  Frequency = "custom"
)

// Rule describes a repeating schedule. Rules are immutable: they are
// constructed once through NewRule, which validates every invariant, and
// are shared read-only afterwards. "Editing" a rule means building a new
// one.
type Rule struct {
	Frequency Frequency `validate:"required,oneof=daily weekly monthly yearly custom"`
	Interval  int       `validate:"gte=1"`

	// Weekdays holds time.Weekday ordinals (0 = Sunday), meaningful for
	// weekly and custom rules.
	Weekdays []int `validate:"omitempty,unique,dive,gte=0,lte=6"`
	// MonthDays holds day-of-month ordinals; negative values count from the
	// end of the month. Meaningful for monthly and custom rules.
	MonthDays []int `validate:"omitempty,unique,dive,gte=-31,lte=31"`
	// MonthsOfYear holds month ordinals (1-12), meaningful for yearly and
	// custom rules.
	MonthsOfYear []int `validate:"omitempty,unique,dive,gte=1,lte=12"`

	// StartDate is the first candidate date; occurrences never precede it.
	StartDate time.Time `validate:"required"`
	// EndDate, if set, is the inclusive upper bound on occurrence dates.
	EndDate *time.Time
	// Count, if set, caps the total number of occurrences ever produced.
	// When both EndDate and Count are set, whichever bound is reached
	// first wins.
	Count *int `validate:"omitempty,gt=0"`
}

var ruleValidator = validator.New()

// NewRule builds a validated Rule. Field sets are copied and sorted so the
// returned value does not alias the caller's slices; dates are truncated to
// midnight in their own location. Any invariant violation is reported as an
// error wrapping ErrInvalidRule.
func NewRule(rule Rule) (Rule, error) {
	rule.Weekdays = sortedCopy(rule.Weekdays)
	rule.MonthDays = sortedCopy(rule.MonthDays)
	rule.MonthsOfYear = sortedCopy(rule.MonthsOfYear)
	rule.StartDate = DayOf(rule.StartDate)
	if rule.EndDate != nil {
		end := DayOf(*rule.EndDate)
		rule.EndDate = &end
	}
	if rule.Count != nil {
		count := *rule.Count
		rule.Count = &count
	}

	if err := ruleValidator.Struct(rule); err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if slices.Contains(rule.MonthDays, 0) {
		return Rule{}, fmt.Errorf("%w: month day 0 does not exist", ErrInvalidRule)
	}
	if rule.Frequency == FrequencyCustom &&
		len(rule.Weekdays) == 0 && len(rule.MonthDays) == 0 && len(rule.MonthsOfYear) == 0 {
		return Rule{}, fmt.Errorf("%w: custom frequency requires at least one field constraint", ErrInvalidRule)
	}
	if rule.EndDate != nil && rule.EndDate.Before(rule.StartDate) {
		return Rule{}, fmt.Errorf("%w: end date %s precedes start date %s",
			ErrInvalidRule, rule.EndDate.Format(time.DateOnly), rule.StartDate.Format(time.DateOnly))
	}

	return rule, nil
}

func sortedCopy(vals []int) []int {
	if len(vals) == 0 {
		return nil
	}
	out := slices.Clone(vals)
	slices.Sort(out)
	return out
}

// effectiveWeekdays returns the rule's weekday set, defaulting to the start
// date's weekday for weekly rules without one.
func (r Rule) effectiveWeekdays() []int {
	if len(r.Weekdays) > 0 {
		return r.Weekdays
	}
	return []int{int(r.StartDate.Weekday())}
}

// effectiveMonthDays returns the rule's month-day set, defaulting to the
// start date's day-of-month.
func (r Rule) effectiveMonthDays() []int {
	if len(r.MonthDays) > 0 {
		return r.MonthDays
	}
	return []int{r.StartDate.Day()}
}

// effectiveMonths returns the rule's month set, defaulting to the start
// date's month.
func (r Rule) effectiveMonths() []time.Month {
	if len(r.MonthsOfYear) == 0 {
		return []time.Month{r.StartDate.Month()}
	}
	months := make([]time.Month, 0, len(r.MonthsOfYear))
	for _, m := range r.MonthsOfYear {
		months = append(months, time.Month(m))
	}
	return months
}
