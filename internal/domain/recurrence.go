package domain

import (
	"errors"
	"time"
)

type FrequencyUnit string

const (
	FrequencyUnitWeek  FrequencyUnit = "week"
	FrequencyUnitMonth FrequencyUnit = "month"
)

// Occurrence-count bounds for a recurring engagement. A descriptor that asks
// for fewer than MinOccurrences or more than MaxOccurrences is clamped, and a
// zero count falls back to DefaultOccurrences.
const (
	MinOccurrences     = 2
	MaxOccurrences     = 12
	DefaultOccurrences = 6
)

// Schedule is a validated recurrence descriptor: the requested start instant
// plus the rule that projects it forward.
type Schedule struct {
	Start            time.Time
	PreferredWeekday *time.Weekday
	Unit             FrequencyUnit
	Interval         int
	Count            int
}

// ClampCount normalizes a requested horizon count into the supported range.
func ClampCount(count int) int {
	if count == 0 {
		return DefaultOccurrences
	}
	if count < MinOccurrences {
		return MinOccurrences
	}
	if count > MaxOccurrences {
		return MaxOccurrences
	}
	return count
}

// ProjectOccurrences expands a schedule into its concrete occurrence
// instants, ordered and strictly increasing. Occurrence 0 is the start
// instant advanced forward (never backward) to the preferred weekday when one
// is set. Weekly steps add interval*7 days. Monthly steps advance the
// previous occurrence's calendar month by interval and then either realign to
// the first preferred weekday on/after the 1st of that month, or keep the
// day-of-month clamped to the month's length. Time-of-day is always the
// start instant's.
func ProjectOccurrences(s Schedule) ([]time.Time, error) {
	if s.Start.IsZero() {
		return nil, errors.New("start is required")
	}
	if s.Interval < 1 {
		return nil, errors.New("interval must be at least 1")
	}
	if s.Unit != FrequencyUnitWeek && s.Unit != FrequencyUnitMonth {
		return nil, errors.New("unsupported frequency unit")
	}
	if s.PreferredWeekday != nil && (*s.PreferredWeekday < time.Sunday || *s.PreferredWeekday > time.Saturday) {
		return nil, errors.New("invalid weekday")
	}

	count := ClampCount(s.Count)

	first := s.Start
	if s.PreferredWeekday != nil {
		for first.Weekday() != *s.PreferredWeekday {
			first = first.AddDate(0, 0, 1)
		}
	}

	out := make([]time.Time, 0, count)
	out = append(out, first)

	prev := first
	for len(out) < count {
		var next time.Time
		switch s.Unit {
		case FrequencyUnitWeek:
			next = prev.AddDate(0, 0, 7*s.Interval)
		case FrequencyUnitMonth:
			next = nextMonthlyOccurrence(prev, s.Interval, s.PreferredWeekday)
		}
		next = atTimeOfDay(next, s.Start)
		out = append(out, next)
		prev = next
	}

	return out, nil
}

// nextMonthlyOccurrence advances prev's calendar month by interval months.
// With a preferred weekday the result snaps to the first matching weekday
// on/after the 1st of the target month; without one the day-of-month is
// preserved, clamped to the target month's length (Jan 31 + 1 month lands on
// Feb 28/29, never an overflowed Mar 2/3).
func nextMonthlyOccurrence(prev time.Time, interval int, preferred *time.Weekday) time.Time {
	year, month, day := prev.Date()
	targetYear := year
	targetMonth := int(month) + interval
	for targetMonth > 12 {
		targetMonth -= 12
		targetYear++
	}

	if preferred != nil {
		d := time.Date(targetYear, time.Month(targetMonth), 1, 0, 0, 0, 0, prev.Location())
		for d.Weekday() != *preferred {
			d = d.AddDate(0, 0, 1)
		}
		return d
	}

	if max := daysInMonth(targetYear, time.Month(targetMonth)); day > max {
		day = max
	}
	return time.Date(targetYear, time.Month(targetMonth), day, 0, 0, 0, 0, prev.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func atTimeOfDay(day, src time.Time) time.Time {
	return time.Date(
		day.Year(), day.Month(), day.Day(),
		src.Hour(), src.Minute(), src.Second(), src.Nanosecond(),
		src.Location(),
	)
}
