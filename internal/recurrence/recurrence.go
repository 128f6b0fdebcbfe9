// Package recurrence computes the next occurrence of a repeating task.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/nudge/internal/models"
)

var (
	// ErrNotRecurring is returned for one-shot tasks, which have no next occurrence.
	ErrNotRecurring = errors.New("task does not recur")
	// ErrInvalidRule is returned for a rule the calculator does not know.
	ErrInvalidRule = errors.New("invalid recurrence rule")
)

// maxCatchUp bounds NextAfter so a corrupt timestamp cannot spin forever.
const maxCatchUp = 100000

// Next returns the occurrence following from. Calendar arithmetic happens in
// from's location, so a 09:00 reminder stays at 09:00 across DST changes.
func Next(from time.Time, rule models.Recurrence) (time.Time, error) {
	switch rule {
	case models.RecurrenceDaily:
		return from.AddDate(0, 0, 1), nil
	case models.RecurrenceWorkday:
		return from.AddDate(0, 0, workdayStep(from.Weekday())), nil
	case models.RecurrenceWeekly:
		return from.AddDate(0, 0, 7), nil
	case models.RecurrenceMonthly:
		return addMonthClamped(from), nil
	case models.RecurrenceNone:
		return time.Time{}, ErrNotRecurring
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRule, string(rule))
	}
}

// NextAfter applies Next until the result is strictly after now. Occurrences
// missed while the process was down are skipped rather than replayed.
func NextAfter(from time.Time, rule models.Recurrence, now time.Time) (time.Time, error) {
	next, err := Next(from, rule)
	if err != nil {
		return time.Time{}, err
	}
	for i := 0; !next.After(now); i++ {
		if i >= maxCatchUp {
			return time.Time{}, fmt.Errorf("recurrence did not pass %s after %d steps", now, maxCatchUp)
		}
		if next, err = Next(next, rule); err != nil {
			return time.Time{}, err
		}
	}
	return next, nil
}

func workdayStep(d time.Weekday) int {
	switch d {
	case time.Friday:
		return 3
	case time.Saturday:
		return 2
	default:
		// Sunday through Thursday land on the following day.
		return 1
	}
}

func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}
	if last := daysIn(year, month, t.Location()); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
