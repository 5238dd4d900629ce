// Package clock abstracts wall-clock access so that "today" filters and
// retention windows stay testable.
package clock

import (
	"fmt"
	"time"
)

// Clock supplies the current time. Production code uses Real; tests inject
// a Fake pinned to a known instant.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time { return time.Now().UTC() }

// Fake is a Clock pinned to a fixed instant, advanceable by tests.
type Fake struct {
	Current time.Time
}

// Now returns the pinned instant.
func (f *Fake) Now() time.Time { return f.Current }

// Advance moves the fake clock forward.
func (f *Fake) Advance(d time.Duration) { f.Current = f.Current.Add(d) }

// DateIn formats the clock's current day in the given location as YYYY-MM-DD.
func DateIn(c Clock, loc *time.Location) string {
	return c.Now().In(loc).Format("2006-01-02")
}

// StartOfDay returns local midnight for the clock's current day.
func StartOfDay(c Clock, loc *time.Location) time.Time {
	now := c.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns the [start, end) instants of one local calendar day
// given as YYYY-MM-DD. Timestamps stored in UTC compare correctly against
// these bounds.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}
