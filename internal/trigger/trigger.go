// Package trigger maps a desired court time to the instant the booking
// request must be submitted.
package trigger

import "time"

// AdvanceWindow is how far ahead the upstream service accepts bookings.
const AdvanceWindow = 168 * time.Hour

// DefaultZone is the civil timezone of the courts.
const DefaultZone = "America/New_York"

const renderLayout = "2006-01-02 15:04 MST"

// For returns desired - AdvanceWindow. The subtraction happens on absolute
// instants, so a DST change between the two never shifts the result.
func For(desired time.Time) time.Time {
	return desired.UTC().Add(-AdvanceWindow)
}

// Overdue reports how late a trigger already is at now. Zero means not due yet.
func Overdue(trigger, now time.Time) time.Duration {
	if late := now.Sub(trigger); late > 0 {
		return late
	}
	return 0
}

// Render formats t in loc for logs and the status API.
func Render(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(renderLayout)
}

// LoadLocation falls back to DefaultZone when name is empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	return time.LoadLocation(name)
}
