// Package recurrence parses the RRULE subset used by recurring booking
// intents and expands it into concrete occurrence instants.
//
// Supported fields: FREQ (DAILY, WEEKLY, MONTHLY), INTERVAL, BYDAY,
// BYHOUR, BYMINUTE, COUNT, UNTIL. Anything else is rejected with a
// ConfigurationError naming the field.
package recurrence

import (
	"strconv"
	"strings"
	"time"

	"github.com/example/court-scheduler/internal/internaltypes"
)

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

// Rule is an immutable, validated recurrence specification.
type Rule struct {
	Freq     Frequency
	Interval int
	ByDay    []time.Weekday
	ByHour   []int
	ByMinute []int
	Count    int
	Until    time.Time

	// untilFloating marks an UNTIL without a zone; it is pinned to the
	// anchor's location at expansion time.
	untilFloating bool
	raw           string
}

// String returns the rule text as it was given (prefix and spaces trimmed).
func (r Rule) String() string { return r.raw }

var weekdays = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// Parse validates s. On error nothing is returned but the error.
func Parse(s string) (Rule, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "RRULE:")
	if raw == "" {
		return Rule{}, internaltypes.Configf("RRULE", s, "empty rule")
	}

	r := Rule{Interval: 1, raw: raw}
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		if !ok || val == "" {
			return Rule{}, internaltypes.Configf(key, val, "expected KEY=VALUE")
		}
		if seen[key] {
			return Rule{}, internaltypes.Configf(key, val, "repeated field")
		}
		seen[key] = true

		var err error
		switch key {
		case "FREQ":
			switch f := Frequency(strings.ToUpper(val)); f {
			case Daily, Weekly, Monthly:
				r.Freq = f
			default:
				err = internaltypes.Configf(key, val, "unsupported frequency")
			}
		case "INTERVAL":
			r.Interval, err = positiveInt(key, val)
		case "COUNT":
			r.Count, err = positiveInt(key, val)
		case "BYDAY":
			r.ByDay, err = parseWeekdays(val)
		case "BYHOUR":
			r.ByHour, err = intList(key, val, 0, 23)
		case "BYMINUTE":
			r.ByMinute, err = intList(key, val, 0, 59)
		case "UNTIL":
			r.Until, r.untilFloating, err = parseUntil(val)
		default:
			err = internaltypes.Configf(key, val, "unsupported field")
		}
		if err != nil {
			return Rule{}, err
		}
	}

	if r.Freq == "" {
		return Rule{}, internaltypes.Configf("FREQ", "", "required")
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return Rule{}, internaltypes.Configf("UNTIL", raw, "COUNT and UNTIL are mutually exclusive")
	}
	return r, nil
}

func positiveInt(key, val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil || n < 1 {
		return 0, internaltypes.Configf(key, val, "must be a positive integer")
	}
	return n, nil
}

func intList(key, val string, lo, hi int) ([]int, error) {
	var out []int
	for _, p := range strings.Split(val, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < lo || n > hi {
			return nil, internaltypes.Configf(key, val, "must be within %d..%d", lo, hi)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseWeekdays(val string) ([]time.Weekday, error) {
	var out []time.Weekday
	for _, p := range strings.Split(val, ",") {
		d, ok := weekdays[strings.ToUpper(strings.TrimSpace(p))]
		if !ok {
			return nil, internaltypes.Configf("BYDAY", val, "unknown weekday %q", p)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseUntil(val string) (time.Time, bool, error) {
	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t, false, nil
	}
	if t, err := time.Parse("20060102T150405", val); err == nil {
		return t, true, nil
	}
	if t, err := time.Parse("20060102", val); err == nil {
		// A date-only bound includes the whole day.
		return t.Add(24*time.Hour - time.Second), true, nil
	}
	return time.Time{}, false, internaltypes.Configf("UNTIL", val, "expected YYYYMMDD or YYYYMMDDTHHMMSS[Z]")
}
