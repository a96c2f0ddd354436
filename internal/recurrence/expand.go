package recurrence

import (
	"iter"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/court-scheduler/internal/internaltypes"
)

// MaxOccurrences caps every expansion regardless of the rule's own bound.
const MaxOccurrences = 52

var rruleFreq = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
}

var rruleDay = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Sequence is a bounded, lazily generated list of occurrences. It can be
// iterated any number of times; each iteration starts from the beginning.
type Sequence struct {
	rr    *rrule.RRule
	limit int
}

// Expand builds the occurrence sequence for r anchored at anchor. Wall-clock
// fields (BYHOUR, BYMINUTE) are evaluated in anchor's location.
func Expand(anchor time.Time, r Rule) (Sequence, error) {
	if anchor.IsZero() {
		return Sequence{}, internaltypes.Configf("DTSTART", "", "anchor time required")
	}
	freq, ok := rruleFreq[r.Freq]
	if !ok {
		return Sequence{}, internaltypes.Configf("FREQ", string(r.Freq), "unsupported frequency")
	}

	opt := rrule.ROption{
		Freq:     freq,
		Dtstart:  anchor.Truncate(time.Second),
		Interval: r.Interval,
		Count:    r.Count,
		Byhour:   r.ByHour,
		Byminute: r.ByMinute,
		Bysecond: []int{0},
	}
	for _, d := range r.ByDay {
		opt.Byweekday = append(opt.Byweekday, rruleDay[d])
	}
	if !r.Until.IsZero() {
		until := r.Until
		if r.untilFloating {
			until = time.Date(until.Year(), until.Month(), until.Day(),
				until.Hour(), until.Minute(), until.Second(), 0, anchor.Location())
		}
		if until.Before(anchor) {
			return Sequence{}, internaltypes.Configf("UNTIL", r.raw, "bound precedes the anchor %s", anchor.Format(time.RFC3339))
		}
		opt.Until = until
	}

	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return Sequence{}, internaltypes.Configf("RRULE", r.raw, "%v", err)
	}

	limit := MaxOccurrences
	if r.Count > 0 && r.Count < limit {
		limit = r.Count
	}
	return Sequence{rr: rr, limit: limit}, nil
}

// All yields occurrences in strictly increasing order.
func (s Sequence) All() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if s.rr == nil {
			return
		}
		next := s.rr.Iterator()
		var prev time.Time
		for n := 0; n < s.limit; n++ {
			t, ok := next()
			if !ok {
				return
			}
			if n > 0 && !t.After(prev) {
				return
			}
			prev = t
			if !yield(t) {
				return
			}
		}
	}
}

// Times collects the whole sequence.
func (s Sequence) Times() []time.Time {
	return slices.Collect(s.All())
}

// ExpandString parses and expands in one step.
func ExpandString(anchor time.Time, rule string) (Rule, []time.Time, error) {
	r, err := Parse(rule)
	if err != nil {
		return Rule{}, nil, err
	}
	seq, err := Expand(anchor, r)
	if err != nil {
		return Rule{}, nil, err
	}
	return r, seq.Times(), nil
}
