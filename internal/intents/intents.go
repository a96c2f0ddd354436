// Package intents reads declarative booking intents and reconciles them into
// the job store.
package intents

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/jobs"
	"github.com/example/court-scheduler/internal/recurrence"
	"github.com/example/court-scheduler/internal/trigger"
)

const DefaultDuration = 60

// Intent is one record of the intents file. Times without an offset are
// civil times in the configured zone.
type Intent struct {
	Type        string `yaml:"type"`
	DesiredTime string `yaml:"desired_time"`
	RRule       string `yaml:"rrule"`
	Start       string `yaml:"start"`
	CourtID     string `yaml:"court_id"`
	Duration    int    `yaml:"duration"`
}

// Parse decodes a YAML or JSON list of intents.
func Parse(data []byte) ([]Intent, error) {
	var out []Intent
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, internaltypes.Configf("intents", "", "%v", err)
	}
	return out, nil
}

func ReadFile(path string) ([]Intent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, internaltypes.Wrapf(err, "read intents %s", path)
	}
	return Parse(data)
}

var civilLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime reads an RFC 3339 instant, or a civil time interpreted in loc.
func ParseTime(field, s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, internaltypes.Configf(field, "", "required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range civilLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, internaltypes.Configf(field, s, "expected YYYY-MM-DDTHH:MM[:SS] with optional offset")
}

// AnchorFunc resolves the expansion anchor of a recurring rule without a
// start. proposed is 00:00 local on the current date; implementations return
// the anchor fixed by the rule's first load.
type AnchorFunc func(courtID, rule string, proposed time.Time) (time.Time, error)

// Jobs expands the intent into concrete jobs. Recurring intents without a
// start are anchored through anchors (nil anchors at 00:00 local on now's
// date), and occurrences at or before now are dropped.
func (in Intent) Jobs(now time.Time, loc *time.Location, anchors AnchorFunc) ([]jobs.Job, error) {
	duration := in.Duration
	if duration == 0 {
		duration = DefaultDuration
	}

	switch strings.ToLower(strings.TrimSpace(in.Type)) {
	case "one-off", "single":
		if in.RRule != "" {
			return nil, internaltypes.Configf("rrule", in.RRule, "not allowed on a single intent")
		}
		desired, err := ParseTime("desired_time", in.DesiredTime, loc)
		if err != nil {
			return nil, err
		}
		j, err := jobs.New(jobs.KindSingle, in.CourtID, desired, duration, "")
		if err != nil {
			return nil, err
		}
		return []jobs.Job{j}, nil

	case "recurring":
		if in.RRule == "" {
			return nil, internaltypes.Configf("rrule", "", "required for a recurring intent")
		}
		rule, err := recurrence.Parse(in.RRule)
		if err != nil {
			return nil, err
		}
		if err := jobs.CheckCourt(in.CourtID); err != nil {
			return nil, err
		}
		if duration < 1 {
			return nil, internaltypes.Configf("duration", "", "must be positive, got %d", duration)
		}

		var anchor time.Time
		switch {
		case in.Start != "":
			if anchor, err = ParseTime("start", in.Start, loc); err != nil {
				return nil, err
			}
		case anchors != nil:
			if anchor, err = anchors(in.CourtID, rule.String(), startOfDay(now, loc)); err != nil {
				return nil, err
			}
			anchor = anchor.In(loc)
		default:
			anchor = startOfDay(now, loc)
		}

		seq, err := recurrence.Expand(anchor, rule)
		if err != nil {
			return nil, err
		}
		// Validate every occurrence before returning any.
		var out []jobs.Job
		for t := range seq.All() {
			if !t.After(now) {
				continue
			}
			j, err := jobs.New(jobs.KindRecurring, in.CourtID, t, duration, rule.String())
			if err != nil {
				return nil, err
			}
			out = append(out, j)
		}
		return out, nil

	default:
		return nil, internaltypes.Configf("type", in.Type, "expected one-off, single or recurring")
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Report summarizes one reconciliation.
type Report struct {
	Intents  int
	Created  int
	Existing int
	Skipped  int
	// Created jobs whose trigger had already passed; they fire on the next
	// scheduler sync.
	Overdue int
}

type Options struct {
	Location *time.Location
	Clock    clockwork.Clock
	Logger   *zap.SugaredLogger
}

// Loader reconciles intent snapshots into a job store.
type Loader struct {
	store jobs.Store
	loc   *time.Location
	clock clockwork.Clock
	log   *zap.SugaredLogger
}

func New(store jobs.Store, opts Options) *Loader {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Loader{store: store, loc: opts.Location, clock: opts.Clock, log: opts.Logger}
}

func (l *Loader) LoadFile(ctx context.Context, path string) (Report, error) {
	in, err := ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	return l.Reconcile(ctx, in)
}

// Reconcile inserts the jobs of every intent that are not already stored.
// A malformed intent is logged and skipped; the rest proceed. Store errors
// abort.
func (l *Loader) Reconcile(ctx context.Context, intents []Intent) (Report, error) {
	rep := Report{Intents: len(intents)}
	now := l.clock.Now()
	anchors := func(courtID, rule string, proposed time.Time) (time.Time, error) {
		return l.store.Anchor(ctx, courtID, rule, proposed)
	}
	for i, in := range intents {
		js, err := in.Jobs(now, l.loc, anchors)
		if err != nil {
			if !internaltypes.IsConfiguration(err) {
				return rep, err
			}
			rep.Skipped++
			l.log.Warnw("skipping malformed intent", "index", i, "type", in.Type, "court_id", in.CourtID, "error", err.Error())
			continue
		}
		for _, j := range js {
			stored, created, err := l.store.InsertIfAbsent(ctx, j)
			if err != nil {
				return rep, err
			}
			if !created {
				rep.Existing++
				continue
			}
			rep.Created++
			if late := trigger.Overdue(stored.TriggerTime, now); late > 0 {
				rep.Overdue++
				l.log.Warnw("job created after its trigger time", "job_id", stored.ID,
					"desired_time", trigger.Render(stored.DesiredTime, l.loc),
					"overdue", late.Round(time.Second).String())
			} else {
				l.log.Debugw("job created", "job_id", stored.ID,
					"trigger_time", trigger.Render(stored.TriggerTime, l.loc))
			}
		}
	}
	l.log.Infow("intents reconciled", "intents", rep.Intents, "created", rep.Created,
		"existing", rep.Existing, "skipped", rep.Skipped, "overdue", rep.Overdue)
	return rep, nil
}
