package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/court-scheduler/internal/domain/reservation"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/trigger"
)

type Kind string

const (
	KindSingle    Kind = "single"
	KindRecurring Kind = "recurring"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var statuses = []Status{StatusPending, StatusSuccess, StatusFailed, StatusCancelled}

// Statuses lists every status in lifecycle order.
func Statuses() []Status { return append([]Status(nil), statuses...) }

func (s Status) Valid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool { return s.Valid() && s != StatusPending }

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", internaltypes.Configf("status", s, "expected one of pending, success, failed, cancelled")
	}
	return st, nil
}

// CanTransition is the whole state machine: pending moves to any terminal
// status, terminal statuses never move.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.Terminal()
}

type Job struct {
	ID             string
	Kind           Kind
	ResourceID     string
	DesiredTime    time.Time
	TriggerTime    time.Time
	Duration       int // minutes
	RecurrenceRule string
	Status         Status

	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}

// New builds a pending job with a fresh id and its trigger time.
func New(kind Kind, resourceID string, desired time.Time, duration int, rule string) (Job, error) {
	j := Job{
		ID:             uuid.NewString(),
		Kind:           kind,
		ResourceID:     resourceID,
		DesiredTime:    desired.UTC(),
		TriggerTime:    trigger.For(desired),
		Duration:       duration,
		RecurrenceRule: rule,
		Status:         StatusPending,
	}
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}

// DedupKey identifies equivalent jobs: the same court at the same instant
// from the same rule.
func (j Job) DedupKey() string {
	return j.ResourceID + "|" + j.DesiredTime.UTC().Format(time.RFC3339) + "|" + j.RecurrenceRule
}

// End is when the booked slot finishes.
func (j Job) End() time.Time {
	return j.DesiredTime.Add(time.Duration(j.Duration) * time.Minute)
}

func (j Job) Request() reservation.Request {
	return reservation.NewRequest(j.ID, j.ResourceID, j.DesiredTime, j.Duration)
}

// CheckCourt rejects ids outside the court enumeration.
func CheckCourt(id string) error {
	if !reservation.ValidCourt(id) {
		return internaltypes.Configf("court_id", id, "unknown court, expected one of %s", strings.Join(reservation.CourtIDs(), ", "))
	}
	return nil
}

func (j Job) Validate() error {
	switch j.Kind {
	case KindSingle:
		if j.RecurrenceRule != "" {
			return internaltypes.Configf("rrule", j.RecurrenceRule, "single jobs carry no rule")
		}
	case KindRecurring:
		if j.RecurrenceRule == "" {
			return internaltypes.Configf("rrule", "", "required for recurring jobs")
		}
	default:
		return internaltypes.Configf("type", string(j.Kind), "expected single or recurring")
	}
	if err := CheckCourt(j.ResourceID); err != nil {
		return err
	}
	if j.DesiredTime.IsZero() {
		return internaltypes.Configf("desired_time", "", "required")
	}
	if j.Duration < 1 {
		return internaltypes.Configf("duration", "", "must be positive, got %d", j.Duration)
	}
	if !j.TriggerTime.Equal(trigger.For(j.DesiredTime)) {
		return internaltypes.Configf("trigger_time", j.TriggerTime.Format(time.RFC3339), "must be desired_time - %s", trigger.AdvanceWindow)
	}
	return nil
}

// Outcome is the bookkeeping written alongside a terminal status.
type Outcome struct {
	Attempts int
	Error    string
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Filter selects jobs for List. Zero values mean "any".
type Filter struct {
	Status     Status
	ResourceID string
	Limit      int
	Offset     int
}

// Normalize applies the default limit and rejects out-of-range paging.
func (f Filter) Normalize() (Filter, error) {
	if f.Status != "" && !f.Status.Valid() {
		return f, internaltypes.Configf("status", string(f.Status), "unknown status")
	}
	if f.ResourceID != "" {
		if err := CheckCourt(f.ResourceID); err != nil {
			return f, err
		}
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit < 1 || f.Limit > MaxLimit {
		return f, internaltypes.Configf("limit", "", "must be within 1..%d", MaxLimit)
	}
	if f.Offset < 0 {
		return f, internaltypes.Configf("offset", "", "must not be negative")
	}
	return f, nil
}
