package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/example/court-scheduler/internal/credential"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/jobs"
	"github.com/example/court-scheduler/internal/scheduler"
)

const (
	DefaultUpcomingDays = 7
	MaxUpcomingDays     = 30
)

type SchedulerView interface {
	Snapshot() scheduler.Snapshot
	Notify()
}

type TokenHealth interface {
	Health() credential.Health
}

// Status serves the read side of the status surface plus cancel.
type Status struct {
	Jobs      jobs.Store
	Scheduler SchedulerView
	Tokens    TokenHealth
	Clock     clockwork.Clock
}

func (s Status) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s Status) List(ctx context.Context, f jobs.Filter) ([]jobs.Job, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}
	return s.Jobs.List(ctx, f)
}

func (s Status) Get(ctx context.Context, id string) (jobs.Job, error) {
	return s.Jobs.Get(ctx, id)
}

// Upcoming lists pending jobs desired within the next days (0 means the
// default week).
func (s Status) Upcoming(ctx context.Context, days int) ([]jobs.Job, error) {
	if days == 0 {
		days = DefaultUpcomingDays
	}
	if days < 1 || days > MaxUpcomingDays {
		return nil, internaltypes.Configf("days", fmt.Sprint(days), "must be within 1..%d", MaxUpcomingDays)
	}
	now := s.now()
	return s.Jobs.ListUpcoming(ctx, now, now.Add(time.Duration(days)*24*time.Hour))
}

// Cancel moves a pending job to cancelled and tells the scheduler to disarm it.
func (s Status) Cancel(ctx context.Context, id string) (jobs.Job, error) {
	j, err := s.Jobs.Cancel(ctx, id)
	if err != nil {
		return jobs.Job{}, err
	}
	if s.Scheduler != nil {
		s.Scheduler.Notify()
	}
	return j, nil
}

type Stats struct {
	Total  int
	Counts map[jobs.Status]int
	// Next is the pending job with the earliest desired time, if any.
	Next *jobs.Job
}

func (s Status) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.Jobs.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Counts: counts}
	for _, n := range counts {
		st.Total += n
	}
	next, ok, err := s.Jobs.NextPending(ctx)
	if err != nil {
		return Stats{}, err
	}
	if ok {
		st.Next = &next
	}
	return st, nil
}

func (s Status) SchedulerStatus() scheduler.Snapshot {
	if s.Scheduler == nil {
		return scheduler.Snapshot{}
	}
	return s.Scheduler.Snapshot()
}

func (s Status) TokenHealth() credential.Health {
	if s.Tokens == nil {
		return credential.Health{State: credential.AlertCritical, Critical: []string{"no credential manager"}}
	}
	return s.Tokens.Health()
}

type AlertCategory string

const (
	CategoryAuthentication AlertCategory = "authentication"
	CategoryBookings       AlertCategory = "bookings"
	CategoryScheduler      AlertCategory = "scheduler"
)

type Alert struct {
	Category AlertCategory
	Message  string
}

type Alerts struct {
	State    credential.AlertState
	Critical []Alert
	Warnings []Alert
	Checked  time.Time
}

// Alerts aggregates token and scheduler problems. When the credential is
// critical, pending bookings of the coming week are counted as at risk.
func (s Status) Alerts(ctx context.Context) (Alerts, error) {
	now := s.now()
	a := Alerts{State: credential.AlertOK, Checked: now}

	h := s.TokenHealth()
	for _, r := range h.Critical {
		a.Critical = append(a.Critical, Alert{Category: CategoryAuthentication, Message: r})
	}
	for _, r := range h.Warnings {
		a.Warnings = append(a.Warnings, Alert{Category: CategoryAuthentication, Message: r})
	}

	if len(a.Critical) > 0 {
		upcoming, err := s.Jobs.ListUpcoming(ctx, now, now.Add(DefaultUpcomingDays*24*time.Hour))
		if err != nil {
			return Alerts{}, err
		}
		if n := len(upcoming); n > 0 {
			a.Critical = append(a.Critical, Alert{
				Category: CategoryBookings,
				Message:  fmt.Sprintf("%d upcoming bookings will fail due to token issues", n),
			})
		}
	}

	if !s.SchedulerStatus().Running {
		a.Critical = append(a.Critical, Alert{Category: CategoryScheduler, Message: "scheduler is not running"})
	}

	switch {
	case len(a.Critical) > 0:
		a.State = credential.AlertCritical
	case len(a.Warnings) > 0:
		a.State = credential.AlertWarning
	}
	return a, nil
}
