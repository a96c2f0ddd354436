package web

import (
	"time"

	"github.com/example/court-scheduler/internal/application/usecases"
	"github.com/example/court-scheduler/internal/credential"
	"github.com/example/court-scheduler/internal/jobs"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/example/court-scheduler/internal/trigger"
)

type jobView struct {
	ID             string      `json:"id"`
	Type           jobs.Kind   `json:"type"`
	CourtID        string      `json:"court_id"`
	DesiredTime    time.Time   `json:"desired_time"`
	DesiredLocal   string      `json:"desired_local"`
	TriggerTime    time.Time   `json:"trigger_time"`
	TriggerLocal   string      `json:"trigger_local"`
	Duration       int         `json:"duration"`
	RecurrenceRule string      `json:"rrule,omitempty"`
	Status         jobs.Status `json:"status"`
	Attempts       int         `json:"attempts"`
	LastError      string      `json:"last_error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
}

func (s *Server) jobView(j jobs.Job) jobView {
	return jobView{
		ID:             j.ID,
		Type:           j.Kind,
		CourtID:        j.ResourceID,
		DesiredTime:    j.DesiredTime,
		DesiredLocal:   trigger.Render(j.DesiredTime, s.Location),
		TriggerTime:    j.TriggerTime,
		TriggerLocal:   trigger.Render(j.TriggerTime, s.Location),
		Duration:       j.Duration,
		RecurrenceRule: j.RecurrenceRule,
		Status:         j.Status,
		Attempts:       j.Attempts,
		LastError:      j.LastError,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		FinishedAt:     j.FinishedAt,
	}
}

func (s *Server) jobViews(js []jobs.Job) []jobView {
	out := make([]jobView, 0, len(js))
	for _, j := range js {
		out = append(out, s.jobView(j))
	}
	return out
}

type statsView struct {
	Total     int      `json:"total"`
	Pending   int      `json:"pending"`
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	Cancelled int      `json:"cancelled"`
	Next      *jobView `json:"next_booking,omitempty"`
}

func (s *Server) statsView(st usecases.Stats) statsView {
	v := statsView{
		Total:     st.Total,
		Pending:   st.Counts[jobs.StatusPending],
		Success:   st.Counts[jobs.StatusSuccess],
		Failed:    st.Counts[jobs.StatusFailed],
		Cancelled: st.Counts[jobs.StatusCancelled],
	}
	if st.Next != nil {
		n := s.jobView(*st.Next)
		v.Next = &n
	}
	return v
}

type wakeupView struct {
	JobID        string    `json:"job_id"`
	CourtID      string    `json:"court_id"`
	TriggerTime  time.Time `json:"trigger_time"`
	TriggerLocal string    `json:"trigger_local"`
	DesiredTime  time.Time `json:"desired_time"`
}

type schedulerView struct {
	Running   bool         `json:"running"`
	InFlight  int          `json:"in_flight"`
	ArmedJobs int          `json:"armed_jobs"`
	Armed     []wakeupView `json:"armed"`
	LastWake  *time.Time   `json:"last_wake,omitempty"`
	LastSync  *time.Time   `json:"last_sync,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) schedulerView(snap scheduler.Snapshot) schedulerView {
	v := schedulerView{
		Running:   snap.Running,
		InFlight:  snap.InFlight,
		ArmedJobs: len(snap.Armed),
		Armed:     make([]wakeupView, 0, len(snap.Armed)),
		LastWake:  optionalTime(snap.LastWake),
		LastSync:  optionalTime(snap.LastSync),
	}
	for _, w := range snap.Armed {
		v.Armed = append(v.Armed, wakeupView{
			JobID:        w.JobID,
			CourtID:      w.ResourceID,
			TriggerTime:  w.TriggerTime,
			TriggerLocal: trigger.Render(w.TriggerTime, s.Location),
			DesiredTime:  w.DesiredTime,
		})
	}
	return v
}

type tokenStatusView struct {
	HasRefreshToken     bool                  `json:"has_refresh_token"`
	AccessTokenValid    bool                  `json:"access_token_valid"`
	AccessExpiresIn     float64               `json:"access_expires_in_seconds"`
	RefreshExpiryKnown  bool                  `json:"refresh_expiry_known"`
	RefreshTokenExpired bool                  `json:"refresh_token_expired"`
	DaysUntilRefreshExp *float64              `json:"days_until_refresh_expires,omitempty"`
	LastRefresh         *time.Time            `json:"last_refresh,omitempty"`
	LastError           string                `json:"last_error,omitempty"`
	State               credential.AlertState `json:"state"`
	Critical            []string              `json:"critical"`
	Warnings            []string              `json:"warnings"`
}

func tokenView(h credential.Health) tokenStatusView {
	v := tokenStatusView{
		HasRefreshToken:     h.HasToken,
		AccessTokenValid:    h.AccessValid,
		AccessExpiresIn:     h.AccessExpiresIn.Seconds(),
		RefreshExpiryKnown:  h.RefreshKnown,
		RefreshTokenExpired: h.Expired,
		LastRefresh:         optionalTime(h.LastRefresh),
		LastError:           h.LastError,
		State:               h.State,
		Critical:            nonNil(h.Critical),
		Warnings:            nonNil(h.Warnings),
	}
	if h.RefreshKnown && h.RefreshValid {
		days := h.RefreshExpiresIn.Hours() / 24
		v.DaysUntilRefreshExp = &days
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type alertView struct {
	Category usecases.AlertCategory `json:"category"`
	Message  string                 `json:"message"`
}

type alertsView struct {
	Status       credential.AlertState `json:"status"`
	Alerts       []alertView           `json:"alerts"`
	Warnings     []alertView           `json:"warnings"`
	AlertCount   int                   `json:"alert_count"`
	WarningCount int                   `json:"warning_count"`
	LastCheck    time.Time             `json:"last_check"`
}

func (s *Server) alertsView(a usecases.Alerts) alertsView {
	conv := func(in []usecases.Alert) []alertView {
		out := make([]alertView, 0, len(in))
		for _, x := range in {
			out = append(out, alertView{Category: x.Category, Message: x.Message})
		}
		return out
	}
	return alertsView{
		Status:       a.State,
		Alerts:       conv(a.Critical),
		Warnings:     conv(a.Warnings),
		AlertCount:   len(a.Critical),
		WarningCount: len(a.Warnings),
		LastCheck:    a.Checked,
	}
}
