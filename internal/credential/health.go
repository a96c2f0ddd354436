package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/court-scheduler/internal/internaltypes"
)

type AlertState string

const (
	AlertOK       AlertState = "ok"
	AlertWarning  AlertState = "warning"
	AlertCritical AlertState = "critical"
)

// RefreshWarnWindow is how early an approaching refresh expiry is flagged.
const RefreshWarnWindow = 7 * 24 * time.Hour

type Health struct {
	HasToken         bool
	AccessValid      bool
	AccessExpiresIn  time.Duration
	RefreshKnown     bool
	RefreshValid     bool
	RefreshExpiresIn time.Duration
	LastRefresh      time.Time
	LastError        string

	// Expired is the CredentialExpired alert condition.
	Expired  bool
	State    AlertState
	Critical []string
	Warnings []string
}

// Health summarises the credential for the status surface.
func (m *Manager) Health() Health {
	now := m.clock.Now()
	m.mu.RLock()
	c, lastErr, last := m.cred, m.lastErr, m.lastRefresh
	m.mu.RUnlock()

	h := Health{
		HasToken:     c.RefreshToken != "",
		AccessValid:  c.AccessValid(now, 0),
		RefreshKnown: !c.RefreshExpiry.IsZero(),
		LastRefresh:  last,
		State:        AlertOK,
	}
	if h.AccessValid {
		h.AccessExpiresIn = c.AccessExpiry.Sub(now).Truncate(time.Second)
	}
	h.RefreshValid = h.HasToken && !c.RefreshExpired(now)
	if h.RefreshKnown && h.RefreshValid {
		h.RefreshExpiresIn = c.RefreshExpiry.Sub(now).Truncate(time.Second)
	}
	if lastErr != nil {
		h.LastError = lastErr.Error()
	}
	h.Expired = internaltypes.CredentialExpired(lastErr) || (h.HasToken && !h.RefreshValid)

	switch {
	case !h.HasToken:
		h.critical("no refresh token configured")
	case !h.RefreshValid:
		h.critical("refresh token expired")
	case h.Expired:
		h.critical("last refresh rejected the refresh token")
	}
	if h.RefreshKnown && h.RefreshValid && h.RefreshExpiresIn < RefreshWarnWindow {
		h.warn(fmt.Sprintf("refresh token expires in %s", h.RefreshExpiresIn.Round(time.Hour)))
	}
	if h.HasToken && !h.AccessValid {
		h.warn("access token expired; it is refreshed on next use")
	}
	return h
}

func (h *Health) critical(reason string) {
	h.State = AlertCritical
	h.Critical = append(h.Critical, reason)
}

func (h *Health) warn(reason string) {
	if h.State == AlertOK {
		h.State = AlertWarning
	}
	h.Warnings = append(h.Warnings, reason)
}

// StartKeepalive refreshes on the given cron spec (DefaultKeepalive when
// empty) so the refresh token keeps rotating while idle. The returned stop
// func waits for a running refresh to finish.
func (m *Manager) StartKeepalive(spec string) (stop func(), err error) {
	if spec == "" {
		spec = DefaultKeepalive
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, m.keepalive); err != nil {
		return nil, internaltypes.Configf("TOKEN_KEEPALIVE", spec, "%v", err)
	}
	c.Start()
	m.log.Infow("token keepalive scheduled", "spec", spec)
	return func() { <-c.Stop().Done() }, nil
}

func (m *Manager) keepalive() {
	if m.snapshot().RefreshExpired(m.clock.Now()) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.acquire)
	defer cancel()
	if _, err := m.Refresh(ctx); err != nil {
		m.log.Warnw("keepalive refresh failed", "error", err)
	}
}
