package credential

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/court-scheduler/internal/internaltypes"
)

const (
	DefaultMargin         = 60 * time.Second
	DefaultAcquireTimeout = 30 * time.Second
	DefaultKeepalive      = "@every 20m"

	refreshKey = "refresh"
)

type Options struct {
	// Margin is the minimum remaining validity of a token handed out.
	Margin time.Duration
	// AcquireTimeout bounds how long AccessToken waits for a refresh.
	AcquireTimeout time.Duration
	Clock          clockwork.Clock
	Logger         *zap.SugaredLogger
}

// Manager hands out access tokens and refreshes them. Refreshes are
// single-flighted: concurrent callers share one outbound exchange.
type Manager struct {
	store     Store
	refresher Refresher
	clock     clockwork.Clock
	log       *zap.SugaredLogger
	margin    time.Duration
	acquire   time.Duration

	group singleflight.Group

	mu          sync.RWMutex
	cred        Credential
	lastErr     error
	lastRefresh time.Time
}

func NewManager(store Store, refresher Refresher, opts Options) *Manager {
	if opts.Margin <= 0 {
		opts.Margin = DefaultMargin
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Manager{
		store:     store,
		refresher: refresher,
		clock:     opts.Clock,
		log:       opts.Logger,
		margin:    opts.Margin,
		acquire:   opts.AcquireTimeout,
	}
}

// Load reads the persisted credential into the cache. A missing credential
// is not an error; Health reports it.
func (m *Manager) Load(ctx context.Context) error {
	c, ok, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		m.log.Warnw("no stored credential; bootstrap one with `token set`")
		return nil
	}
	m.mu.Lock()
	m.cred = c
	m.mu.Unlock()
	return nil
}

// Bootstrap installs an externally supplied refresh token and drops any
// cached access token.
func (m *Manager) Bootstrap(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return internaltypes.Configf("refresh_token", "", "required")
	}
	c := Credential{RefreshToken: refreshToken, UpdatedAt: m.clock.Now().UTC()}
	if err := m.store.Save(ctx, c); err != nil {
		return err
	}
	m.mu.Lock()
	m.cred = c
	m.lastErr = nil
	m.mu.Unlock()
	m.log.Infow("credential bootstrapped")
	return nil
}

func (m *Manager) snapshot() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred
}

// AccessToken returns a token valid for at least the margin, refreshing
// first when needed. The wait for a refresh is bounded by AcquireTimeout.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if c := m.snapshot(); c.AccessValid(m.clock.Now(), m.margin) {
		return c.AccessToken, nil
	}
	c, err := m.do(ctx, false, m.acquire)
	if err != nil {
		return "", err
	}
	return c.AccessToken, nil
}

// Refresh forces a token exchange (or joins one already in flight).
func (m *Manager) Refresh(ctx context.Context) (Credential, error) {
	return m.do(ctx, true, 0)
}

// Invalidate drops the cached access token after the remote side rejected it.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cred.AccessToken = ""
	m.cred.AccessExpiry = time.Time{}
	m.mu.Unlock()
}

// do joins or starts the refresh flight and waits for it. A positive wait
// bounds the wait on the manager's clock.
func (m *Manager) do(ctx context.Context, force bool, wait time.Duration) (Credential, error) {
	// The exchange outlives any single caller: others may be waiting on it.
	ch := m.group.DoChan(refreshKey, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), force)
	})
	var expired <-chan time.Time
	if wait > 0 {
		timer := m.clock.NewTimer(wait)
		defer timer.Stop()
		expired = timer.Chan()
	}
	select {
	case <-ctx.Done():
		return Credential{}, internaltypes.Mark(
			internaltypes.Wrap(ctx.Err(), "waiting for token refresh"), internaltypes.ErrTransient)
	case <-expired:
		return Credential{}, internaltypes.Mark(
			internaltypes.Newf("token refresh still running after %s", wait), internaltypes.ErrTransient)
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

func (m *Manager) refresh(ctx context.Context, force bool) (Credential, error) {
	now := m.clock.Now()
	cur := m.snapshot()
	if !force && cur.AccessValid(now, m.margin) {
		return cur, nil
	}
	if cur.RefreshToken == "" {
		return Credential{}, m.fail(internaltypes.WithHint(
			internaltypes.Wrap(internaltypes.ErrCredentialExpired, "no refresh token"),
			"bootstrap one with `courtsched token set`"))
	}
	if cur.RefreshExpired(now) {
		return Credential{}, m.fail(internaltypes.Wrapf(internaltypes.ErrCredentialExpired,
			"refresh token expired at %s", cur.RefreshExpiry.Format(time.RFC3339)))
	}

	g, err := m.refresher.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		if !internaltypes.IsAny(err, internaltypes.ErrCredentialExpired, internaltypes.ErrTransient) {
			err = internaltypes.Mark(err, internaltypes.ErrTransient)
		}
		return Credential{}, m.fail(internaltypes.Wrap(err, "refresh token"))
	}

	now = m.clock.Now().UTC()
	next := Credential{
		AccessToken:   g.AccessToken,
		AccessExpiry:  now.Add(g.ExpiresIn),
		RefreshToken:  cur.RefreshToken,
		RefreshExpiry: cur.RefreshExpiry,
		SessionState:  g.SessionState,
		UpdatedAt:     now,
	}
	if g.RefreshToken != "" {
		next.RefreshToken = g.RefreshToken
	}
	if g.RefreshExpiresIn > 0 {
		next.RefreshExpiry = now.Add(g.RefreshExpiresIn)
	}
	if err := m.store.Save(ctx, next); err != nil {
		// The rotated refresh token only lives in memory until the next
		// successful save.
		m.log.Errorw("persist refreshed credential", "error", err)
	}

	m.mu.Lock()
	m.cred = next
	m.lastErr = nil
	m.lastRefresh = now
	m.mu.Unlock()

	m.log.Infow("token refreshed",
		"access_expires_in", g.ExpiresIn.String(),
		"refresh_expires_at", next.RefreshExpiry)
	return next, nil
}

func (m *Manager) fail(err error) error {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	if internaltypes.CredentialExpired(err) {
		m.log.Errorw("refresh credential unusable", "error", err)
	} else {
		m.log.Warnw("token refresh failed", "error", err)
	}
	return err
}
