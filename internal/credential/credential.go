// Package credential owns the single shared token set used to talk to the
// booking service.
package credential

import (
	"context"
	"time"
)

// Credential is the persisted token pair. A zero RefreshExpiry means the
// expiry is unknown (a bootstrapped token that has not been exchanged yet).
type Credential struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
	SessionState  string
	UpdatedAt     time.Time
}

// AccessValid reports whether the access token lasts at least margin past now.
func (c Credential) AccessValid(now time.Time, margin time.Duration) bool {
	return c.AccessToken != "" && c.AccessExpiry.Sub(now) >= margin
}

func (c Credential) RefreshExpired(now time.Time) bool {
	return !c.RefreshExpiry.IsZero() && !now.Before(c.RefreshExpiry)
}

// Store persists the credential. Load reports false when nothing is stored.
type Store interface {
	Load(ctx context.Context) (Credential, bool, error)
	Save(ctx context.Context, c Credential) error
}

// Grant is what a successful refresh exchange returns.
type Grant struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
	SessionState     string
}

// Refresher exchanges a refresh token for a new grant. An invalid or expired
// refresh token is reported as internaltypes.ErrCredentialExpired.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
}
