package postgres

import (
	"context"
	"time"

	"github.com/example/court-scheduler/internal/credential"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/internaltypes"
)

type TokenRepo struct{ db *db.DB }

func NewTokenRepo(d *db.DB) *TokenRepo { return &TokenRepo{db: d} }

func (r *TokenRepo) Load(ctx context.Context) (credential.Credential, bool, error) {
	var c credential.Credential
	var accessExp, refreshExp *time.Time
	err := r.db.QueryRow(ctx, `
SELECT access_token, access_expiry, refresh_token, refresh_expiry, session_state, updated_at
FROM tokens WHERE id=1`).Scan(&c.AccessToken, &accessExp, &c.RefreshToken, &refreshExp, &c.SessionState, &c.UpdatedAt)
	if db.IsNotFound(err) {
		return credential.Credential{}, false, nil
	}
	if err != nil {
		return credential.Credential{}, false, internaltypes.Wrap(err, "load tokens")
	}
	if accessExp != nil {
		c.AccessExpiry = accessExp.UTC()
	}
	if refreshExp != nil {
		c.RefreshExpiry = refreshExp.UTC()
	}
	return c, true, nil
}

func (r *TokenRepo) Save(ctx context.Context, c credential.Credential) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO tokens(id, access_token, access_expiry, refresh_token, refresh_expiry, session_state, updated_at)
VALUES (1,$1,$2,$3,$4,$5,now())
ON CONFLICT (id) DO UPDATE SET
  access_token=EXCLUDED.access_token,
  access_expiry=EXCLUDED.access_expiry,
  refresh_token=EXCLUDED.refresh_token,
  refresh_expiry=EXCLUDED.refresh_expiry,
  session_state=EXCLUDED.session_state,
  updated_at=now()`,
		c.AccessToken, nullTime(c.AccessExpiry), c.RefreshToken, nullTime(c.RefreshExpiry), c.SessionState)
	return internaltypes.Wrap(err, "save tokens")
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
