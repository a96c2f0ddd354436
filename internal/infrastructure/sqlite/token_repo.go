package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/court-scheduler/internal/credential"
	"github.com/example/court-scheduler/internal/internaltypes"
)

// TokenRepo keeps the single credential row.
type TokenRepo struct{ db *DB }

func NewTokenRepo(d *DB) *TokenRepo { return &TokenRepo{db: d} }

func (r *TokenRepo) Load(ctx context.Context) (credential.Credential, bool, error) {
	var (
		c                              credential.Credential
		accessExp, refreshExp, updated int64
	)
	err := r.db.sql.QueryRowContext(ctx, `
SELECT access_token, access_expiry, refresh_token, refresh_expiry, session_state, updated_at
FROM tokens WHERE id=1`).Scan(&c.AccessToken, &accessExp, &c.RefreshToken, &refreshExp, &c.SessionState, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return credential.Credential{}, false, nil
	}
	if err != nil {
		return credential.Credential{}, false, internaltypes.Wrap(err, "load tokens")
	}
	c.AccessExpiry = fromMillis(accessExp)
	c.RefreshExpiry = fromMillis(refreshExp)
	c.UpdatedAt = fromMillis(updated)
	return c, true, nil
}

func (r *TokenRepo) Save(ctx context.Context, c credential.Credential) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	_, err := r.db.sql.ExecContext(ctx, `
INSERT INTO tokens(id, access_token, access_expiry, refresh_token, refresh_expiry, session_state, updated_at)
VALUES (1,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  access_token=excluded.access_token,
  access_expiry=excluded.access_expiry,
  refresh_token=excluded.refresh_token,
  refresh_expiry=excluded.refresh_expiry,
  session_state=excluded.session_state,
  updated_at=excluded.updated_at`,
		c.AccessToken, millis(c.AccessExpiry), c.RefreshToken, millis(c.RefreshExpiry), c.SessionState, millis(c.UpdatedAt))
	return internaltypes.Wrap(err, "save tokens")
}
