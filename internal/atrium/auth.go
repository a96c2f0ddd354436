package atrium

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/example/court-scheduler/internal/credential"
	"github.com/example/court-scheduler/internal/internaltypes"
)

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	SessionState     string `json:"session_state"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh performs an OAuth2 refresh_token grant. A revoked or expired
// refresh token (invalid_grant) is reported as ErrCredentialExpired.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (credential.Grant, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"refresh_token": {refreshToken},
	}
	status, body, err := c.do(ctx, http.MethodPost, c.cfg.AuthURL, "application/x-www-form-urlencoded", nil, []byte(form.Encode()))
	if err != nil {
		return credential.Grant{}, internaltypes.Mark(internaltypes.Wrap(err, "token endpoint"), internaltypes.ErrTransient)
	}

	var tr tokenResponse
	_ = json.Unmarshal(body, &tr)

	switch {
	case status == http.StatusOK && tr.AccessToken != "":
		return credential.Grant{
			AccessToken:      tr.AccessToken,
			RefreshToken:     tr.RefreshToken,
			ExpiresIn:        time.Duration(tr.ExpiresIn) * time.Second,
			RefreshExpiresIn: time.Duration(tr.RefreshExpiresIn) * time.Second,
			SessionState:     tr.SessionState,
		}, nil
	case status == http.StatusOK:
		return credential.Grant{}, internaltypes.Mark(internaltypes.New("token response without access_token"), internaltypes.ErrTransient)
	case tr.Error == "invalid_grant":
		return credential.Grant{}, internaltypes.Mark(
			internaltypes.Newf("refresh rejected: %s (status=%d)", tr.ErrorDescription, status),
			internaltypes.ErrCredentialExpired)
	default:
		return credential.Grant{}, internaltypes.Mark(
			internaltypes.Newf("token endpoint failed: %s (status=%d)", tr.Error, status),
			internaltypes.ErrTransient)
	}
}
