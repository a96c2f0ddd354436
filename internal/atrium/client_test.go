package atrium

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/court-scheduler/internal/domain/reservation"
	"github.com/example/court-scheduler/internal/internaltypes"
)

func eastern(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *observer.ObservedLogs) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	core, logs := observer.New(zapcore.DebugLevel)
	c := New(Config{
		BaseURL:    srv.URL,
		AuthURL:    srv.URL + "/token",
		OccupantID: "42",
		RatePerSec: 1000,
		Location:   eastern(t),
	}, zap.New(core).Sugar())
	return c, logs
}

func TestSubmitSendsBooking(t *testing.T) {
	var got bookingPayload
	var auth, reqID string
	c, logs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/my/occupants/42/amenity-reservations/", r.URL.Path)
		auth = r.Header.Get("Authorization")
		reqID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	start := time.Date(2026, time.July, 4, 22, 0, 0, 0, time.UTC)
	req := reservation.NewRequest("job-1", "2", start, 90)
	require.NoError(t, c.Submit(context.Background(), req, "abcdefghijklmnop"))

	assert.Equal(t, "Bearer abcdefghijklmnop", auth)
	assert.Equal(t, "job-1", reqID)
	assert.Equal(t, bookingPayload{
		AmenityTypeID:          "10",
		StartTime:              "2026-07-04T18:00:00-04:00",
		EndTime:                "2026-07-04T19:30:00-04:00",
		AmenityID:              10,
		Guests:                 "1",
		AmenityReservationType: "TR",
	}, got)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	headers, ok := entries[0].ContextMap()["headers"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "Bearer abcdefgh...", headers["Authorization"])
}

func TestSubmitClassifiesStatus(t *testing.T) {
	cases := []struct {
		status int
		body   string
		check  func(error) bool
	}{
		{http.StatusServiceUnavailable, "", internaltypes.Transient},
		{http.StatusTooManyRequests, "", internaltypes.Transient},
		{http.StatusRequestTimeout, "", internaltypes.Transient},
		{http.StatusConflict, `{"detail":"slot already booked"}`, internaltypes.Definitive},
		{http.StatusBadRequest, `nope`, internaltypes.Definitive},
		{http.StatusUnauthorized, "", func(err error) bool { return internaltypes.Is(err, internaltypes.ErrUnauthorized) }},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			err := c.Submit(context.Background(), reservation.NewRequest("j", "1", time.Now(), 60), "tok")
			require.Error(t, err)
			assert.True(t, tc.check(err), "%v", err)
		})
	}
}

func TestSubmitDefinitiveCarriesReason(t *testing.T) {
	c, logs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"detail":"slot already booked"}`)
	})
	err := c.Submit(context.Background(), reservation.NewRequest("j", "1", time.Now(), 60), "tok")
	assert.Contains(t, err.Error(), "slot already booked")
	assert.Equal(t, 1, logs.FilterMessage("http error response").Len())
}

func TestSubmitNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Config{BaseURL: srv.URL, RatePerSec: 1000}, nil)
	err := c.Submit(context.Background(), reservation.NewRequest("j", "1", time.Now(), 60), "tok")
	assert.True(t, internaltypes.Transient(err))
}

func TestSubmitUnknownCourtIsDefinitive(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	err := c.Submit(context.Background(), reservation.NewRequest("j", "7", time.Now(), 60), "tok")
	assert.True(t, internaltypes.Definitive(err))
	assert.True(t, internaltypes.IsConfiguration(err))
}

func TestRefreshGrant(t *testing.T) {
	var form url.Values
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":       "new-access",
			"refresh_token":      "new-refresh",
			"expires_in":         300,
			"refresh_expires_in": 2592000,
			"session_state":      "abc",
		})
	})

	g, err := c.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, DefaultClientID, form.Get("client_id"))
	assert.Equal(t, "old-refresh", form.Get("refresh_token"))
	assert.Equal(t, "new-access", g.AccessToken)
	assert.Equal(t, "new-refresh", g.RefreshToken)
	assert.Equal(t, 5*time.Minute, g.ExpiresIn)
	assert.Equal(t, 30*24*time.Hour, g.RefreshExpiresIn)
	assert.Equal(t, "abc", g.SessionState)
}

func TestRefreshInvalidGrantIsExpired(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Token is not active"}`)
	})
	_, err := c.Refresh(context.Background(), "dead")
	assert.True(t, internaltypes.CredentialExpired(err))
	assert.Contains(t, err.Error(), "Token is not active")
}

func TestRefreshServerErrorIsTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Refresh(context.Background(), "r")
	assert.True(t, internaltypes.Transient(err))
	assert.False(t, internaltypes.CredentialExpired(err))
}

func TestRedaction(t *testing.T) {
	assert.Equal(t, "Bearer 12345678...", redactBearer("Bearer 1234567890"))
	assert.Equal(t, "Bearer abc...", redactBearer("Bearer abc"))
	assert.Equal(t, "[REDACTED]", redactBearer("Basic xyz"))

	h := http.Header{}
	h.Set("Cookie", "sid=1")
	h.Set("Accept", "application/json")
	red := redactHeaders(h)
	assert.Equal(t, "[REDACTED]", red["Cookie"])
	assert.Equal(t, "application/json", red["Accept"])

	assert.Equal(t, `{"access_token": "[REDACTED]","x":1}`, redactBody([]byte(`{"access_token": "secret","x":1}`)))
	assert.Equal(t, "grant_type=refresh_token&refresh_token=[REDACTED]", redactBody([]byte("grant_type=refresh_token&refresh_token=abc")))
}
