package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/court-scheduler/internal/application/usecases"
	"github.com/example/court-scheduler/internal/auth"
	"github.com/example/court-scheduler/internal/credential"
	"github.com/example/court-scheduler/internal/infrastructure/sqlite"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/jobs"
	"github.com/example/court-scheduler/internal/scheduler"
)

var now = time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

type fakeScheduler struct{ notified int }

func (f *fakeScheduler) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{Running: true, Armed: []scheduler.Wakeup{{JobID: "a", ResourceID: "1", TriggerTime: now}}}
}
func (f *fakeScheduler) Notify() { f.notified++ }

type fakeTokens struct{}

func (fakeTokens) Health() credential.Health {
	return credential.Health{HasToken: true, RefreshValid: true, State: credential.AlertOK}
}

type testServer struct {
	*httptest.Server
	store jobs.Store
	sched *fakeScheduler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	d, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	store := sqlite.NewJobRepo(d)
	sched := &fakeScheduler{}
	srv := &Server{
		Status: usecases.Status{
			Jobs:      store,
			Scheduler: sched,
			Tokens:    fakeTokens{},
			Clock:     clockwork.NewFakeClockAt(now),
		},
		Auth:     auth.NewStore(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32), string(hash)),
		Location: loc,
		Logger:   zaptest.NewLogger(t).Sugar(),
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: store, sched: sched}
}

func (ts *testServer) insert(t *testing.T, court string, desired time.Time) jobs.Job {
	t.Helper()
	j, err := jobs.New(jobs.KindSingle, court, desired, 60, "")
	require.NoError(t, err)
	j, _, err = ts.store.InsertIfAbsent(context.Background(), j)
	require.NoError(t, err)
	return j
}

func (ts *testServer) do(t *testing.T, method, path string, body string, cookies ...*http.Cookie) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (ts *testServer) getList(t *testing.T, path string) (int, []map[string]any) {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out []map[string]any
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (ts *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	resp, _ := ts.do(t, http.MethodPost, "/api/login", `{"password":"secret"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, resp.Cookies(), 1)
	return resp.Cookies()[0]
}

func TestListAndFilter(t *testing.T) {
	ts := newTestServer(t)
	first := ts.insert(t, "1", now.Add(24*time.Hour))
	second := ts.insert(t, "2", now.Add(48*time.Hour))

	code, list := ts.getList(t, "/api/jobs")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0]["id"], "newest desired first")

	code, list = ts.getList(t, "/api/jobs?court_id=1&status=pending")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0]["id"])
	assert.Equal(t, "2026-06-02 08:00 EDT", list[0]["desired_local"])

	code, _ = ts.getList(t, "/api/jobs?limit=0&offset=-1")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.getList(t, "/api/jobs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.getList(t, "/api/jobs?status=done")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUpcoming(t *testing.T) {
	ts := newTestServer(t)
	ts.insert(t, "1", now.Add(24*time.Hour))
	ts.insert(t, "1", now.Add(10*24*time.Hour))

	code, list := ts.getList(t, "/api/jobs/upcoming")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 1)

	code, list = ts.getList(t, "/api/jobs/upcoming?days=14")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 2)

	code, _ = ts.getList(t, "/api/jobs/upcoming?days=31")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetJob(t *testing.T) {
	ts := newTestServer(t)
	j := ts.insert(t, "2", now.Add(24*time.Hour))

	resp, body := ts.do(t, http.MethodGet, "/api/jobs/"+j.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "2", body["court_id"])

	resp, body = ts.do(t, http.MethodGet, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestCancelRequiresSession(t *testing.T) {
	ts := newTestServer(t)
	j := ts.insert(t, "1", now.Add(24*time.Hour))

	resp, _ := ts.do(t, http.MethodDelete, "/api/jobs/"+j.ID, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/login", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cookie := ts.login(t)
	resp, body := ts.do(t, http.MethodDelete, "/api/jobs/"+j.ID, "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, 1, ts.sched.notified)

	resp, body = ts.do(t, http.MethodDelete, "/api/jobs/"+j.ID, "", cookie)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "invalid status transition")

	resp, _ = ts.do(t, http.MethodDelete, "/api/jobs/missing", "", cookie)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusEndpoints(t *testing.T) {
	ts := newTestServer(t)
	next := ts.insert(t, "1", now.Add(24*time.Hour))

	resp, body := ts.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 1, body["pending"])
	require.IsType(t, map[string]any{}, body["next_booking"])
	assert.Equal(t, next.ID, body["next_booking"].(map[string]any)["id"])

	resp, body = ts.do(t, http.MethodGet, "/api/scheduler/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["running"])
	assert.EqualValues(t, 1, body["armed_jobs"])

	resp, body = ts.do(t, http.MethodGet, "/api/token/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["state"])
	assert.Equal(t, true, body["has_refresh_token"])

	resp, body = ts.do(t, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["alert_count"])

	resp, body = ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{internaltypes.Configf("limit", "", "bad"), http.StatusBadRequest},
		{internaltypes.Wrap(internaltypes.ErrNotFound, "get"), http.StatusNotFound},
		{internaltypes.Mark(internaltypes.New("cancel"), internaltypes.ErrInvalidTransition), http.StatusConflict},
		{internaltypes.Mark(internaltypes.New("disk"), internaltypes.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{internaltypes.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), "%v", c.err)
	}

	resp := httptest.NewRecorder()
	(&Server{}).writeJSON(resp, http.StatusTeapot, map[string]string{"a": "b"})
	assert.Equal(t, http.StatusTeapot, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
}
