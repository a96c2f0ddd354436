package usecases

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/court-scheduler/internal/credential"
	"github.com/example/court-scheduler/internal/infrastructure/sqlite"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/jobs"
	"github.com/example/court-scheduler/internal/scheduler"
)

var now = time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	snap     scheduler.Snapshot
	notified int
}

func (f *fakeScheduler) Snapshot() scheduler.Snapshot { return f.snap }
func (f *fakeScheduler) Notify()                      { f.notified++ }

type fakeTokens struct{ h credential.Health }

func (f fakeTokens) Health() credential.Health { return f.h }

func newStatus(t *testing.T, h credential.Health) (Status, *fakeScheduler) {
	t.Helper()
	d, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	sched := &fakeScheduler{snap: scheduler.Snapshot{Running: true}}
	return Status{
		Jobs:      sqlite.NewJobRepo(d),
		Scheduler: sched,
		Tokens:    fakeTokens{h: h},
		Clock:     clockwork.NewFakeClockAt(now),
	}, sched
}

func insert(t *testing.T, s Status, court string, desired time.Time) jobs.Job {
	t.Helper()
	j, err := jobs.New(jobs.KindSingle, court, desired, 60, "")
	require.NoError(t, err)
	j, _, err = s.Jobs.InsertIfAbsent(context.Background(), j)
	require.NoError(t, err)
	return j
}

func TestUpcomingWindow(t *testing.T) {
	s, _ := newStatus(t, credential.Health{State: credential.AlertOK})
	in3 := insert(t, s, "1", now.Add(3*24*time.Hour))
	insert(t, s, "2", now.Add(10*24*time.Hour))

	got, err := s.Upcoming(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, in3.ID, got[0].ID)

	got, err = s.Upcoming(context.Background(), 30)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	for _, days := range []int{-1, 31} {
		_, err = s.Upcoming(context.Background(), days)
		assert.True(t, internaltypes.IsConfiguration(err), "days=%d", days)
	}
}

func TestCancelNotifiesScheduler(t *testing.T) {
	s, sched := newStatus(t, credential.Health{})
	j := insert(t, s, "1", now.Add(48*time.Hour))

	got, err := s.Cancel(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCancelled, got.Status)
	assert.Equal(t, 1, sched.notified)

	_, err = s.Cancel(context.Background(), j.ID)
	assert.True(t, internaltypes.Is(err, internaltypes.ErrInvalidTransition))
	assert.Equal(t, 1, sched.notified)

	_, err = s.Cancel(context.Background(), "missing")
	assert.True(t, internaltypes.Is(err, internaltypes.ErrNotFound))
}

func TestListRejectsBadFilter(t *testing.T) {
	s, _ := newStatus(t, credential.Health{})
	_, err := s.List(context.Background(), jobs.Filter{Limit: 5000})
	assert.True(t, internaltypes.IsConfiguration(err))
}

func TestStats(t *testing.T) {
	s, _ := newStatus(t, credential.Health{})
	later := insert(t, s, "1", now.Add(72*time.Hour))
	sooner := insert(t, s, "2", now.Add(24*time.Hour))
	done := insert(t, s, "1", now.Add(12*time.Hour))
	require.NoError(t, s.Jobs.UpdateStatus(context.Background(), done.ID, jobs.StatusSuccess, jobs.StatusPending, jobs.Outcome{Attempts: 1}))

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Counts[jobs.StatusPending])
	assert.Equal(t, 1, st.Counts[jobs.StatusSuccess])
	assert.Zero(t, st.Counts[jobs.StatusFailed])
	require.NotNil(t, st.Next)
	assert.Equal(t, sooner.ID, st.Next.ID)
	assert.NotEqual(t, later.ID, st.Next.ID)
}

func TestAlertsHealthy(t *testing.T) {
	s, _ := newStatus(t, credential.Health{State: credential.AlertOK, HasToken: true})
	a, err := s.Alerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, credential.AlertOK, a.State)
	assert.Empty(t, a.Critical)
	assert.Empty(t, a.Warnings)
	assert.Equal(t, now, a.Checked)
}

func TestAlertsCountBookingsAtRisk(t *testing.T) {
	s, sched := newStatus(t, credential.Health{
		State:    credential.AlertCritical,
		Critical: []string{"refresh token expired"},
	})
	insert(t, s, "1", now.Add(24*time.Hour))
	insert(t, s, "2", now.Add(48*time.Hour))
	insert(t, s, "1", now.Add(20*24*time.Hour))
	sched.snap.Running = false

	a, err := s.Alerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, credential.AlertCritical, a.State)
	assert.Equal(t, []Alert{
		{Category: CategoryAuthentication, Message: "refresh token expired"},
		{Category: CategoryBookings, Message: "2 upcoming bookings will fail due to token issues"},
		{Category: CategoryScheduler, Message: "scheduler is not running"},
	}, a.Critical)
}

func TestAlertsWarningOnly(t *testing.T) {
	s, _ := newStatus(t, credential.Health{
		State:    credential.AlertWarning,
		HasToken: true,
		Warnings: []string{"refresh token expires in 72h0m0s"},
	})
	insert(t, s, "1", now.Add(24*time.Hour))

	a, err := s.Alerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, credential.AlertWarning, a.State)
	assert.Empty(t, a.Critical)
	assert.Len(t, a.Warnings, 1)
}

type fakeManager struct {
	installed  string
	refreshErr error
	health     credential.Health
}

func (f *fakeManager) Bootstrap(_ context.Context, tok string) error {
	if tok == "" {
		return internaltypes.Configf("refresh_token", "", "required")
	}
	f.installed = tok
	f.health.HasToken = true
	return nil
}

func (f *fakeManager) Refresh(context.Context) (credential.Credential, error) {
	return credential.Credential{}, f.refreshErr
}

func (f *fakeManager) Health() credential.Health { return f.health }

func TestCredentialsSetVerifies(t *testing.T) {
	m := &fakeManager{refreshErr: internaltypes.Mark(internaltypes.New("invalid_grant"), internaltypes.ErrCredentialExpired)}
	_, err := CredentialsService{Manager: m}.Set(context.Background(), "tok", true)
	assert.True(t, internaltypes.CredentialExpired(err))
	assert.Equal(t, "tok", m.installed)

	m = &fakeManager{}
	h, err := CredentialsService{Manager: m}.Set(context.Background(), "tok", false)
	require.NoError(t, err)
	assert.True(t, h.HasToken)
}

func TestBootstrapIfMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"refresh_token":"from-file"}`), 0o600))

	m := &fakeManager{}
	svc := CredentialsService{Manager: m}
	used, err := svc.BootstrapIfMissing(context.Background(), filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.False(t, used)

	used, err = svc.BootstrapIfMissing(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, used)
	assert.Equal(t, "from-file", m.installed)

	m.installed = ""
	used, err = svc.BootstrapIfMissing(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, used, "a stored credential is kept")
	assert.Empty(t, m.installed)
}
