// Package jobstest is a behavioural test suite every jobs.Store must pass.
package jobstest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/jobs"
)

// Base is a fixed desired-time origin for fixtures.
var Base = time.Date(2026, time.June, 1, 18, 0, 0, 0, time.UTC)

// MustJob builds a valid single job on court at Base+offset.
func MustJob(t testing.TB, court string, offset time.Duration) jobs.Job {
	t.Helper()
	j, err := jobs.New(jobs.KindSingle, court, Base.Add(offset), 60, "")
	require.NoError(t, err)
	return j
}

// Run exercises s against the Store contract. newStore must return an
// empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) jobs.Store) {
	t.Run("InsertIfAbsent", func(t *testing.T) { testInsertIfAbsent(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("ListPendingOrder", func(t *testing.T) { testListPendingOrder(t, newStore(t)) })
	t.Run("ListFilterAndPaging", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("ListUpcoming", func(t *testing.T) { testListUpcoming(t, newStore(t)) })
	t.Run("UpdateStatusCAS", func(t *testing.T) { testUpdateStatus(t, newStore(t)) })
	t.Run("CancelOnlyFromPending", func(t *testing.T) { testCancel(t, newStore(t)) })
	t.Run("ConcurrentCASSingleWinner", func(t *testing.T) { testConcurrentCAS(t, newStore(t)) })
	t.Run("CountsAndNext", func(t *testing.T) { testCounts(t, newStore(t)) })
	t.Run("AnchorFirstWriteWins", func(t *testing.T) { testAnchor(t, newStore(t)) })
}

func testInsertIfAbsent(t *testing.T, s jobs.Store) {
	ctx := context.Background()
	j := MustJob(t, "1", 0)

	got, created, err := s.InsertIfAbsent(ctx, j)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, j.ID, got.ID)

	again := MustJob(t, "1", 0)
	got, created, err = s.InsertIfAbsent(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, j.ID, got.ID, "existing job is returned")

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	stored, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.True(t, j.DesiredTime.Equal(stored.DesiredTime))
	assert.True(t, j.TriggerTime.Equal(stored.TriggerTime))
	assert.Equal(t, jobs.KindSingle, stored.Kind)
	assert.Equal(t, 60, stored.Duration)
	assert.Nil(t, stored.FinishedAt)
}

func testGetMissing(t *testing.T, s jobs.Store) {
	_, err := s.Get(context.Background(), "does-not-exist")
	assert.True(t, internaltypes.Is(err, internaltypes.ErrNotFound))
}

func testListPendingOrder(t *testing.T, s jobs.Store) {
	ctx := context.Background()
	for _, off := range []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour} {
		_, _, err := s.InsertIfAbsent(ctx, MustJob(t, "1", off))
		require.NoError(t, err)
	}
	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i := 1; i < len(pending); i++ {
		assert.True(t, pending[i-1].TriggerTime.Before(pending[i].TriggerTime))
	}

	// Only the Base+1h job triggers strictly before the Base+2h trigger.
	before, err := s.ListPendingBefore(ctx, pending[1].TriggerTime)
	require.NoError(t, err)
	assert.Len(t, before, 1)
}

func testList(t *testing.T, s jobs.Store) {
	ctx := context.Background()
	var ids []string
	for i := range 5 {
		court := "1"
		if i%2 == 1 {
			court = "2"
		}
		j, _, err := s.InsertIfAbsent(ctx, MustJob(t, court, time.Duration(i)*time.Hour))
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}
	require.NoError(t, s.UpdateStatus(ctx, ids[0], jobs.StatusSuccess, jobs.StatusPending, jobs.Outcome{Attempts: 1}))

	all, err := s.List(ctx, jobs.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, ids[4], all[0].ID, "newest desired time first")

	court2, err := s.List(ctx, jobs.Filter{ResourceID: "2"})
	require.NoError(t, err)
	assert.Len(t, court2, 2)

	done, err := s.List(ctx, jobs.Filter{Status: jobs.StatusSuccess})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, ids[0], done[0].ID)

	page, err := s.List(ctx, jobs.Filter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)

	_, err = s.List(ctx, jobs.Filter{Limit: 5000})
	assert.True(t, internaltypes.IsConfiguration(err))
}

func testListUpcoming(t *testing.T, s jobs.Store) {
	ctx := context.Background()
	in, _, err := s.InsertIfAbsent(ctx, MustJob(t, "1", 24*time.Hour))
	require.NoError(t, err)
	_, _, err = s.InsertIfAbsent(ctx, MustJob(t, "1", 10*24*time.Hour))
	require.NoError(t, err)
	gone, _, err := s.InsertIfAbsent(ctx, MustJob(t, "2", 48*time.Hour))
	require.NoError(t, err)
	_, err = s.Cancel(ctx, gone.ID)
	require.NoError(t, err)

	up, err := s.ListUpcoming(ctx, Base, Base.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, up, 1)
	assert.Equal(t, in.ID, up[0].ID)
}

func testUpdateStatus(t *testing.T, s jobs.Store) {
	ctx := context.Background()
	j, _, err := s.InsertIfAbsent(ctx, MustJob(t, "1", 0))
	require.NoError(t, err)

	err = s.UpdateStatus(ctx, j.ID, jobs.StatusPending, jobs.StatusSuccess, jobs.Outcome{})
	assert.True(t, internaltypes.Is(err, internaltypes.ErrInvalidTransition))

	require.NoError(t, s.UpdateStatus(ctx, j.ID, jobs.StatusFailed, jobs.StatusPending, jobs.Outcome{Attempts: 3, Error: "boom"}))
	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, "boom", got.LastError)
	assert.NotNil(t, got.FinishedAt)

	err = s.UpdateStatus(ctx, j.ID, jobs.StatusSuccess, jobs.StatusPending, jobs.Outcome{})
	assert.True(t, internaltypes.Is(err, internaltypes.ErrConflict))

	err = s.UpdateStatus(ctx, "missing", jobs.StatusSuccess, jobs.StatusPending, jobs.Outcome{})
	assert.True(t, internaltypes.Is(err, internaltypes.ErrNotFound))
}

func testCancel(t *testing.T, s jobs.Store) {
	ctx := context.Background()
	terminal := map[jobs.Status]string{}
	for i, st := range []jobs.Status{jobs.StatusSuccess, jobs.StatusFailed, jobs.StatusCancelled} {
		j, _, err := s.InsertIfAbsent(ctx, MustJob(t, "2", time.Duration(i)*time.Hour))
		require.NoError(t, err)
		require.NoError(t, s.UpdateStatus(ctx, j.ID, st, jobs.StatusPending, jobs.Outcome{}))
		terminal[st] = j.ID
	}
	for st, id := range terminal {
		_, err := s.Cancel(ctx, id)
		assert.True(t, internaltypes.Is(err, internaltypes.ErrInvalidTransition), "cancel from %s", st)
	}

	p, _, err := s.InsertIfAbsent(ctx, MustJob(t, "1", 0))
	require.NoError(t, err)
	got, err := s.Cancel(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCancelled, got.Status)

	_, err = s.Cancel(ctx, "missing")
	assert.True(t, internaltypes.Is(err, internaltypes.ErrNotFound))
}

func testConcurrentCAS(t *testing.T, s jobs.Store) {
	ctx := context.Background()
	j, _, err := s.InsertIfAbsent(ctx, MustJob(t, "1", 0))
	require.NoError(t, err)

	const n = 8
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			var err error
			if i == 0 {
				_, err = s.Cancel(ctx, j.ID)
			} else {
				next := jobs.StatusSuccess
				if i%2 == 0 {
					next = jobs.StatusFailed
				}
				err = s.UpdateStatus(ctx, j.ID, next, jobs.StatusPending, jobs.Outcome{Attempts: 1})
			}
			switch {
			case err == nil:
				wins.Add(1)
			case internaltypes.IsAny(err, internaltypes.ErrConflict, internaltypes.ErrInvalidTransition):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())
	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
}

func testCounts(t *testing.T, s jobs.Store) {
	ctx := context.Background()
	_, ok, err := s.NextPending(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	a, _, err := s.InsertIfAbsent(ctx, MustJob(t, "1", 2*time.Hour))
	require.NoError(t, err)
	b, _, err := s.InsertIfAbsent(ctx, MustJob(t, "2", time.Hour))
	require.NoError(t, err)
	_, err = s.Cancel(ctx, b.ID)
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[jobs.StatusPending])
	assert.Equal(t, 1, counts[jobs.StatusCancelled])
	assert.Equal(t, 0, counts[jobs.StatusSuccess])

	next, ok, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.ID, next.ID)
	require.NoError(t, s.Ping(ctx))
}

func testAnchor(t *testing.T, s jobs.Store) {
	ctx := context.Background()
	const rule = "FREQ=DAILY;COUNT=3"
	first := Base.Add(-48 * time.Hour)

	got, err := s.Anchor(ctx, "1", rule, first)
	require.NoError(t, err)
	assert.True(t, first.Equal(got), "got %s", got)

	got, err = s.Anchor(ctx, "1", rule, first.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, first.Equal(got), "later proposals do not move the anchor")

	other, err := s.Anchor(ctx, "2", rule, Base)
	require.NoError(t, err)
	assert.True(t, Base.Equal(other), "anchors are per court")
}
