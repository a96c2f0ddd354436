package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/trigger"
)

func TestNewComputesTrigger(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	desired := time.Date(2026, time.November, 3, 7, 0, 0, 0, loc)

	j, err := New(KindSingle, "1", desired, 30, "")
	require.NoError(t, err)

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, StatusPending, j.Status)
	assert.Equal(t, trigger.AdvanceWindow, j.DesiredTime.Sub(j.TriggerTime))
	assert.Equal(t, time.UTC, j.DesiredTime.Location())
	assert.Equal(t, desired.Add(30*time.Minute).UTC(), j.End())
}

func TestValidateNamesField(t *testing.T) {
	desired := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		kind  Kind
		court string
		dur   int
		rule  string
		field string
	}{
		{"unknown court", KindSingle, "9", 60, "", "court_id"},
		{"zero duration", KindSingle, "1", 0, "", "duration"},
		{"rule on single", KindSingle, "1", 60, "FREQ=DAILY", "rrule"},
		{"recurring without rule", KindRecurring, "2", 60, "", "rrule"},
		{"bad kind", Kind("weekly"), "2", 60, "", "type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.kind, tc.court, desired, tc.dur, tc.rule)
			var ce *internaltypes.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestUnknownCourtListsKnownOnes(t *testing.T) {
	err := CheckCourt("9")
	require.True(t, internaltypes.IsConfiguration(err))
	assert.Contains(t, err.Error(), "expected one of 1, 2")
	assert.NoError(t, CheckCourt("2"))

	_, err = Filter{ResourceID: "3"}.Normalize()
	assert.Contains(t, err.Error(), "expected one of 1, 2")
}

func TestDedupKeyIgnoresZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	local := time.Date(2026, 5, 1, 14, 0, 0, 0, loc)

	a, err := New(KindSingle, "1", local, 60, "")
	require.NoError(t, err)
	b, err := New(KindSingle, "1", local.UTC(), 90, "")
	require.NoError(t, err)
	c, err := New(KindRecurring, "1", local, 60, "FREQ=WEEKLY")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.DedupKey(), b.DedupKey())
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
}

func TestStateMachine(t *testing.T) {
	for _, from := range Statuses() {
		for _, to := range Statuses() {
			want := from == StatusPending && to != StatusPending
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, internaltypes.Is(CheckTransition(StatusPending, StatusFailed), internaltypes.ErrInvalidTransition))
	assert.NoError(t, CheckTransition(StatusFailed, StatusPending))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Cancelled ")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, s)

	_, err = ParseStatus("booked")
	assert.True(t, internaltypes.IsConfiguration(err))
}

func TestFilterNormalize(t *testing.T) {
	f, err := Filter{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, f.Limit)

	_, err = Filter{Limit: MaxLimit + 1}.Normalize()
	assert.True(t, internaltypes.IsConfiguration(err))
	_, err = Filter{Offset: -1}.Normalize()
	assert.True(t, internaltypes.IsConfiguration(err))
	_, err = Filter{ResourceID: "3"}.Normalize()
	assert.True(t, internaltypes.IsConfiguration(err))
}

func TestMissErrors(t *testing.T) {
	assert.True(t, internaltypes.Is(ResolveMiss("x", "", false), internaltypes.ErrNotFound))
	assert.True(t, internaltypes.Is(ResolveMiss("x", StatusCancelled, true), internaltypes.ErrConflict))
	assert.True(t, internaltypes.Is(CancelMiss("x", StatusSuccess, true), internaltypes.ErrInvalidTransition))
	assert.True(t, internaltypes.Is(Unavailable(assert.AnError, "list"), internaltypes.ErrStoreUnavailable))
	assert.NoError(t, Unavailable(nil, "list"))
}
