package jobs

import (
	"context"
	"time"

	"github.com/example/court-scheduler/internal/internaltypes"
)

// Store is the durable record of every job. Each mutation is committed
// before the call returns.
type Store interface {
	// InsertIfAbsent stores j unless a job with the same DedupKey exists.
	// It returns the stored job and whether it was newly created.
	InsertIfAbsent(ctx context.Context, j Job) (Job, bool, error)
	Get(ctx context.Context, id string) (Job, error)
	// ListPending returns every pending job ordered by trigger time.
	ListPending(ctx context.Context) ([]Job, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Job, error)
	// List returns jobs newest desired time first.
	List(ctx context.Context, f Filter) ([]Job, error)
	// ListUpcoming returns pending jobs with desired time in [from, to).
	ListUpcoming(ctx context.Context, from, to time.Time) ([]Job, error)
	// UpdateStatus moves id from expected to next. ErrConflict when the
	// stored status is not expected.
	UpdateStatus(ctx context.Context, id string, next, expected Status, out Outcome) error
	// Cancel moves a pending job to cancelled. ErrInvalidTransition otherwise.
	Cancel(ctx context.Context, id string) (Job, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	// NextPending returns the pending job with the earliest desired time.
	NextPending(ctx context.Context) (Job, bool, error)
	// Anchor returns the expansion anchor recorded for a recurring rule on
	// resourceID, recording proposed first when there is none. The first
	// load of a rule fixes its occurrences for every later load.
	Anchor(ctx context.Context, resourceID, rule string, proposed time.Time) (time.Time, error)
	Ping(ctx context.Context) error
	Close() error
}

// CheckTransition validates a CAS request before it reaches storage.
func CheckTransition(next, expected Status) error {
	if !CanTransition(expected, next) {
		return internaltypes.Wrapf(internaltypes.ErrInvalidTransition, "%s -> %s", expected, next)
	}
	return nil
}

// ResolveMiss turns a zero-row CAS into the right error once the caller has
// re-read the row. current is the stored status, found reports existence.
func ResolveMiss(id string, current Status, found bool) error {
	if !found {
		return internaltypes.Wrapf(internaltypes.ErrNotFound, "job %s", id)
	}
	return internaltypes.Wrapf(internaltypes.ErrConflict, "job %s is %s", id, current)
}

// CancelMiss is ResolveMiss for Cancel: a job that already left pending is
// an invalid transition, not a conflict.
func CancelMiss(id string, current Status, found bool) error {
	if !found {
		return internaltypes.Wrapf(internaltypes.ErrNotFound, "job %s", id)
	}
	return internaltypes.WithHint(
		internaltypes.Wrapf(internaltypes.ErrInvalidTransition, "job %s is %s", id, current),
		"only pending jobs can be cancelled")
}

// Unavailable marks err as a store outage.
func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return internaltypes.Mark(internaltypes.Wrap(err, op), internaltypes.ErrStoreUnavailable)
}
