// Package execution performs the booking for one due job and records the
// outcome.
package execution

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/example/court-scheduler/internal/domain/reservation"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/jobs"
	"github.com/example/court-scheduler/internal/trigger"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryBase   = 2 * time.Second
	DefaultRetryMax    = 30 * time.Second
)

// Attempt outcomes as logged.
const (
	OutcomeSuccess           = "success"
	OutcomeTransient         = "transient"
	OutcomeUnauthorized      = "unauthorized"
	OutcomeDefinitive        = "definitive"
	OutcomeCredentialExpired = "credential_expired"
)

// TokenSource is the slice of the credential manager the executor needs.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

type Options struct {
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
	Clock       clockwork.Clock
	Logger      *zap.SugaredLogger
	// Location renders desired times in logs.
	Location *time.Location
}

type Executor struct {
	store     jobs.Store
	tokens    TokenSource
	submitter reservation.Submitter
	opts      Options
	clock     clockwork.Clock
	log       *zap.SugaredLogger
}

func New(store jobs.Store, tokens TokenSource, submitter reservation.Submitter, opts Options) *Executor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultRetryBase
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = DefaultRetryMax
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Executor{
		store:     store,
		tokens:    tokens,
		submitter: submitter,
		opts:      opts,
		clock:     opts.Clock,
		log:       opts.Logger,
	}
}

// Result describes one firing.
type Result struct {
	Status   jobs.Status
	Attempts int
	// Skipped is set when the job was not pending on entry; nothing was written.
	Skipped bool
	// Lost is set when another writer moved the job first; our outcome was discarded.
	Lost bool
}

// Execute runs one attempt cycle for id. The only errors returned are store
// failures and context cancellation; booking failures end up in the job's
// status.
func (e *Executor) Execute(ctx context.Context, id string) (Result, error) {
	j, err := e.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if j.Status != jobs.StatusPending {
		e.log.Infow("job no longer pending, skipping", "job_id", id, "status", j.Status)
		return Result{Status: j.Status, Skipped: true}, nil
	}

	log := e.log.With("job_id", id, "court_id", j.ResourceID,
		"desired_time", trigger.Render(j.DesiredTime, e.opts.Location))
	b := NewBackoff(e.opts.RetryBase, e.opts.RetryMax, e.opts.MaxAttempts)

	for {
		attempt := b.Begin()
		outcome, err := e.attempt(ctx, j)
		fields := []any{"attempt", attempt, "outcome", outcome}
		if err != nil {
			fields = append(fields, "error", err.Error())
		}

		switch outcome {
		case OutcomeSuccess:
			log.Infow("booking attempt", fields...)
			return e.finish(ctx, log, j.ID, jobs.StatusSuccess, jobs.Outcome{Attempts: attempt})
		case OutcomeDefinitive, OutcomeCredentialExpired:
			log.Warnw("booking attempt", fields...)
			return e.finish(ctx, log, j.ID, jobs.StatusFailed, jobs.Outcome{Attempts: attempt, Error: err.Error()})
		}

		log.Warnw("booking attempt", fields...)
		if ctx.Err() != nil {
			// Shutdown: leave the job pending so the next start fires it again.
			return Result{Status: jobs.StatusPending, Attempts: attempt}, ctx.Err()
		}
		delay, ok := b.Fail()
		if !ok {
			log.Errorw("booking retries exhausted", "attempts", attempt)
			return e.finish(ctx, log, j.ID, jobs.StatusFailed, jobs.Outcome{Attempts: attempt, Error: err.Error()})
		}
		select {
		case <-ctx.Done():
			return Result{Status: jobs.StatusPending, Attempts: attempt}, ctx.Err()
		case <-e.clock.After(delay):
		}
	}
}

// attempt acquires a token and submits once, returning the classified outcome.
func (e *Executor) attempt(ctx context.Context, j jobs.Job) (string, error) {
	token, err := e.tokens.AccessToken(ctx)
	if err != nil {
		if internaltypes.CredentialExpired(err) {
			return OutcomeCredentialExpired, err
		}
		return OutcomeTransient, err
	}

	err = e.submitter.Submit(ctx, j.Request(), token)
	switch {
	case err == nil:
		return OutcomeSuccess, nil
	case internaltypes.Is(err, internaltypes.ErrUnauthorized):
		e.tokens.Invalidate()
		return OutcomeUnauthorized, err
	case internaltypes.CredentialExpired(err):
		return OutcomeCredentialExpired, err
	case internaltypes.Definitive(err):
		return OutcomeDefinitive, err
	default:
		// Unclassified failures are retried.
		return OutcomeTransient, err
	}
}

// finish writes the single terminal status. A lost compare-and-set is
// resolved by re-reading: if the job already left pending the outcome is
// dropped.
func (e *Executor) finish(ctx context.Context, log *zap.SugaredLogger, id string, next jobs.Status, out jobs.Outcome) (Result, error) {
	// The booking already happened; a shutdown must not lose its record.
	ctx = context.WithoutCancel(ctx)
	err := e.store.UpdateStatus(ctx, id, next, jobs.StatusPending, out)
	if err == nil {
		log.Infow("job finished", "status", next, "attempts", out.Attempts)
		return Result{Status: next, Attempts: out.Attempts}, nil
	}
	if !internaltypes.Is(err, internaltypes.ErrConflict) {
		return Result{}, err
	}

	cur, gerr := e.store.Get(ctx, id)
	if gerr != nil {
		return Result{}, gerr
	}
	log.Warnw("job changed while executing, outcome discarded",
		"wanted", next, "current", cur.Status)
	return Result{Status: cur.Status, Attempts: out.Attempts, Lost: true}, nil
}
