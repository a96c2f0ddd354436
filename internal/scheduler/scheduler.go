// Package scheduler arms a wakeup for every pending job and hands each one
// to the executor when its trigger time arrives.
package scheduler

import (
	"container/heap"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/example/court-scheduler/internal/execution"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/jobs"
	"github.com/example/court-scheduler/internal/trigger"
)

// DefaultMaxSleep caps a single sleep so a wall-clock jump (suspend/resume)
// is noticed within a minute.
const DefaultMaxSleep = time.Minute

type Executor interface {
	Execute(ctx context.Context, id string) (execution.Result, error)
}

type Options struct {
	MaxSleep time.Duration
	Clock    clockwork.Clock
	Logger   *zap.SugaredLogger
	Location *time.Location
}

// Scheduler is the single long-lived timer loop. Executions run on their own
// goroutines; the loop only re-reads status and enqueues them.
type Scheduler struct {
	store    jobs.Store
	exec     Executor
	clock    clockwork.Clock
	log      *zap.SugaredLogger
	loc      *time.Location
	maxSleep time.Duration

	notify chan struct{}
	fatal  chan error
	wg     sync.WaitGroup

	mu       sync.Mutex
	wakeups  wakeHeap
	seen     map[string]bool
	inflight map[string]bool
	running  bool
	lastWake time.Time
	lastSync time.Time
}

func New(store jobs.Store, exec Executor, opts Options) *Scheduler {
	if opts.MaxSleep <= 0 {
		opts.MaxSleep = DefaultMaxSleep
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		store:    store,
		exec:     exec,
		clock:    opts.Clock,
		log:      opts.Logger,
		loc:      opts.Location,
		maxSleep: opts.MaxSleep,
		notify:   make(chan struct{}, 1),
		fatal:    make(chan error, 1),
		seen:     map[string]bool{},
		inflight: map[string]bool{},
	}
}

// Notify asks the loop to re-read pending jobs, e.g. after an insert or a
// cancel. It never blocks.
func (s *Scheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled (returning nil) or the store becomes
// unavailable (returning that error). It waits for in-flight executions
// before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return internaltypes.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.wg.Wait()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.log.Infow("scheduler started", "max_sleep", s.maxSleep)
	for {
		if err := s.sync(ctx); err != nil {
			return s.stop(ctx, err)
		}
		if err := s.fireDue(ctx); err != nil {
			return s.stop(ctx, err)
		}

		timer := s.clock.NewTimer(s.nextSleep())
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Infow("scheduler stopping")
			return nil
		case err := <-s.fatal:
			timer.Stop()
			return s.stop(ctx, err)
		case <-s.notify:
			timer.Stop()
		case <-timer.Chan():
		}

		s.mu.Lock()
		s.lastWake = s.clock.Now()
		s.mu.Unlock()
	}
}

func (s *Scheduler) stop(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	s.log.Errorw("job store unavailable, scheduler exiting", "error", err)
	return internaltypes.Wrap(err, "scheduler")
}

// sync rebuilds the wakeup set from the store. Jobs that left pending drop
// out; new ones are armed. Overdue jobs are armed for immediate firing.
func (s *Scheduler) sync(ctx context.Context) error {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	h := make(wakeHeap, 0, len(pending))
	seen := make(map[string]bool, len(pending))
	for _, j := range pending {
		seen[j.ID] = true
		if s.inflight[j.ID] {
			continue
		}
		h = append(h, Wakeup{
			JobID:       j.ID,
			ResourceID:  j.ResourceID,
			TriggerTime: j.TriggerTime,
			DesiredTime: j.DesiredTime,
		})
		if s.seen[j.ID] {
			continue
		}
		if late := trigger.Overdue(j.TriggerTime, now); late > 0 {
			s.log.Warnw("trigger time already passed, firing immediately",
				"job_id", j.ID,
				"trigger_time", trigger.Render(j.TriggerTime, s.loc),
				"overdue", late.Round(time.Second).String())
		} else {
			s.log.Debugw("armed", "job_id", j.ID, "trigger_time", trigger.Render(j.TriggerTime, s.loc))
		}
	}
	heap.Init(&h)
	s.wakeups = h
	s.seen = seen
	s.lastSync = now
	return nil
}

// fireDue dispatches every wakeup at or before now, oldest first.
func (s *Scheduler) fireDue(ctx context.Context) error {
	now := s.clock.Now()
	for {
		s.mu.Lock()
		w, ok := s.wakeups.peek()
		if !ok || w.TriggerTime.After(now) {
			s.mu.Unlock()
			return nil
		}
		heap.Pop(&s.wakeups)
		s.mu.Unlock()

		// The job may have been cancelled since it was armed.
		j, err := s.store.Get(ctx, w.JobID)
		if internaltypes.Is(err, internaltypes.ErrNotFound) {
			s.log.Warnw("armed job vanished", "job_id", w.JobID)
			continue
		}
		if err != nil {
			return err
		}
		if j.Status != jobs.StatusPending {
			s.log.Infow("job no longer pending at trigger, skipping", "job_id", j.ID, "status", j.Status)
			continue
		}
		s.dispatch(ctx, j, trigger.Overdue(j.TriggerTime, now))
	}
}

func (s *Scheduler) dispatch(ctx context.Context, j jobs.Job, late time.Duration) {
	s.mu.Lock()
	if s.inflight[j.ID] {
		s.mu.Unlock()
		return
	}
	s.inflight[j.ID] = true
	s.mu.Unlock()

	s.log.Infow("dispatching job",
		"job_id", j.ID,
		"court_id", j.ResourceID,
		"trigger_time", trigger.Render(j.TriggerTime, s.loc),
		"late", late.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, j.ID)
			s.mu.Unlock()
		}()

		res, err := s.exec.Execute(ctx, j.ID)
		switch {
		case err == nil:
			s.log.Debugw("execution done", "job_id", j.ID, "status", res.Status, "attempts", res.Attempts)
		case ctx.Err() != nil:
			s.log.Infow("execution interrupted by shutdown; job stays pending", "job_id", j.ID)
		case internaltypes.Is(err, internaltypes.ErrStoreUnavailable):
			select {
			case s.fatal <- err:
			default:
			}
		default:
			s.log.Errorw("execution failed", "job_id", j.ID, "error", err)
		}
	}()
}

func (s *Scheduler) nextSleep() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wakeups.peek()
	if !ok {
		return s.maxSleep
	}
	d := w.TriggerTime.Sub(s.clock.Now())
	if d < 0 {
		return 0
	}
	return min(d, s.maxSleep)
}

// Snapshot is the scheduler state exposed to the status surface.
type Snapshot struct {
	Running  bool
	Armed    []Wakeup
	InFlight int
	LastWake time.Time
	LastSync time.Time
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed := slices.Clone([]Wakeup(s.wakeups))
	slices.SortFunc(armed, func(a, b Wakeup) int {
		if a.before(b) {
			return -1
		}
		if b.before(a) {
			return 1
		}
		return 0
	})
	return Snapshot{
		Running:  s.running,
		Armed:    armed,
		InFlight: len(s.inflight),
		LastWake: s.lastWake,
		LastSync: s.lastSync,
	}
}
