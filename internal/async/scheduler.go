// Package async runs the periodic background refresh of the index.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

// Cycle is one unit of scheduled work, normally a reconcile, diff scan and
// incremental pipeline run.
type Cycle func(ctx context.Context) error

// Default scheduler timings.
const (
	DefaultInterval = 2 * time.Hour
	DefaultTick     = time.Second
	DefaultBackoff  = 5 * time.Minute
)

// Config configures a Scheduler.
type Config struct {
	// Interval separates the end of one cycle from the start of the next.
	Interval time.Duration

	// Tick is how often the wall clock is compared against the next run
	// time, so a machine waking from suspend does not wait a full Interval.
	Tick time.Duration

	// Backoff replaces Interval after a failed cycle.
	Backoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.Tick > c.Interval {
		c.Tick = c.Interval
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	return c
}

// Scheduler runs a Cycle every Interval on one background goroutine. A
// failing or panicking cycle is logged and followed by Backoff; it never
// stops the loop.
type Scheduler struct {
	cfg     Config
	cycle   Cycle
	status  *tracker
	trigger chan struct{}

	mu      sync.Mutex
	running bool
	stop    func()
	doneCh  chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg Config, cycle Cycle) *Scheduler {
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		cycle:   cycle,
		status:  &tracker{},
		trigger: make(chan struct{}, 1),
	}
}

// Start launches the loop. The first cycle runs one Interval from now, or
// earlier when triggered. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.stop = sync.OnceFunc(cancel)
	s.doneCh = make(chan struct{})
	s.status.setRunning(true)

	go s.run(ctx, s.doneCh)
	slog.Info("scheduler_started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("backoff", s.cfg.Backoff))
}

// Stop cancels the loop and waits for it to exit. A cycle in progress sees
// its context cancelled; batches already embedding still finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.doneCh
	s.mu.Unlock()

	stop()
	<-done
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger asks for a cycle as soon as the current wait allows. Triggers
// arriving during a cycle coalesce into one follow-up cycle; triggers
// during a failure backoff are dropped. It reports false when a trigger
// was already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	return s.status.snapshot()
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.status.setRunning(false)
		slog.Info("scheduler_stopped")
	}()

	next := time.Now().Add(s.cfg.Interval)
	backoff := false
	for {
		s.status.setNext(next)
		if !s.wait(ctx, next, !backoff) {
			return
		}

		err := s.runCycle(ctx)
		if ctx.Err() != nil {
			return
		}
		backoff = err != nil
		if backoff {
			next = time.Now().Add(s.cfg.Backoff)
		} else {
			next = time.Now().Add(s.cfg.Interval)
		}
	}
}

// wait blocks until deadline, a trigger (when allowed) or cancellation.
// It reports false on cancellation.
func (s *Scheduler) wait(ctx context.Context, deadline time.Time, triggerable bool) bool {
	if !triggerable {
		s.drainTrigger()
	}

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		var trigger <-chan struct{}
		if triggerable {
			trigger = s.trigger
		}
		select {
		case <-ctx.Done():
			return false
		case <-trigger:
			return true
		case now := <-ticker.C:
			if !now.Before(deadline) {
				return true
			}
			if !triggerable {
				s.drainTrigger()
			}
		}
	}
}

func (s *Scheduler) drainTrigger() {
	select {
	case <-s.trigger:
	default:
	}
}

// runCycle runs the cycle once, converting errors and panics into a
// ScheduledCycleError.
func (s *Scheduler) runCycle(ctx context.Context) (err error) {
	id := uuid.NewString()
	log := slog.With(slog.String("cycle_id", id))
	start := time.Now()
	s.status.begin(id, start)
	log.Info("scheduled_cycle_started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil && ctx.Err() == nil {
			err = amerrors.ScheduledCycleError(id, err)
			log.Error("scheduled_cycle_failed",
				append(amerrors.LogAttrs(err), slog.Duration("backoff", s.cfg.Backoff))...)
			s.status.finish(time.Now(), err)
			return
		}
		if err != nil {
			log.Info("scheduled_cycle_interrupted", slog.String("error", err.Error()))
		} else {
			log.Info("scheduled_cycle_complete",
				slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		}
		s.status.finish(time.Now(), nil)
	}()

	return s.cycle(ctx)
}
