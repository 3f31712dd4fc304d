// Package scheduler drives periodic due-sweeps. One scheduler runs per
// process; ticks that would overlap a still-running sweep are skipped.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/argus-mon/argus/internal/alert"
	"github.com/argus-mon/argus/internal/executor"
)

const (
	// DefaultTick is the sweep interval.
	DefaultTick = time.Minute

	// reminderEvery is how often unresolved alarms are re-examined for
	// daily reminders. The 20-hour per-alert gate lives in the alert
	// manager; this only bounds the polling latency.
	reminderEvery = time.Hour

	// stopGrace bounds how long Stop waits for an in-flight sweep.
	stopGrace = 10 * time.Second
)

// ErrSweepRunning is returned when a sweep is requested while the
// previous one has not finished.
var ErrSweepRunning = errors.New("scheduler: sweep already running")

// Status is the scheduler's externally visible state.
type Status struct {
	Running     bool              `json:"running"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	LastTick    *time.Time        `json:"last_tick,omitempty"`
	LastSummary *executor.Summary `json:"last_summary,omitempty"`
}

// Scheduler owns the tick loop and the daily-reminder loop.
type Scheduler struct {
	executor *executor.Executor
	alerts   *alert.Manager
	logger   *slog.Logger
	tick     time.Duration

	sweeping atomic.Bool

	mu          sync.Mutex
	running     bool
	startedAt   time.Time
	lastTick    time.Time
	lastSummary *executor.Summary
	cancel      context.CancelFunc
	done        chan struct{}
}

func New(exec *executor.Executor, alerts *alert.Manager, tick time.Duration, logger *slog.Logger) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{executor: exec, alerts: alerts, tick: tick, logger: logger}
}

// Start runs one due-sweep synchronously, then begins ticking. Returns
// false if the scheduler is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.startedAt = time.Now().UTC()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.logger.Info("scheduler started", "tick", s.tick)
	s.tickOnce(ctx)

	go s.loop(ctx, done)
	return true
}

// Stop cancels the tick loop and waits briefly for an in-flight sweep to
// drain. Returns false if the scheduler was not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.startedAt = time.Time{}
	s.lastTick = time.Time{}
	s.lastSummary = nil
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.logger.Warn("scheduler stop timed out, sweep still draining")
	}
	s.logger.Info("scheduler stopped")
	return true
}

// Status reports the current loop state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running, LastSummary: s.lastSummary}
	if !s.startedAt.IsZero() {
		at := s.startedAt
		st.StartedAt = &at
	}
	if !s.lastTick.IsZero() {
		at := s.lastTick
		st.LastTick = &at
	}
	return st
}

// Trigger forces one due-sweep right now, whether or not the loop is
// running. Returns ErrSweepRunning if one is already in flight.
func (s *Scheduler) Trigger(ctx context.Context) (*executor.Summary, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return nil, ErrSweepRunning
	}
	defer s.sweeping.Store(false)

	now := time.Now().UTC()
	sum, err := s.executor.ExecuteDue(ctx, now)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastTick = now
	s.lastSummary = sum
	s.mu.Unlock()
	return sum, nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	reminders := time.NewTicker(reminderEvery)
	defer reminders.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickOnce(ctx)
		case <-reminders.C:
			s.runReminders(ctx)
		}
	}
}

func (s *Scheduler) tickOnce(ctx context.Context) {
	_, err := s.Trigger(ctx)
	switch {
	case errors.Is(err, ErrSweepRunning):
		s.logger.Warn("previous sweep still running, tick skipped")
	case err != nil:
		s.logger.Error("scheduled sweep failed", "error", err)
	}
}

func (s *Scheduler) runReminders(ctx context.Context) {
	if s.alerts == nil {
		return
	}
	sent, err := s.alerts.RunDailyReminders(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("daily reminder pass failed", "error", err)
		return
	}
	if sent > 0 {
		s.logger.Info("daily reminders sent", "count", sent)
	}
}
