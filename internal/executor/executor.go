// Package executor runs the per-monitor pipeline: checker, observation
// write, state apply, alert processing. Sweeps fan monitors out over a
// bounded worker pool; within one monitor the pipeline is strictly
// sequential and never runs concurrently with itself.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/argus-mon/argus/internal/alert"
	"github.com/argus-mon/argus/internal/checker"
	"github.com/argus-mon/argus/internal/events"
	"github.com/argus-mon/argus/internal/state"
	"github.com/argus-mon/argus/internal/storage"
)

const (
	// DefaultWorkers bounds how many monitors a sweep checks at once.
	DefaultWorkers = 10

	// defaultTimeout caps a check whose monitor carries no timeout.
	defaultTimeout = 30 * time.Second
)

// Outcome is the per-monitor line of a sweep summary.
type Outcome struct {
	MonitorID    string   `json:"monitor_id"`
	MonitorName  string   `json:"monitor_name"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	Skipped      bool     `json:"skipped,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	ResponseTime int64    `json:"response_time_ms,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// Summary aggregates one sweep. Successful counts monitors whose check
// came back ok; Skipped counts maintenance bypasses and overlap guards.
type Summary struct {
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Results    []Outcome `json:"results"`
}

// Executor owns the check pipeline.
type Executor struct {
	store    storage.Store
	registry *checker.Registry
	states   *state.Manager
	alerts   *alert.Manager
	bus      *events.Bus
	logger   *slog.Logger
	workers  int

	mu       sync.Mutex
	inFlight map[primitive.ObjectID]struct{}
}

func New(store storage.Store, registry *checker.Registry, states *state.Manager, alerts *alert.Manager, bus *events.Bus, workers int, logger *slog.Logger) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Executor{
		store:    store,
		registry: registry,
		states:   states,
		alerts:   alerts,
		bus:      bus,
		logger:   logger,
		workers:  workers,
		inFlight: make(map[primitive.ObjectID]struct{}),
	}
}

// Execute runs the full pipeline for one monitor. Monitors inside a
// maintenance window are bypassed entirely: a synthetic ok is reported but
// nothing is written and no state or alert moves. A monitor whose previous
// check is still in flight is skipped.
func (e *Executor) Execute(ctx context.Context, monitor *storage.Monitor) Outcome {
	out := Outcome{
		MonitorID:   monitor.ID.Hex(),
		MonitorName: monitor.Name,
		Type:        monitor.Type,
	}

	if monitor.InMaintenance(time.Now().UTC()) {
		e.logger.Debug("maintenance window open, check bypassed", "monitor", monitor.Name)
		out.Status = checker.StatusOK
		out.Skipped = true
		out.Message = "in maintenance"
		return out
	}

	if !e.begin(monitor.ID) {
		e.logger.Warn("check already running, skipped", "monitor", monitor.Name)
		out.Skipped = true
		out.Message = "previous check still running"
		return out
	}
	defer e.end(monitor.ID)

	result := e.runCheck(ctx, monitor)
	out.Status = result.Status
	out.Value = result.Value
	out.ResponseTime = result.ResponseTime
	out.Message = result.Message

	// The three downstream stages are independent: a failure in one is
	// logged and the rest still run.
	if err := e.store.InsertObservation(ctx, observationFrom(monitor, result)); err != nil {
		e.logger.Error("write observation", "monitor", monitor.Name, "error", err)
	}

	st, transitions, err := e.states.Apply(ctx, monitor, result)
	if err != nil {
		e.logger.Error("apply state", "monitor", monitor.Name, "error", err)
	} else if len(transitions) > 0 {
		if err := e.alerts.Process(ctx, monitor, result, st, transitions); err != nil {
			e.logger.Error("process alerts", "monitor", monitor.Name, "error", err)
		}
	}

	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type:      events.TypeCheckCompleted,
			MonitorID: monitor.ID.Hex(),
			Monitor:   monitor.Name,
			Status:    result.Status,
			Message:   result.Message,
		})
	}
	return out
}

// runCheck resolves and validates the checker, then runs it under the
// monitor's timeout. A checker that ignores its deadline is abandoned so
// it cannot stall the pipeline; its eventual result is discarded.
func (e *Executor) runCheck(ctx context.Context, monitor *storage.Monitor) *checker.Result {
	chk, err := e.registry.Get(monitor.Type)
	if err != nil {
		return checker.ErrorResult("unknown monitor type %q", monitor.Type)
	}
	if err := chk.Validate(monitor); err != nil {
		return checker.ErrorResult("invalid configuration: %v", err)
	}

	timeout := time.Duration(monitor.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type checked struct {
		result *checker.Result
		err    error
	}
	done := make(chan checked, 1)
	go func() {
		res, err := chk.Check(checkCtx, monitor)
		done <- checked{result: res, err: err}
	}()

	select {
	case c := <-done:
		if c.err != nil {
			return checker.ErrorResult("check failed: %v", c.err)
		}
		if c.result == nil {
			return checker.ErrorResult("checker %q returned no result", monitor.Type)
		}
		return c.result
	case <-checkCtx.Done():
		e.logger.Warn("check deadline exceeded", "monitor", monitor.Name, "timeout", timeout)
		return checker.ErrorResult("check timed out after %s", timeout)
	}
}

// ExecuteAll sweeps every schedulable monitor.
func (e *Executor) ExecuteAll(ctx context.Context, now time.Time) (*Summary, error) {
	monitors, err := e.store.ListSchedulable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	return e.sweep(ctx, monitors, now), nil
}

// ExecuteDue sweeps the schedulable monitors whose period has elapsed
// since their last check. Never-checked monitors are always due.
func (e *Executor) ExecuteDue(ctx context.Context, now time.Time) (*Summary, error) {
	monitors, err := e.store.ListSchedulable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	states, err := e.store.ListStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	lastCheck := make(map[primitive.ObjectID]*time.Time, len(states))
	for _, st := range states {
		lastCheck[st.MonitorID] = st.LastCheckTime
	}

	due := make([]*storage.Monitor, 0, len(monitors))
	for _, m := range monitors {
		if isDue(m, lastCheck[m.ID], now) {
			due = append(due, m)
		}
	}
	return e.sweep(ctx, due, now), nil
}

func (e *Executor) sweep(ctx context.Context, monitors []*storage.Monitor, now time.Time) *Summary {
	started := time.Now()
	outcomes := make([]Outcome, len(monitors))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, m := range monitors {
		g.Go(func() error {
			outcomes[i] = e.Execute(ctx, m)
			return nil
		})
	}
	_ = g.Wait()

	s := &Summary{
		Total:      len(monitors),
		StartedAt:  now,
		DurationMS: time.Since(started).Milliseconds(),
		Results:    outcomes,
	}
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			s.Skipped++
		case o.Status == checker.StatusOK:
			s.Successful++
		default:
			s.Failed++
		}
	}
	e.logger.Info("sweep completed",
		"total", s.Total, "successful", s.Successful, "failed", s.Failed,
		"skipped", s.Skipped, "duration_ms", s.DurationMS)
	return s
}

func isDue(m *storage.Monitor, last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	period := time.Duration(m.PeriodMinutes) * time.Minute
	if period <= 0 {
		period = time.Minute
	}
	return now.Sub(*last) >= period
}

func (e *Executor) begin(id primitive.ObjectID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

func (e *Executor) end(id primitive.ObjectID) {
	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()
}

func observationFrom(monitor *storage.Monitor, result *checker.Result) *storage.Observation {
	o := &storage.Observation{
		MonitorID:    monitor.ID,
		Timestamp:    result.Timestamp,
		Value:        result.Value,
		Status:       result.Status,
		ResponseTime: result.ResponseTime,
		StatusCode:   result.StatusCode,
		Metadata:     result.Metadata,
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	if result.Status == checker.StatusError {
		o.Error = result.Message
	}
	return o
}
