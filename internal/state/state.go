// Package state implements the per-monitor hysteresis state machine. It
// folds every check result into the monitor's counters and emits the
// lifecycle transitions the alert manager acts on.
package state

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/argus-mon/argus/internal/checker"
	"github.com/argus-mon/argus/internal/storage"
)

// Transition kinds, in the order they can be emitted within one apply.
const (
	TransitionOpen       = "open"
	TransitionUpgrade    = "upgrade"
	TransitionRecover    = "recover"
	TransitionRecovering = "recovering"
)

// Transition is one lifecycle signal for the alert manager.
type Transition struct {
	Kind     string
	Severity string // set for open and upgrade
	AlertID  string // set for upgrade, recover and recovering
}

// Manager owns all mutations of monitor states.
type Manager struct {
	store  storage.Store
	logger *slog.Logger
}

func NewManager(store storage.Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Apply folds one result into the monitor's state and persists it. After
// any apply at most one of the two counters is positive. Error results
// feed the failure counter but never open alerts on their own.
func (m *Manager) Apply(ctx context.Context, monitor *storage.Monitor, result *checker.Result) (*storage.MonitorState, []Transition, error) {
	st, err := m.store.GetState(ctx, monitor.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, nil, err
		}
		st = &storage.MonitorState{MonitorID: monitor.ID}
	}

	at := result.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	st.LastCheckTime = &at
	st.LastValue = result.Value
	st.LastError = ""
	if result.Status == checker.StatusError {
		st.LastError = result.Message
	}

	var transitions []Transition
	if result.Status == checker.StatusOK && result.Success {
		st.ConsecutiveSuccesses++
		st.ConsecutiveFailures = 0
		switch {
		case st.ActiveAlertID == "":
			// Nothing to recover.
		case st.ConsecutiveSuccesses >= monitor.RecoveryThreshold():
			transitions = append(transitions, Transition{Kind: TransitionRecover, AlertID: st.ActiveAlertID})
			st.ActiveAlertID = ""
			st.ActiveAlertSeverity = ""
			st.RecoveryInProgress = false
			st.RecoveryAttemptCount = 0
		default:
			// Partial recovery: the alert stays in the active set but is
			// marked in_recovery until the ok streak completes or breaks.
			st.RecoveryInProgress = true
			st.RecoveryAttemptCount++
			transitions = append(transitions, Transition{Kind: TransitionRecovering, AlertID: st.ActiveAlertID})
		}
	} else {
		st.ConsecutiveFailures++
		st.ConsecutiveSuccesses = 0
		st.RecoveryInProgress = false
	}

	st.CurrentStatus = result.Status

	switch result.Status {
	case checker.StatusWarning:
		if st.ActiveAlertID == "" && st.ConsecutiveFailures >= monitor.WarningThreshold() {
			transitions = append(transitions, Transition{Kind: TransitionOpen, Severity: storage.SeverityWarning})
		}
	case checker.StatusAlarm:
		if st.ConsecutiveFailures >= monitor.AlarmThreshold() {
			switch {
			case st.ActiveAlertID != "" && st.ActiveAlertSeverity == storage.SeverityWarning:
				transitions = append(transitions, Transition{Kind: TransitionUpgrade, Severity: storage.SeverityAlarm, AlertID: st.ActiveAlertID})
			case st.ActiveAlertID == "":
				transitions = append(transitions, Transition{Kind: TransitionOpen, Severity: storage.SeverityAlarm})
			}
		}
	}

	if err := m.store.UpsertState(ctx, st); err != nil {
		return nil, nil, err
	}

	for _, tr := range transitions {
		m.logger.Debug("state transition",
			"monitor_id", monitor.ID.Hex(),
			"kind", tr.Kind,
			"severity", tr.Severity,
			"failures", st.ConsecutiveFailures,
			"successes", st.ConsecutiveSuccesses)
	}
	return st, transitions, nil
}
