// Package alert owns the alert lifecycle: opening on crossed thresholds,
// escalating warning alerts to alarm, recovering, and the daily-reminder
// gate for long-standing alarms. It acts on the transitions the state
// manager emits and is the only writer of the alerts collection.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/argus-mon/argus/internal/checker"
	"github.com/argus-mon/argus/internal/events"
	"github.com/argus-mon/argus/internal/notifier"
	"github.com/argus-mon/argus/internal/state"
	"github.com/argus-mon/argus/internal/storage"
)

// reminderWindow is the minimum gap between notifications for the same
// alert: daily reminders and certificate re-escalations both gate on it.
const reminderWindow = 20 * time.Hour

// Manager reacts to state transitions and drives notifications. Delivery
// is at-least-once: every attempt is recorded on the alert regardless of
// outcome.
type Manager struct {
	store   storage.Store
	senders []notifier.Sender
	bus     *events.Bus
	logger  *slog.Logger
}

func NewManager(store storage.Store, senders []notifier.Sender, bus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{store: store, senders: senders, bus: bus, logger: logger}
}

// Process applies the transitions produced by one state apply. Each
// transition is handled independently; a failing one does not stop the
// rest.
func (m *Manager) Process(ctx context.Context, monitor *storage.Monitor, result *checker.Result, st *storage.MonitorState, transitions []state.Transition) error {
	var errs []error
	for _, tr := range transitions {
		var err error
		switch tr.Kind {
		case state.TransitionOpen:
			err = m.open(ctx, monitor, result, st, tr.Severity)
		case state.TransitionUpgrade:
			err = m.upgrade(ctx, monitor, result, st, tr.AlertID)
		case state.TransitionRecovering:
			err = m.markRecovering(ctx, tr.AlertID)
		case state.TransitionRecover:
			err = m.recover(ctx, monitor, tr.AlertID)
		default:
			err = fmt.Errorf("unknown transition kind %q", tr.Kind)
		}
		if err != nil {
			m.logger.Error("alert transition failed",
				"monitor", monitor.Name, "kind", tr.Kind, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// open inserts a new alert unless the monitor already has one in the
// active set, links it to the monitor state, and notifies every contact.
func (m *Manager) open(ctx context.Context, monitor *storage.Monitor, result *checker.Result, st *storage.MonitorState, severity string) error {
	now := time.Now().UTC()
	a := &storage.Alert{
		ID:                  uuid.NewString(),
		MonitorID:           monitor.ID,
		MonitorName:         monitor.Name,
		Severity:            severity,
		Status:              storage.AlertActive,
		TriggeredAt:         now,
		CurrentValue:        result.Value,
		ThresholdValue:      thresholdFor(monitor, severity),
		ConsecutiveFailures: st.ConsecutiveFailures,
		LastNotificationAt:  &now,
		Message:             result.Message,
		Metadata:            result.Metadata,
	}

	inserted, err := m.store.CreateAlertIfNoneActive(ctx, a)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	if !inserted {
		// Lost the race or the state drifted from the store (for example an
		// operator-acknowledged alert the counters no longer know about).
		// Relink the state to whatever is active instead of opening twice.
		existing, err := m.store.GetActiveAlert(ctx, monitor.ID)
		if err != nil {
			return fmt.Errorf("alert exists but cannot be loaded: %w", err)
		}
		m.logger.Warn("open skipped, alert already active",
			"monitor", monitor.Name, "alert_id", existing.ID)
		return m.store.SetStateAlert(ctx, monitor.ID, existing.ID, existing.Severity)
	}

	if err := m.store.SetStateAlert(ctx, monitor.ID, a.ID, severity); err != nil {
		m.logger.Error("link alert to state", "monitor", monitor.Name, "error", err)
	}

	m.logger.Info("alert opened",
		"monitor", monitor.Name, "alert_id", a.ID, "severity", severity,
		"value", result.Value, "failures", st.ConsecutiveFailures)
	m.notify(ctx, monitor, a, notifier.StageOpened, "")
	m.publish(events.TypeAlertOpened, monitor, a)
	return nil
}

// upgrade escalates an open warning alert to alarm in place and notifies
// again. Certificate monitors re-notify at most once per reminder window:
// expiry only moves one day at a time and every tick would renotify
// otherwise.
func (m *Manager) upgrade(ctx context.Context, monitor *storage.Monitor, result *checker.Result, st *storage.MonitorState, alertID string) error {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("load alert %s: %w", alertID, err)
	}

	a.Severity = storage.SeverityAlarm
	a.CurrentValue = result.Value
	a.ThresholdValue = thresholdFor(monitor, storage.SeverityAlarm)
	a.ConsecutiveFailures = st.ConsecutiveFailures
	a.Message = fmt.Sprintf("%s\n[system] escalated to alarm after %d consecutive failures",
		a.Message, st.ConsecutiveFailures)
	if err := m.store.UpdateAlert(ctx, a); err != nil {
		return fmt.Errorf("update alert %s: %w", alertID, err)
	}
	if err := m.store.SetStateAlert(ctx, monitor.ID, a.ID, storage.SeverityAlarm); err != nil {
		m.logger.Error("link alert to state", "monitor", monitor.Name, "error", err)
	}

	m.logger.Info("alert escalated", "monitor", monitor.Name, "alert_id", a.ID)
	if monitor.Type == storage.TypeCertificate && !windowElapsed(a.LastNotificationAt, time.Now().UTC()) {
		m.logger.Debug("escalation notification gated", "monitor", monitor.Name, "alert_id", a.ID)
	} else {
		m.notify(ctx, monitor, a, notifier.StageUpgraded, "")
	}
	m.publish(events.TypeAlertUpgraded, monitor, a)
	return nil
}

// markRecovering flags the alert as in_recovery while the ok streak is
// still short of the recovery threshold. The alert stays in the active set.
func (m *Manager) markRecovering(ctx context.Context, alertID string) error {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("load alert %s: %w", alertID, err)
	}
	if a.Status == storage.AlertInRecovery || a.Status == storage.AlertRecovered {
		return nil
	}
	a.Status = storage.AlertInRecovery
	return m.store.UpdateAlert(ctx, a)
}

// recover closes the alert and sends the recovery notification with the
// total alert duration.
func (m *Manager) recover(ctx context.Context, monitor *storage.Monitor, alertID string) error {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("load alert %s: %w", alertID, err)
	}
	if a.Status == storage.AlertRecovered {
		return nil
	}

	now := time.Now().UTC()
	a.Status = storage.AlertRecovered
	a.RecoveredAt = &now
	if err := m.store.UpdateAlert(ctx, a); err != nil {
		return fmt.Errorf("update alert %s: %w", alertID, err)
	}

	duration := FormatDuration(now.Sub(a.TriggeredAt))
	m.logger.Info("alert recovered",
		"monitor", monitor.Name, "alert_id", a.ID, "duration", duration)
	m.notify(ctx, monitor, a, notifier.StageRecovered, duration)
	m.publish(events.TypeAlertRecovered, monitor, a)
	return nil
}

// Acknowledge marks an active alert as acknowledged by an operator. It
// stays in the active set, so no new alert can open for the monitor.
func (m *Manager) Acknowledge(ctx context.Context, alertID string) (*storage.Alert, error) {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status != storage.AlertActive && a.Status != storage.AlertInRecovery {
		return nil, fmt.Errorf("alert %s is %s, not acknowledgeable", alertID, a.Status)
	}
	a.Status = storage.AlertAcknowledged
	if err := m.store.UpdateAlert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RunDailyReminders re-notifies contacts of unresolved alarm alerts on
// monitors that opted in, at most once per window per alert. Returns how
// many alerts were re-notified.
func (m *Manager) RunDailyReminders(ctx context.Context, now time.Time) (int, error) {
	alerts, err := m.store.ListActiveAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active alerts: %w", err)
	}

	sent := 0
	for _, a := range alerts {
		if a.Severity != storage.SeverityAlarm {
			continue
		}
		monitor, err := m.store.GetMonitor(ctx, a.MonitorID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				m.logger.Error("reminder: load monitor", "alert_id", a.ID, "error", err)
			}
			continue
		}
		if !monitor.AlertSettings.SendDailyReminder {
			continue
		}
		if !windowElapsed(a.LastNotificationAt, now) {
			continue
		}

		m.logger.Info("sending daily reminder", "monitor", monitor.Name, "alert_id", a.ID)
		m.notify(ctx, monitor, a, notifier.StageReminder, "")
		sent++
	}
	return sent, nil
}

// notify fans the message out to every contact over every sender. Each
// attempt appends a NotificationLog and an audit queue entry; failures are
// recorded, never retried here.
func (m *Manager) notify(ctx context.Context, monitor *storage.Monitor, a *storage.Alert, stage, duration string) {
	msg := &notifier.Message{Stage: stage, Alert: a, Monitor: monitor, Duration: duration}

	for _, contact := range monitor.Contacts {
		if contact.Email == "" {
			continue
		}
		for _, sender := range m.senders {
			res := sender.Send(ctx, contact.Email, msg)
			now := time.Now().UTC()

			entry := storage.NotificationLog{
				Channel:   sender.Channel(),
				Recipient: contact.Email,
				SentAt:    now,
				Status:    "sent",
				MessageID: res.MessageID,
			}
			queueStatus := "sent"
			if !res.Sent {
				entry.Status = "failed"
				entry.Error = res.Error
				queueStatus = "failed"
				m.logger.Warn("notification failed",
					"monitor", monitor.Name, "recipient", contact.Email,
					"channel", sender.Channel(), "error", res.Error)
			}
			if err := m.store.AppendNotification(ctx, a.ID, entry); err != nil {
				m.logger.Error("append notification log", "alert_id", a.ID, "error", err)
			}
			if err := m.store.EnqueueNotification(ctx, &storage.QueuedNotification{
				AlertID:   a.ID,
				MonitorID: monitor.ID,
				Channel:   sender.Channel(),
				Recipient: contact.Email,
				Subject:   notifier.Subject(msg),
				Status:    queueStatus,
				SentAt:    &now,
				Error:     res.Error,
			}); err != nil {
				m.logger.Error("enqueue notification audit", "alert_id", a.ID, "error", err)
			}
		}
	}
}

func (m *Manager) publish(eventType string, monitor *storage.Monitor, a *storage.Alert) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{
		Type:      eventType,
		MonitorID: monitor.ID.Hex(),
		Monitor:   monitor.Name,
		Severity:  a.Severity,
		AlertID:   a.ID,
		Message:   a.Message,
	})
}

// windowElapsed reports whether the reminder window has passed since the
// last notification. A nil last time counts as elapsed.
func windowElapsed(last *time.Time, now time.Time) bool {
	return last == nil || now.Sub(*last) >= reminderWindow
}

// thresholdFor picks the threshold the alert crossed: the high bound when
// set, otherwise the low one.
func thresholdFor(m *storage.Monitor, severity string) *float64 {
	if severity == storage.SeverityAlarm {
		if m.HighAlarm != nil {
			return m.HighAlarm
		}
		return m.LowAlarm
	}
	if m.HighWarning != nil {
		return m.HighWarning
	}
	return m.LowWarning
}

// FormatDuration renders d as "2d 5h 3m 12s", dropping leading zero units.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	seconds := (d - minutes*time.Minute) / time.Second

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
