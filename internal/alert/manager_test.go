package alert

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/argus-mon/argus/internal/checker"
	"github.com/argus-mon/argus/internal/events"
	"github.com/argus-mon/argus/internal/notifier"
	"github.com/argus-mon/argus/internal/state"
	"github.com/argus-mon/argus/internal/storage"
)

type sentCall struct {
	Recipient string
	Stage     string
}

// fakeSender records every delivery attempt; Fail makes them all fail.
type fakeSender struct {
	mu    sync.Mutex
	Fail  bool
	Calls []sentCall
}

func (f *fakeSender) Channel() string { return "email" }

func (f *fakeSender) Send(ctx context.Context, recipient string, msg *notifier.Message) notifier.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, sentCall{Recipient: recipient, Stage: msg.Stage})
	if f.Fail {
		return notifier.SendResult{Error: "smtp: connection refused"}
	}
	return notifier.SendResult{Sent: true, MessageID: "msg-1"}
}

func (f *fakeSender) calls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.Calls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testManager() (*Manager, *storage.MemStore, *fakeSender) {
	store := storage.NewMemStore()
	sender := &fakeSender{}
	logger := discardLogger()
	bus := events.NewBus(logger)
	return NewManager(store, []notifier.Sender{sender}, bus, logger), store, sender
}

func testMonitor() *storage.Monitor {
	high := 2000.0
	return &storage.Monitor{
		ID:        primitive.NewObjectID(),
		Name:      "api-health",
		Type:      storage.TypeURL,
		Target:    "https://example.com/health",
		HighAlarm: &high,
		Contacts: []storage.Contact{
			{Name: "Ops", Email: "ops@example.com"},
			{Name: "Dev", Email: "dev@example.com"},
		},
	}
}

func alarmResult(value float64) *checker.Result {
	return &checker.Result{
		Status:    checker.StatusAlarm,
		Value:     checker.Float(value),
		Message:   "HTTP 200 in 2500ms",
		Timestamp: time.Now().UTC(),
	}
}

func TestProcessOpen(t *testing.T) {
	m, store, sender := testManager()
	monitor := testMonitor()
	ctx := context.Background()

	st := &storage.MonitorState{MonitorID: monitor.ID, ConsecutiveFailures: 3}
	if err := store.UpsertState(ctx, st); err != nil {
		t.Fatal(err)
	}

	err := m.Process(ctx, monitor, alarmResult(2500), st,
		[]state.Transition{{Kind: state.TransitionOpen, Severity: storage.SeverityAlarm}})
	if err != nil {
		t.Fatal(err)
	}

	a, err := store.GetActiveAlert(ctx, monitor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Severity != storage.SeverityAlarm || a.Status != storage.AlertActive {
		t.Fatalf("alert = %s/%s, want alarm/active", a.Severity, a.Status)
	}
	if a.MonitorName != "api-health" {
		t.Errorf("monitor name snapshot = %q", a.MonitorName)
	}
	if a.CurrentValue == nil || *a.CurrentValue != 2500 {
		t.Errorf("current value = %v, want 2500", a.CurrentValue)
	}
	if a.ThresholdValue == nil || *a.ThresholdValue != 2000 {
		t.Errorf("threshold value = %v, want 2000", a.ThresholdValue)
	}
	if a.ConsecutiveFailures != 3 {
		t.Errorf("consecutive failures = %d, want 3", a.ConsecutiveFailures)
	}
	if a.LastNotificationAt == nil {
		t.Error("last_notification_at not set on open")
	}

	// One notification per contact, all logged on the alert.
	calls := sender.calls()
	if len(calls) != 2 {
		t.Fatalf("sent %d notifications, want 2", len(calls))
	}
	for _, c := range calls {
		if c.Stage != notifier.StageOpened {
			t.Errorf("stage = %q, want opened", c.Stage)
		}
	}
	if len(a.NotificationsSent) != 2 {
		t.Fatalf("notification log has %d entries, want 2", len(a.NotificationsSent))
	}
	if a.NotificationsSent[0].Status != "sent" || a.NotificationsSent[0].MessageID == "" {
		t.Errorf("log entry = %+v, want sent with message id", a.NotificationsSent[0])
	}

	// State now carries the alert id.
	got, err := store.GetState(ctx, monitor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ActiveAlertID != a.ID || got.ActiveAlertSeverity != storage.SeverityAlarm {
		t.Errorf("state link = %q/%q, want %q/alarm", got.ActiveAlertID, got.ActiveAlertSeverity, a.ID)
	}

	// Audit queue mirrors the attempts.
	if q := store.QueuedNotifications(); len(q) != 2 {
		t.Errorf("queued %d audit entries, want 2", len(q))
	}
}

func TestProcessOpenRespectsActiveInvariant(t *testing.T) {
	m, store, sender := testManager()
	monitor := testMonitor()
	ctx := context.Background()

	existing := &storage.Alert{
		ID:          "existing-1",
		MonitorID:   monitor.ID,
		MonitorName: monitor.Name,
		Severity:    storage.SeverityWarning,
		Status:      storage.AlertAcknowledged,
		TriggeredAt: time.Now().UTC().Add(-time.Hour),
	}
	if _, err := store.CreateAlertIfNoneActive(ctx, existing); err != nil {
		t.Fatal(err)
	}

	st := &storage.MonitorState{MonitorID: monitor.ID, ConsecutiveFailures: 3}
	if err := store.UpsertState(ctx, st); err != nil {
		t.Fatal(err)
	}
	err := m.Process(ctx, monitor, alarmResult(2500), st,
		[]state.Transition{{Kind: state.TransitionOpen, Severity: storage.SeverityAlarm}})
	if err != nil {
		t.Fatal(err)
	}

	alerts, err := store.ListAlerts(ctx, monitor.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 {
		t.Fatalf("%d alerts exist, want 1 (no duplicate open)", len(alerts))
	}
	if len(sender.calls()) != 0 {
		t.Error("skipped open must not notify")
	}

	// The state is relinked to the existing alert.
	got, _ := store.GetState(ctx, monitor.ID)
	if got.ActiveAlertID != "existing-1" {
		t.Errorf("state relinked to %q, want existing-1", got.ActiveAlertID)
	}
}

func TestProcessUpgrade(t *testing.T) {
	m, store, sender := testManager()
	monitor := testMonitor()
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	a := &storage.Alert{
		ID:                 "warn-1",
		MonitorID:          monitor.ID,
		MonitorName:        monitor.Name,
		Severity:           storage.SeverityWarning,
		Status:             storage.AlertActive,
		TriggeredAt:        old,
		LastNotificationAt: &old,
		Message:            "slow responses",
	}
	if _, err := store.CreateAlertIfNoneActive(ctx, a); err != nil {
		t.Fatal(err)
	}
	st := &storage.MonitorState{MonitorID: monitor.ID, ConsecutiveFailures: 3, ActiveAlertID: a.ID}
	if err := store.UpsertState(ctx, st); err != nil {
		t.Fatal(err)
	}

	err := m.Process(ctx, monitor, alarmResult(2500), st,
		[]state.Transition{{Kind: state.TransitionUpgrade, Severity: storage.SeverityAlarm, AlertID: a.ID}})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetAlert(ctx, a.ID)
	if got.Severity != storage.SeverityAlarm {
		t.Fatalf("severity = %q, want alarm", got.Severity)
	}
	if !strings.Contains(got.Message, "escalated to alarm") {
		t.Errorf("message missing escalation note: %q", got.Message)
	}
	calls := sender.calls()
	if len(calls) != 2 || calls[0].Stage != notifier.StageUpgraded {
		t.Fatalf("calls = %v, want 2 upgraded notifications", calls)
	}
}

func TestProcessUpgradeCertificateGated(t *testing.T) {
	m, store, sender := testManager()
	monitor := testMonitor()
	monitor.Type = storage.TypeCertificate
	ctx := context.Background()

	recent := time.Now().UTC().Add(-time.Hour)
	a := &storage.Alert{
		ID:                 "cert-1",
		MonitorID:          monitor.ID,
		MonitorName:        monitor.Name,
		Severity:           storage.SeverityWarning,
		Status:             storage.AlertActive,
		TriggeredAt:        recent,
		LastNotificationAt: &recent,
	}
	if _, err := store.CreateAlertIfNoneActive(ctx, a); err != nil {
		t.Fatal(err)
	}
	st := &storage.MonitorState{MonitorID: monitor.ID, ConsecutiveFailures: 3, ActiveAlertID: a.ID}

	err := m.Process(ctx, monitor, alarmResult(5), st,
		[]state.Transition{{Kind: state.TransitionUpgrade, Severity: storage.SeverityAlarm, AlertID: a.ID}})
	if err != nil {
		t.Fatal(err)
	}

	// Severity changed, but the notification is suppressed inside the window.
	got, _ := store.GetAlert(ctx, a.ID)
	if got.Severity != storage.SeverityAlarm {
		t.Fatalf("severity = %q, want alarm", got.Severity)
	}
	if len(sender.calls()) != 0 {
		t.Errorf("certificate escalation notified %d times within the window, want 0", len(sender.calls()))
	}
}

func TestProcessRecover(t *testing.T) {
	m, store, sender := testManager()
	monitor := testMonitor()
	ctx := context.Background()

	triggered := time.Now().UTC().Add(-(26*time.Hour + 3*time.Minute))
	a := &storage.Alert{
		ID:          "alarm-1",
		MonitorID:   monitor.ID,
		MonitorName: monitor.Name,
		Severity:    storage.SeverityAlarm,
		Status:      storage.AlertInRecovery,
		TriggeredAt: triggered,
	}
	if _, err := store.CreateAlertIfNoneActive(ctx, a); err != nil {
		t.Fatal(err)
	}
	st := &storage.MonitorState{MonitorID: monitor.ID, ConsecutiveSuccesses: 2}

	okResult := checker.NewResult(checker.StatusOK, checker.Float(300), "HTTP 200 in 300ms")
	err := m.Process(ctx, monitor, okResult, st,
		[]state.Transition{{Kind: state.TransitionRecover, AlertID: a.ID}})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetAlert(ctx, a.ID)
	if got.Status != storage.AlertRecovered || got.RecoveredAt == nil {
		t.Fatalf("alert = %s (recovered_at %v), want recovered with timestamp", got.Status, got.RecoveredAt)
	}
	if _, err := store.GetActiveAlert(ctx, monitor.ID); err == nil {
		t.Error("recovered alert still counts as active")
	}
	calls := sender.calls()
	if len(calls) != 2 || calls[0].Stage != notifier.StageRecovered {
		t.Fatalf("calls = %v, want 2 recovery notifications", calls)
	}

	// Recovering the same alert again is a no-op.
	if err := m.Process(ctx, monitor, okResult, st,
		[]state.Transition{{Kind: state.TransitionRecover, AlertID: a.ID}}); err != nil {
		t.Fatal(err)
	}
	if len(sender.calls()) != 2 {
		t.Error("second recover sent more notifications")
	}
}

func TestProcessMarkRecovering(t *testing.T) {
	m, store, _ := testManager()
	monitor := testMonitor()
	ctx := context.Background()

	a := &storage.Alert{
		ID:          "alarm-1",
		MonitorID:   monitor.ID,
		MonitorName: monitor.Name,
		Severity:    storage.SeverityAlarm,
		Status:      storage.AlertActive,
		TriggeredAt: time.Now().UTC(),
	}
	if _, err := store.CreateAlertIfNoneActive(ctx, a); err != nil {
		t.Fatal(err)
	}
	st := &storage.MonitorState{MonitorID: monitor.ID, ConsecutiveSuccesses: 1, ActiveAlertID: a.ID}

	okResult := checker.NewResult(checker.StatusOK, checker.Float(300), "HTTP 200 in 300ms")
	err := m.Process(ctx, monitor, okResult, st,
		[]state.Transition{{Kind: state.TransitionRecovering, AlertID: a.ID}})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetAlert(ctx, a.ID)
	if got.Status != storage.AlertInRecovery {
		t.Fatalf("status = %q, want in_recovery", got.Status)
	}
	// Still in the active set: a new open would be refused.
	if _, err := store.GetActiveAlert(ctx, monitor.ID); err != nil {
		t.Errorf("in_recovery alert should stay active: %v", err)
	}
}

func TestNotifyFailureIsRecorded(t *testing.T) {
	m, store, sender := testManager()
	sender.Fail = true
	monitor := testMonitor()
	monitor.Contacts = monitor.Contacts[:1]
	ctx := context.Background()

	st := &storage.MonitorState{MonitorID: monitor.ID, ConsecutiveFailures: 3}
	if err := store.UpsertState(ctx, st); err != nil {
		t.Fatal(err)
	}
	err := m.Process(ctx, monitor, alarmResult(2500), st,
		[]state.Transition{{Kind: state.TransitionOpen, Severity: storage.SeverityAlarm}})
	if err != nil {
		t.Fatal(err)
	}

	a, _ := store.GetActiveAlert(ctx, monitor.ID)
	if len(a.NotificationsSent) != 1 {
		t.Fatalf("log has %d entries, want 1", len(a.NotificationsSent))
	}
	entry := a.NotificationsSent[0]
	if entry.Status != "failed" || entry.Error == "" {
		t.Errorf("entry = %+v, want failed with error", entry)
	}
	// Delivery failure never alters the alert status.
	if a.Status != storage.AlertActive {
		t.Errorf("alert status = %q after failed notify, want active", a.Status)
	}
}

func TestRunDailyReminders(t *testing.T) {
	m, store, sender := testManager()
	ctx := context.Background()
	now := time.Now().UTC()

	makeMonitor := func(name string, reminder bool) *storage.Monitor {
		mon := testMonitor()
		mon.ID = primitive.NewObjectID()
		mon.Name = name
		mon.Contacts = mon.Contacts[:1]
		mon.AlertSettings.SendDailyReminder = reminder
		if err := store.CreateMonitor(ctx, mon); err != nil {
			t.Fatal(err)
		}
		return mon
	}
	makeAlert := func(id string, mon *storage.Monitor, severity string, lastNotified time.Time) {
		a := &storage.Alert{
			ID:                 id,
			MonitorID:          mon.ID,
			MonitorName:        mon.Name,
			Severity:           severity,
			Status:             storage.AlertActive,
			TriggeredAt:        lastNotified,
			LastNotificationAt: &lastNotified,
		}
		if _, err := store.CreateAlertIfNoneActive(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	stale := now.Add(-21 * time.Hour)
	fresh := now.Add(-19 * time.Hour)

	makeAlert("due", makeMonitor("due-mon", true), storage.SeverityAlarm, stale)
	makeAlert("fresh", makeMonitor("fresh-mon", true), storage.SeverityAlarm, fresh)
	makeAlert("optout", makeMonitor("optout-mon", false), storage.SeverityAlarm, stale)
	makeAlert("warning", makeMonitor("warning-mon", true), storage.SeverityWarning, stale)

	sent, err := m.RunDailyReminders(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 (only the stale alarm with reminders on)", sent)
	}
	calls := sender.calls()
	if len(calls) != 1 || calls[0].Stage != notifier.StageReminder {
		t.Fatalf("calls = %v, want one reminder", calls)
	}

	// The send bumped last_notification_at, so a second run sends nothing.
	sent, err = m.RunDailyReminders(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if sent != 0 {
		t.Fatalf("second run sent = %d, want 0", sent)
	}
}

func TestAcknowledge(t *testing.T) {
	m, store, _ := testManager()
	monitor := testMonitor()
	ctx := context.Background()

	a := &storage.Alert{
		ID:          "alarm-1",
		MonitorID:   monitor.ID,
		MonitorName: monitor.Name,
		Severity:    storage.SeverityAlarm,
		Status:      storage.AlertActive,
		TriggeredAt: time.Now().UTC(),
	}
	if _, err := store.CreateAlertIfNoneActive(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, err := m.Acknowledge(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != storage.AlertAcknowledged {
		t.Fatalf("status = %q, want acknowledged", got.Status)
	}

	// Acknowledged alerts stay in the active set.
	if _, err := store.GetActiveAlert(ctx, monitor.ID); err != nil {
		t.Errorf("acknowledged alert left the active set: %v", err)
	}

	got.Status = storage.AlertRecovered
	if err := store.UpdateAlert(ctx, got); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Acknowledge(ctx, a.ID); err == nil {
		t.Error("acknowledging a recovered alert should fail")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{3*time.Minute + 4*time.Second, "3m 4s"},
		{2*time.Hour + 5*time.Minute, "2h 5m 0s"},
		{26*time.Hour + 3*time.Minute + 9*time.Second, "1d 2h 3m 9s"},
		{-5 * time.Second, "0s"},
	}
	for _, tc := range tests {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
