// Package notifier delivers alert notifications. Senders are stateless;
// deduplication is the alert manager's job via last_notification_at.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/argus-mon/argus/internal/storage"
)

// Lifecycle stages a notification can belong to.
const (
	StageOpened    = "opened"
	StageUpgraded  = "upgraded"
	StageReminder  = "reminder"
	StageRecovered = "recovered"
)

// Message is the rendered input for one notification.
type Message struct {
	Stage    string
	Alert    *storage.Alert
	Monitor  *storage.Monitor
	Duration string // set for recovered
}

// SendResult reports one delivery attempt.
type SendResult struct {
	Sent      bool
	MessageID string
	Error     string
}

// Sender sends a notification via one channel type.
type Sender interface {
	Channel() string
	Send(ctx context.Context, recipient string, msg *Message) SendResult
}

// Subject renders the one-line summary for a message.
func Subject(msg *Message) string {
	a := msg.Alert
	switch msg.Stage {
	case StageUpgraded:
		return fmt.Sprintf("[ESCALATED] %s is now at alarm", a.MonitorName)
	case StageReminder:
		return fmt.Sprintf("[REMINDER] %s is still in %s", a.MonitorName, a.Severity)
	case StageRecovered:
		return fmt.Sprintf("[RECOVERED] %s", a.MonitorName)
	default:
		return fmt.Sprintf("[%s] %s", strings.ToUpper(a.Severity), a.MonitorName)
	}
}

// Body renders the plain-text body for a message.
func Body(msg *Message) string {
	a := msg.Alert
	var b strings.Builder
	fmt.Fprintf(&b, "Monitor: %s\n", a.MonitorName)
	if msg.Monitor != nil {
		fmt.Fprintf(&b, "Target: %s\n", msg.Monitor.Target)
	}
	fmt.Fprintf(&b, "Severity: %s\n", a.Severity)
	fmt.Fprintf(&b, "Status: %s\n", a.Status)
	if a.Message != "" {
		fmt.Fprintf(&b, "Detail: %s\n", a.Message)
	}
	if a.CurrentValue != nil {
		fmt.Fprintf(&b, "Current value: %g\n", *a.CurrentValue)
	}
	if a.ThresholdValue != nil {
		fmt.Fprintf(&b, "Threshold: %g\n", *a.ThresholdValue)
	}
	fmt.Fprintf(&b, "Consecutive failures: %d\n", a.ConsecutiveFailures)
	fmt.Fprintf(&b, "Triggered: %s\n", a.TriggeredAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	if msg.Stage == StageRecovered {
		if a.RecoveredAt != nil {
			fmt.Fprintf(&b, "Recovered: %s\n", a.RecoveredAt.UTC().Format("2006-01-02 15:04:05 UTC"))
		}
		if msg.Duration != "" {
			fmt.Fprintf(&b, "Duration: %s\n", msg.Duration)
		}
	}
	return b.String()
}
