package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicate is returned when an insert or update violates a unique
// constraint, such as the monitor name.
var ErrDuplicate = errors.New("storage: duplicate")

// Store defines the complete storage interface.
type Store interface {
	// Monitors
	CreateMonitor(ctx context.Context, m *Monitor) error
	GetMonitor(ctx context.Context, id primitive.ObjectID) (*Monitor, error)
	GetMonitorByName(ctx context.Context, name string) (*Monitor, error)
	ListMonitors(ctx context.Context) ([]*Monitor, error)
	ListSchedulable(ctx context.Context) ([]*Monitor, error)
	UpdateMonitor(ctx context.Context, m *Monitor) error
	DeleteMonitor(ctx context.Context, id primitive.ObjectID) error

	// Monitor states (runtime counters, one per monitor)
	GetState(ctx context.Context, monitorID primitive.ObjectID) (*MonitorState, error)
	ListStates(ctx context.Context) ([]*MonitorState, error)
	UpsertState(ctx context.Context, s *MonitorState) error
	SetStateAlert(ctx context.Context, monitorID primitive.ObjectID, alertID, severity string) error

	// Observations (append-only probe outcomes)
	InsertObservation(ctx context.Context, o *Observation) error
	ListObservations(ctx context.Context, monitorID primitive.ObjectID, limit int) ([]*Observation, error)

	// Alerts
	CreateAlertIfNoneActive(ctx context.Context, a *Alert) (bool, error)
	GetAlert(ctx context.Context, id string) (*Alert, error)
	GetActiveAlert(ctx context.Context, monitorID primitive.ObjectID) (*Alert, error)
	ListActiveAlerts(ctx context.Context) ([]*Alert, error)
	ListAlerts(ctx context.Context, monitorID primitive.ObjectID, limit int) ([]*Alert, error)
	UpdateAlert(ctx context.Context, a *Alert) error
	AppendNotification(ctx context.Context, alertID string, n NotificationLog) error

	// Notification queue (delivery audit trail)
	EnqueueNotification(ctx context.Context, q *QueuedNotification) error

	// Retention. Observations expire via their TTL index; recovered alerts
	// and old queue entries are purged by the retention worker.
	PurgeRecoveredAlerts(ctx context.Context, before time.Time) (int64, error)
	PurgeQueuedNotifications(ctx context.Context, before time.Time) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
