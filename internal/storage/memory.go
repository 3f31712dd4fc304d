package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemStore is an in-memory Store used by tests and by the "memory" URI in
// development. It mirrors the MongoStore semantics, including ErrDuplicate
// on name collisions and the one-active-alert-per-monitor constraint.
type MemStore struct {
	mu            sync.RWMutex
	monitors      map[string]*Monitor      // by id hex
	states        map[string]*MonitorState // by monitor id hex
	observations  map[string][]*Observation
	alerts        map[string]*Alert // by alert id
	notifications []*QueuedNotification
}

func NewMemStore() *MemStore {
	return &MemStore{
		monitors:     make(map[string]*Monitor),
		states:       make(map[string]*MonitorState),
		observations: make(map[string][]*Observation),
		alerts:       make(map[string]*Alert),
	}
}

func cloneMonitor(m *Monitor) *Monitor {
	c := *m
	return &c
}

func cloneState(st *MonitorState) *MonitorState {
	c := *st
	return &c
}

func cloneAlert(a *Alert) *Alert {
	c := *a
	c.NotificationsSent = append([]NotificationLog(nil), a.NotificationsSent...)
	return &c
}

func (s *MemStore) CreateMonitor(ctx context.Context, m *Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.monitors {
		if other.Name == m.Name {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.CreationTime.IsZero() {
		m.CreationTime = now
	}
	m.UpdatedAt = now
	s.monitors[m.ID.Hex()] = cloneMonitor(m)
	return nil
}

func (s *MemStore) GetMonitor(ctx context.Context, id primitive.ObjectID) (*Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.monitors[id.Hex()]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMonitor(m), nil
}

func (s *MemStore) GetMonitorByName(ctx context.Context, name string) (*Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.monitors {
		if m.Name == name {
			return cloneMonitor(m), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) ListMonitors(ctx context.Context) ([]*Monitor, error) {
	return s.listMonitors(func(*Monitor) bool { return true }), nil
}

func (s *MemStore) ListSchedulable(ctx context.Context) ([]*Monitor, error) {
	return s.listMonitors(func(m *Monitor) bool { return m.Active && m.Running }), nil
}

func (s *MemStore) listMonitors(keep func(*Monitor) bool) []*Monitor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		if keep(m) {
			out = append(out, cloneMonitor(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *MemStore) UpdateMonitor(ctx context.Context, m *Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[m.ID.Hex()]; !ok {
		return ErrNotFound
	}
	for id, other := range s.monitors {
		if id != m.ID.Hex() && other.Name == m.Name {
			return ErrDuplicate
		}
	}
	m.UpdatedAt = time.Now().UTC()
	s.monitors[m.ID.Hex()] = cloneMonitor(m)
	return nil
}

func (s *MemStore) DeleteMonitor(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[id.Hex()]; !ok {
		return ErrNotFound
	}
	delete(s.monitors, id.Hex())
	delete(s.states, id.Hex())
	return nil
}

func (s *MemStore) GetState(ctx context.Context, monitorID primitive.ObjectID) (*MonitorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[monitorID.Hex()]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneState(st), nil
}

func (s *MemStore) ListStates(ctx context.Context) ([]*MonitorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*MonitorState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, cloneState(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemStore) UpsertState(ctx context.Context, st *MonitorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.UpdatedAt = time.Now().UTC()
	s.states[st.MonitorID.Hex()] = cloneState(st)
	return nil
}

func (s *MemStore) SetStateAlert(ctx context.Context, monitorID primitive.ObjectID, alertID, severity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[monitorID.Hex()]
	if !ok {
		return ErrNotFound
	}
	st.ActiveAlertID = alertID
	st.ActiveAlertSeverity = severity
	st.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) InsertObservation(ctx context.Context, o *Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	c := *o
	key := o.MonitorID.Hex()
	s.observations[key] = append(s.observations[key], &c)
	return nil
}

func (s *MemStore) ListObservations(ctx context.Context, monitorID primitive.ObjectID, limit int) ([]*Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	all := s.observations[monitorID.Hex()]
	out := make([]*Observation, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		c := *all[i]
		out = append(out, &c)
	}
	return out, nil
}

func activeAlertStatus(status string) bool {
	return status == AlertActive || status == AlertAcknowledged || status == AlertInRecovery
}

func (s *MemStore) CreateAlertIfNoneActive(ctx context.Context, a *Alert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.alerts {
		if other.MonitorID == a.MonitorID && activeAlertStatus(other.Status) {
			return false, nil
		}
	}
	s.alerts[a.ID] = cloneAlert(a)
	return true, nil
}

func (s *MemStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAlert(a), nil
}

func (s *MemStore) GetActiveAlert(ctx context.Context, monitorID primitive.ObjectID) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.alerts {
		if a.MonitorID == monitorID && activeAlertStatus(a.Status) {
			return cloneAlert(a), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) ListActiveAlerts(ctx context.Context) ([]*Alert, error) {
	return s.listAlerts(func(a *Alert) bool { return activeAlertStatus(a.Status) }, 0), nil
}

func (s *MemStore) ListAlerts(ctx context.Context, monitorID primitive.ObjectID, limit int) ([]*Alert, error) {
	keep := func(*Alert) bool { return true }
	if !monitorID.IsZero() {
		keep = func(a *Alert) bool { return a.MonitorID == monitorID }
	}
	return s.listAlerts(keep, limit), nil
}

func (s *MemStore) listAlerts(keep func(*Alert) bool, limit int) []*Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Alert
	for _, a := range s.alerts {
		if keep(a) {
			out = append(out, cloneAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemStore) UpdateAlert(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[a.ID]; !ok {
		return ErrNotFound
	}
	s.alerts[a.ID] = cloneAlert(a)
	return nil
}

func (s *MemStore) AppendNotification(ctx context.Context, alertID string, n NotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return ErrNotFound
	}
	a.NotificationsSent = append(a.NotificationsSent, n)
	at := n.SentAt
	a.LastNotificationAt = &at
	return nil
}

func (s *MemStore) EnqueueNotification(ctx context.Context, q *QueuedNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID.IsZero() {
		q.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	if q.ScheduledAt.IsZero() {
		q.ScheduledAt = now
	}
	c := *q
	s.notifications = append(s.notifications, &c)
	return nil
}

func (s *MemStore) PurgeRecoveredAlerts(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, a := range s.alerts {
		if a.Status == AlertRecovered && a.RecoveredAt != nil && a.RecoveredAt.Before(before) {
			delete(s.alerts, id)
			purged++
		}
	}
	return purged, nil
}

func (s *MemStore) PurgeQueuedNotifications(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.notifications[:0]
	var purged int64
	for _, q := range s.notifications {
		if q.CreatedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, q)
	}
	s.notifications = kept
	return purged, nil
}

// QueuedNotifications returns a snapshot of the notification queue, oldest
// first. Used by tests and the API.
func (s *MemStore) QueuedNotifications() []*QueuedNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*QueuedNotification, 0, len(s.notifications))
	for _, q := range s.notifications {
		c := *q
		out = append(out, &c)
	}
	return out
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Close(ctx context.Context) error { return nil }
