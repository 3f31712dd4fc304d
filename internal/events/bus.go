// Package events carries engine happenings to in-process subscribers,
// primarily the websocket feed. Publishing never blocks: slow subscribers
// lose events and the loss is counted.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeCheckCompleted = "check.completed"
	TypeAlertOpened    = "alert.opened"
	TypeAlertUpgraded  = "alert.upgraded"
	TypeAlertRecovered = "alert.recovered"
)

// Event is one engine happening.
type Event struct {
	Type      string    `json:"type"`
	MonitorID string    `json:"monitor_id,omitempty"`
	Monitor   string    `json:"monitor,omitempty"`
	Status    string    `json:"status,omitempty"`
	Severity  string    `json:"severity,omitempty"`
	AlertID   string    `json:"alert_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus fans events out to subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Int64
	logger  *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{subs: make(map[int]chan Event), logger: logger}
}

// Subscribe registers a subscriber with the given buffer size and returns
// its channel plus a cancel func. The channel is closed on cancel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber that has room.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event subscriber full, dropping event", "event", ev.Type)
		}
	}
}

// Dropped returns the total number of events lost to full subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
