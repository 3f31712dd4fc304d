package checker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/argus-mon/argus/internal/storage"
)

// Check statuses. ok and warning count as success; alarm and error feed
// the failure counters.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusAlarm   = "alarm"
	StatusError   = "error"
)

const maxBodyRead = 1 << 20 // 1MB

// Result holds the outcome of a single probe.
type Result struct {
	Success      bool           `json:"success"`
	Value        *float64       `json:"value,omitempty"`
	Status       string         `json:"status"` // ok, warning, alarm, error
	Message      string         `json:"message,omitempty"`
	ResponseTime int64          `json:"response_time,omitempty"` // milliseconds
	StatusCode   int            `json:"status_code,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ErrorResult builds a probe-failure result. Probe failures are encoded in
// the result rather than returned as errors: an unreachable target still
// feeds the failure counters.
func ErrorResult(format string, args ...any) *Result {
	return &Result{
		Status:    StatusError,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// NewResult builds a classified result. Success is derived from status.
func NewResult(status string, value *float64, message string) *Result {
	return &Result{
		Success:   status == StatusOK || status == StatusWarning,
		Value:     value,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Float returns a pointer to v. Convenience for optional values.
func Float(v float64) *float64 { return &v }

// Thresholds are the optional classification bounds of a monitor. Absent
// bounds are ignored.
type Thresholds struct {
	LowWarning  *float64
	HighWarning *float64
	LowAlarm    *float64
	HighAlarm   *float64
}

func monitorThresholds(m *storage.Monitor) Thresholds {
	return Thresholds{
		LowWarning:  m.LowWarning,
		HighWarning: m.HighWarning,
		LowAlarm:    m.LowAlarm,
		HighAlarm:   m.HighAlarm,
	}
}

// highThresholds keeps only the upper bounds. Latency-style checks classify
// against these alone.
func highThresholds(m *storage.Monitor) Thresholds {
	return Thresholds{HighWarning: m.HighWarning, HighAlarm: m.HighAlarm}
}

// Classify maps a numeric value to ok, warning or alarm. Alarm bounds win
// over warning bounds; a value exactly on a bound triggers that level.
func Classify(value float64, t Thresholds) string {
	if t.HighAlarm != nil && value >= *t.HighAlarm {
		return StatusAlarm
	}
	if t.LowAlarm != nil && value <= *t.LowAlarm {
		return StatusAlarm
	}
	if t.HighWarning != nil && value >= *t.HighWarning {
		return StatusWarning
	}
	if t.LowWarning != nil && value <= *t.LowWarning {
		return StatusWarning
	}
	return StatusOK
}

// Checker probes one monitor type.
type Checker interface {
	// Type returns the monitor type this checker handles.
	Type() string
	// Validate statically checks the monitor's type-specific config.
	Validate(m *storage.Monitor) error
	// Check performs the probe. Probe failures are encoded in the Result;
	// a non-nil error is an internal fault, converted by the caller into
	// an error result.
	Check(ctx context.Context, m *storage.Monitor) (*Result, error)
}

// Advisor supplies best-effort remediation hints for cloud metric checks.
// Implementations must never block longer than their own internal timeout.
type Advisor interface {
	Recommend(ctx context.Context, service, resource string, metrics map[string]float64) (string, bool)
}

// Registry maps monitor types to checkers. It is fully populated before
// the scheduler starts and never mutated afterwards.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[c.Type()] = c
}

func (r *Registry) Get(typ string) (Checker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checkers[typ]
	if !ok {
		return nil, fmt.Errorf("no checker registered for type: %s", typ)
	}
	return c, nil
}

// Types returns the registered monitor types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.checkers))
	for t := range r.checkers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultRegistry creates a registry with all built-in checkers. adv may
// be nil; cloud checkers then skip recommendations.
func DefaultRegistry(adv Advisor) *Registry {
	r := NewRegistry()
	r.Register(&URLChecker{})
	r.Register(&APIPostChecker{})
	r.Register(&SSHChecker{})
	r.Register(&PingChecker{})
	r.Register(&LogChecker{})
	r.Register(&CertificateChecker{})
	r.Register(&DockerChecker{})
	r.Register(&AWSChecker{Advisor: adv})
	r.Register(&GCPChecker{Advisor: adv})
	r.Register(&AzureChecker{Advisor: adv})
	return r
}
