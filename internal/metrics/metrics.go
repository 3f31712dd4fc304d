// Package metrics reports engine process health for the health endpoint.
package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// EngineHealth is a snapshot of the engine process.
type EngineHealth struct {
	Status        string    `json:"status"` // healthy or degraded
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	MemoryPercent float64   `json:"memory_percent"`
	Goroutines    int       `json:"goroutines"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// Collector samples process health. Snapshots are cached briefly since
// the health endpoint may be polled aggressively by load balancers.
type Collector struct {
	startTime time.Time
	ttl       time.Duration

	mu     sync.RWMutex
	cached *EngineHealth
	expiry time.Time
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now(), ttl: 30 * time.Second}
}

// EngineHealth returns the cached snapshot, refreshing it when stale.
func (c *Collector) EngineHealth() *EngineHealth {
	c.mu.RLock()
	if c.cached != nil && time.Now().Before(c.expiry) {
		h := *c.cached
		c.mu.RUnlock()
		return &h
	}
	c.mu.RUnlock()

	h := c.collect()

	c.mu.Lock()
	c.cached = h
	c.expiry = time.Now().Add(c.ttl)
	c.mu.Unlock()

	snapshot := *h
	return &snapshot
}

func (c *Collector) collect() *EngineHealth {
	h := &EngineHealth{
		Status:        "healthy",
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		Timestamp:     time.Now().UTC(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			h.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			h.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
		if pct, err := proc.MemoryPercent(); err == nil {
			h.MemoryPercent = float64(pct)
		}
	}

	if h.MemoryPercent > 90 || h.CPUPercent > 90 {
		h.Status = "degraded"
	}
	return h
}
