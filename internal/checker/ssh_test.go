package checker

import (
	"testing"

	"github.com/argus-mon/argus/internal/storage"
)

func TestParseOutputMetrics(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want map[string]float64
	}{
		{
			"all three",
			"CPU: 91% Memory: 40% Disk: 55%",
			map[string]float64{"cpu": 91, "memory": 40, "disk": 55},
		},
		{
			"equals and no percent sign",
			"cpu=12.5 mem=33",
			map[string]float64{"cpu": 12.5, "memory": 33},
		},
		{
			"mixed case and whitespace",
			"Cpu  7\nMEMORY: 81.2%",
			map[string]float64{"cpu": 7, "memory": 81.2},
		},
		{
			"nothing recognizable",
			"all systems nominal",
			map[string]float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOutputMetrics(tt.out)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestPrimaryMetric(t *testing.T) {
	tests := []struct {
		name       string
		metrics    map[string]float64
		wantValue  float64
		wantSource string
	}{
		{"cpu wins", map[string]float64{"cpu": 91, "memory": 40, "disk": 55}, 91, "cpu"},
		{"memory when no cpu", map[string]float64{"memory": 40, "disk": 55}, 40, "memory"},
		{"disk alone", map[string]float64{"disk": 55}, 55, "disk"},
		{"wall time fallback", map[string]float64{}, 120, "response_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, source := primaryMetric(tt.metrics, 120)
			if v != tt.wantValue || source != tt.wantSource {
				t.Errorf("primaryMetric = %v/%q, want %v/%q", v, source, tt.wantValue, tt.wantSource)
			}
		})
	}
}

func TestParsedCPUClassifies(t *testing.T) {
	metrics := parseOutputMetrics("CPU: 91% Memory: 40%")
	primary, source := primaryMetric(metrics, 350)
	if primary != 91 || source != "cpu" {
		t.Fatalf("primary = %v/%q, want 91/cpu", primary, source)
	}

	m := &storage.Monitor{HighWarning: Float(70), HighAlarm: Float(90)}
	if status := Classify(primary, monitorThresholds(m)); status != StatusAlarm {
		t.Fatalf("status = %q, want %q", status, StatusAlarm)
	}
}

func TestSSHCheckerValidate(t *testing.T) {
	c := &SSHChecker{}
	tests := []struct {
		name    string
		cfg     *storage.SSHConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"no username", &storage.SSHConfig{Password: "x", Command: "uptime"}, true},
		{"no credentials", &storage.SSHConfig{Username: "ops", Command: "uptime"}, true},
		{"no command", &storage.SSHConfig{Username: "ops", Password: "x"}, true},
		{"password auth", &storage.SSHConfig{Username: "ops", Password: "x", Command: "uptime"}, false},
		{"key auth", &storage.SSHConfig{Username: "ops", PrivateKey: "---", Command: "uptime"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &storage.Monitor{Target: "10.0.0.5", SSH: tt.cfg}
			err := c.Validate(m)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTail(t *testing.T) {
	if got := tail("  hello world  ", 5); got != "world" {
		t.Fatalf("expected %q, got %q", "world", got)
	}
	if got := tail("short", 100); got != "short" {
		t.Fatalf("expected %q, got %q", "short", got)
	}
}
