package checker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/argus-mon/argus/internal/storage"
)

func writeTempLog(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLogCheckerOOM(t *testing.T) {
	path := writeTempLog(t, []string{
		"2025-06-01T12:00:00Z INFO request served in 12ms",
		"2025-06-01T12:00:01Z ERROR Out of memory: Killed process 4242 (java)",
		"2025-06-01T12:00:02Z INFO request served in 9ms",
	})

	c := &LogChecker{}
	monitor := &storage.Monitor{Target: path, TimeoutSeconds: 5}
	result, err := c.Check(context.Background(), monitor)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusAlarm {
		t.Fatalf("expected alarm for OOM, got %s: %s", result.Status, result.Message)
	}
	if result.Value == nil || *result.Value != 1 {
		t.Fatalf("expected value 1 (critical+high), got %v", result.Value)
	}

	matches, ok := result.Metadata["matches"].([]map[string]any)
	if !ok || len(matches) == 0 {
		t.Fatal("expected match details in metadata")
	}
	first := matches[0]
	if first["category"] != "memory" || first["severity"] != "critical" {
		t.Fatalf("unexpected match tags: %v", first)
	}
	if rem, _ := first["remediation"].(string); rem == "" {
		t.Fatal("expected a remediation hint")
	}
}

func TestLogCheckerSeverityAggregation(t *testing.T) {
	tests := []struct {
		name       string
		lines      []string
		wantStatus string
		wantValue  float64
	}{
		{
			"clean log",
			[]string{"INFO all good", "INFO still good"},
			StatusOK, 0,
		},
		{
			"high only is warning",
			[]string{"ERROR connection refused to db:5432"},
			StatusWarning, 1,
		},
		{
			"medium only is warning",
			[]string{"WARN config file not found, using defaults"},
			StatusWarning, 0,
		},
		{
			"critical outranks high",
			[]string{"connection refused", "No space left on device"},
			StatusAlarm, 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempLog(t, tt.lines)
			c := &LogChecker{}
			result, err := c.Check(context.Background(), &storage.Monitor{Target: path, TimeoutSeconds: 5})
			if err != nil {
				t.Fatal(err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q (message: %s)", result.Status, tt.wantStatus, result.Message)
			}
			if result.Value == nil || *result.Value != tt.wantValue {
				t.Errorf("value = %v, want %v", result.Value, tt.wantValue)
			}
		})
	}
}

func TestLogCheckerUserPatterns(t *testing.T) {
	path := writeTempLog(t, []string{
		"payment gateway returned DECLINE_93",
	})

	c := &LogChecker{}
	monitor := &storage.Monitor{
		Target:         path,
		TimeoutSeconds: 5,
		Log: &storage.LogConfig{
			Patterns: []storage.LogPattern{{
				Pattern:     `DECLINE_\d+`,
				Severity:    "critical",
				Category:    "payments",
				Remediation: "Check the gateway status page before paging the payments team.",
			}},
		},
	}
	result, err := c.Check(context.Background(), monitor)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusAlarm {
		t.Fatalf("expected alarm from user pattern, got %s", result.Status)
	}
}

func TestLogCheckerTailLines(t *testing.T) {
	// The only critical line is outside the tail window.
	lines := []string{"Out of memory: kill"}
	for i := 0; i < 50; i++ {
		lines = append(lines, fmt.Sprintf("INFO line %d", i))
	}
	path := writeTempLog(t, lines)

	c := &LogChecker{}
	monitor := &storage.Monitor{
		Target:         path,
		TimeoutSeconds: 5,
		Log:            &storage.LogConfig{TailLines: 10},
	}
	result, err := c.Check(context.Background(), monitor)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusOK {
		t.Fatalf("expected ok, got %s: %s", result.Status, result.Message)
	}
	if got := result.Metadata["lines_scanned"]; got != 10 {
		t.Fatalf("expected 10 lines scanned, got %v", got)
	}
}

func TestLogCheckerMissingFile(t *testing.T) {
	c := &LogChecker{}
	result, err := c.Check(context.Background(), &storage.Monitor{
		Target:         filepath.Join(t.TempDir(), "nope.log"),
		TimeoutSeconds: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusError {
		t.Fatalf("expected error for missing file, got %s", result.Status)
	}
}

func TestReadLocalTail(t *testing.T) {
	path := writeTempLog(t, []string{"one", "two", "three", "four"})
	lines, err := readLocalTail(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "three" || lines[1] != "four" {
		t.Fatalf("unexpected tail: %v", lines)
	}
}

func TestLogCheckerValidate(t *testing.T) {
	c := &LogChecker{}
	tests := []struct {
		name    string
		monitor *storage.Monitor
		wantErr bool
	}{
		{"no target", &storage.Monitor{}, true},
		{"plain", &storage.Monitor{Target: "/var/log/app.log"}, false},
		{"bad pattern", &storage.Monitor{Target: "/var/log/app.log", Log: &storage.LogConfig{
			Patterns: []storage.LogPattern{{Pattern: "("}},
		}}, true},
		{"bad severity", &storage.Monitor{Target: "/var/log/app.log", Log: &storage.LogConfig{
			Patterns: []storage.LogPattern{{Pattern: "x", Severity: "fatal"}},
		}}, true},
		{"ssh missing host", &storage.Monitor{Target: "/var/log/app.log", Log: &storage.LogConfig{
			SSH: &storage.SSHConfig{Username: "ops", Password: "pw"},
		}}, true},
		{"ssh ok", &storage.Monitor{Target: "/var/log/app.log", Log: &storage.LogConfig{
			SSH: &storage.SSHConfig{Host: "10.0.0.5", Username: "ops", Password: "pw"},
		}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(tt.monitor)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
