package checker

import (
	"testing"

	"github.com/argus-mon/argus/internal/storage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		t     Thresholds
		want  string
	}{
		{"no thresholds", 500, Thresholds{}, StatusOK},
		{"below high warning", 79.9, Thresholds{HighWarning: Float(80), HighAlarm: Float(90)}, StatusOK},
		{"at high warning", 80, Thresholds{HighWarning: Float(80), HighAlarm: Float(90)}, StatusWarning},
		{"between warning and alarm", 89.9, Thresholds{HighWarning: Float(80), HighAlarm: Float(90)}, StatusWarning},
		{"at high alarm", 90, Thresholds{HighWarning: Float(80), HighAlarm: Float(90)}, StatusAlarm},
		{"above high alarm", 250, Thresholds{HighWarning: Float(80), HighAlarm: Float(90)}, StatusAlarm},
		{"at low warning", 20, Thresholds{LowWarning: Float(20), LowAlarm: Float(10)}, StatusWarning},
		{"at low alarm", 10, Thresholds{LowWarning: Float(20), LowAlarm: Float(10)}, StatusAlarm},
		{"below low alarm", 3, Thresholds{LowWarning: Float(20), LowAlarm: Float(10)}, StatusAlarm},
		{"healthy between low and high", 50, Thresholds{LowAlarm: Float(10), HighAlarm: Float(90)}, StatusOK},
		{"alarm only, warning unset", 95, Thresholds{HighAlarm: Float(90)}, StatusAlarm},
		{"warning only, alarm unset", 95, Thresholds{HighWarning: Float(80)}, StatusWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.value, tt.t); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestClassifyAlarmWinsOverWarning(t *testing.T) {
	// A value past both thresholds must classify as alarm, never warning.
	th := Thresholds{HighWarning: Float(80), HighAlarm: Float(90)}
	if got := Classify(99, th); got != StatusAlarm {
		t.Fatalf("expected alarm, got %s", got)
	}
	th = Thresholds{LowWarning: Float(20), LowAlarm: Float(10)}
	if got := Classify(5, th); got != StatusAlarm {
		t.Fatalf("expected alarm, got %s", got)
	}
}

func TestNewResultSuccess(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusOK, true},
		{StatusWarning, true},
		{StatusAlarm, false},
		{StatusError, false},
	}
	for _, tt := range tests {
		r := NewResult(tt.status, Float(1), "msg")
		if r.Success != tt.want {
			t.Errorf("NewResult(%s).Success = %v, want %v", tt.status, r.Success, tt.want)
		}
	}
}

func TestErrorResult(t *testing.T) {
	r := ErrorResult("dial %s: refused", "10.0.0.1")
	if r.Status != StatusError {
		t.Fatalf("expected error status, got %s", r.Status)
	}
	if r.Success {
		t.Fatal("error result must not be a success")
	}
	if r.Value != nil {
		t.Fatal("error result must have no value")
	}
	if r.Message != "dial 10.0.0.1: refused" {
		t.Fatalf("unexpected message: %s", r.Message)
	}
	if r.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}
}

func TestHighThresholdsIgnoreLows(t *testing.T) {
	m := &storage.Monitor{
		LowWarning:  Float(5),
		LowAlarm:    Float(1),
		HighWarning: Float(500),
		HighAlarm:   Float(1000),
	}
	th := highThresholds(m)
	if th.LowWarning != nil || th.LowAlarm != nil {
		t.Fatal("latency thresholds must drop the low side")
	}
	// A fast response must stay ok even with low thresholds configured.
	if got := Classify(2, th); got != StatusOK {
		t.Fatalf("expected ok for fast response, got %s", got)
	}
}

func TestRegistryGetUnregistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("unknown")
	if err == nil {
		t.Fatal("expected error for unregistered type")
	}
}

func TestDefaultRegistryHasAllTypes(t *testing.T) {
	r := DefaultRegistry(nil)
	types := []string{
		storage.TypeURL, storage.TypeAPIPost, storage.TypeSSH, storage.TypePing,
		storage.TypeLog, storage.TypeCertificate, storage.TypeDocker,
		storage.TypeAWS, storage.TypeGCP, storage.TypeAzure,
	}
	for _, typ := range types {
		if _, err := r.Get(typ); err != nil {
			t.Fatalf("expected %s checker, got error: %v", typ, err)
		}
	}
	if got := len(r.Types()); got != len(types) {
		t.Fatalf("expected %d registered types, got %d", len(types), got)
	}
}
