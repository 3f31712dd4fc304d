// Package validate holds the cross-type monitor validation the API runs
// before persisting. Type-specific config checks are delegated to the
// registered checker for the monitor's type.
package validate

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/argus-mon/argus/internal/checker"
	"github.com/argus-mon/argus/internal/storage"
)

const (
	// DefaultPeriodMinutes is applied when a monitor omits its period.
	DefaultPeriodMinutes = 5

	// DefaultTimeoutSeconds is applied when a monitor omits its timeout.
	DefaultTimeoutSeconds = 30
)

// ApplyDefaults fills the timing fields a create request may omit. The
// hysteresis counters stay zero; their accessors fall back on their own.
func ApplyDefaults(m *storage.Monitor) {
	if m.PeriodMinutes == 0 {
		m.PeriodMinutes = DefaultPeriodMinutes
	}
	if m.TimeoutSeconds == 0 {
		m.TimeoutSeconds = DefaultTimeoutSeconds
	}
}

// Monitor checks every invariant a monitor must satisfy before it is
// stored, then hands the type-specific config to the checker's Validate.
func Monitor(registry *checker.Registry, m *storage.Monitor) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(m.Name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	if len(m.Description) > 5000 {
		return fmt.Errorf("description must be at most 5000 characters")
	}

	chk, err := registry.Get(m.Type)
	if err != nil {
		return fmt.Errorf("type must be one of: %s", strings.Join(registry.Types(), ", "))
	}

	if strings.TrimSpace(m.Target) == "" {
		return fmt.Errorf("target is required")
	}
	if len(m.Target) > 2048 {
		return fmt.Errorf("target must be at most 2048 characters")
	}

	if err := validateTiming(m); err != nil {
		return err
	}
	if err := validateThresholds(m); err != nil {
		return err
	}
	if err := validateHysteresis(m); err != nil {
		return err
	}
	if err := validateContacts(m); err != nil {
		return err
	}
	if err := validateMaintenance(m); err != nil {
		return err
	}

	return chk.Validate(m)
}

func validateTiming(m *storage.Monitor) error {
	if m.PeriodMinutes < 1 {
		return fmt.Errorf("period_minutes must be at least 1")
	}
	if m.TimeoutSeconds < 5 {
		return fmt.Errorf("timeout_seconds must be at least 5")
	}
	if m.TimeoutSeconds >= m.PeriodMinutes*60 {
		return fmt.Errorf("timeout_seconds must be shorter than the check period")
	}
	return nil
}

// validateThresholds enforces the ordering low_warn <= low_alarm <=
// high_alarm and high_warn <= high_alarm across whichever bounds are set.
func validateThresholds(m *storage.Monitor) error {
	if m.LowWarning != nil && m.LowAlarm != nil && *m.LowWarning > *m.LowAlarm {
		return fmt.Errorf("low_warn must not exceed low_alarm")
	}
	if m.LowAlarm != nil && m.HighAlarm != nil && *m.LowAlarm > *m.HighAlarm {
		return fmt.Errorf("low_alarm must not exceed high_alarm")
	}
	if m.HighWarning != nil && m.HighAlarm != nil && *m.HighWarning > *m.HighAlarm {
		return fmt.Errorf("high_warn must not exceed high_alarm")
	}
	return nil
}

func validateHysteresis(m *storage.Monitor) error {
	if m.ConsecutiveWarning < 0 {
		return fmt.Errorf("consecutive_warning must not be negative")
	}
	if m.ConsecutiveAlarm < 0 {
		return fmt.Errorf("consecutive_alarm must not be negative")
	}
	if m.ResetAfterMOk < 0 {
		return fmt.Errorf("reset_after_m_ok must not be negative")
	}
	return nil
}

func validateContacts(m *storage.Monitor) error {
	for i, c := range m.Contacts {
		if strings.TrimSpace(c.Email) == "" {
			return fmt.Errorf("contacts[%d].email is required", i)
		}
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return fmt.Errorf("contacts[%d].email is not a valid address", i)
		}
	}
	return nil
}

func validateMaintenance(m *storage.Monitor) error {
	for i, w := range m.MaintenanceWindows {
		if w.Start.IsZero() {
			return fmt.Errorf("maintenance_windows[%d].start is required", i)
		}
		if w.End.IsZero() {
			return fmt.Errorf("maintenance_windows[%d].end is required", i)
		}
		if !w.End.After(w.Start) {
			return fmt.Errorf("maintenance_windows[%d].end must be after start", i)
		}
	}
	return nil
}
