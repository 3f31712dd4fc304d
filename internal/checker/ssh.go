package checker

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/argus-mon/argus/internal/sshx"
	"github.com/argus-mon/argus/internal/storage"
)

// Well-known metric patterns in command output, e.g. "CPU: 91%",
// "memory=40.5", "Disk 55%".
var (
	cpuRe    = regexp.MustCompile(`(?i)cpu[:\s=]+([\d.]+)%?`)
	memoryRe = regexp.MustCompile(`(?i)mem(?:ory)?[:\s=]+([\d.]+)%?`)
	diskRe   = regexp.MustCompile(`(?i)disk[:\s=]+([\d.]+)%?`)
)

// SSHChecker runs a command on a remote host and classifies a metric
// parsed from its output.
type SSHChecker struct{}

func (c *SSHChecker) Type() string { return storage.TypeSSH }

func (c *SSHChecker) Validate(monitor *storage.Monitor) error {
	cfg := monitor.SSH
	if cfg == nil {
		return fmt.Errorf("ssh config missing")
	}
	if cfg.Username == "" {
		return fmt.Errorf("ssh requires a username")
	}
	if cfg.Password == "" && cfg.PrivateKey == "" {
		return fmt.Errorf("ssh requires a password or a private key")
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return fmt.Errorf("ssh requires a command")
	}
	return validatePatterns(cfg.PositivePattern, cfg.NegativePattern)
}

func (c *SSHChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Result, error) {
	cfg := monitor.SSH
	if cfg == nil {
		return ErrorResult("ssh config missing"), nil
	}

	start := time.Now()
	client, err := sshx.Dial(ctx, sshx.Config{
		Host:       monitor.Target,
		Port:       cfg.Port,
		User:       cfg.Username,
		Password:   cfg.Password,
		PrivateKey: cfg.PrivateKey,
		Passphrase: cfg.Passphrase,
		Timeout:    time.Duration(monitor.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return ErrorResult("ssh connect: %v", err), nil
	}
	defer client.Close()

	stdout, stderr, err := client.Run(ctx, cfg.Command)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		if code, ok := sshx.ExitCode(err); ok {
			return ErrorResult("command exited %d: %s", code, tail(stderr, 200)), nil
		}
		return ErrorResult("command failed: %v", err), nil
	}

	result := &Result{
		ResponseTime: elapsed,
		Timestamp:    time.Now().UTC(),
		Metadata:     map[string]any{},
	}

	if p := cfg.PositivePattern; p != "" {
		re, err := compilePattern(p)
		if err != nil {
			return ErrorResult("positive_pattern: %v", err), nil
		}
		if !re.MatchString(stdout) {
			result.Status = StatusAlarm
			result.Message = fmt.Sprintf("expected pattern %q not found in output", p)
			return result, nil
		}
	}
	if p := cfg.NegativePattern; p != "" {
		re, err := compilePattern(p)
		if err != nil {
			return ErrorResult("negative_pattern: %v", err), nil
		}
		if re.MatchString(stdout) {
			result.Status = StatusAlarm
			result.Message = fmt.Sprintf("forbidden pattern %q found in output", p)
			return result, nil
		}
	}

	// Primary value: first of cpu, memory, disk found in the output,
	// falling back to the wall time of the whole check.
	metrics := parseOutputMetrics(stdout)
	for k, v := range metrics {
		result.Metadata[k] = v
	}

	primary, source := primaryMetric(metrics, elapsed)
	result.Value = Float(primary)
	result.Metadata["value_source"] = source

	status := Classify(primary, monitorThresholds(monitor))
	result.Status = status
	result.Success = status == StatusOK || status == StatusWarning
	result.Message = fmt.Sprintf("%s=%.1f in %dms", source, primary, elapsed)
	return result, nil
}

// primaryMetric picks the value the thresholds apply to: the first of
// cpu, memory, disk present in the output, else the command wall time.
func primaryMetric(metrics map[string]float64, elapsed int64) (float64, string) {
	for _, name := range []string{"cpu", "memory", "disk"} {
		if v, ok := metrics[name]; ok {
			return v, name
		}
	}
	return float64(elapsed), "response_time"
}

func parseOutputMetrics(out string) map[string]float64 {
	metrics := make(map[string]float64)
	for name, re := range map[string]*regexp.Regexp{
		"cpu":    cpuRe,
		"memory": memoryRe,
		"disk":   diskRe,
	} {
		m := re.FindStringSubmatch(out)
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			metrics[name] = v
		}
	}
	return metrics
}

// tail returns the last n bytes of s, trimmed.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
