package checker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/argus-mon/argus/internal/sshx"
	"github.com/argus-mon/argus/internal/storage"
)

const (
	defaultTailLines = 100

	// Files above this size are scanned line-by-line with a sliding
	// window instead of being read whole.
	logStreamThreshold = 5 << 20

	// Cap on match details carried in result metadata.
	maxReportedMatches = 20
)

// LogChecker tails a log file, locally or over SSH, and scores the tail
// against the pattern catalogue plus any user-supplied patterns.
type LogChecker struct{}

func (c *LogChecker) Type() string { return storage.TypeLog }

func (c *LogChecker) Validate(monitor *storage.Monitor) error {
	if monitor.Target == "" {
		return fmt.Errorf("log requires a file path target")
	}
	cfg := monitor.Log
	if cfg == nil {
		return nil
	}
	if cfg.TailLines < 0 {
		return fmt.Errorf("tail_lines must not be negative")
	}
	for _, p := range cfg.Patterns {
		if p.Pattern == "" {
			return fmt.Errorf("log pattern must not be empty")
		}
		if _, err := compilePattern(p.Pattern); err != nil {
			return fmt.Errorf("invalid log pattern %q: %w", p.Pattern, err)
		}
		if p.Severity != "" && !validLogSeverity(p.Severity) {
			return fmt.Errorf("log pattern severity %q must be critical, high or medium", p.Severity)
		}
	}
	if cfg.SSH != nil {
		if cfg.SSH.Host == "" {
			return fmt.Errorf("log over ssh requires a host")
		}
		if cfg.SSH.Username == "" {
			return fmt.Errorf("log over ssh requires a username")
		}
		if cfg.SSH.Password == "" && cfg.SSH.PrivateKey == "" {
			return fmt.Errorf("log over ssh requires a password or a private key")
		}
	}
	return nil
}

func (c *LogChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Result, error) {
	var cfg storage.LogConfig
	if monitor.Log != nil {
		cfg = *monitor.Log
	}
	n := cfg.TailLines
	if n <= 0 {
		n = defaultTailLines
	}

	start := time.Now()
	var (
		lines []string
		err   error
	)
	if cfg.SSH != nil {
		lines, err = c.readRemoteTail(ctx, monitor, cfg.SSH, n)
	} else {
		lines, err = readLocalTail(monitor.Target, n)
	}
	if err != nil {
		return ErrorResult("read log: %v", err), nil
	}
	elapsed := time.Since(start).Milliseconds()

	patterns := make([]logPattern, 0, len(builtinLogPatterns)+len(cfg.Patterns))
	patterns = append(patterns, builtinLogPatterns...)
	for _, p := range cfg.Patterns {
		re, err := compilePattern(p.Pattern)
		if err != nil {
			return ErrorResult("invalid log pattern %q: %v", p.Pattern, err), nil
		}
		sev := p.Severity
		if sev == "" {
			sev = logSevHigh
		}
		category := p.Category
		if category == "" {
			category = "custom"
		}
		patterns = append(patterns, logPattern{category: category, severity: sev, re: re, remediation: p.Remediation})
	}

	critical, high, medium, details := scanLogLines(lines, patterns)

	result := &Result{
		Value:        Float(float64(critical + high)),
		ResponseTime: elapsed,
		Timestamp:    time.Now().UTC(),
		Metadata: map[string]any{
			"lines_scanned":  len(lines),
			"critical_count": critical,
			"high_count":     high,
			"medium_count":   medium,
		},
	}
	if len(details) > 0 {
		result.Metadata["matches"] = details
	}

	switch {
	case critical > 0:
		result.Status = StatusAlarm
	case high > 0 || medium > 0:
		result.Status = StatusWarning
		result.Success = true
	default:
		result.Status = StatusOK
		result.Success = true
	}
	result.Message = fmt.Sprintf("%d critical, %d high, %d medium in last %d lines",
		critical, high, medium, len(lines))
	return result, nil
}

// readRemoteTail tails the target path on ssh.Host. The monitor target is
// the file path in both local and remote mode.
func (c *LogChecker) readRemoteTail(ctx context.Context, monitor *storage.Monitor, ssh *storage.SSHConfig, n int) ([]string, error) {
	client, err := sshx.Dial(ctx, sshx.Config{
		Host:       ssh.Host,
		Port:       ssh.Port,
		User:       ssh.Username,
		Password:   ssh.Password,
		PrivateKey: ssh.PrivateKey,
		Passphrase: ssh.Passphrase,
		Timeout:    time.Duration(monitor.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("ssh connect: %w", err)
	}
	defer client.Close()

	stdout, stderr, err := client.Run(ctx, fmt.Sprintf("tail -n %d -- %s", n, shellQuote(monitor.Target)))
	if err != nil {
		if _, ok := sshx.ExitCode(err); ok {
			return nil, fmt.Errorf("tail failed: %s", tail(stderr, 200))
		}
		return nil, err
	}
	return splitLines(stdout), nil
}

// readLocalTail returns the last n lines of the file. Small files are read
// whole; big ones are scanned with a sliding window so memory stays
// proportional to n, not to the file.
func readLocalTail(path string, n int) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if info.Size() > logStreamThreshold {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		window := make([]string, 0, n+1)
		for scanner.Scan() {
			window = append(window, scanner.Text())
			if len(window) > n {
				window = window[1:]
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return window, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := splitLines(string(data))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func scanLogLines(lines []string, patterns []logPattern) (critical, high, medium int, details []map[string]any) {
	for _, line := range lines {
		for _, p := range patterns {
			if !p.re.MatchString(line) {
				continue
			}
			switch p.severity {
			case logSevCritical:
				critical++
			case logSevHigh:
				high++
			default:
				medium++
			}
			if len(details) < maxReportedMatches {
				detail := map[string]any{
					"line":     truncateLine(line, 300),
					"category": p.category,
					"severity": p.severity,
				}
				if p.remediation != "" {
					detail["remediation"] = p.remediation
				}
				details = append(details, detail)
			}
		}
	}
	return critical, high, medium, details
}

func truncateLine(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var shellQuoteRe = regexp.MustCompile(`'`)

// shellQuote wraps s in single quotes for the remote shell.
func shellQuote(s string) string {
	return "'" + shellQuoteRe.ReplaceAllString(s, `'\''`) + "'"
}
