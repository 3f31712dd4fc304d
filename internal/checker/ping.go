package checker

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/argus-mon/argus/internal/storage"
)

const defaultPingCount = 4

// Summary line dialects. POSIX:
//
//	4 packets transmitted, 4 received, 0% packet loss, time 3004ms
//	rtt min/avg/max/mdev = 11.451/11.509/11.573/0.044 ms
//
// Windows:
//
//	Packets: Sent = 4, Received = 4, Lost = 0 (0% loss),
//	Minimum = 11ms, Maximum = 12ms, Average = 11ms
var (
	posixPacketsRe = regexp.MustCompile(`(\d+) packets transmitted, (\d+)(?: packets)? received`)
	winPacketsRe   = regexp.MustCompile(`Sent = (\d+), Received = (\d+)`)
	posixRTTRe     = regexp.MustCompile(`min/avg/max[^=]*= ([\d.]+)/([\d.]+)/([\d.]+)`)
	winRTTRe       = regexp.MustCompile(`Minimum = (\d+)ms, Maximum = (\d+)ms, Average = (\d+)ms`)
)

// PingChecker shells out to the platform ping binary and parses its
// summary. Raw sockets would need elevated privileges; the binary is
// setuid everywhere we care about.
type PingChecker struct{}

func (c *PingChecker) Type() string { return storage.TypePing }

func (c *PingChecker) Validate(monitor *storage.Monitor) error {
	if monitor.Target == "" {
		return fmt.Errorf("ping requires a target host")
	}
	if monitor.Ping != nil && monitor.Ping.Count < 0 {
		return fmt.Errorf("ping count must not be negative")
	}
	return nil
}

func (c *PingChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Result, error) {
	count := defaultPingCount
	if monitor.Ping != nil && monitor.Ping.Count > 0 {
		count = monitor.Ping.Count
	}
	timeout := monitor.TimeoutSeconds
	if timeout <= 0 {
		timeout = 5
	}

	var args []string
	if runtime.GOOS == "windows" {
		args = []string{"-n", strconv.Itoa(count), "-w", strconv.Itoa(timeout * 1000), monitor.Target}
	} else {
		args = []string{"-c", strconv.Itoa(count), "-W", strconv.Itoa(timeout), monitor.Target}
	}

	cmd := exec.CommandContext(ctx, "ping", args...)
	// Non-zero exit just means lost packets; the summary is still printed.
	out, err := cmd.CombinedOutput()
	if len(out) == 0 {
		if err != nil {
			return ErrorResult("ping failed: %v", err), nil
		}
		return ErrorResult("ping produced no output"), nil
	}

	stats, ok := parsePingOutput(string(out))
	if !ok {
		return ErrorResult("unrecognized ping output"), nil
	}
	return pingResult(monitor, stats), nil
}

// pingResult turns parsed ping statistics into a classified result.
func pingResult(monitor *storage.Monitor, stats pingStats) *Result {
	result := &Result{
		Timestamp: time.Now().UTC(),
		Metadata: map[string]any{
			"packets_sent":     stats.sent,
			"packets_received": stats.received,
			"packet_loss_pct":  stats.lossPct(),
		},
	}
	if stats.haveRTT {
		result.Value = Float(stats.avg)
		result.ResponseTime = int64(stats.avg)
		result.Metadata["rtt_min_ms"] = stats.min
		result.Metadata["rtt_avg_ms"] = stats.avg
		result.Metadata["rtt_max_ms"] = stats.max
	}

	// Less than half the packets back means the link is in real trouble
	// regardless of the latency of the ones that survived.
	if stats.sent > 0 && float64(stats.received)/float64(stats.sent) < 0.5 {
		result.Status = StatusAlarm
		result.Message = fmt.Sprintf("High packet loss: %.0f%%", stats.lossPct())
		return result
	}
	if !stats.haveRTT {
		return ErrorResult("ping summary missing round-trip times")
	}

	status := Classify(stats.avg, monitorThresholds(monitor))
	result.Status = status
	result.Success = status == StatusOK || status == StatusWarning
	result.Message = fmt.Sprintf("%d/%d packets, avg %.1fms", stats.received, stats.sent, stats.avg)
	return result
}

type pingStats struct {
	sent     int
	received int
	min      float64
	avg      float64
	max      float64
	haveRTT  bool
}

func (s pingStats) lossPct() float64 {
	if s.sent == 0 {
		return 100
	}
	return float64(s.sent-s.received) / float64(s.sent) * 100
}

// parsePingOutput understands both the POSIX and the Windows summary.
func parsePingOutput(out string) (pingStats, bool) {
	var stats pingStats

	if m := posixPacketsRe.FindStringSubmatch(out); m != nil {
		stats.sent, _ = strconv.Atoi(m[1])
		stats.received, _ = strconv.Atoi(m[2])
	} else if m := winPacketsRe.FindStringSubmatch(out); m != nil {
		stats.sent, _ = strconv.Atoi(m[1])
		stats.received, _ = strconv.Atoi(m[2])
	} else {
		return stats, false
	}

	if m := posixRTTRe.FindStringSubmatch(out); m != nil {
		stats.min, _ = strconv.ParseFloat(m[1], 64)
		stats.avg, _ = strconv.ParseFloat(m[2], 64)
		stats.max, _ = strconv.ParseFloat(m[3], 64)
		stats.haveRTT = true
	} else if m := winRTTRe.FindStringSubmatch(out); m != nil {
		stats.min, _ = strconv.ParseFloat(m[1], 64)
		stats.max, _ = strconv.ParseFloat(m[2], 64)
		stats.avg, _ = strconv.ParseFloat(m[3], 64)
		stats.haveRTT = true
	}
	return stats, true
}
