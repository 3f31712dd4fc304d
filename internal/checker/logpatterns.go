package checker

import "regexp"

// Severities a log match can carry.
const (
	logSevCritical = "critical"
	logSevHigh     = "high"
	logSevMedium   = "medium"
)

// logPattern is one entry of the built-in catalogue. User patterns are
// converted into this shape at check time.
type logPattern struct {
	category    string
	severity    string
	re          *regexp.Regexp
	remediation string
}

// builtinLogPatterns covers the failure signatures that show up in
// practically every service log. Order matters only for reporting; every
// pattern is tried against every line.
var builtinLogPatterns = []logPattern{
	{
		category:    "memory",
		severity:    logSevCritical,
		re:          regexp.MustCompile(`(?i)out of memory|oom[-_ ]?kill|cannot allocate memory|memory exhausted`),
		remediation: "Check for memory leaks, raise the memory limit, or add swap. OOM kills usually repeat until the workload changes.",
	},
	{
		category:    "connection",
		severity:    logSevHigh,
		re:          regexp.MustCompile(`(?i)connection refused|connection timed?[ -]?out|connection reset by peer|no route to host`),
		remediation: "Verify the upstream service is running and reachable; check DNS, firewall rules and connection limits.",
	},
	{
		category:    "disk",
		severity:    logSevCritical,
		re:          regexp.MustCompile(`(?i)no space left on device|disk full|filesystem is full|readonly file ?system`),
		remediation: "Free disk space or extend the volume. Check that log rotation and temp-file cleanup are working.",
	},
	{
		category:    "permission",
		severity:    logSevHigh,
		re:          regexp.MustCompile(`(?i)permission denied|access denied|operation not permitted|unauthorized`),
		remediation: "Check file ownership and the permissions of the service account; recent deploys often change paths or users.",
	},
	{
		category:    "database",
		severity:    logSevHigh,
		re:          regexp.MustCompile(`(?i)database error|sql (?:error|exception)|too many connections|connection pool (?:exhausted|timeout)`),
		remediation: "Inspect database health, slow queries and pool sizing; a saturated pool usually points at a slow downstream query.",
	},
	{
		category:    "not_found",
		severity:    logSevMedium,
		re:          regexp.MustCompile(`(?i)no such file or directory|file not found|\b404\b`),
		remediation: "Confirm the referenced resource exists and configured paths are correct.",
	},
	{
		category:    "server_error",
		severity:    logSevHigh,
		re:          regexp.MustCompile(`(?i)internal server error|\bHTTP/\d\.\d" 5\d\d\b|status(?:[ =:]+)5\d\d\b`),
		remediation: "Inspect the application stack trace around these requests; 5xx bursts usually follow a bad deploy or a dead dependency.",
	},
	{
		category:    "certificate",
		severity:    logSevHigh,
		re:          regexp.MustCompile(`(?i)certificate (?:verify failed|expired|unknown|invalid)|ssl (?:error|handshake)|tls handshake (?:error|failure)`),
		remediation: "Check certificate expiry and the trust chain on both ends of the failing connection.",
	},
	{
		category:    "deadlock",
		severity:    logSevCritical,
		re:          regexp.MustCompile(`(?i)deadlock`),
		remediation: "Capture the lock graph and review transaction ordering; deadlocks rarely resolve on their own under load.",
	},
	{
		category:    "general",
		severity:    logSevMedium,
		re:          regexp.MustCompile(`(?i)\b(?:fatal|panic|exception)\b`),
		remediation: "Review the surrounding log context; this is a catch-all for errors without a more specific signature.",
	},
}

func validLogSeverity(s string) bool {
	return s == logSevCritical || s == logSevHigh || s == logSevMedium
}
