package storage

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Monitor types.
const (
	TypeURL         = "url"
	TypeAPIPost     = "api_post"
	TypeSSH         = "ssh"
	TypePing        = "ping"
	TypeLog         = "log"
	TypeCertificate = "certificate"
	TypeDocker      = "docker"
	TypeAWS         = "aws"
	TypeGCP         = "gcp"
	TypeAzure       = "azure"
)

// Alert severities.
const (
	SeverityWarning = "warning"
	SeverityAlarm   = "alarm"
)

// Alert lifecycle statuses. The first three form the "active set": at most
// one alert per monitor may be in it at any time.
const (
	AlertActive       = "active"
	AlertAcknowledged = "acknowledged"
	AlertInRecovery   = "in_recovery"
	AlertRecovered    = "recovered"
)

// Hysteresis defaults, applied when a monitor leaves the counter at zero.
const (
	DefaultConsecutiveWarning = 2
	DefaultConsecutiveAlarm   = 3
	DefaultResetAfterMOk      = 2
)

// Monitor is the configuration record for one probe target. Exactly one
// type-specific config block matching Type is set; the rest stay nil.
// Monitors are created and mutated only through the API, never by the
// engine itself.
type Monitor struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Type        string             `bson:"type" json:"type"`
	Target      string             `bson:"target" json:"target"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`

	// Classification thresholds; absent thresholds are ignored.
	LowWarning  *float64 `bson:"low_warning,omitempty" json:"low_warning,omitempty"`
	HighWarning *float64 `bson:"high_warning,omitempty" json:"high_warning,omitempty"`
	LowAlarm    *float64 `bson:"low_alarm,omitempty" json:"low_alarm,omitempty"`
	HighAlarm   *float64 `bson:"high_alarm,omitempty" json:"high_alarm,omitempty"`

	// Hysteresis counters.
	ConsecutiveWarning int `bson:"consecutive_warning" json:"consecutive_warning"`
	ConsecutiveAlarm   int `bson:"consecutive_alarm" json:"consecutive_alarm"`
	ResetAfterMOk      int `bson:"reset_after_m_ok" json:"reset_after_m_ok"`

	PeriodMinutes  int `bson:"period_minutes" json:"period_minutes"`
	TimeoutSeconds int `bson:"timeout_seconds" json:"timeout_seconds"`

	Contacts     []Contact `bson:"contacts,omitempty" json:"contacts,omitempty"`
	Dependencies []string  `bson:"dependencies,omitempty" json:"dependencies,omitempty"`

	Active  bool `bson:"active" json:"active"`
	Running bool `bson:"running" json:"running"`

	MaintenanceWindows []MaintenanceWindow `bson:"maintenance_windows,omitempty" json:"maintenance_windows,omitempty"`
	AlertSettings      AlertSettings       `bson:"alert_settings" json:"alert_settings"`

	Severity      string    `bson:"severity,omitempty" json:"severity,omitempty"` // business priority label
	CreatedBy     string    `bson:"created_by,omitempty" json:"created_by,omitempty"`
	BusinessOwner string    `bson:"business_owner,omitempty" json:"business_owner,omitempty"`
	CreationTime  time.Time `bson:"creation_time" json:"creation_time"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`

	URL         *URLConfig         `bson:"url_config,omitempty" json:"url_config,omitempty"`
	APIPost     *APIPostConfig     `bson:"api_post_config,omitempty" json:"api_post_config,omitempty"`
	SSH         *SSHConfig         `bson:"ssh_config,omitempty" json:"ssh_config,omitempty"`
	Ping        *PingConfig        `bson:"ping_config,omitempty" json:"ping_config,omitempty"`
	Log         *LogConfig         `bson:"log_config,omitempty" json:"log_config,omitempty"`
	Certificate *CertificateConfig `bson:"certificate_config,omitempty" json:"certificate_config,omitempty"`
	Docker      *DockerConfig      `bson:"docker_config,omitempty" json:"docker_config,omitempty"`
	AWS         *AWSConfig         `bson:"aws_config,omitempty" json:"aws_config,omitempty"`
	GCP         *GCPConfig         `bson:"gcp_config,omitempty" json:"gcp_config,omitempty"`
	Azure       *AzureConfig       `bson:"azure_config,omitempty" json:"azure_config,omitempty"`
}

// InMaintenance reports whether at is inside any maintenance window.
func (m *Monitor) InMaintenance(at time.Time) bool {
	for _, w := range m.MaintenanceWindows {
		if !at.Before(w.Start) && !at.After(w.End) {
			return true
		}
	}
	return false
}

// WarningThreshold returns consecutive_warning or its default.
func (m *Monitor) WarningThreshold() int {
	if m.ConsecutiveWarning > 0 {
		return m.ConsecutiveWarning
	}
	return DefaultConsecutiveWarning
}

// AlarmThreshold returns consecutive_alarm or its default.
func (m *Monitor) AlarmThreshold() int {
	if m.ConsecutiveAlarm > 0 {
		return m.ConsecutiveAlarm
	}
	return DefaultConsecutiveAlarm
}

// RecoveryThreshold returns reset_after_m_ok or its default.
func (m *Monitor) RecoveryThreshold() int {
	if m.ResetAfterMOk > 0 {
		return m.ResetAfterMOk
	}
	return DefaultResetAfterMOk
}

// Contact is an alert recipient. Email is the required key; the other
// channels are informational until implemented.
type Contact struct {
	Name   string          `bson:"name" json:"name"`
	Email  string          `bson:"email" json:"email"`
	Mobile string          `bson:"mobile,omitempty" json:"mobile,omitempty"`
	Role   string          `bson:"role,omitempty" json:"role,omitempty"`
	Prefs  map[string]bool `bson:"prefs,omitempty" json:"prefs,omitempty"`
}

// MaintenanceWindow suppresses checks between Start and End, inclusive.
type MaintenanceWindow struct {
	Start time.Time `bson:"start" json:"start"`
	End   time.Time `bson:"end" json:"end"`
}

// AlertSettings holds per-monitor alerting options.
type AlertSettings struct {
	SendDailyReminder bool `bson:"send_daily_reminder" json:"send_daily_reminder"`
}

// URLConfig configures the url checker.
type URLConfig struct {
	StatusCodes     []int             `bson:"status_codes,omitempty" json:"status_codes,omitempty"`
	PositivePattern string            `bson:"positive_pattern,omitempty" json:"positive_pattern,omitempty"`
	NegativePattern string            `bson:"negative_pattern,omitempty" json:"negative_pattern,omitempty"`
	Headers         map[string]string `bson:"headers,omitempty" json:"headers,omitempty"`
}

// APIPostConfig configures the api_post checker. PostBody must be valid JSON.
type APIPostConfig struct {
	PostBody        string            `bson:"post_body" json:"post_body"`
	StatusCodes     []int             `bson:"status_codes,omitempty" json:"status_codes,omitempty"`
	PositivePattern string            `bson:"positive_pattern,omitempty" json:"positive_pattern,omitempty"`
	NegativePattern string            `bson:"negative_pattern,omitempty" json:"negative_pattern,omitempty"`
	Headers         map[string]string `bson:"headers,omitempty" json:"headers,omitempty"`
}

// SSHConfig configures the ssh checker. It is also embedded by the log and
// docker checkers for their remote transports; only then is Host used (the
// ssh checker itself connects to the monitor target). Password and
// PrivateKey are alternatives; PrivateKey wins when both are set.
type SSHConfig struct {
	Host            string `bson:"host,omitempty" json:"host,omitempty"`
	Port            int    `bson:"port,omitempty" json:"port,omitempty"`
	Username        string `bson:"username" json:"username"`
	Password        string `bson:"password,omitempty" json:"password,omitempty"`
	PrivateKey      string `bson:"private_key,omitempty" json:"private_key,omitempty"`
	Passphrase      string `bson:"passphrase,omitempty" json:"passphrase,omitempty"`
	Command         string `bson:"command,omitempty" json:"command,omitempty"`
	PositivePattern string `bson:"positive_pattern,omitempty" json:"positive_pattern,omitempty"`
	NegativePattern string `bson:"negative_pattern,omitempty" json:"negative_pattern,omitempty"`
}

// PingConfig configures the ping checker.
type PingConfig struct {
	Count int `bson:"count,omitempty" json:"count,omitempty"`
}

// LogConfig configures the log checker. Target is the file path; SSH, when
// set, tails the file on the remote host instead of locally.
type LogConfig struct {
	TailLines int          `bson:"tail_lines,omitempty" json:"tail_lines,omitempty"`
	Patterns  []LogPattern `bson:"patterns,omitempty" json:"patterns,omitempty"`
	SSH       *SSHConfig   `bson:"ssh,omitempty" json:"ssh,omitempty"`
}

// LogPattern is a user-supplied log pattern with its severity.
type LogPattern struct {
	Pattern     string `bson:"pattern" json:"pattern"`
	Severity    string `bson:"severity,omitempty" json:"severity,omitempty"` // critical, high, medium
	Category    string `bson:"category,omitempty" json:"category,omitempty"`
	Remediation string `bson:"remediation,omitempty" json:"remediation,omitempty"`
}

// CertificateConfig configures the certificate checker. Target is the
// hostname; Port defaults to 443.
type CertificateConfig struct {
	Port                 int `bson:"port,omitempty" json:"port,omitempty"`
	WarningThresholdDays int `bson:"warning_threshold_days,omitempty" json:"warning_threshold_days,omitempty"`
	AlarmThresholdDays   int `bson:"alarm_threshold_days,omitempty" json:"alarm_threshold_days,omitempty"`
}

// DockerConfig configures the docker checker. Exactly one transport is
// used: Host (tcp), SSH (remote docker CLI), or the local socket.
type DockerConfig struct {
	Socket string     `bson:"socket,omitempty" json:"socket,omitempty"`
	Host   string     `bson:"host,omitempty" json:"host,omitempty"` // host:port for tcp
	SSH    *SSHConfig `bson:"ssh,omitempty" json:"ssh,omitempty"`

	// Container selection; Target is used as a name filter when all are empty.
	Name  string `bson:"name,omitempty" json:"name,omitempty"`
	Image string `bson:"image,omitempty" json:"image,omitempty"`

	CPUWarning     float64 `bson:"cpu_warning,omitempty" json:"cpu_warning,omitempty"`
	CPUCritical    float64 `bson:"cpu_critical,omitempty" json:"cpu_critical,omitempty"`
	MemoryWarning  float64 `bson:"memory_warning,omitempty" json:"memory_warning,omitempty"`
	MemoryCritical float64 `bson:"memory_critical,omitempty" json:"memory_critical,omitempty"`
	RestartLimit   int     `bson:"restart_limit,omitempty" json:"restart_limit,omitempty"`
}

// AWSConfig configures the aws checker. Target is the resource id (for
// example an EC2 instance id).
type AWSConfig struct {
	Region          string `bson:"region" json:"region"`
	AccessKeyID     string `bson:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `bson:"secret_access_key" json:"secret_access_key"`
	Service         string `bson:"service,omitempty" json:"service,omitempty"` // ec2, rds, lambda
}

// GCPConfig configures the gcp checker. Target is the resource label value
// (for example a GCE instance id).
type GCPConfig struct {
	ProjectID       string `bson:"project_id" json:"project_id"`
	CredentialsFile string `bson:"credentials_file,omitempty" json:"credentials_file,omitempty"`
	CredentialsJSON string `bson:"credentials_json,omitempty" json:"credentials_json,omitempty"`
	Service         string `bson:"service,omitempty" json:"service,omitempty"` // gce, cloudsql
}

// AzureConfig configures the azure checker. Target is the full ARM
// resource id.
type AzureConfig struct {
	TenantID     string `bson:"tenant_id" json:"tenant_id"`
	ClientID     string `bson:"client_id" json:"client_id"`
	ClientSecret string `bson:"client_secret" json:"client_secret"`
	Service      string `bson:"service,omitempty" json:"service,omitempty"` // vm, app_service
}

// MonitorState holds the hysteresis counters and current severity of one
// monitor. Created on the first observation; mutated only by the state
// manager; deleted with the monitor.
type MonitorState struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	MonitorID            primitive.ObjectID `bson:"monitor_id" json:"monitor_id"`
	CurrentStatus        string             `bson:"current_status" json:"current_status"`
	ConsecutiveFailures  int                `bson:"consecutive_failures" json:"consecutive_failures"`
	ConsecutiveSuccesses int                `bson:"consecutive_successes" json:"consecutive_successes"`
	LastCheckTime        *time.Time         `bson:"last_check_time,omitempty" json:"last_check_time,omitempty"`
	LastValue            *float64           `bson:"last_value,omitempty" json:"last_value,omitempty"`
	LastError            string             `bson:"last_error,omitempty" json:"last_error,omitempty"`
	ActiveAlertID        string             `bson:"active_alert_id,omitempty" json:"active_alert_id,omitempty"`
	ActiveAlertSeverity  string             `bson:"active_alert_severity,omitempty" json:"active_alert_severity,omitempty"`
	RecoveryInProgress   bool               `bson:"recovery_in_progress" json:"recovery_in_progress"`
	RecoveryAttemptCount int                `bson:"recovery_attempt_count" json:"recovery_attempt_count"`
	UpdatedAt            time.Time          `bson:"updated_at" json:"updated_at"`
}

// Alert is a persistent record of a crossed threshold. Lifecycle:
// active -> (optionally upgraded in place) -> in_recovery -> recovered.
type Alert struct {
	ID                  string             `bson:"_id" json:"id"` // uuid
	MonitorID           primitive.ObjectID `bson:"monitor_id" json:"monitor_id"`
	MonitorName         string             `bson:"monitor_name" json:"monitor_name"` // snapshot at open time
	Severity            string             `bson:"severity" json:"severity"`
	Status              string             `bson:"status" json:"status"`
	TriggeredAt         time.Time          `bson:"triggered_at" json:"triggered_at"`
	RecoveredAt         *time.Time         `bson:"recovered_at,omitempty" json:"recovered_at,omitempty"`
	CurrentValue        *float64           `bson:"current_value,omitempty" json:"current_value,omitempty"`
	ThresholdValue      *float64           `bson:"threshold_value,omitempty" json:"threshold_value,omitempty"`
	ConsecutiveFailures int                `bson:"consecutive_failures" json:"consecutive_failures"`
	NotificationsSent   []NotificationLog  `bson:"notifications_sent,omitempty" json:"notifications_sent,omitempty"`
	LastNotificationAt  *time.Time         `bson:"last_notification_at,omitempty" json:"last_notification_at,omitempty"`
	Message             string             `bson:"message,omitempty" json:"message,omitempty"`
	Metadata            map[string]any     `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// NotificationLog records one delivery attempt. Appended regardless of
// outcome; together with last_notification_at it is the dedup source of
// truth.
type NotificationLog struct {
	Channel   string    `bson:"channel" json:"channel"`
	Recipient string    `bson:"recipient" json:"recipient"`
	SentAt    time.Time `bson:"sent_at" json:"sent_at"`
	Status    string    `bson:"status" json:"status"` // sent, failed
	MessageID string    `bson:"message_id,omitempty" json:"message_id,omitempty"`
	Error     string    `bson:"error,omitempty" json:"error,omitempty"`
}

// Observation is one probe outcome, written append-only and expired after
// the retention period.
type Observation struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	MonitorID    primitive.ObjectID `bson:"monitor_id" json:"monitor_id"`
	Timestamp    time.Time          `bson:"timestamp" json:"timestamp"`
	Value        *float64           `bson:"value,omitempty" json:"value,omitempty"`
	Status       string             `bson:"status" json:"status"`
	ResponseTime int64              `bson:"response_time,omitempty" json:"response_time,omitempty"` // milliseconds
	StatusCode   int                `bson:"status_code,omitempty" json:"status_code,omitempty"`
	Error        string             `bson:"error,omitempty" json:"error,omitempty"`
	Metadata     map[string]any     `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// QueuedNotification mirrors each delivery attempt into the notification
// queue collection for auditing and later inspection.
type QueuedNotification struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AlertID     string             `bson:"alert_id" json:"alert_id"`
	MonitorID   primitive.ObjectID `bson:"monitor_id" json:"monitor_id"`
	Channel     string             `bson:"channel" json:"channel"`
	Recipient   string             `bson:"recipient" json:"recipient"`
	Subject     string             `bson:"subject,omitempty" json:"subject,omitempty"`
	Status      string             `bson:"status" json:"status"` // pending, sent, failed
	ScheduledAt time.Time          `bson:"scheduled_at" json:"scheduled_at"`
	SentAt      *time.Time         `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
	Error       string             `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
