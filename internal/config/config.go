package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Advisor   AdvisorConfig   `yaml:"advisor"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxBodySize     int64         `yaml:"max_body_size"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

// DatabaseConfig points at MongoDB. URI "memory" selects the in-process
// store, used by tests and local runs without a database.
type DatabaseConfig struct {
	URI  string `yaml:"uri"`
	Name string `yaml:"name"`
}

type SchedulerConfig struct {
	Workers    int           `yaml:"workers"`
	Tick       time.Duration `yaml:"tick"`
	AutoStart  bool          `yaml:"auto_start"`
	StartDelay time.Duration `yaml:"start_delay"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type AdvisorConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type RetentionConfig struct {
	AlertDays int           `yaml:"alert_days"`
	QueueDays int           `yaml:"queue_days"`
	Period    time.Duration `yaml:"period"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          "127.0.0.1:8090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			MaxBodySize:     1 << 20, // 1MB
			RateLimitPerSec: 30,
			RateLimitBurst:  60,
		},
		Database: DatabaseConfig{
			URI:  "mongodb://localhost:27017",
			Name: "monitoring_system",
		},
		Scheduler: SchedulerConfig{
			Workers:    10,
			Tick:       60 * time.Second,
			StartDelay: 3 * time.Second,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Retention: RetentionConfig{
			AlertDays: 90,
			QueueDays: 30,
			Period:    1 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path, expands ${VAR} references, applies
// the environment overrides and validates the result. An empty path
// yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays the well-known environment variables. They win over
// both defaults and file values.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("MONGODB_URI"); ok {
		c.Database.URI = v
	}
	if v, ok := os.LookupEnv("MONGODB_DB_NAME"); ok {
		c.Database.Name = v
	}
	if v, ok := os.LookupEnv("AUTO_START_SCHEDULER"); ok {
		c.Scheduler.AutoStart = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v, ok := os.LookupEnv("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := os.LookupEnv("SMTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		c.SMTP.Port = port
	}
	if v, ok := os.LookupEnv("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := os.LookupEnv("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := os.LookupEnv("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := os.LookupEnv("ADVISOR_API_KEY"); ok {
		c.Advisor.APIKey = v
	}
	if v, ok := os.LookupEnv("ADVISOR_MODEL"); ok {
		c.Advisor.Model = v
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateSMTP(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	return validateLogLevel(c.Logging.Level)
}

func (c *Config) validateServer() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("server.max_body_size must be positive")
	}
	if c.Server.RateLimitPerSec <= 0 {
		return fmt.Errorf("server.rate_limit_per_sec must be positive")
	}
	if c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("server.rate_limit_burst must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.URI == "" {
		return fmt.Errorf("database.uri is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be positive")
	}
	if c.Scheduler.Tick < time.Second {
		return fmt.Errorf("scheduler.tick must be at least 1s")
	}
	if c.Scheduler.StartDelay < 0 {
		return fmt.Errorf("scheduler.start_delay must not be negative")
	}
	return nil
}

func (c *Config) validateSMTP() error {
	if c.SMTP.Host == "" {
		return nil // notifications disabled
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port must be in 1..65535")
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required when smtp.host is set")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.AlertDays <= 0 {
		return fmt.Errorf("retention.alert_days must be positive")
	}
	if c.Retention.QueueDays <= 0 {
		return fmt.Errorf("retention.queue_days must be positive")
	}
	if c.Retention.Period < time.Minute {
		return fmt.Errorf("retention.period must be at least 1m")
	}
	return nil
}

func validateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
}

// EmailEnabled reports whether enough SMTP settings are present to send.
func (c *Config) EmailEnabled() bool {
	return c.SMTP.Host != "" && c.SMTP.From != ""
}

// AdvisorEnabled reports whether the advisory service is configured.
func (c *Config) AdvisorEnabled() bool {
	return c.Advisor.APIKey != ""
}

// MemoryStore reports whether the in-process store was selected.
func (c *Config) MemoryStore() bool {
	return c.Database.URI == "memory"
}
