// Package config provides configuration loading and management for the sync server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultTimezone is the pool timezone used for all calendar decisions
	DefaultTimezone = "America/Los_Angeles"

	// DefaultHeartbeat is the coordinator tick interval
	DefaultHeartbeat = time.Minute

	// DefaultLivePollInterval is how often scores are polled while games are live
	DefaultLivePollInterval = 5 * time.Minute

	// DefaultKickoffSyncHour is the local hour after which the daily kickoff
	// refresh becomes due
	DefaultKickoffSyncHour = 6

	// DefaultTueWarningHour is the local hour after which the Tuesday
	// missing-picks reminder becomes due
	DefaultTueWarningHour = 17

	// DefaultFeedEndpoint is the public scoreboard endpoint
	DefaultFeedEndpoint = "https://site.api.espn.com/apis/site/v2/sports/football/nfl/scoreboard"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Database      *DatabaseConfig     `yaml:"database"`
	Feed          FeedConfig          `yaml:"feed,omitempty"`
	Scheduler     SchedulerConfig     `yaml:"scheduler,omitempty"`
	Notifications NotificationsConfig `yaml:"notifications,omitempty"`
	Telemetry     *TelemetryConfig    `yaml:"telemetry,omitempty"`
}

// FeedConfig defines the external scoreboard feed settings
type FeedConfig struct {
	// Endpoint is the scoreboard URL queried with year/week/seasontype params
	Endpoint string `yaml:"endpoint,omitempty"`

	// Timeout bounds a single feed request (e.g. "15s")
	Timeout string `yaml:"timeout,omitempty"`
}

// SchedulerConfig defines the coordinator calendar and cadence settings
type SchedulerConfig struct {
	// Timezone is the IANA timezone all due-window decisions are made in
	Timezone string `yaml:"timezone,omitempty"`

	// Heartbeat is the coordinator tick interval (e.g. "1m")
	Heartbeat string `yaml:"heartbeat,omitempty"`

	// LivePollInterval is the minimum gap between score_sync runs (e.g. "5m")
	LivePollInterval string `yaml:"livePollInterval,omitempty"`

	// KickoffSyncHour is the local hour (0-23) after which kickoff_sync is due
	KickoffSyncHour int `yaml:"kickoffSyncHour,omitempty"`

	// TueWarningHour is the local hour (0-23) after which tuesday_warn is due
	TueWarningHour int `yaml:"tueWarningHour,omitempty"`
}

// NotificationsConfig defines the outbound bulk-message collaborator
type NotificationsConfig struct {
	// WebhookURL is the bulk-send endpoint. When empty, messages are logged
	// instead of sent.
	WebhookURL string `yaml:"webhookUrl,omitempty"`

	// Timeout bounds a single send request (e.g. "10s")
	Timeout string `yaml:"timeout,omitempty"`
}

// TelemetryConfig defines the metrics export settings
type TelemetryConfig struct {
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig defines OTLP metric export settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxConns is the maximum number of pooled connections
	MaxConns int32 `yaml:"maxConns,omitempty"`

	// MinConns is the minimum number of pooled connections kept open
	MinConns int32 `yaml:"minConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from PP_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv("PP_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or PP_DATABASE_PASSWORD environment variable",
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	escapedPassword := url.QueryEscape(password)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		escapedPassword,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// GetEndpoint returns the feed endpoint with the default applied.
func (f *FeedConfig) GetEndpoint() string {
	if f.Endpoint == "" {
		return DefaultFeedEndpoint
	}
	return f.Endpoint
}

// GetTimeout parses the feed timeout with a 15s default.
func (f *FeedConfig) GetTimeout() (time.Duration, error) {
	return parseDuration(f.Timeout, 15*time.Second)
}

// GetTimezone returns the scheduler timezone with the default applied.
func (s *SchedulerConfig) GetTimezone() string {
	if s.Timezone == "" {
		return DefaultTimezone
	}
	return s.Timezone
}

// GetHeartbeat parses the heartbeat interval with the default applied.
func (s *SchedulerConfig) GetHeartbeat() (time.Duration, error) {
	return parseDuration(s.Heartbeat, DefaultHeartbeat)
}

// GetLivePollInterval parses the live poll interval with the default applied.
func (s *SchedulerConfig) GetLivePollInterval() (time.Duration, error) {
	return parseDuration(s.LivePollInterval, DefaultLivePollInterval)
}

// GetKickoffSyncHour returns the kickoff sync hour with the default applied.
func (s *SchedulerConfig) GetKickoffSyncHour() int {
	if s.KickoffSyncHour == 0 {
		return DefaultKickoffSyncHour
	}
	return s.KickoffSyncHour
}

// GetTueWarningHour returns the Tuesday warning hour with the default applied.
func (s *SchedulerConfig) GetTueWarningHour() int {
	if s.TueWarningHour == 0 {
		return DefaultTueWarningHour
	}
	return s.TueWarningHour
}

// GetTimeout parses the notification send timeout with a 10s default.
func (n *NotificationsConfig) GetTimeout() (time.Duration, error) {
	return parseDuration(n.Timeout, 10*time.Second)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks that the configuration is complete and internally
// consistent. It is called by LoadConfig and can be used directly on
// configurations parsed from other sources.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if _, err := c.Scheduler.GetHeartbeat(); err != nil {
		return fmt.Errorf("scheduler heartbeat: %w", err)
	}
	if _, err := c.Scheduler.GetLivePollInterval(); err != nil {
		return fmt.Errorf("scheduler livePollInterval: %w", err)
	}
	if h := c.Scheduler.KickoffSyncHour; h < 0 || h > 23 {
		return fmt.Errorf("scheduler kickoffSyncHour must be between 0 and 23")
	}
	if h := c.Scheduler.TueWarningHour; h < 0 || h > 23 {
		return fmt.Errorf("scheduler tueWarningHour must be between 0 and 23")
	}

	if _, err := c.Feed.GetTimeout(); err != nil {
		return fmt.Errorf("feed timeout: %w", err)
	}
	if _, err := c.Notifications.GetTimeout(); err != nil {
		return fmt.Errorf("notifications timeout: %w", err)
	}

	return nil
}
