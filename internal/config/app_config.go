package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// State store backends.
const (
	StateStoreSQLite = "sqlite"
	StateStoreNATS   = "nats"
	StateStoreMemory = "memory"
)

// Notify snapshot sources.
const (
	SnapshotSourceRegistry = "registry"
	SnapshotSourceFile     = "file"
)

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// DataDir is the root data directory. Defaults to ~/.notifier.
	DataDir string `envconfig:"NOTIFIER_DATA_DIR"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"28"`

	GRPCPort int `envconfig:"GRPC_PORT" default:"3001"`
	HTTPPort int `envconfig:"HTTP_PORT" default:"3002"`

	// StateStore selects the subscription store backend: sqlite, nats or memory.
	StateStore string `envconfig:"STATE_STORE" default:"sqlite"`
	// StateStoreName is the logical store name, used as the KV bucket name for nats.
	StateStoreName string `envconfig:"STATE_STORE_NAME" default:"statestore"`

	// NATSURL enables the NATS responder and the nats state store when set.
	NATSURL           string `envconfig:"NATS_URL"`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"notifications.invoke"`
	// NATSEventSubjectPrefix is where domain events are forwarded. Empty disables forwarding.
	NATSEventSubjectPrefix string `envconfig:"NATS_EVENT_SUBJECT_PREFIX" default:"notifications.events"`

	// OTelEndpoint enables OTLP trace export when set.
	OTelEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	SMTPHost       string        `envconfig:"SMTP_HOST"`
	SMTPPort       int           `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername   string        `envconfig:"SMTP_USERNAME"`
	SMTPPassword   string        `envconfig:"SMTP_PASSWORD"`
	SMTPFrom       string        `envconfig:"SMTP_FROM"`
	SMTPEncryption string        `envconfig:"SMTP_ENCRYPTION" default:"starttls"`
	SMTPTimeout    time.Duration `envconfig:"SMTP_TIMEOUT" default:"30s"`

	// FanoutFailurePolicy is continue or abort.
	FanoutFailurePolicy string `envconfig:"FANOUT_FAILURE_POLICY" default:"continue"`

	// SubscribersFile is a YAML subscriber list used when NotifySnapshotSource is file.
	SubscribersFile      string `envconfig:"SUBSCRIBERS_FILE"`
	NotifySnapshotSource string `envconfig:"NOTIFY_SNAPSHOT_SOURCE" default:"registry"`

	// SchedulesFile lists recurring notifications. Empty disables the scheduler.
	SchedulesFile          string `envconfig:"SCHEDULES_FILE"`
	SchedulerMaxConcurrent int    `envconfig:"SCHEDULER_MAX_CONCURRENT" default:"2"`

	RegistryIdleTimeout  time.Duration `envconfig:"REGISTRY_IDLE_TIMEOUT" default:"1h"`
	RegistryScanInterval time.Duration `envconfig:"REGISTRY_SCAN_INTERVAL" default:"30s"`
}

// Load reads AppConfig from environment variables using envconfig.
// DataDir defaults to ~/.notifier if not set.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".notifier")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the enumerated settings.
func (c *AppConfig) Validate() error {
	switch c.StateStore {
	case StateStoreSQLite, StateStoreMemory:
	case StateStoreNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("STATE_STORE=nats requires NATS_URL")
		}
	default:
		return fmt.Errorf("unknown STATE_STORE %q (must be sqlite, nats or memory)", c.StateStore)
	}

	switch c.NotifySnapshotSource {
	case SnapshotSourceRegistry:
	case SnapshotSourceFile:
		if c.SubscribersFile == "" {
			return fmt.Errorf("NOTIFY_SNAPSHOT_SOURCE=file requires SUBSCRIBERS_FILE")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_SNAPSHOT_SOURCE %q (must be registry or file)", c.NotifySnapshotSource)
	}
	return nil
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogDir returns the path to the log directory (~/.notifier/logs).
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// DatabasePath returns the path to the SQLite database.
func (c *AppConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "notifier.db")
}
