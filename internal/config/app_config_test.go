package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &AppConfig{LogLevel: tt.logLevel}
			assert.Equal(t, tt.want, c.SlogLevel())
		})
	}
}

func TestAppConfig_DirectoryPaths(t *testing.T) {
	c := &AppConfig{DataDir: "/data"}
	assert.Equal(t, "/data/logs", c.LogDir())
	assert.Equal(t, "/data/notifier.db", c.DatabasePath())
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STATE_STORE", "NATS_URL", "NOTIFY_SNAPSHOT_SOURCE", "SUBSCRIBERS_FILE",
		"GRPC_PORT", "HTTP_PORT", "SMTP_TIMEOUT", "FANOUT_FAILURE_POLICY",
		"REGISTRY_IDLE_TIMEOUT", "REGISTRY_SCAN_INTERVAL", "LOG_LEVEL",
		"STATE_STORE_NAME", "NATS_SUBJECT_PREFIX", "NATS_EVENT_SUBJECT_PREFIX", "OTEL_EXPORTER_OTLP_ENDPOINT", "SMTP_PORT", "SMTP_ENCRYPTION",
		"LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
		"SCHEDULES_FILE", "SCHEDULER_MAX_CONCURRENT",
	} {
		// Setenv registers the restore; envconfig treats an empty value as set.
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTIFIER_DATA_DIR", "/tmp/test-notifier")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test-notifier", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3001, cfg.GRPCPort)
	assert.Equal(t, 3002, cfg.HTTPPort)
	assert.Equal(t, StateStoreSQLite, cfg.StateStore)
	assert.Equal(t, "statestore", cfg.StateStoreName)
	assert.Equal(t, "notifications.invoke", cfg.NATSSubjectPrefix)
	assert.Equal(t, "notifications.events", cfg.NATSEventSubjectPrefix)
	assert.Empty(t, cfg.OTelEndpoint)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, 30*time.Second, cfg.SMTPTimeout)
	assert.Equal(t, "continue", cfg.FanoutFailurePolicy)
	assert.Equal(t, SnapshotSourceRegistry, cfg.NotifySnapshotSource)
	assert.Equal(t, time.Hour, cfg.RegistryIdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.RegistryScanInterval)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTIFIER_DATA_DIR", "/srv/notifier")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GRPC_PORT", "50051")
	t.Setenv("STATE_STORE", "nats")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("SMTP_TIMEOUT", "5s")
	t.Setenv("REGISTRY_IDLE_TIMEOUT", "10m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50051, cfg.GRPCPort)
	assert.Equal(t, StateStoreNATS, cfg.StateStore)
	assert.Equal(t, 5*time.Second, cfg.SMTPTimeout)
	assert.Equal(t, 10*time.Minute, cfg.RegistryIdleTimeout)
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTIFIER_DATA_DIR", "/tmp/x")
	t.Setenv("HTTP_PORT", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AppConfig
		wantErr string
	}{
		{
			name: "sqlite with registry source",
			cfg:  AppConfig{StateStore: StateStoreSQLite, NotifySnapshotSource: SnapshotSourceRegistry},
		},
		{
			name:    "unknown store",
			cfg:     AppConfig{StateStore: "redis", NotifySnapshotSource: SnapshotSourceRegistry},
			wantErr: "unknown STATE_STORE",
		},
		{
			name:    "nats store without url",
			cfg:     AppConfig{StateStore: StateStoreNATS, NotifySnapshotSource: SnapshotSourceRegistry},
			wantErr: "requires NATS_URL",
		},
		{
			name:    "file source without file",
			cfg:     AppConfig{StateStore: StateStoreMemory, NotifySnapshotSource: SnapshotSourceFile},
			wantErr: "requires SUBSCRIBERS_FILE",
		},
		{
			name:    "unknown source",
			cfg:     AppConfig{StateStore: StateStoreMemory, NotifySnapshotSource: "ldap"},
			wantErr: "unknown NOTIFY_SNAPSHOT_SOURCE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
