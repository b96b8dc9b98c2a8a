package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, DriverSQLite, cfg.Database.Driver)
	require.Equal(t, "data/monitor.db", cfg.Database.DSN)
	require.Equal(t, "screenshots", cfg.Storage.ScreenshotDir)
	require.Equal(t, ModeHeadless, cfg.Probe.Mode)
	require.Equal(t, 30*time.Second, cfg.Probe.NavigationTimeout)
	require.Equal(t, 5*time.Second, cfg.Probe.NotifyTimeout)
	require.Equal(t, 7*24*time.Hour, cfg.RetentionHorizon())
	require.Equal(t, "00:00", cfg.Retention.DailyAt)
	require.Equal(t, ":8080", cfg.Addr())
	require.False(t, cfg.Notify.PubSub.Enabled())
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  username: ops
  password: hunter2
database:
  driver: postgres
  dsn: postgres://localhost/sitewatch
  max_conns: 4
probe:
  mode: static
  navigation_timeout: 10s
dispatcher:
  concurrency: 8
  queue_depth: 16
retention:
  days: 14
  daily_at: "03:30"
notify:
  webhook_url: https://discord.example/hook
  pubsub:
    project_id: proj
    topic: alerts
logging:
  development: false
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, "")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, AuthConfig{Username: "ops", Password: "hunter2"}, cfg.Auth)
	require.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.Equal(t, int32(4), cfg.Database.MaxConns)
	require.Equal(t, ModeStatic, cfg.Probe.Mode)
	require.Equal(t, 10*time.Second, cfg.Probe.NavigationTimeout)
	require.Equal(t, 8, cfg.Dispatcher.Concurrency)
	require.Equal(t, 14*24*time.Hour, cfg.RetentionHorizon())
	require.Equal(t, "03:30", cfg.Retention.DailyAt)
	require.Equal(t, "https://discord.example/hook", cfg.Notify.WebhookURL)
	require.True(t, cfg.Notify.PubSub.Enabled())
	require.False(t, cfg.Logging.Development)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SITEWATCH_SERVER_PORT", "7070")
	t.Setenv("SITEWATCH_DATABASE_DRIVER", "memory")
	t.Setenv("ADMIN_USERNAME", "legacy-user")
	t.Setenv("ADMIN_PASSWORD", "legacy-pass")
	t.Setenv("DISCORD_WEBHOOK", "https://discord.example/legacy")

	cfg, err := Load("", "")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, DriverMemory, cfg.Database.Driver)
	require.Equal(t, "legacy-user", cfg.Auth.Username)
	require.Equal(t, "legacy-pass", cfg.Auth.Password)
	require.Equal(t, "https://discord.example/legacy", cfg.Notify.WebhookURL)
}

func TestPrefixedEnvWinsOverLegacyName(t *testing.T) {
	t.Setenv("SITEWATCH_AUTH_USERNAME", "new")
	t.Setenv("ADMIN_USERNAME", "old")

	cfg, err := Load("", "")
	require.NoError(t, err)
	require.Equal(t, "new", cfg.Auth.Username)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SITEWATCH_RETENTION_DAYS=3\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("SITEWATCH_RETENTION_DAYS") })

	cfg, err := Load("", path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Retention.Days)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.ErrorContains(t, err, "read config")
}

func validConfig() Config {
	return Config{
		Server:     ServerConfig{Port: 8080},
		Auth:       AuthConfig{Username: "admin", Password: "password"},
		Database:   DatabaseConfig{Driver: DriverSQLite, DSN: "monitor.db"},
		Probe:      ProbeConfig{Mode: ModeHeadless, NavigationTimeout: time.Second},
		Headless:   HeadlessConfig{MaxParallel: 1},
		Dispatcher: DispatcherConfig{Concurrency: 1, QueueDepth: 1},
		Retention:  RetentionConfig{Days: 7, DailyAt: "00:00"},
		Logging:    LoggingConfig{Level: "info"},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"empty password", func(c *Config) { c.Auth.Password = "" }, "auth.username"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"unknown mode", func(c *Config) { c.Probe.Mode = "curl" }, "probe.mode"},
		{"headless parallel", func(c *Config) { c.Headless.MaxParallel = 0 }, "headless.max_parallel"},
		{"navigation timeout", func(c *Config) { c.Probe.NavigationTimeout = 0 }, "probe.navigation_timeout"},
		{"concurrency", func(c *Config) { c.Dispatcher.Concurrency = 0 }, "dispatcher.concurrency"},
		{"queue depth", func(c *Config) { c.Dispatcher.QueueDepth = 0 }, "dispatcher.queue_depth"},
		{"retention days", func(c *Config) { c.Retention.Days = 0 }, "retention.days"},
		{"daily at", func(c *Config) { c.Retention.DailyAt = "25:00" }, "retention.daily_at"},
		{"pubsub half set", func(c *Config) { c.Notify.PubSub.Topic = "alerts" }, "notify.pubsub"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestMemoryDriverNeedsNoDSN(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Database = DatabaseConfig{Driver: DriverMemory}
	cfg.Probe.Mode = ModeStatic
	cfg.Headless.MaxParallel = 0
	require.NoError(t, cfg.Validate())
}
