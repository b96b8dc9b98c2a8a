// Package config loads and validates sitewatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Supported database drivers and probe modes.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	ModeHeadless = "headless"
	ModeStatic   = "static"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Probe      ProbeConfig      `mapstructure:"probe"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds the single shared admin credential.
type AuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// DatabaseConfig selects and configures the registry backend.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// StorageConfig locates screenshot evidence on disk.
type StorageConfig struct {
	ScreenshotDir string `mapstructure:"screenshot_dir"`
}

// ProbeConfig governs a single probe run.
type ProbeConfig struct {
	Mode              string        `mapstructure:"mode"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	NotifyTimeout     time.Duration `mapstructure:"notify_timeout"`
}

// HeadlessConfig configures the Chrome allocator.
type HeadlessConfig struct {
	MaxParallel int    `mapstructure:"max_parallel"`
	ExecPath    string `mapstructure:"exec_path"`
}

// DispatcherConfig sizes the ad-hoc worker pool.
type DispatcherConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	QueueDepth  int `mapstructure:"queue_depth"`
}

// RetentionConfig controls the daily sweep.
type RetentionConfig struct {
	Days    int    `mapstructure:"days"`
	DailyAt string `mapstructure:"daily_at"`
}

// NotifyConfig lists the alert transports; empty values disable them.
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	PubSub     PubSubConfig  `mapstructure:"pubsub"`
}

// PubSubConfig holds metadata for publish-subscribe alerts.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether both project and topic are set.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// LoggingConfig toggles zap development features and the optional file sink.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// Load builds a Config from defaults, an optional YAML file, and the
// environment. envFile, when it exists, is loaded into the process
// environment first without overriding variables that are already set.
func Load(path, envFile string) (Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("SITEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// bindLegacyEnv accepts the bare variable names older deployments use.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"auth.username":      {"SITEWATCH_AUTH_USERNAME", "ADMIN_USERNAME"},
		"auth.password":      {"SITEWATCH_AUTH_PASSWORD", "ADMIN_PASSWORD"},
		"notify.webhook_url": {"SITEWATCH_NOTIFY_WEBHOOK_URL", "DISCORD_WEBHOOK"},
	}
	for key, names := range bindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "password")
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "data/monitor.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("storage.screenshot_dir", "screenshots")
	v.SetDefault("probe.mode", ModeHeadless)
	v.SetDefault("probe.navigation_timeout", 30*time.Second)
	v.SetDefault("probe.notify_timeout", 5*time.Second)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("dispatcher.concurrency", 4)
	v.SetDefault("dispatcher.queue_depth", 64)
	v.SetDefault("retention.days", 7)
	v.SetDefault("retention.daily_at", "00:00")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Username == "" || c.Auth.Password == "" {
		return fmt.Errorf("auth.username and auth.password must be set")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for driver %q", c.Database.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, postgres, memory", c.Database.Driver)
	}
	switch c.Probe.Mode {
	case ModeHeadless:
		if c.Headless.MaxParallel <= 0 {
			return fmt.Errorf("headless.max_parallel must be > 0 in headless mode")
		}
	case ModeStatic:
	default:
		return fmt.Errorf("probe.mode %q is not one of headless, static", c.Probe.Mode)
	}
	if c.Probe.NavigationTimeout <= 0 {
		return fmt.Errorf("probe.navigation_timeout must be > 0")
	}
	if c.Dispatcher.Concurrency <= 0 {
		return fmt.Errorf("dispatcher.concurrency must be > 0")
	}
	if c.Dispatcher.QueueDepth <= 0 {
		return fmt.Errorf("dispatcher.queue_depth must be > 0")
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("retention.days must be >= 1")
	}
	if _, err := time.Parse("15:04", c.Retention.DailyAt); err != nil {
		return fmt.Errorf("retention.daily_at must be HH:MM: %w", err)
	}
	if (c.Notify.PubSub.ProjectID == "") != (c.Notify.PubSub.Topic == "") {
		return fmt.Errorf("notify.pubsub.project_id and notify.pubsub.topic must be set together")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// RetentionHorizon converts retention.days into a duration.
func (c Config) RetentionHorizon() time.Duration {
	return time.Duration(c.Retention.Days) * 24 * time.Hour
}

// Addr returns the listen address for the admin server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
