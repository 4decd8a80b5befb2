// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database backends accepted by database.backend.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DatabaseConfig selects the store backend and its connection settings.
type DatabaseConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// ScraperConfig names the external scraper process and its limits.
type ScraperConfig struct {
	Command            string `mapstructure:"command"`
	MealScript         string `mapstructure:"meal_script"`
	VendorScript       string `mapstructure:"vendor_script"`
	WorkDir            string `mapstructure:"work_dir"`
	SyncTimeoutSeconds int    `mapstructure:"sync_timeout_seconds"`
	MaxOutputBytes     int64  `mapstructure:"max_output_bytes"`
}

// ProbeConfig configures the menu URL reachability check.
type ProbeConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// QueueConfig governs the background scrape queue.
type QueueConfig struct {
	PollIntervalSeconds int  `mapstructure:"poll_interval_seconds"`
	JobTimeoutSeconds   int  `mapstructure:"job_timeout_seconds"`
	Depth               int  `mapstructure:"depth"`
	DedupePending       bool `mapstructure:"dedupe_pending"`
}

// MetadataConfig toggles the vendor metadata scrape after registration.
type MetadataConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MENUCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 90)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("database.backend", BackendMemory)
	v.SetDefault("database.sqlite_path", "menucache.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.migrate", true)
	v.SetDefault("scraper.command", "python3")
	v.SetDefault("scraper.meal_script", "scrapers/meals.py")
	v.SetDefault("scraper.vendor_script", "scrapers/vendor.py")
	v.SetDefault("scraper.sync_timeout_seconds", 60)
	v.SetDefault("scraper.max_output_bytes", 8<<20)
	v.SetDefault("probe.user_agent", "vendor-menu-cache/0.1")
	v.SetDefault("probe.timeout_seconds", 10)
	v.SetDefault("queue.poll_interval_seconds", 5)
	v.SetDefault("queue.job_timeout_seconds", 300)
	v.SetDefault("queue.depth", 256)
	v.SetDefault("queue.dedupe_pending", true)
	v.SetDefault("metadata.enabled", true)
	v.SetDefault("metadata.timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.enabled", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Database.Backend {
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres backend")
		}
	case BackendSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path must be set for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("database.backend must be one of postgres, sqlite, memory")
	}
	if c.Database.MaxConns < 0 || c.Database.MinConns < 0 {
		return fmt.Errorf("database.max_conns and database.min_conns must be >= 0")
	}
	if c.Scraper.Command == "" {
		return fmt.Errorf("scraper.command must be set")
	}
	if c.Scraper.MealScript == "" {
		return fmt.Errorf("scraper.meal_script must be set")
	}
	if c.Scraper.VendorScript == "" {
		return fmt.Errorf("scraper.vendor_script must be set")
	}
	if c.Scraper.SyncTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.sync_timeout_seconds must be > 0")
	}
	if c.Scraper.SyncTimeoutSeconds >= c.Server.RequestTimeoutSeconds {
		return fmt.Errorf("scraper.sync_timeout_seconds must be < server.request_timeout_seconds")
	}
	if c.Probe.TimeoutSeconds <= 0 {
		return fmt.Errorf("probe.timeout_seconds must be > 0")
	}
	if c.Queue.PollIntervalSeconds <= 0 {
		return fmt.Errorf("queue.poll_interval_seconds must be > 0")
	}
	if c.Queue.JobTimeoutSeconds < 0 {
		return fmt.Errorf("queue.job_timeout_seconds must be >= 0")
	}
	if c.Queue.Depth <= 0 {
		return fmt.Errorf("queue.depth must be > 0")
	}
	if c.Metadata.Enabled && c.Metadata.TimeoutSeconds <= 0 {
		return fmt.Errorf("metadata.timeout_seconds must be > 0 when metadata is enabled")
	}
	return nil
}

// RequestTimeout is the per-request budget enforced by the HTTP server.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// SyncScrapeTimeout bounds inline scrapes on the synchronous endpoints.
func (c Config) SyncScrapeTimeout() time.Duration {
	return time.Duration(c.Scraper.SyncTimeoutSeconds) * time.Second
}

// ProbeTimeout bounds a single reachability check.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutSeconds) * time.Second
}

// PollInterval is how often the worker checks the queue.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollIntervalSeconds) * time.Second
}

// JobTimeout bounds one background scrape job; zero disables the bound.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Queue.JobTimeoutSeconds) * time.Second
}

// MetadataTimeout bounds the background metadata scrape.
func (c Config) MetadataTimeout() time.Duration {
	return time.Duration(c.Metadata.TimeoutSeconds) * time.Second
}
