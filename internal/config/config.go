// Package config loads application configuration from defaults, an optional YAML file
// and RADAR_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable; "__" separates nesting levels.
const EnvPrefix = "RADAR_"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig       `koanf:"server"`
	Database    DatabaseConfig     `koanf:"database"`
	Redis       RedisConfig        `koanf:"redis"`
	Log         LogConfig          `koanf:"log"`
	JWT         JWTConfig          `koanf:"jwt"`
	CORS        CORSConfig         `koanf:"cors"`
	Sync        SyncConfig         `koanf:"sync"`
	Alerts      AlertsConfig       `koanf:"alerts"`
	DataSources []DataSourceConfig `koanf:"data_sources"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains storage settings.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

// RedisConfig configures the read-path cache. An empty URL disables caching.
type RedisConfig struct {
	URL       string        `koanf:"url"`
	KeyPrefix string        `koanf:"key_prefix"`
	TTL       time.Duration `koanf:"ttl"`
}

// AlertsConfig configures failing-source alerts. An empty WebhookURL disables them.
type AlertsConfig struct {
	WebhookURL string        `koanf:"webhook_url"`
	Username   string        `koanf:"username"`
	IconURL    string        `koanf:"icon_url"`
	Timeout    time.Duration `koanf:"timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig contains admin token settings.
type JWTConfig struct {
	SecretKey     string        `koanf:"secret_key"`
	Issuer        string        `koanf:"issuer"`
	TokenDuration time.Duration `koanf:"token_duration"`
}

// CORSConfig contains CORS and websocket origin settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SyncConfig configures the orchestrator and scheduler.
type SyncConfig struct {
	Interval            time.Duration `koanf:"interval"`
	RunOnStart          bool          `koanf:"run_on_start"`
	Concurrency         int           `koanf:"concurrency"`
	RetryAlertThreshold int           `koanf:"retry_alert_threshold"`
	SystemID            string        `koanf:"system_id"`
	RequestsPerSecond   float64       `koanf:"requests_per_second"`
	UserAgent           string        `koanf:"user_agent"`
}

// DataSourceConfig is a statically provisioned data source.
type DataSourceConfig struct {
	Name     string `koanf:"name"`
	Type     string `koanf:"type"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	IsActive *bool  `koanf:"is_active"`
}

// Active reports whether the source should be synced. Sources are active unless disabled.
func (d DataSourceConfig) Active() bool {
	return d.IsActive == nil || *d.IsActive
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Redis: RedisConfig{
			KeyPrefix: "incident-radar:",
			TTL:       time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			Issuer:        "incident-radar",
			TokenDuration: 24 * time.Hour,
		},
		Sync: SyncConfig{
			Interval:            5 * time.Minute,
			RunOnStart:          true,
			Concurrency:         4,
			RetryAlertThreshold: 5,
			SystemID:            "incident-radar",
		},
		Alerts: AlertsConfig{
			Username: "incident-radar",
			Timeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Keys absent from every source keep their Default() value.
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps RADAR_DATABASE__URL to database.url.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate reports every invalid setting at once. Connector types of configured data
// sources are deliberately not checked: an unsupported type fails that source at sync time.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}

	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive"))
	}
	if c.Sync.Concurrency < 1 {
		errs = append(errs, errors.New("sync.concurrency must be at least 1"))
	}
	if c.Sync.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("sync.requests_per_second must not be negative"))
	}

	if c.Alerts.WebhookURL != "" {
		if u, err := url.Parse(c.Alerts.WebhookURL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("alerts.webhook_url %q is not an absolute url", c.Alerts.WebhookURL))
		}
	}

	seen := make(map[string]bool, len(c.DataSources))
	for i, ds := range c.DataSources {
		if ds.Name == "" {
			errs = append(errs, fmt.Errorf("data_sources[%d].name is required", i))
		} else if seen[ds.Name] {
			errs = append(errs, fmt.Errorf("data_sources[%d].name %q is duplicated", i, ds.Name))
		}
		seen[ds.Name] = true

		if ds.Type == "" {
			errs = append(errs, fmt.Errorf("data_sources[%d].type is required", i))
		}
		if u, err := url.Parse(ds.BaseURL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("data_sources[%d].base_url %q is not an absolute url", i, ds.BaseURL))
		}
	}

	return errors.Join(errs...)
}
