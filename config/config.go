// Package config loads toolctl settings from a YAML file, TOOLCTL_*
// environment variables and built-in defaults, in increasing order of
// precedence: defaults, file, environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TOOLCTL_STORE_DSN.
const EnvPrefix = "TOOLCTL"

// Config is the full toolctl configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Health    HealthConfig    `mapstructure:"health"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// StoreConfig selects where server definitions live.
type StoreConfig struct {
	// Driver is one of sqlite, postgres, file or memory.
	Driver string `mapstructure:"driver"`
	// DSN is a database path or URL, or the YAML path for the file driver.
	// Empty selects the driver default.
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// DispatchConfig tunes registry initialization and calls.
type DispatchConfig struct {
	Scope          string        `mapstructure:"scope"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout"`
	// Watch re-initializes the registry when a file store changes.
	Watch bool `mapstructure:"watch"`
}

// HealthConfig controls background health checks.
type HealthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// RedisConfig enables the shared health cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LogConfig configures the slog handler installed by the CLI.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig configures the OTel exporters.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	// MetricsAddr serves /metrics when set, e.g. ":9464".
	MetricsAddr string `mapstructure:"metrics_addr"`
}

var validDrivers = map[string]bool{"sqlite": true, "postgres": true, "file": true, "memory": true}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "mcp_servers")
	v.SetDefault("dispatch.scope", "")
	v.SetDefault("dispatch.default_timeout", 30*time.Second)
	v.SetDefault("dispatch.health_timeout", 5*time.Second)
	v.SetDefault("dispatch.watch", true)
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.schedule", "@every 30s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "toolctl:health")
	v.SetDefault("redis.ttl", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("telemetry.service_name", "toolctl")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.metrics_addr", "")
}

// Load reads configuration. With an empty path, toolctl.yaml is looked up in
// the working directory and ~/.toolctl; a missing file is not an error. An
// explicit path must exist.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("toolctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".toolctl"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read %s: %w", describePath(path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func describePath(path string) string {
	if path == "" {
		return "toolctl.yaml"
	}
	return path
}

// Validate rejects settings the CLI cannot act on.
func (c Config) Validate() error {
	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("config: store.driver %q must be one of sqlite, postgres, file, memory", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && strings.TrimSpace(c.Store.DSN) == "" {
		return errors.New("config: store.dsn is required for the postgres driver")
	}
	if c.Dispatch.DefaultTimeout <= 0 {
		return errors.New("config: dispatch.default_timeout must be positive")
	}
	if c.Dispatch.HealthTimeout <= 0 {
		return errors.New("config: dispatch.health_timeout must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q must be text or json", c.Log.Format)
	}
	return nil
}
