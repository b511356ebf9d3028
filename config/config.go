// Package config loads daemon configuration from defaults, an optional
// YAML file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/shorelinehq/dispatch/dispatch"
	"github.com/shorelinehq/dispatch/identity"
	"github.com/shorelinehq/dispatch/store"
)

// envPrefix namespaces environment overrides, e.g. DISPATCH_SERVER_ADDR.
const envPrefix = "DISPATCH"

// Config is the full daemon configuration.
type Config struct {
	Server   ServerConfig           `yaml:"server" env:"SERVER"`
	Log      LogConfig              `yaml:"log" env:"LOG"`
	Dispatch dispatch.Config        `yaml:"dispatch" env:"-"`
	Identity identity.BreakerConfig `yaml:"identity" env:"-"`
	Redis    RedisConfig            `yaml:"redis" env:"REDIS"`
	Metrics  MetricsConfig          `yaml:"metrics" env:"METRICS"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// RedisConfig wraps the store configuration with an enable switch;
// persistence is optional and the daemon runs in-memory without it.
type RedisConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	store.Config `yaml:",inline"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Dispatch: *dispatch.DefaultConfig(),
		Redis:    RedisConfig{Config: store.DefaultConfig()},
		Metrics:  MetricsConfig{Namespace: "dispatch"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// when it exists, then environment overrides, then validation. An
// empty path skips the file stage.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := loadEnv(reflect.ValueOf(cfg).Elem(), envPrefix); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// loadEnv walks the struct and applies DISPATCH_* overrides based on
// env tags. Struct fields recurse with the tag appended to the prefix.
func loadEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "-" {
			continue
		}

		key := prefix
		if tag != "" {
			key = prefix + "_" + tag
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := loadEnv(field, key); err != nil {
				return err
			}
			continue
		}
		if tag == "" {
			continue
		}

		value := os.Getenv(key)
		if value == "" {
			continue
		}
		if err := setField(field, value); err != nil {
			return fmt.Errorf("applying %s: %w", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Uint32:
		u, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		field.SetUint(u)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is empty")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}
	if c.Dispatch.DefaultMaxLoad <= 0 {
		return fmt.Errorf("dispatch.default_max_load must be positive")
	}
	if c.Dispatch.MaxAgentsPerPurpose < 0 {
		return fmt.Errorf("dispatch.max_agents_per_purpose must not be negative")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is empty with redis enabled")
	}
	return nil
}

// BuildLogger constructs the process logger from the log section.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = c.Log.Format

	return zc.Build()
}
