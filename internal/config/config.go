// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
}

// DSN builds a libpq-compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// StorageConfig selects the repository implementation.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// EngineConfig tunes the inventory engine.
type EngineConfig struct {
	// MaxRetries bounds how many times a unit of work is attempted when
	// storage reports a concurrent update.
	MaxRetries      int           `mapstructure:"max_retries"`
	BulkConcurrency int           `mapstructure:"bulk_concurrency"`
	MaxBulkSize     int           `mapstructure:"max_bulk_size"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// TelemetryConfig holds OpenTelemetry metric export settings
type TelemetryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ServiceName   string        `mapstructure:"service_name"`
	CollectorAddr string        `mapstructure:"collector_addr"`
	Interval      time.Duration `mapstructure:"interval"`
}

// Load reads configuration from environment variables, with an optional
// .env file in the working directory underneath them.
func Load() (*Config, error) {
	return load(".env", false)
}

// LoadWithPath loads configuration from a specific env file, which must exist.
func LoadWithPath(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, required bool) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil && required {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// keys lists every setting with its default. Keys are dotted so that
// Unmarshal finds them; the env replacer maps server.port to SERVER_PORT.
var keys = map[string]any{
	"server.port":             8080,
	"server.read_timeout":     "15s",
	"server.write_timeout":    "15s",
	"server.idle_timeout":     "60s",
	"server.shutdown_timeout": "10s",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "postgres",
	"database.dbname":             "ticketing",
	"database.sslmode":            "disable",
	"database.max_conns":          20,
	"database.min_conns":          2,
	"database.conn_max_lifetime":  "30m",
	"database.conn_max_idle_time": "5m",
	"database.connect_attempts":   5,

	"storage.driver": DriverPostgres,

	"engine.max_retries":      3,
	"engine.bulk_concurrency": 8,
	"engine.max_bulk_size":    500,
	"engine.sweep_interval":   "1m",

	"log.level":       "info",
	"log.development": false,

	"telemetry.enabled":        false,
	"telemetry.service_name":   "ticketd",
	"telemetry.collector_addr": "localhost:4317",
	"telemetry.interval":       "15s",
}

func setDefaults(v *viper.Viper) {
	for key, def := range keys {
		v.SetDefault(key, def)
		// A .env file stores keys in their env form. Get on the env form
		// still prefers a real environment variable over the file.
		envKey := strings.ToLower(strings.ReplaceAll(key, ".", "_"))
		if v.IsSet(envKey) {
			v.Set(key, v.Get(envKey))
		}
	}
}

// Validate checks the loaded configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Engine.MaxRetries < 1 {
		return fmt.Errorf("engine max_retries must be at least 1, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.BulkConcurrency < 1 {
		return fmt.Errorf("engine bulk_concurrency must be at least 1, got %d", c.Engine.BulkConcurrency)
	}
	if c.Engine.MaxBulkSize < 1 {
		return fmt.Errorf("engine max_bulk_size must be at least 1, got %d", c.Engine.MaxBulkSize)
	}
	if c.Engine.SweepInterval <= 0 {
		return fmt.Errorf("engine sweep_interval must be positive")
	}
	return nil
}
