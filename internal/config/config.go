// Package config provides configuration management for tvarr-replay using
// Viper. It supports configuration from files, environment variables, and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultMaxOpenConns       = 10
	defaultMaxIdleConns       = 5
	defaultConnMaxIdleTime    = 30 * time.Minute
	defaultSegmentSize        = 1000
	defaultTickRate           = 30
	defaultReconcileInterval  = 10 * time.Minute
	defaultPruneSchedule      = "0 0 3 * * *"
	defaultDiskWarnThreshold  = 100 * 1024 * 1024 // 100MB
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds control API server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// CatalogConfig holds catalog database connection configuration.
type CatalogConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	RootDir         string        `mapstructure:"root_dir"`  // recordings root walked by Reconcile
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ReplayConfig holds defaults for new recordings.
type ReplayConfig struct {
	SegmentSize       int      `mapstructure:"segment_size"`
	TickRate          int      `mapstructure:"tick_rate"`
	Codec             string   `mapstructure:"codec"`              // json, brotli+json, xz+json
	DiskWarnThreshold ByteSize `mapstructure:"disk_warn_threshold"` // free-space floor; no flush path reads it
}

// SchedulerConfig holds maintenance-job scheduling configuration.
type SchedulerConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	PruneSchedule     string        `mapstructure:"prune_schedule"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with TVARR_REPLAY_ and use underscores
// for nesting. Example: TVARR_REPLAY_SERVER_ADDR=:9090.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tvarr-replay")
		v.AddConfigPath("$HOME/.tvarr-replay")
	}

	v.SetEnvPrefix("TVARR_REPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.read_timeout", defaultServerReadTimeout)
	v.SetDefault("server.write_timeout", defaultServerWriteTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Catalog defaults
	v.SetDefault("catalog.driver", "sqlite")
	v.SetDefault("catalog.dsn", "./tvarr-replay.db")
	v.SetDefault("catalog.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("catalog.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("catalog.conn_max_lifetime", time.Hour)
	v.SetDefault("catalog.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("catalog.log_level", "warn")
	v.SetDefault("catalog.root_dir", "./recordings")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Replay defaults
	v.SetDefault("replay.segment_size", defaultSegmentSize)
	v.SetDefault("replay.tick_rate", defaultTickRate)
	v.SetDefault("replay.codec", "brotli+json")
	v.SetDefault("replay.disk_warn_threshold", defaultDiskWarnThreshold)

	// Scheduler defaults
	v.SetDefault("scheduler.reconcile_interval", defaultReconcileInterval)
	v.SetDefault("scheduler.prune_schedule", defaultPruneSchedule)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Catalog.Driver] {
		return fmt.Errorf("catalog.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Catalog.DSN == "" {
		return fmt.Errorf("catalog.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validCodecs := map[string]bool{"json": true, "brotli+json": true, "xz+json": true}
	if !validCodecs[c.Replay.Codec] {
		return fmt.Errorf("replay.codec must be one of: json, brotli+json, xz+json")
	}
	if c.Replay.SegmentSize < 1 {
		return fmt.Errorf("replay.segment_size must be at least 1")
	}
	if c.Replay.TickRate < 1 {
		return fmt.Errorf("replay.tick_rate must be at least 1")
	}

	return nil
}
