// Package config loads service configuration from an optional YAML file with
// environment variable overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime configuration of the scheduler service.
type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string `yaml:"listen_addr" env:"SCHEDULER_LISTEN_ADDR"`
	// SQLiteDSN locates the SQLite database file.
	SQLiteDSN string `yaml:"sqlite_dsn" env:"SCHEDULER_SQLITE_DSN"`
	// HorizonDays is how far ahead of today occurrences are materialized.
	HorizonDays int `yaml:"horizon_days" env:"SCHEDULER_HORIZON_DAYS"`
	// MaterializeSchedule is the cron expression driving periodic
	// materialization runs.
	MaterializeSchedule string `yaml:"materialize_schedule" env:"SCHEDULER_MATERIALIZE_SCHEDULE"`
	// LogLevel selects the minimum slog level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" env:"SCHEDULER_LOG_LEVEL"`
}

func defaults() Config {
	return Config{
		ListenAddr:          ":8080",
		SQLiteDSN:           "file:care-scheduler.db",
		HorizonDays:         60,
		MaterializeSchedule: "@hourly",
		LogLevel:            "info",
	}
}

// Load reads the YAML file at path when it exists, applies environment
// overrides, and validates the result. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	invalid := make([]string, 0, 3)
	if strings.TrimSpace(c.ListenAddr) == "" {
		invalid = append(invalid, "listen_addr")
	}
	if strings.TrimSpace(c.SQLiteDSN) == "" {
		invalid = append(invalid, "sqlite_dsn")
	}
	if c.HorizonDays < 1 {
		invalid = append(invalid, "horizon_days")
	}
	if strings.TrimSpace(c.MaterializeSchedule) == "" {
		invalid = append(invalid, "materialize_schedule")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "log_level")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}
	return nil
}
