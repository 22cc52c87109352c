// Package config loads application settings from an optional YAML file with
// environment overrides. Every field has a working default so the binary
// runs with no configuration at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	// DataDir holds the section store and, by default, the engine database.
	DataDir string `yaml:"data_dir"`

	// EngineDB is the engine storage location. Defaults to
	// <data_dir>/engine.db.
	EngineDB string `yaml:"engine_db"`

	// RetentionDays is the activity retention window used by cleanup.
	RetentionDays uint32 `yaml:"retention_days"`

	// SyncSchedule is a cron expression for the daemon's periodic sync
	// pass.
	SyncSchedule string `yaml:"sync_schedule"`

	// LogFile enables rotating file logging when set; empty logs to
	// stderr.
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		DataDir:       "data",
		RetentionDays: 365,
		SyncSchedule:  "@hourly",
		LogLevel:      "info",
	}
}

// Load reads configuration from path, layering file values over defaults and
// environment variables over both. A missing file is not an error; a
// malformed one is. Environment variables are also sourced from a .env file
// in the working directory when present.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(buf, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg)

	if cfg.DataDir == "" {
		cfg.DataDir = Default().DataDir
	}
	if cfg.EngineDB == "" {
		cfg.EngineDB = filepath.Join(cfg.DataDir, "engine.db")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VELOQ_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("VELOQ_ENGINE_DB"); v != "" {
		cfg.EngineDB = v
	}
	if v := os.Getenv("VELOQ_SYNC_SCHEDULE"); v != "" {
		cfg.SyncSchedule = v
	}
	if v := os.Getenv("VELOQ_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("VELOQ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// SectionsDir is where the custom-section store keeps its files.
func (c Config) SectionsDir() string {
	return filepath.Join(c.DataDir, "sections")
}
