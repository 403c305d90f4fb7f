// Package config reads process configuration from FORGE_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when Load is given no path. A missing default file
// is not an error.
const DefaultEnvFile = ".env"

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds the process settings. Flags override these per invocation.
type Config struct {
	LogLevel string `env:"FORGE_LOG_LEVEL" envDefault:"warn"`
	Format   string `env:"FORGE_FORMAT" envDefault:"text"`

	// Zero keeps the engine defaults.
	MaxDepth int `env:"FORGE_MAX_DEPTH" envDefault:"0"`
	MaxSteps int `env:"FORGE_MAX_STEPS" envDefault:"0"`

	DBPath   string `env:"FORGE_DB_PATH" envDefault:"forge.db"`
	DiceSeed uint64 `env:"FORGE_DICE_SEED" envDefault:"0"`
}

// Load reads envFile (DefaultEnvFile when empty) into the process
// environment without overriding variables already set, then parses the
// FORGE_* variables.
func Load(envFile string) (*Config, error) {
	path := envFile
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if envFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the type system cannot.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("invalid format %q: want text or json", c.Format)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("invalid max depth %d: must be non-negative", c.MaxDepth)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("invalid max steps %d: must be non-negative", c.MaxSteps)
	}
	return nil
}

// Level returns the slog level for LogLevel. Invalid levels fall back to
// warn; Load has already rejected them.
func (c *Config) Level() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelWarn
	}
	return lvl
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: want debug, info, warn or error", s)
	}
	return lvl, nil
}
