// Package config loads streamagg settings from defaults, an optional YAML
// file and STREAMAGG_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/razeghi71/streamagg/report"
)

const envPrefix = "STREAMAGG_"

type Config struct {
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Reports ReportsConfig `koanf:"reports"`
	Output  OutputConfig  `koanf:"output"`
	Run     RunConfig     `koanf:"run"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

// StoreConfig selects the record store. Files maps collection names to data
// files for the file driver; Dir is scanned when Files is empty.
type StoreConfig struct {
	Driver   string            `koanf:"driver"`
	DSN      string            `koanf:"dsn"`
	Database string            `koanf:"database"`
	Dir      string            `koanf:"dir"`
	Files    map[string]string `koanf:"files"`
}

type ReportsConfig struct {
	Dir string `koanf:"dir"`
}

type OutputConfig struct {
	Format   string `koanf:"format"`
	Envelope bool   `koanf:"envelope"`
}

type RunConfig struct {
	Parallelism int `koanf:"parallelism"`
}

// Load reads configuration. configPath may be empty.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"log.level":       "info",
		"log.format":      "text",
		"store.driver":    "file",
		"store.dir":       "data",
		"store.database":  "streamagg",
		"output.format":   "table",
		"output.envelope": false,
		"run.parallelism": 4,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// STREAMAGG_STORE__DSN=... overrides store.dsn
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.Store.Driver {
	case "file":
		if c.Store.Dir == "" && len(c.Store.Files) == 0 {
			errs = append(errs, errors.New("store.dir or store.files is required for the file driver"))
		}
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver))
		}
	case "mongo":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the mongo driver"))
		}
		if c.Store.Database == "" {
			errs = append(errs, errors.New("store.database is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be file, sqlite, postgres or mongo, got %q", c.Store.Driver))
	}

	if _, err := report.ParseFormat(c.Output.Format); err != nil {
		errs = append(errs, fmt.Errorf("output.format: %w", err))
	}
	if c.Run.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("run.parallelism must be at least 1, got %d", c.Run.Parallelism))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
	return l, nil
}

// NewLogger builds the logger described by c, writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
