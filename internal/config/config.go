// Package config loads server configuration.
//
// Sources are layered: built-in defaults, then an optional YAML file, then
// TA2_* environment variables (after an optional .env file), then
// validation. Environment names follow the YAML structure, for example
// TA2_STORE_BACKEND or TA2_SEARCH_MAX_CANDIDATES.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ta2/internal/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TA2"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendDir    = "dir"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the complete server configuration.
type Config struct {
	Listen      string `yaml:"listen" validate:"required"`
	AdminListen string `yaml:"admin_listen" split_words:"true"`

	Store     StoreConfig      `yaml:"store"`
	Search    SearchConfig     `yaml:"search"`
	Session   SessionConfig    `yaml:"session"`
	IDs       IDsConfig        `yaml:"ids" envconfig:"IDS"`
	Templates TemplatesConfig  `yaml:"templates"`
	Log       LogConfig        `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// StoreConfig selects where fitted pipelines are persisted.
type StoreConfig struct {
	Backend   string `yaml:"backend" validate:"oneof=sqlite dir badger redis memory"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr" split_words:"true"`
}

// SearchConfig bounds searches.
type SearchConfig struct {
	Parallelism      int           `yaml:"parallelism" validate:"gte=1"`
	MaxCandidates    int           `yaml:"max_candidates" split_words:"true" validate:"gte=0"`
	DefaultTimeBound time.Duration `yaml:"default_time_bound" split_words:"true" validate:"gte=0"`
	HoldoutRatio     float64       `yaml:"holdout_ratio" split_words:"true" validate:"gt=0,lt=1"`
	Seed             uint64        `yaml:"seed"`
}

// SessionConfig sizes request processing and retention.
type SessionConfig struct {
	Workers   int           `yaml:"workers" validate:"gte=1"`
	Retention time.Duration `yaml:"retention" validate:"gte=0"`
	Archive   bool          `yaml:"archive"`
}

type IDsConfig struct {
	Scheme string `yaml:"scheme" validate:"oneof=alnum uuid uuidv7 uuidv4"`
}

type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:      ":45042",
		AdminListen: ":45043",
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    "ta2.db",
		},
		Search: SearchConfig{
			Parallelism:      4,
			DefaultTimeBound: 10 * time.Minute,
			HoldoutRatio:     0.25,
		},
		Session: SessionConfig{
			Workers:   2,
			Retention: 30 * time.Minute,
		},
		IDs:       IDsConfig{Scheme: "alnum"},
		Log:       LogConfig{Level: "info", Format: "text"},
		Telemetry: telemetry.DefaultConfig(),
	}
}

var validate = validator.New()

// Load builds the configuration from path (optional) and the environment.
// envFile, when non-empty, is loaded into the environment first; a missing
// envFile is not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Store.Backend {
	case BackendSQLite, BackendDir, BackendBadger:
		if c.Store.Path == "" {
			return fmt.Errorf("invalid config: store.path is required for the %s backend", c.Store.Backend)
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("invalid config: store.redis_addr is required for the redis backend")
		}
	}
	return nil
}

// SlogLevel returns the configured log level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler returns a slog handler writing to w in the configured format.
func (l LogConfig) Handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
