package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ta2/internal/telemetry"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":45042", cfg.Listen)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, telemetry.ExporterPrometheus, cfg.Telemetry.MetricExporter)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "ta2.yaml", `
listen: ":9000"
admin_listen: ""
store:
  backend: badger
  path: /tmp/ta2-badger
search:
  parallelism: 2
  max_candidates: 5
  default_time_bound: 90s
  holdout_ratio: 0.5
  seed: 7
ids:
  scheme: uuid
log:
  level: debug
  format: json
telemetry:
  trace_exporter: stdout
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Empty(t, cfg.AdminListen)
	assert.Equal(t, StoreConfig{Backend: BackendBadger, Path: "/tmp/ta2-badger"}, cfg.Store)
	assert.Equal(t, SearchConfig{
		Parallelism:      2,
		MaxCandidates:    5,
		DefaultTimeBound: 90 * time.Second,
		HoldoutRatio:     0.5,
		Seed:             7,
	}, cfg.Search)
	assert.Equal(t, "uuid", cfg.IDs.Scheme)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	assert.Equal(t, telemetry.ExporterStdout, cfg.Telemetry.TraceExporter)
	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Session, cfg.Session)
	assert.Equal(t, "ta2", cfg.Telemetry.ServiceName)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "ta2.yaml", "lisen: \":9000\"\n")
	_, err := Load(path, "")
	assert.ErrorContains(t, err, "lisen")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("TA2_LISTEN", ":7000")
	t.Setenv("TA2_STORE_BACKEND", "redis")
	t.Setenv("TA2_STORE_REDIS_ADDR", "localhost:6379")
	t.Setenv("TA2_SEARCH_MAX_CANDIDATES", "3")
	t.Setenv("TA2_SESSION_RETENTION", "5m")
	t.Setenv("TA2_TELEMETRY_METRIC_EXPORTER", "none")

	path := writeFile(t, "ta2.yaml", "listen: \":9000\"\n")
	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 3, cfg.Search.MaxCandidates)
	assert.Equal(t, 5*time.Minute, cfg.Session.Retention)
	assert.Equal(t, telemetry.ExporterNone, cfg.Telemetry.MetricExporter)
}

func TestLoadEnvFile(t *testing.T) {
	t.Cleanup(func() { _ = os.Unsetenv("TA2_SESSION_WORKERS") })
	env := writeFile(t, ".env", "TA2_SESSION_WORKERS=6\n")

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Session.Workers)

	// A missing env file is ignored.
	_, err = Load("", filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "s3" }, "Backend"},
		{"sqlite needs path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"redis needs addr", func(c *Config) { c.Store.Backend = BackendRedis }, "store.redis_addr"},
		{"memory needs nothing", func(c *Config) { c.Store = StoreConfig{Backend: BackendMemory} }, ""},
		{"holdout ratio bounds", func(c *Config) { c.Search.HoldoutRatio = 1 }, "HoldoutRatio"},
		{"parallelism", func(c *Config) { c.Search.Parallelism = 0 }, "Parallelism"},
		{"id scheme", func(c *Config) { c.IDs.Scheme = "snowflake" }, "Scheme"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "Level"},
		{"trace exporter", func(c *Config) { c.Telemetry.TraceExporter = "jaeger" }, "TraceExporter"},
		{"empty listen", func(c *Config) { c.Listen = "" }, "Listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(LogConfig{Level: "warn", Format: "json"}.Handler(&buf))
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}
