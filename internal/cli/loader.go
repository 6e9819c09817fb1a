package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/ta2/internal/config"
	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ids"
	"github.com/roach88/ta2/internal/persist"
	"github.com/roach88/ta2/internal/primitives"
	"github.com/roach88/ta2/internal/session"
	"github.com/roach88/ta2/internal/store"
	"github.com/roach88/ta2/internal/templates"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeConfig      = "E002" // Configuration could not be loaded
	ErrCodeNotFound    = "E005" // Path or id not found
	ErrCodeBackend     = "E006" // Store backend unavailable
	ErrCodeWriteFailed = "E007" // File write error

	ErrCodeTemplate = "E101" // Template library failed to compile
	ErrCodeWiring   = "E102" // Template candidate failed to build
	ErrCodeProblem  = "E110" // Invalid problem description
	ErrCodeSearch   = "E111" // Search failed
	ErrCodeProduce  = "E112" // Produce failed
	ErrCodeRPC      = "E120" // Remote call failed
)

// ConfigOptions holds the flags shared by commands that read the server
// configuration.
type ConfigOptions struct {
	ConfigPath string
	EnvFile    string
}

func (o *ConfigOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath, o.EnvFile)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: err.Error()}
	}
	return cfg, nil
}

// LoadError represents an error that occurred while assembling a command's
// dependencies.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// codeOf returns the CLI error code carried by err.
func codeOf(err error) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	if persist.IsPersistenceError(err) {
		if persist.CodeOf(err) == persist.ErrCodeMissingDocument {
			return ErrCodeNotFound
		}
		return ErrCodeBackend
	}
	return ErrCodeGeneric
}

// newLogger builds the process logger from the log configuration. Verbose
// forces debug level.
func newLogger(w io.Writer, lc config.LogConfig, verbose bool) *slog.Logger {
	if verbose {
		lc.Level = "debug"
	}
	return slog.New(lc.Handler(w))
}

// openBackend opens the configured fitted pipeline store. The returned
// close function is never nil.
func openBackend(ctx context.Context, sc config.StoreConfig, logger *slog.Logger) (persist.Backend, func() error, error) {
	noop := func() error { return nil }
	wrap := func(err error) error {
		return &LoadError{Code: ErrCodeBackend, Message: fmt.Sprintf("open %s store: %v", sc.Backend, err)}
	}

	switch sc.Backend {
	case config.BackendSQLite:
		st, err := store.Open(sc.Path)
		if err != nil {
			return nil, noop, wrap(err)
		}
		return st, st.Close, nil
	case config.BackendDir:
		d, err := persist.NewDirBackend(sc.Path)
		if err != nil {
			return nil, noop, wrap(err)
		}
		return d, noop, nil
	case config.BackendBadger:
		b, err := persist.OpenBadger(persist.BadgerConfig{Path: sc.Path, Logger: logger})
		if err != nil {
			return nil, noop, wrap(err)
		}
		return b, b.Close, nil
	case config.BackendRedis:
		r, err := persist.NewRedisBackend(ctx, sc.RedisAddr)
		if err != nil {
			return nil, noop, wrap(err)
		}
		return r, r.Close, nil
	case config.BackendMemory:
		return persist.NewMemoryBackend(), noop, nil
	default:
		return nil, noop, wrap(fmt.Errorf("unknown backend"))
	}
}

// loadLibrary compiles the embedded templates plus those in dir.
func loadLibrary(reg *engine.Registry, dir string) (*templates.Library, error) {
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("templates directory: %v", err)}
		}
	}
	lib, err := templates.Load(reg, dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeTemplate, Message: err.Error()}
	}
	return lib, nil
}

// runtime is the in-process search stack shared by serve and search.
type runtime struct {
	registry *engine.Registry
	engine   *engine.Engine
	manager  *session.Manager
	backend  persist.Backend
	close    func() error
}

// newRuntime assembles the search stack described by cfg.
func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	gen, err := ids.ForScheme(cfg.IDs.Scheme)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: err.Error()}
	}

	reg := primitives.Registry()
	lib, err := loadLibrary(reg, cfg.Templates.Dir)
	if err != nil {
		return nil, err
	}

	backend, closeBackend, err := openBackend(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	eng := engine.New(reg, engine.WithIDGenerator(gen), engine.WithLogger(logger))
	proposer := templates.NewProposer(lib, templates.WithIDGenerator(gen), templates.WithLogger(logger))
	mgr := session.NewManager(eng, proposer, dataset.NewLoader(logger),
		session.WithParallelism(cfg.Search.Parallelism),
		session.WithMaxCandidates(cfg.Search.MaxCandidates),
		session.WithTimeBound(cfg.Search.DefaultTimeBound),
		session.WithHoldout(cfg.Search.HoldoutRatio, cfg.Search.Seed),
		session.WithWorkers(cfg.Session.Workers),
		session.WithRetention(cfg.Session.Retention),
		session.WithArchiver(persist.NewArchiver(backend), cfg.Session.Archive),
		session.WithIDGenerator(gen),
		session.WithLogger(logger),
	)

	return &runtime{
		registry: reg,
		engine:   eng,
		manager:  mgr,
		backend:  backend,
		close: func() error {
			return errors.Join(mgr.Close(), closeBackend())
		},
	}, nil
}
