package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures a BadgerBackend.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in memory. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives Badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// BadgerBackend stores fitted pipelines in BadgerDB under
//
//	fp/<id>/doc
//	fp/<id>/step/<%06d>
type BadgerBackend struct {
	db *badger.DB
}

// badgerLogger bridges Badger's printf logger to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens or creates a Badger database.
func OpenBadger(cfg BadgerConfig) (*BadgerBackend, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

func badgerDocKey(id string) []byte {
	return []byte("fp/" + id + "/doc")
}

func badgerStepPrefix(id string) []byte {
	return []byte("fp/" + id + "/step/")
}

func badgerStepKey(id string, step int) []byte {
	return fmt.Appendf(badgerStepPrefix(id), "%06d", step)
}

func (b *BadgerBackend) put(key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (b *BadgerBackend) get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return out, err
}

func (b *BadgerBackend) PutBlob(_ context.Context, fittedID string, step int, data []byte) error {
	if err := checkID(fittedID); err != nil {
		return err
	}
	return b.put(badgerStepKey(fittedID, step), data)
}

func (b *BadgerBackend) PutDocument(_ context.Context, fittedID string, doc []byte) error {
	if err := checkID(fittedID); err != nil {
		return err
	}
	return b.put(badgerDocKey(fittedID), doc)
}

func (b *BadgerBackend) GetDocument(_ context.Context, fittedID string) ([]byte, error) {
	return b.get(badgerDocKey(fittedID))
}

func (b *BadgerBackend) GetBlob(_ context.Context, fittedID string, step int) ([]byte, error) {
	return b.get(badgerStepKey(fittedID, step))
}

func (b *BadgerBackend) BlobCount(_ context.Context, fittedID string) (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = badgerStepPrefix(fittedID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (b *BadgerBackend) ListDocuments(context.Context) ([]string, error) {
	var ids []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("fp/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if id, ok := strings.CutSuffix(strings.TrimPrefix(key, "fp/"), "/doc"); ok {
				ids = append(ids, id)
			}
		}
		return nil
	})
	return ids, err
}
