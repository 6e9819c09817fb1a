package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor CSV.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// Loader loads datasets by URI and caches them.
//
// Concurrent loads of one URI share a single read. Accepted URIs are plain
// paths and file:// URLs naming a .yaml, .yml or .csv file. A CSV file's
// first record is the header and its id is the file name without extension.
type Loader struct {
	logger *slog.Logger

	flight singleflight.Group
	mu     sync.RWMutex
	cache  map[string]*Dataset
}

// NewLoader creates a loader with an empty cache.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, cache: make(map[string]*Dataset)}
}

// Load returns the dataset at uri. The returned dataset is shared and must
// not be modified.
func (l *Loader) Load(ctx context.Context, uri string) (*Dataset, error) {
	path, err := resolvePath(uri)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	d, ok := l.cache[path]
	l.mu.RUnlock()
	if ok {
		return d, nil
	}

	ch := l.flight.DoChan(path, func() (any, error) {
		d, err := readFile(path)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[path] = d
		l.mu.Unlock()
		l.logger.Debug("dataset loaded", "uri", uri, "id", d.ID, "rows", d.NumRows())
		return d, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Dataset), nil
	}
}

// Forget drops a cached dataset so the next Load rereads it.
func (l *Loader) Forget(uri string) {
	path, err := resolvePath(uri)
	if err != nil {
		return
	}
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

func resolvePath(uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("load dataset: empty uri")
	}
	if strings.Contains(uri, "://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("load dataset: %w", err)
		}
		if u.Scheme != "file" {
			return "", fmt.Errorf("load dataset: unsupported scheme %q", u.Scheme)
		}
		uri = u.Path
	}
	return filepath.Clean(uri), nil
}

func readFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	defer f.Close()

	var d *Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		d, err = decodeYAML(f)
	case ".csv":
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		d, err = decodeCSV(f, id)
	default:
		return nil, fmt.Errorf("load dataset %s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeYAML(r io.Reader) (*Dataset, error) {
	var d Dataset
	if err := yaml.NewDecoder(r).Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func decodeCSV(r io.Reader, id string) (*Dataset, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	return &Dataset{ID: id, Name: id, Columns: records[0], Rows: records[1:]}, nil
}
