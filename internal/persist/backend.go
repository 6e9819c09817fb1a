package persist

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Backend stores structural documents and step blobs.
// Get methods return ErrNotFound (possibly wrapped) for missing entries.
type Backend interface {
	PutBlob(ctx context.Context, fittedID string, step int, data []byte) error
	PutDocument(ctx context.Context, fittedID string, doc []byte) error
	GetDocument(ctx context.Context, fittedID string) ([]byte, error)
	GetBlob(ctx context.Context, fittedID string, step int) ([]byte, error)

	// BlobCount returns how many step blobs exist for fittedID.
	BlobCount(ctx context.Context, fittedID string) (int, error)

	// ListDocuments returns the ids of every stored document, sorted.
	ListDocuments(ctx context.Context) ([]string, error)
}

// checkID rejects ids that could escape a key namespace or a directory.
func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\:`) || id == "." || id == ".." {
		return fmt.Errorf("invalid fitted pipeline id %q", id)
	}
	return nil
}

// MemoryBackend keeps everything in process memory.
type MemoryBackend struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	blobs map[string]map[int][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		docs:  make(map[string][]byte),
		blobs: make(map[string]map[int][]byte),
	}
}

func (m *MemoryBackend) PutBlob(_ context.Context, fittedID string, step int, data []byte) error {
	if err := checkID(fittedID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs[fittedID] == nil {
		m.blobs[fittedID] = make(map[int][]byte)
	}
	m.blobs[fittedID][step] = slices.Clone(data)
	return nil
}

func (m *MemoryBackend) PutDocument(_ context.Context, fittedID string, doc []byte) error {
	if err := checkID(fittedID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[fittedID] = slices.Clone(doc)
	return nil
}

func (m *MemoryBackend) GetDocument(_ context.Context, fittedID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[fittedID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(doc), nil
}

func (m *MemoryBackend) GetBlob(_ context.Context, fittedID string, step int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[fittedID][step]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

func (m *MemoryBackend) BlobCount(_ context.Context, fittedID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs[fittedID]), nil
}

func (m *MemoryBackend) ListDocuments(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.docs)), nil
}

// DeleteBlob removes one blob. It exists to simulate partial writes.
func (m *MemoryBackend) DeleteBlob(fittedID string, step int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs[fittedID], step)
}
