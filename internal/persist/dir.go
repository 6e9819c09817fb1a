package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DirBackend stores fitted pipelines in a directory tree:
//
//	<root>/pipelines/<id>.json
//	<root>/executables/<id>/step_<i>.bin
//
// Every file is written to a temporary name and renamed into place.
type DirBackend struct {
	root string
}

// NewDirBackend creates root's subdirectories if needed.
func NewDirBackend(root string) (*DirBackend, error) {
	for _, sub := range []string{"pipelines", "executables"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o750); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", sub, err)
		}
	}
	return &DirBackend{root: root}, nil
}

func (d *DirBackend) documentPath(id string) string {
	return filepath.Join(d.root, "pipelines", id+".json")
}

func (d *DirBackend) blobDir(id string) string {
	return filepath.Join(d.root, "executables", id)
}

func (d *DirBackend) blobPath(id string, step int) string {
	return filepath.Join(d.blobDir(id), fmt.Sprintf("step_%d.bin", step))
}

func (d *DirBackend) PutBlob(_ context.Context, fittedID string, step int, data []byte) error {
	if err := checkID(fittedID); err != nil {
		return err
	}
	if err := os.MkdirAll(d.blobDir(fittedID), 0o750); err != nil {
		return fmt.Errorf("create blob directory: %w", err)
	}
	return writeFileAtomic(d.blobPath(fittedID, step), data)
}

func (d *DirBackend) PutDocument(_ context.Context, fittedID string, doc []byte) error {
	if err := checkID(fittedID); err != nil {
		return err
	}
	return writeFileAtomic(d.documentPath(fittedID), doc)
}

func (d *DirBackend) GetDocument(_ context.Context, fittedID string) ([]byte, error) {
	if err := checkID(fittedID); err != nil {
		return nil, err
	}
	return readFile(d.documentPath(fittedID))
}

func (d *DirBackend) GetBlob(_ context.Context, fittedID string, step int) ([]byte, error) {
	if err := checkID(fittedID); err != nil {
		return nil, err
	}
	return readFile(d.blobPath(fittedID, step))
}

func (d *DirBackend) BlobCount(_ context.Context, fittedID string) (int, error) {
	if err := checkID(fittedID); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(d.blobDir(fittedID))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, "step_") && strings.HasSuffix(name, ".bin") {
			n++
		}
	}
	return n, nil
}

func (d *DirBackend) ListDocuments(context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, "pipelines"))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if id, ok := strings.CutSuffix(e.Name(), ".json"); ok && !e.IsDir() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNotFound)
	}
	return data, err
}

// writeFileAtomic writes data to a temp file in path's directory, syncs it,
// and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
