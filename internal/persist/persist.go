package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/pipeline"
)

// Save writes every step blob, then the sealed structural document.
func Save(ctx context.Context, b Backend, fp *engine.FittedPipeline) error {
	id := fp.ID()
	doc, err := fp.Document()
	if err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	data, err := ir.MarshalDocument(doc)
	if err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}

	for i := 0; i < fp.NumSteps(); i++ {
		blob, err := fp.MarshalStep(i)
		if err != nil {
			return saveError(id, i, ErrCodeSerializeFailed, err)
		}
		if err := b.PutBlob(ctx, id, i, blob); err != nil {
			return saveError(id, i, ErrCodeBackend, err)
		}
	}
	// The document is the commit marker and must land last.
	if err := b.PutDocument(ctx, id, data); err != nil {
		return saveError(id, -1, ErrCodeBackend, err)
	}

	slog.Debug("fitted pipeline saved",
		"fitted_pipeline", id,
		"steps", fp.NumSteps(),
		"digest", doc.Digest,
	)
	return nil
}

// Load rebuilds the fitted pipeline recorded under id. The result carries
// the recorded id and dataset id.
func Load(ctx context.Context, b Backend, reg *engine.Registry, id string) (*engine.FittedPipeline, error) {
	doc, err := LoadDocument(ctx, b, id)
	if err != nil {
		return nil, err
	}

	graph, err := pipeline.FromDocument(doc)
	if err != nil {
		return nil, loadError(id, -1, ErrCodeCorruptDocument, err)
	}

	count, err := b.BlobCount(ctx, id)
	if err != nil {
		return nil, loadError(id, -1, ErrCodeBackend, err)
	}
	if count != graph.NumSteps() {
		return nil, loadError(id, -1, ErrCodeBlobCountMismatch,
			fmt.Errorf("document declares %d steps, found %d blobs", graph.NumSteps(), count))
	}

	instances := make([]engine.Instance, graph.NumSteps())
	for i, step := range graph.Steps() {
		blob, err := b.GetBlob(ctx, id, i)
		if errors.Is(err, ErrNotFound) {
			return nil, loadError(id, i, ErrCodeMissingBlob, err)
		}
		if err != nil {
			return nil, loadError(id, i, ErrCodeBackend, err)
		}
		prim, err := reg.Lookup(step.Primitive().ID)
		if err != nil {
			return nil, loadError(id, i, ErrCodeRestoreFailed, err)
		}
		if instances[i], err = prim.Restore(blob); err != nil {
			return nil, loadError(id, i, ErrCodeRestoreFailed, err)
		}
	}

	fp, err := engine.NewFitted(doc.FittedPipelineID, doc.DatasetID, graph, instances)
	if err != nil {
		return nil, loadError(id, -1, ErrCodeRestoreFailed, err)
	}
	return fp, nil
}

// LoadDocument reads and verifies the structural document recorded under id.
func LoadDocument(ctx context.Context, b Backend, id string) (*ir.PipelineDocument, error) {
	data, err := b.GetDocument(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, loadError(id, -1, ErrCodeMissingDocument, err)
	}
	if err != nil {
		return nil, loadError(id, -1, ErrCodeBackend, err)
	}

	doc, err := ir.UnmarshalDocument(data)
	if err != nil {
		return nil, loadError(id, -1, ErrCodeCorruptDocument, err)
	}
	if err := doc.Verify(); err != nil {
		return nil, loadError(id, -1, ErrCodeDigestMismatch, err)
	}
	if doc.FittedPipelineID != id {
		return nil, loadError(id, -1, ErrCodeCorruptDocument,
			fmt.Errorf("document records fitted pipeline %q", doc.FittedPipelineID))
	}
	return doc, nil
}

// Archiver persists fitted pipelines for the session manager.
type Archiver struct {
	backend Backend
}

// NewArchiver wraps b.
func NewArchiver(b Backend) *Archiver {
	return &Archiver{backend: b}
}

// Archive saves fp.
func (a *Archiver) Archive(ctx context.Context, fp *engine.FittedPipeline) error {
	return Save(ctx, a.backend, fp)
}

// Backend returns the wrapped backend.
func (a *Archiver) Backend() Backend {
	return a.backend
}
