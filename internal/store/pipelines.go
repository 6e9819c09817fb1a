package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ta2/internal/persist"
)

// PutBlob stores the fitted state of one step, replacing any previous blob.
func (s *Store) PutBlob(ctx context.Context, fittedID string, step int, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_blobs (fitted_pipeline_id, step_index, state)
		VALUES (?, ?, ?)
		ON CONFLICT(fitted_pipeline_id, step_index) DO UPDATE SET state = excluded.state
	`, fittedID, step, data)
	if err != nil {
		return fmt.Errorf("put blob %s[%d]: %w", fittedID, step, err)
	}
	return nil
}

// PutDocument stores the structural document, replacing any previous one.
func (s *Store) PutDocument(ctx context.Context, fittedID string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fitted_pipelines (id, document)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document
	`, fittedID, doc)
	if err != nil {
		return fmt.Errorf("put document %s: %w", fittedID, err)
	}
	return nil
}

// GetDocument returns the structural document or persist.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, fittedID string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM fitted_pipelines WHERE id = ?`, fittedID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", fittedID, persist.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", fittedID, err)
	}
	return doc, nil
}

// GetBlob returns one step blob or persist.ErrNotFound.
func (s *Store) GetBlob(ctx context.Context, fittedID string, step int) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM step_blobs
		WHERE fitted_pipeline_id = ? AND step_index = ?
	`, fittedID, step).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blob %s[%d]: %w", fittedID, step, persist.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s[%d]: %w", fittedID, step, err)
	}
	return data, nil
}

// BlobCount returns the number of stored blobs for fittedID.
func (s *Store) BlobCount(ctx context.Context, fittedID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM step_blobs WHERE fitted_pipeline_id = ?`, fittedID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count blobs %s: %w", fittedID, err)
	}
	return n, nil
}

// ListDocuments returns every stored fitted pipeline id.
// Ordered by id with COLLATE BINARY for deterministic results.
func (s *Store) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM fitted_pipelines ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return ids, nil
}

var _ persist.Backend = (*Store)(nil)
