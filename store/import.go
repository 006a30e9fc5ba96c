package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// ImportChunksJSON fills the store from the chunk JSON written by the
// prepare step. It does nothing when chunks are already present, so the
// database is built once per JSON file. It returns the number imported.
func (s *Store) ImportChunksJSON(ctx context.Context, jsonPath string) (int, error) {
	n, err := s.CountChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	if n > 0 {
		slog.Debug("store: chunks already imported, skipping", "path", jsonPath, "count", n)
		return 0, nil
	}

	start := time.Now()
	chunks, err := ReadChunks(jsonPath)
	if err != nil {
		return 0, err
	}
	if err := s.InsertChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("importing %s: %w", jsonPath, err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO imports (source, chunk_count) VALUES (?, ?)
			ON CONFLICT(source) DO UPDATE SET chunk_count = excluded.chunk_count, imported_at = CURRENT_TIMESTAMP
		`, filepath.Base(jsonPath), len(chunks))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("recording import: %w", err)
	}

	slog.Info("store: chunks imported", "path", jsonPath, "count", len(chunks),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return len(chunks), nil
}

// Open opens the database next to jsonPath and imports the chunks on
// first use.
func Open(ctx context.Context, jsonPath string, embeddingDim int) (*Store, error) {
	s, err := New(PathFor(jsonPath), embeddingDim)
	if err != nil {
		return nil, err
	}
	if _, err := s.ImportChunksJSON(ctx, jsonPath); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
