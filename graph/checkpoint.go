package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// CheckpointGlob matches every extraction checkpoint in a directory.
const CheckpointGlob = "extraction_checkpoint_*chunks.json"

// Checkpoint is the persisted progress of an extraction run.
type Checkpoint struct {
	Entities             []EntityMention   `json:"all_entities"`
	Relations            []RelationMention `json:"all_relations"`
	ProcessedCount       int               `json:"processed_count"`
	TotalChunks          int               `json:"total_chunks"`
	LastProcessedChunkID string            `json:"last_processed_chunk_id"`
	Timestamp            time.Time         `json:"timestamp"`
	Completed            bool              `json:"completed"`
}

// CheckpointPath returns the checkpoint file of a run over total chunks.
func CheckpointPath(dir string, total int) string {
	return filepath.Join(dir, fmt.Sprintf("extraction_checkpoint_%dchunks.json", total))
}

// SaveCheckpoint writes cp atomically.
func SaveCheckpoint(path string, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating checkpoint dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint. A missing file returns an error
// matching fs.ErrNotExist.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	return &cp, nil
}

// FindLatestCheckpoint returns the most recently modified file matching
// pattern, or "" when there is none.
func FindLatestCheckpoint(pattern string) (string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("globbing checkpoints: %w", err)
	}
	var (
		latest  string
		latestT time.Time
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestT) {
			latest, latestT = m, info.ModTime()
		}
	}
	return latest, nil
}

// CleanupCheckpoints removes every file matching pattern and returns the
// removed paths.
func CleanupCheckpoints(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("globbing checkpoints: %w", err)
	}
	var removed []string
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, m)
	}
	return removed, errors.Join(errs...)
}
