package graph

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := CheckpointPath(t.TempDir(), 42)
	assert.Equal(t, "extraction_checkpoint_42chunks.json", filepath.Base(path))

	_, err := LoadCheckpoint(path)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "missing checkpoint reports ErrNotExist")

	cp := &Checkpoint{
		Entities:       []EntityMention{{Name: "a", Type: "Criterio", Provenance: Provenance{ChunkID: "c1", PageNumber: intPtr(2)}}},
		ProcessedCount: 10,
		TotalChunks:    42,
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, SaveCheckpoint(path, cp))
	got, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, cp.ProcessedCount, got.ProcessedCount)
	assert.Equal(t, 2, *got.Entities[0].PageNumber)
	assert.True(t, cp.Timestamp.Equal(got.Timestamp))
	assert.NoFileExists(t, path+".tmp")
}

func TestFindLatestAndCleanupCheckpoints(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, CheckpointGlob)

	latest, err := FindLatestCheckpoint(pattern)
	require.NoError(t, err)
	assert.Empty(t, latest)

	older := CheckpointPath(dir, 100)
	newer := CheckpointPath(dir, 5)
	require.NoError(t, SaveCheckpoint(older, &Checkpoint{}))
	require.NoError(t, SaveCheckpoint(newer, &Checkpoint{}))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	latest, err = FindLatestCheckpoint(pattern)
	require.NoError(t, err)
	assert.Equal(t, newer, latest)

	removed, err := CleanupCheckpoints(pattern)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{older, newer}, removed)
	assert.NoFileExists(t, older)
	assert.NoFileExists(t, newer)
}
