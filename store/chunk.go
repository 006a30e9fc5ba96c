package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Chunk is one section of a source document, as produced by the prepare
// step. Chunks are immutable once written.
type Chunk struct {
	ChunkID      string `json:"chunk_id"`
	Text         string `json:"text"`
	SourceFile   string `json:"source_file"`
	PageNumber   *int   `json:"page_number"`
	SectionTitle string `json:"section_title"`
}

// ChunkID builds the stable id of the n-th section of a source file.
func ChunkID(sourceFile string, n int) string {
	return sourceFile + "_section_" + strconv.Itoa(n)
}

// FallbackChunkID is the id given to the i-th chunk of a file when the
// prepare step left it without one.
func FallbackChunkID(i int) string {
	return "chunk_" + strconv.Itoa(i)
}

// Page renders the page number for display, or "N/A" when unknown.
func (c Chunk) Page() string {
	if c.PageNumber == nil {
		return "N/A"
	}
	return strconv.Itoa(*c.PageNumber)
}

// Blank reports whether the chunk carries no text worth processing.
func (c Chunk) Blank() bool {
	return strings.TrimSpace(c.Text) == ""
}

// ReadChunks loads the chunk list written by the prepare step. Chunks
// without an id get FallbackChunkID of their position.
func ReadChunks(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decoding chunks %s: %w", path, err)
	}
	for i := range chunks {
		if chunks[i].ChunkID == "" {
			chunks[i].ChunkID = FallbackChunkID(i)
		}
	}
	return chunks, nil
}

// WriteChunks writes chunks as indented JSON.
func WriteChunks(path string, chunks []Chunk) error {
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding chunks: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing chunks: %w", err)
	}
	return nil
}
