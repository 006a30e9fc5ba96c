package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/gokg/store"
)

// auditor writes the prompt input and raw model output of every chunk to a
// directory, for offline inspection. A zero auditor writes nothing.
type auditor struct {
	dir string
}

func newAuditor(dir string) (*auditor, error) {
	if dir == "" {
		return &auditor{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}
	return &auditor{dir: dir}, nil
}

var fileNameCleaner = strings.NewReplacer("/", "_", `\`, "_", ":", "_")

func (a *auditor) path(chunkID, suffix string) string {
	return filepath.Join(a.dir, fileNameCleaner.Replace(chunkID)+suffix)
}

func (a *auditor) writeInput(c store.Chunk) {
	if a.dir == "" {
		return
	}
	body := fmt.Sprintf("CHUNK_ID: %s\nPAGE_NUMBER: %s\nSECTION_TITLE: %s\n\n---\n%s",
		c.ChunkID, c.Page(), sectionTitle(c), c.Text)
	if err := os.WriteFile(a.path(c.ChunkID, "_input.txt"), []byte(body), 0o644); err != nil {
		slog.Warn("graph: writing audit input failed", "chunk_id", c.ChunkID, "error", err)
	}
}

// writeOutput stores pretty JSON when raw parses, the raw text otherwise, and
// "{}" for an empty response.
func (a *auditor) writeOutput(chunkID, raw string) {
	if a.dir == "" {
		return
	}
	var body []byte
	var buf bytes.Buffer
	switch {
	case raw == "":
		body = []byte("{}")
	case json.Indent(&buf, []byte(raw), "", "  ") == nil:
		body = buf.Bytes()
	default:
		body = []byte(raw)
	}
	if err := os.WriteFile(a.path(chunkID, "_llm_output.json"), body, 0o644); err != nil {
		slog.Warn("graph: writing audit output failed", "chunk_id", chunkID, "error", err)
	}
}
