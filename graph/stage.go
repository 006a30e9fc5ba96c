package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Stage files written between pipeline phases.
const (
	RawEntitiesFile         = "kg_entities_raw.json"
	RawRelationsFile        = "kg_relations_raw.json"
	AggregatedEntitiesFile  = "kg_entities_aggregated.json"
	AggregatedRelationsFile = "kg_relations_aggregated.json"
	ClusteredEntitiesFile   = "kg_entities_clustered.json"
	ClusteredRelationsFile  = "kg_relations_clustered.json"
)

// WriteStage writes records as indented JSON, creating parent directories.
func WriteStage[T any](path string, records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating stage dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadStage reads a file written by WriteStage.
func ReadStage[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stage file: %w", err)
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// StageExists reports whether every path exists.
func StageExists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
