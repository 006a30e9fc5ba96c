package gokg

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("gokg: invalid configuration")

	// ErrGraphUnavailable is returned when Neo4j cannot be reached at startup.
	ErrGraphUnavailable = errors.New("gokg: graph store unavailable")

	// ErrChunkStoreUnavailable is returned when the SQLite chunk store
	// cannot be opened or built.
	ErrChunkStoreUnavailable = errors.New("gokg: chunk store unavailable")

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("gokg: empty question")

	// ErrClosed is returned when using a closed Service.
	ErrClosed = errors.New("gokg: service closed")
)
