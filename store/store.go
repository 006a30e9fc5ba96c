// Package store keeps the prepared chunks in SQLite, with an FTS5 mirror
// for lexical scoring and a sqlite-vec table caching chunk embeddings.
//
// FTS5 is compiled into go-sqlite3 only with the sqlite_fts5 build tag;
// without it New fails with "no such module: fts5". Run the tests with:
//
//	go test -tags sqlite_fts5 ./store/...
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DefaultChunkCacheSize bounds the GetChunk LRU.
const DefaultChunkCacheSize = 128

// ErrDimensionMismatch is returned when an embedding does not match the
// configured vector width.
var ErrDimensionMismatch = errors.New("store: embedding dimension mismatch")

// ErrNoFTS5 is returned when go-sqlite3 was built without the sqlite_fts5
// tag.
var ErrNoFTS5 = errors.New("store: sqlite built without FTS5 (build with -tags sqlite_fts5)")

func schemaError(err error) error {
	if strings.Contains(err.Error(), "no such module: fts5") {
		return fmt.Errorf("creating schema: %w: %v", ErrNoFTS5, err)
	}
	return fmt.Errorf("creating schema: %w", err)
}

// Store wraps the SQLite chunk database.
type Store struct {
	db           *sql.DB
	embeddingDim int
	chunks       *lru.Cache[string, Chunk]
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("store: embedding dimension must be positive, got %d", embeddingDim)
	}
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, schemaError(err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	cache, _ := lru.New[string, Chunk](DefaultChunkCacheSize)
	s := &Store{db: db, embeddingDim: embeddingDim, chunks: cache}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// PathFor maps a chunk JSON file to the database built from it:
// x.json becomes x.db.
func PathFor(jsonPath string) string {
	return strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".db"
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Chunk operations ---

// InsertChunks upserts chunks in one transaction.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (chunk_id, text, source_file, page_number, section_title)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(chunk_id) DO UPDATE SET
				text = excluded.text,
				source_file = excluded.source_file,
				page_number = excluded.page_number,
				section_title = excluded.section_title
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			if c.ChunkID == "" {
				return fmt.Errorf("chunk without id from %s", c.SourceFile)
			}
			if _, err := stmt.ExecContext(ctx, c.ChunkID, c.Text, c.SourceFile, c.PageNumber, c.SectionTitle); err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.ChunkID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range chunks {
		s.chunks.Remove(c.ChunkID)
	}
	return nil
}

// GetChunk returns the chunk with the given id. found is false when no
// such chunk exists. Hits are served from an LRU cache.
func (s *Store) GetChunk(ctx context.Context, id string) (chunk Chunk, found bool, err error) {
	if c, ok := s.chunks.Get(id); ok {
		return c, true, nil
	}
	var page sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT chunk_id, text, source_file, page_number, section_title
		FROM chunks WHERE chunk_id = ?
	`, id).Scan(&chunk.ChunkID, &chunk.Text, &chunk.SourceFile, &page, &chunk.SectionTitle)
	if errors.Is(err, sql.ErrNoRows) {
		return Chunk{}, false, nil
	}
	if err != nil {
		return Chunk{}, false, fmt.Errorf("reading chunk %s: %w", id, err)
	}
	if page.Valid {
		p := int(page.Int64)
		chunk.PageNumber = &p
	}
	s.chunks.Add(id, chunk)
	return chunk, true, nil
}

// CountChunks returns the number of stored chunks.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// --- Lexical scoring ---

// TextScores returns a BM25-derived score for every chunk in ids that
// matches any of the terms. Higher is better; unmatched chunks are absent.
func (s *Store) TextScores(ctx context.Context, terms []string, ids []string) (map[string]float64, error) {
	query := FTSQuery(terms)
	if query == "" || len(ids) == 0 {
		return map[string]float64{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, query)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id, bm25(chunks_fts)
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ? AND c.chunk_id IN (?`+repeatPlaceholders(len(ids)-1)+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("scoring chunks: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64, len(ids))
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, err
		}
		// bm25() is negative, lower is better
		scores[id] = -rank
	}
	return scores, rows.Err()
}

// FTSQuery builds an FTS5 MATCH expression that ORs the quoted terms.
func FTSQuery(terms []string) string {
	var parts []string
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(strings.ReplaceAll(t, `"`, " "))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		parts = append(parts, `"`+t+`"`)
	}
	return strings.Join(parts, " OR ")
}

// --- Embedding operations ---

// PutEmbedding caches the embedding of a stored chunk.
func (s *Store) PutEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	if len(embedding) != s.embeddingDim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.embeddingDim)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var rowid int64
		if err := tx.QueryRowContext(ctx, "SELECT rowid FROM chunks WHERE chunk_id = ?", chunkID).Scan(&rowid); err != nil {
			return fmt.Errorf("locating chunk %s: %w", chunkID, err)
		}
		// vec0 has no upsert
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_vectors WHERE chunk_rowid = ?", rowid); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO chunk_vectors (chunk_rowid, embedding) VALUES (?, ?)",
			rowid, serializeFloat32(embedding))
		return err
	})
}

// MissingEmbeddings returns the ids among ids that have no cached vector.
func (s *Store) MissingEmbeddings(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id FROM chunks c
		JOIN chunk_vectors v ON v.chunk_rowid = c.rowid
		WHERE c.chunk_id IN (?`+repeatPlaceholders(len(ids)-1)+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	have := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		have[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range ids {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Similarities returns the cosine similarity between query and the cached
// embedding of every chunk in ids. Chunks without a cached vector are absent.
func (s *Store) Similarities(ctx context.Context, query []float32, ids []string) (map[string]float64, error) {
	if len(query) != s.embeddingDim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), s.embeddingDim)
	}
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, serializeFloat32(query))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id, vec_distance_cosine(v.embedding, ?)
		FROM chunk_vectors v
		JOIN chunks c ON c.rowid = v.chunk_rowid
		WHERE c.chunk_id IN (?`+repeatPlaceholders(len(ids)-1)+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("computing similarities: %w", err)
	}
	defer rows.Close()

	sims := make(map[string]float64, len(ids))
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		sims[id] = 1.0 - distance
	}
	return sims, rows.Err()
}

// Stats holds counts of key database objects.
type Stats struct {
	Chunks     int `json:"chunks"`
	Embeddings int `json:"embeddings"`
	Sources    int `json:"sources"`
}

// Stats returns counts of chunks, cached embeddings and source files.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM chunk_vectors", &stats.Embeddings},
		{"SELECT COUNT(DISTINCT source_file) FROM chunks", &stats.Sources},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func repeatPlaceholders(n int) string {
	return strings.Repeat(", ?", n)
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
