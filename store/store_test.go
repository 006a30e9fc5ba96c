//go:build cgo

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	require.NoError(t, err, "creating store")
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(n int) *int { return &n }

func sampleChunks() []Chunk {
	return []Chunk{
		{ChunkID: ChunkID("guida.pdf", 1), Text: "Per inviare l'offerta l'operatore economico deve apporre la firma digitale.",
			SourceFile: "guida.pdf", PageNumber: intPtr(3), SectionTitle: "Invio offerta"},
		{ChunkID: ChunkID("guida.pdf", 2), Text: "La busta amministrativa contiene la documentazione richiesta dal bando.",
			SourceFile: "guida.pdf", PageNumber: intPtr(4), SectionTitle: "Busta amministrativa"},
		{ChunkID: ChunkID("faq.txt", 1), Text: "Il reset della password si effettua dalla pagina di accesso.",
			SourceFile: "faq.txt", SectionTitle: "Accesso"},
	}
}

func TestNew(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, 4, s.EmbeddingDim())
	assert.NotNil(t, s.DB())

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := New(dbPath, 4)
	require.NoError(t, err)
	s.Close()
}

func TestNewRejectsZeroDimension(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "test.db"), 0)
	assert.Error(t, err)
}

func TestReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4)
	require.NoError(t, err)
	require.NoError(t, s.InsertChunks(context.Background(), sampleChunks()))
	s.Close()

	s, err = New(dbPath, 4)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestInsertAndGetChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertChunks(ctx, sampleChunks()))

	c, found, err := s.GetChunk(ctx, "guida.pdf_section_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Invio offerta", c.SectionTitle)
	require.NotNil(t, c.PageNumber)
	assert.Equal(t, 3, *c.PageNumber)
	assert.Equal(t, "3", c.Page())

	c, found, err = s.GetChunk(ctx, "faq.txt_section_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, c.PageNumber)
	assert.Equal(t, "N/A", c.Page())

	_, found, err = s.GetChunk(ctx, "nessuno")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetChunkCacheInvalidatedOnUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chunks := sampleChunks()
	require.NoError(t, s.InsertChunks(ctx, chunks))

	_, _, err := s.GetChunk(ctx, chunks[0].ChunkID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.chunks.Len())

	chunks[0].Text = "testo aggiornato"
	require.NoError(t, s.InsertChunks(ctx, chunks[:1]))
	c, _, err := s.GetChunk(ctx, chunks[0].ChunkID)
	require.NoError(t, err)
	assert.Equal(t, "testo aggiornato", c.Text)

	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestInsertChunksRejectsMissingID(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertChunks(context.Background(), []Chunk{{Text: "x", SourceFile: "a.txt"}})
	assert.Error(t, err)
}

func TestTextScores(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertChunks(ctx, sampleChunks()))

	ids := []string{"guida.pdf_section_1", "guida.pdf_section_2", "faq.txt_section_1"}
	scores, err := s.TextScores(ctx, []string{"firma digitale", "offerta"}, ids)
	require.NoError(t, err)
	assert.Contains(t, scores, "guida.pdf_section_1")
	assert.NotContains(t, scores, "faq.txt_section_1")
	assert.Greater(t, scores["guida.pdf_section_1"], 0.0)

	// candidates outside ids are never scored
	scores, err = s.TextScores(ctx, []string{"password"}, ids[:2])
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestTextScoresFoldsAccents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertChunks(ctx, []Chunk{{ChunkID: "a_section_1", Text: "La modalità di invio è telematica.", SourceFile: "a"}}))

	scores, err := s.TextScores(ctx, []string{"modalita"}, []string{"a_section_1"})
	require.NoError(t, err)
	assert.Contains(t, scores, "a_section_1")
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"firma digitale" OR "offerta"`, FTSQuery([]string{"firma digitale", " offerta ", "offerta", ""}))
	assert.Equal(t, `"a   b"`, FTSQuery([]string{`a " b`}))
	assert.Empty(t, FTSQuery(nil))
}

func TestEmbeddingsAndSimilarities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertChunks(ctx, sampleChunks()))

	ids := []string{"guida.pdf_section_1", "guida.pdf_section_2", "faq.txt_section_1"}
	missing, err := s.MissingEmbeddings(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, ids, missing)

	require.NoError(t, s.PutEmbedding(ctx, ids[0], []float32{1, 0, 0, 0}))
	require.NoError(t, s.PutEmbedding(ctx, ids[1], []float32{0, 1, 0, 0}))
	// overwrite is allowed
	require.NoError(t, s.PutEmbedding(ctx, ids[1], []float32{0.7, 0.7, 0, 0}))

	missing, err = s.MissingEmbeddings(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, []string{"faq.txt_section_1"}, missing)

	sims, err := s.Similarities(ctx, []float32{1, 0, 0, 0}, ids)
	require.NoError(t, err)
	require.Len(t, sims, 2)
	assert.InDelta(t, 1.0, sims[ids[0]], 1e-5)
	assert.InDelta(t, 0.7071, sims[ids[1]], 1e-3)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Chunks: 3, Embeddings: 2, Sources: 2}, *stats)
}

func TestEmbeddingDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertChunks(ctx, sampleChunks()))

	err := s.PutEmbedding(ctx, "guida.pdf_section_1", []float32{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = s.Similarities(ctx, []float32{1}, []string{"guida.pdf_section_1"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestPutEmbeddingUnknownChunk(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.PutEmbedding(context.Background(), "nessuno", []float32{1, 0, 0, 0}))
}

func TestImportChunksJSONRunsOnce(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "chunks.json")
	require.NoError(t, WriteChunks(jsonPath, sampleChunks()))
	ctx := context.Background()

	s, err := Open(ctx, jsonPath, 4)
	require.NoError(t, err)
	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	s.Close()
	assert.FileExists(t, filepath.Join(dir, "chunks.db"))

	// a changed JSON file is not re-imported into a populated store
	require.NoError(t, WriteChunks(jsonPath, sampleChunks()[:1]))
	s, err = New(PathFor(jsonPath), 4)
	require.NoError(t, err)
	defer s.Close()
	imported, err := s.ImportChunksJSON(ctx, jsonPath)
	require.NoError(t, err)
	assert.Zero(t, imported)
}

func TestOpenAssignsFallbackIDs(t *testing.T) {
	jsonPath := filepath.Join(t.TempDir(), "chunks.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(
		`[{"text":"Per cambiare password accedere al profilo.","source_file":"guida.pdf","page_number":1}]`), 0o644))
	ctx := context.Background()

	s, err := Open(ctx, jsonPath, 4)
	require.NoError(t, err)
	defer s.Close()

	c, found, err := s.GetChunk(ctx, FallbackChunkID(0))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "guida.pdf", c.SourceFile)
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, "out/chunks.db", PathFor("out/chunks.json"))
	assert.Equal(t, "chunks.db", PathFor("chunks"))
}
