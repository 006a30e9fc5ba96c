package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseRRF(t *testing.T) {
	got := fuseRRF([]RankedList{
		{Method: "keyword", Weight: 1, IDs: []string{"a", "b", "c"}},
		{Method: "vector", Weight: 1, IDs: []string{"c", "d"}},
	}, 0)

	ids := make([]string, len(got))
	for i, f := range got {
		ids[i] = f.ID
	}
	// c: 1/63 + 1/61 beats a: 1/61; b and d tie at 1/62 and keep first-seen order.
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids)
	assert.Equal(t, []string{"keyword", "vector"}, got[0].Methods)
	assert.InDelta(t, 1.0/63+1.0/61, got[0].Score, 1e-12)
}

func TestFuseRRFTiesKeepFirstSeen(t *testing.T) {
	got := fuseRRF([]RankedList{
		{Method: "keyword", Weight: 1, IDs: []string{"x"}},
		{Method: "vector", Weight: 1, IDs: []string{"y"}},
	}, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].ID)
	assert.Equal(t, "y", got[1].ID)
}

func TestFuseRRFDuplicatesAndLimit(t *testing.T) {
	got := fuseRRF([]RankedList{
		{Method: "keyword", Weight: 2, IDs: []string{"a", "a", "", "b", "c"}},
	}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 2.0/61, got[0].Score, 1e-12)
	assert.Equal(t, []string{"keyword"}, got[0].Methods)
	assert.Equal(t, "b", got[1].ID)
}

func TestFuseRRFEmpty(t *testing.T) {
	assert.Empty(t, fuseRRF(nil, 10))
	assert.Empty(t, fuseRRF([]RankedList{{Method: "vector", Weight: 1}}, 10))
}
