package vectordb

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
)

func sampleChunks() []entities.Chunk {
	return []entities.Chunk{
		{ID: "c1", DocumentID: "doc1", SourceDoc: "rates.md", Content: "offices 40 VA/m2", Embedding: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "doc1", SourceDoc: "rates.md", Content: "storage 10 VA/m2", Embedding: []float32{0, 1, 0}},
		{ID: "c3", DocumentID: "doc2", SourceDoc: "factors.md", Content: "demand factor 0.6", Embedding: []float32{0.7, 0.7, 0}},
	}
}

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// storeContract runs the same checks against every ports.VectorStore.
func storeContract(t *testing.T, store ports.VectorStore, count func() int) {
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, sampleChunks()))
	assert.Equal(t, 3, count())

	results, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "rates.md", results[0].SourceDoc)
	assert.Equal(t, "c3", results[1].Chunk.ID)
	assert.Equal(t, []float32{1, 0, 0}, results[0].Chunk.Embedding)

	require.NoError(t, store.Delete(ctx, "doc1"))
	assert.Equal(t, 1, count())
	results, err = store.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c3", results[0].Chunk.ID)

	replacement := []entities.Chunk{
		{ID: "c4", DocumentID: "doc2", SourceDoc: "factors.md", Content: "demand factor 0.8", Embedding: []float32{0, 0, 1}},
		{ID: "c5", DocumentID: "doc2", SourceDoc: "factors.md", Content: "diversity 0.9", Embedding: []float32{0, 1, 1}},
	}
	require.NoError(t, store.Replace(ctx, "doc2", replacement))
	assert.Equal(t, 2, count())
	results, err = store.Search(ctx, []float32{0, 0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c4", results[0].Chunk.ID)
	assert.Equal(t, "c5", results[1].Chunk.ID)

	require.NoError(t, store.Clear(ctx))
	assert.Zero(t, count())
}

func TestSQLiteStore_Contract(t *testing.T) {
	store := newSQLite(t)
	storeContract(t, store, func() int {
		n, err := store.ChunkCount(context.Background())
		require.NoError(t, err)
		return n
	})
}

func TestInMemoryStore_Contract(t *testing.T) {
	store := NewInMemoryStore()
	storeContract(t, store, func() int {
		n, _ := store.ChunkCount(context.Background())
		return n
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewSQLiteStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, first.Store(ctx, sampleChunks()))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dir, nil)
	require.NoError(t, err)
	defer second.Close()
	n, err := second.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSQLiteStore_ReplaceByID(t *testing.T) {
	store := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, sampleChunks()[:1]))

	updated := sampleChunks()[0]
	updated.Content = "offices 50 VA/m2"
	require.NoError(t, store.Store(ctx, []entities.Chunk{updated}))

	results, err := store.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "offices 50 VA/m2", results[0].Chunk.Content)
}

func TestSQLiteStore_FailedReplaceRollsBack(t *testing.T) {
	store := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, sampleChunks()))

	bad := []entities.Chunk{
		{ID: "c9", DocumentID: "doc1", Content: "ok", Embedding: []float32{1, 0, 0}},
		{ID: "c10", DocumentID: "doc1", Content: "unencodable", Embedding: []float32{float32(math.NaN())}},
	}
	assert.Error(t, store.Replace(ctx, "doc1", bad))

	n, err := store.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	results, err := store.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestRank_BreaksTiesByID(t *testing.T) {
	got := rank([]entities.QueryResult{
		{Chunk: entities.Chunk{ID: "b"}, Score: 0.5},
		{Chunk: entities.Chunk{ID: "a"}, Score: 0.5},
		{Chunk: entities.Chunk{ID: "c"}, Score: 0.9},
	}, 5)
	ids := []string{got[0].Chunk.ID, got[1].Chunk.ID, got[2].Chunk.ID}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0}), 1e-12)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0, 0}, []float32{0, 1, 0}), 1e-12)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
