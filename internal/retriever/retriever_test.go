package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/models"
)

// stubDB overrides only the search-related methods; anything else
// panics, which is exactly what we want in these tests.
type stubDB struct {
	core.DbClient
	embedded    int
	countErr    error
	vectorHits  []core.ScoredChunk
	vectorErr   error
	keywordHits []core.ScoredChunk
	keywordErr  error
}

func (s *stubDB) CountEmbeddedChunks(_ context.Context, _ []string) (int, error) {
	return s.embedded, s.countErr
}

func (s *stubDB) SearchChunksVector(_ context.Context, _ string, _ []string, _ []float32, _ int) ([]core.ScoredChunk, error) {
	return s.vectorHits, s.vectorErr
}

func (s *stubDB) SearchChunksKeyword(_ context.Context, _ string, _ []string, _ string, _ int) ([]core.ScoredChunk, error) {
	return s.keywordHits, s.keywordErr
}

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func scored(id, docID string, ordinal int, score float64) core.ScoredChunk {
	return core.ScoredChunk{
		Chunk: models.DocumentChunk{ID: id, DocumentID: docID, Ordinal: ordinal, Content: "c-" + id},
		Score: score,
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	r := New(&stubDB{}, nil)
	_, err := r.Search(context.Background(), "t1", "   ", Options{})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSearchMergesVectorAndKeyword(t *testing.T) {
	db := &stubDB{
		embedded:    5,
		vectorHits:  []core.ScoredChunk{scored("a", "d1", 0, 0.9), scored("b", "d1", 1, 0.8)},
		keywordHits: []core.ScoredChunk{scored("b", "d1", 1, 1.0), scored("c", "d2", 0, 0.5)},
	}
	r := New(db, &stubEmbedder{})

	results, err := r.Search(context.Background(), "t1", "question", Options{
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := map[string]Result{}
	for _, res := range results {
		byID[res.Chunk.ID] = res
	}
	assert.Equal(t, SourceVector, byID["a"].Source)
	assert.Equal(t, SourceHybrid, byID["b"].Source)
	assert.Equal(t, SourceKeyword, byID["c"].Source)
	assert.InDelta(t, 0.7*0.8+0.3*1.0, byID["b"].Score, 1e-9)
}

func TestSearchKeywordFallbackWhenNoEmbeddedChunks(t *testing.T) {
	db := &stubDB{
		embedded:    0, // document ingested without vectors
		keywordHits: []core.ScoredChunk{scored("k", "d1", 0, 0.6)},
	}
	r := New(db, &stubEmbedder{})

	results, err := r.Search(context.Background(), "t1", "question", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, SourceKeyword, results[0].Source)

	stats := r.Stats()
	assert.Equal(t, int64(0), stats.VectorHits)
	assert.Equal(t, int64(1), stats.KeywordHits)
}

func TestSearchKeywordFallbackWhenEmbeddingFails(t *testing.T) {
	db := &stubDB{
		embedded:    5,
		keywordHits: []core.ScoredChunk{scored("k", "d1", 0, 0.6)},
	}
	r := New(db, &stubEmbedder{err: errors.New("model down")})

	results, err := r.Search(context.Background(), "t1", "question", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, SourceKeyword, results[0].Source)
}

func TestSearchSimilarityThreshold(t *testing.T) {
	db := &stubDB{
		embedded:   5,
		vectorHits: []core.ScoredChunk{scored("hi", "d1", 0, 0.9), scored("lo", "d1", 1, 0.2)},
	}
	r := New(db, &stubEmbedder{})

	results, err := r.Search(context.Background(), "t1", "q", Options{SimilarityThreshold: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hi", results[0].Chunk.ID)
}

func TestRerankIsDeterministicOnTies(t *testing.T) {
	db := &stubDB{
		embedded: 5,
		vectorHits: []core.ScoredChunk{
			scored("x", "d1", 7, 0.5),
			scored("y", "d1", 2, 0.5),
			scored("z", "d1", 4, 0.9),
		},
	}

	for i := 0; i < 5; i++ {
		r := New(db, &stubEmbedder{})
		results, err := r.Search(context.Background(), "t1", "q", Options{Rerank: true})
		require.NoError(t, err)
		require.Len(t, results, 3)

		// highest score first, ties broken by ascending ordinal
		assert.Equal(t, "z", results[0].Chunk.ID)
		assert.Equal(t, "y", results[1].Chunk.ID)
		assert.Equal(t, "x", results[2].Chunk.ID)
	}
}

func TestDiversifyRoundRobinsByDocument(t *testing.T) {
	db := &stubDB{
		embedded: 5,
		vectorHits: []core.ScoredChunk{
			scored("a1", "docA", 0, 0.9),
			scored("a2", "docA", 1, 0.8),
			scored("a3", "docA", 2, 0.7),
			scored("b1", "docB", 0, 0.6),
		},
	}
	r := New(db, &stubEmbedder{})

	results, err := r.Search(context.Background(), "t1", "q", Options{Diversify: true})
	require.NoError(t, err)
	require.Len(t, results, 4)

	ids := []string{results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID, results[3].Chunk.ID}
	assert.Equal(t, []string{"a1", "b1", "a2", "a3"}, ids)
}

func TestSearchLimit(t *testing.T) {
	var hits []core.ScoredChunk
	for i := 0; i < 20; i++ {
		hits = append(hits, scored(string(rune('a'+i)), "d1", i, 1.0-float64(i)*0.01))
	}
	db := &stubDB{embedded: 5, vectorHits: hits}
	r := New(db, &stubEmbedder{})

	results, err := r.Search(context.Background(), "t1", "q", Options{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestNormalizeWeights(t *testing.T) {
	vw, kw := normalizeWeights(0, 0)
	assert.Equal(t, 0.7, vw)
	assert.Equal(t, 0.3, kw)

	vw, kw = normalizeWeights(2, 2)
	assert.Equal(t, 0.5, vw)
	assert.Equal(t, 0.5, kw)

	vw, kw = normalizeWeights(-1, 1)
	assert.Equal(t, 0.0, vw)
	assert.Equal(t, 1.0, kw)
}
