package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/models"
	"github.com/quarry-ai/quarry/internal/retriever"
)

type stubDB struct {
	core.DbClient
	doc         *models.Document
	docErr      error
	chunks      []models.DocumentChunk
	keywordHits []core.ScoredChunk
	latestID    string
}

func (s *stubDB) CountEmbeddedChunks(_ context.Context, _ []string) (int, error) {
	return 0, nil // keyword-only in these tests
}

func (s *stubDB) SearchChunksKeyword(_ context.Context, _ string, _ []string, _ string, _ int) ([]core.ScoredChunk, error) {
	return s.keywordHits, nil
}

func (s *stubDB) GetDocumentByID(_ context.Context, _, _ string) (*models.Document, error) {
	if s.docErr != nil {
		return nil, s.docErr
	}
	return s.doc, nil
}

func (s *stubDB) GetChunksByDocument(_ context.Context, _ string) ([]models.DocumentChunk, error) {
	return s.chunks, nil
}

func (s *stubDB) LatestDocumentID(_ context.Context, _ string) (string, error) {
	return s.latestID, nil
}

type stubLLM struct {
	out   string
	err   error
	calls int
}

func (l *stubLLM) Generate(_ context.Context, _, _ string) (string, error) {
	l.calls++
	return l.out, l.err
}

const longPassage = `The migration plan has three phases. Phase one moves the read
traffic to the new cluster. Phase two moves the write traffic after a week of
observation. Phase three decommissions the old cluster and archives its data.
The rollback procedure restores the old cluster from the archived snapshots.`

func newTestGenerator(db *stubDB, llm core.LLMProvider) *Generator {
	return NewGenerator(db, retriever.New(db, nil), llm)
}

func hits(contents ...string) []core.ScoredChunk {
	out := make([]core.ScoredChunk, len(contents))
	for i, c := range contents {
		out[i] = core.ScoredChunk{
			Chunk: models.DocumentChunk{ID: string(rune('a' + i)), DocumentID: "doc1", Ordinal: i, Content: c},
			Score: 0.9 - float64(i)*0.1,
		}
	}
	return out
}

func TestQueryRejectsEmpty(t *testing.T) {
	g := newTestGenerator(&stubDB{}, nil)
	_, err := g.Query(context.Background(), "t1", "  ", QueryOptions{})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestQueryInsufficientData(t *testing.T) {
	g := newTestGenerator(&stubDB{doc: &models.Document{}}, &stubLLM{out: "never used"})

	ans, err := g.Query(context.Background(), "t1", "what is the plan?", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, MethodInsufficient, ans.Method)
	assert.Equal(t, 0.0, ans.Confidence)
	assert.Empty(t, ans.Sources)
}

func TestQueryUsesLLM(t *testing.T) {
	db := &stubDB{doc: &models.Document{Title: "Plan"}, keywordHits: hits(longPassage)}
	llm := &stubLLM{out: "The plan has three phases."}
	g := newTestGenerator(db, llm)

	ans, err := g.Query(context.Background(), "t1", "what is the plan?", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, MethodLLM, ans.Method)
	assert.Equal(t, "The plan has three phases.", ans.Answer)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "Plan", ans.Sources[0].Title)
	assert.GreaterOrEqual(t, ans.GenerationTimeMs, int64(0))
}

func TestQueryFallsBackWhenLLMFails(t *testing.T) {
	db := &stubDB{doc: &models.Document{Title: "Plan"}, keywordHits: hits(longPassage)}
	llm := &stubLLM{err: errors.New("model down")}
	g := newTestGenerator(db, llm)

	ans, err := g.Query(context.Background(), "t1", "what is the plan?", QueryOptions{})
	require.NoError(t, err)

	// an answer is always produced, just flagged as extractive
	assert.Equal(t, MethodExtractive, ans.Method)
	assert.NotEmpty(t, ans.Answer)
	assert.LessOrEqual(t, ans.Confidence, 0.5)
}

func TestQueryExtractiveWithoutLLM(t *testing.T) {
	db := &stubDB{doc: &models.Document{Title: "Plan"}, keywordHits: hits(longPassage)}
	g := newTestGenerator(db, nil)

	ans, err := g.Query(context.Background(), "t1", "what is the plan?", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, MethodExtractive, ans.Method)
	assert.Contains(t, ans.Answer, "phase")
}

func TestTranscriptSummaryFastPath(t *testing.T) {
	db := &stubDB{
		doc: &models.Document{ID: "vid1", Title: "Talk", Source: models.SourceVideo},
		chunks: []models.DocumentChunk{
			{ID: "c1", DocumentID: "vid1", Ordinal: 0, Content: longPassage},
		},
	}
	llm := &stubLLM{out: "A talk about a three phase migration."}
	g := newTestGenerator(db, llm)

	ans, err := g.Query(context.Background(), "t1", "resumo do vídeo", QueryOptions{DocumentIDs: []string{"vid1"}})
	require.NoError(t, err)
	assert.Equal(t, MethodTranscriptSummary, ans.Method)
	assert.Equal(t, "A talk about a three phase migration.", ans.Answer)
	assert.Equal(t, 1, llm.calls)
}

func TestTranscriptSummaryFallsBackToExtractive(t *testing.T) {
	db := &stubDB{
		doc: &models.Document{ID: "vid1", Title: "Talk", Source: models.SourceVideo},
		chunks: []models.DocumentChunk{
			{ID: "c1", DocumentID: "vid1", Ordinal: 0, Content: longPassage},
		},
	}
	llm := &stubLLM{err: errors.New("model down")}
	g := newTestGenerator(db, llm)

	ans, err := g.Query(context.Background(), "t1", "summarize this video", QueryOptions{DocumentIDs: []string{"vid1"}})
	require.NoError(t, err)
	assert.Equal(t, MethodTranscriptSummary, ans.Method)
	assert.NotEmpty(t, ans.Answer)
}

func TestTranscriptFastPathSkipsNonVideo(t *testing.T) {
	db := &stubDB{
		doc:         &models.Document{ID: "d1", Title: "Doc", Source: models.SourceUpload},
		keywordHits: hits(longPassage),
	}
	llm := &stubLLM{out: "answered normally"}
	g := newTestGenerator(db, llm)

	ans, err := g.Query(context.Background(), "t1", "summarize this", QueryOptions{DocumentIDs: []string{"d1"}})
	require.NoError(t, err)
	assert.Equal(t, MethodLLM, ans.Method)
}

func TestFallbackLatestTargetsNewestDocument(t *testing.T) {
	db := &stubDB{
		latestID: "vid9",
		doc:      &models.Document{ID: "vid9", Title: "Latest", Source: models.SourceVideo},
		chunks: []models.DocumentChunk{
			{ID: "c1", DocumentID: "vid9", Ordinal: 0, Content: longPassage},
		},
	}
	llm := &stubLLM{out: "summary of the latest video"}
	g := newTestGenerator(db, llm)

	ans, err := g.Query(context.Background(), "t1", "give me a summary", QueryOptions{FallbackLatest: true})
	require.NoError(t, err)
	assert.Equal(t, MethodTranscriptSummary, ans.Method)
}

func TestSummaryIntent(t *testing.T) {
	assert.True(t, summaryIntent("Summarize this document"))
	assert.True(t, summaryIntent("faça um resumo"))
	assert.True(t, summaryIntent("tldr please"))
	assert.True(t, summaryIntent("what are the main points?"))
	assert.False(t, summaryIntent("when does phase two start?"))
}
