// Package retriever combines pgvector similarity search with keyword
// full-text search, merging and reranking the results.
package retriever

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/models"
)

// DefaultLimit caps result counts when the caller does not.
const DefaultLimit = 10

// Result sources.
const (
	SourceVector  = "vector"
	SourceKeyword = "keyword"
	SourceHybrid  = "hybrid"
)

// Options tune one search call.
type Options struct {
	Limit               int
	DocumentIDs         []string // empty means the whole tenant corpus
	VectorWeight        float64
	KeywordWeight       float64
	SimilarityThreshold float64 // vector matches below this are dropped
	Rerank              bool
	Diversify           bool // round-robin by document across the top results
}

// Result is one ranked chunk with the source that produced it.
type Result struct {
	Chunk  models.DocumentChunk `json:"chunk"`
	Score  float64              `json:"score"`
	Source string               `json:"source"`
}

// Stats counts which search flavor produced hits, for observability.
type Stats struct {
	VectorHits  int64 `json:"vector_hits"`
	KeywordHits int64 `json:"keyword_hits"`
	Searches    int64 `json:"searches"`
}

// Retriever is safe for concurrent use.
type Retriever struct {
	db       core.DbClient
	embedder core.EmbeddingProvider // nil disables vector search entirely

	vectorHits  atomic.Int64
	keywordHits atomic.Int64
	searches    atomic.Int64
}

func New(db core.DbClient, embedder core.EmbeddingProvider) *Retriever {
	return &Retriever{db: db, embedder: embedder}
}

// Search runs vector and keyword retrieval, merges by configured
// weights, and applies rerank/diversify policies. Keyword search always
// runs when vector search yields nothing usable, so a document with zero
// embedded chunks is still retrievable.
func (r *Retriever) Search(ctx context.Context, tenantID, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrValidation)
	}
	r.searches.Add(1)

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	vw, kw := normalizeWeights(opts.VectorWeight, opts.KeywordWeight)

	vector := r.vectorSearch(ctx, tenantID, query, opts, limit)
	keyword := r.keywordSearch(ctx, tenantID, query, opts, limit)

	r.vectorHits.Add(int64(len(vector)))
	r.keywordHits.Add(int64(len(keyword)))

	merged := merge(vector, keyword, vw, kw)

	if opts.Rerank {
		rerank(merged)
	}
	if opts.Diversify {
		merged = diversify(merged)
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// Stats returns cumulative hit counters.
func (r *Retriever) Stats() Stats {
	return Stats{
		VectorHits:  r.vectorHits.Load(),
		KeywordHits: r.keywordHits.Load(),
		Searches:    r.searches.Load(),
	}
}

// vectorSearch is best-effort: any failure (no embedder, no embedded
// chunks, embedding call down) logs and returns nil so keyword search
// carries the query.
func (r *Retriever) vectorSearch(ctx context.Context, tenantID, query string, opts Options, limit int) []core.ScoredChunk {
	if r.embedder == nil {
		return nil
	}
	embedded, err := r.db.CountEmbeddedChunks(ctx, opts.DocumentIDs)
	if err != nil || embedded == 0 {
		return nil
	}

	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		log.Printf("retriever: query embedding failed, keyword-only: %v", err)
		return nil
	}

	hits, err := r.db.SearchChunksVector(ctx, tenantID, opts.DocumentIDs, vecs[0], limit)
	if err != nil {
		log.Printf("retriever: vector search failed, keyword-only: %v", err)
		return nil
	}

	if opts.SimilarityThreshold > 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Score >= opts.SimilarityThreshold {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	return hits
}

func (r *Retriever) keywordSearch(ctx context.Context, tenantID, query string, opts Options, limit int) []core.ScoredChunk {
	hits, err := r.db.SearchChunksKeyword(ctx, tenantID, opts.DocumentIDs, query, limit)
	if err != nil {
		log.Printf("retriever: keyword search failed: %v", err)
		return nil
	}
	return hits
}

// merge combines both candidate lists. A chunk found by both sources
// gets the weighted sum and the hybrid label; order is vector results
// first, then keyword-only results, which is the unranked default.
func merge(vector, keyword []core.ScoredChunk, vw, kw float64) []Result {
	byID := make(map[string]int, len(vector))
	out := make([]Result, 0, len(vector)+len(keyword))

	for _, h := range vector {
		byID[h.Chunk.ID] = len(out)
		out = append(out, Result{Chunk: h.Chunk, Score: vw * h.Score, Source: SourceVector})
	}
	for _, h := range keyword {
		if i, seen := byID[h.Chunk.ID]; seen {
			out[i].Score += kw * h.Score
			out[i].Source = SourceHybrid
			continue
		}
		out = append(out, Result{Chunk: h.Chunk, Score: kw * h.Score, Source: SourceKeyword})
	}
	return out
}

// rerank orders by combined score descending; equal scores tie-break by
// ascending chunk ordinal so repeated runs return identical orderings.
func rerank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})
}

// diversify round-robins across documents so one document cannot crowd
// out the rest of the corpus. Relative order within a document is kept.
func diversify(results []Result) []Result {
	if len(results) < 2 {
		return results
	}

	var docOrder []string
	perDoc := map[string][]Result{}
	for _, res := range results {
		id := res.Chunk.DocumentID
		if _, seen := perDoc[id]; !seen {
			docOrder = append(docOrder, id)
		}
		perDoc[id] = append(perDoc[id], res)
	}
	if len(docOrder) < 2 {
		return results
	}

	out := make([]Result, 0, len(results))
	for round := 0; len(out) < len(results); round++ {
		for _, id := range docOrder {
			if round < len(perDoc[id]) {
				out = append(out, perDoc[id][round])
			}
		}
	}
	return out
}

// normalizeWeights validates the configured weights: non-positive pairs
// fall back to defaults, anything else is scaled to sum to 1.
func normalizeWeights(vw, kw float64) (float64, float64) {
	if vw < 0 {
		vw = 0
	}
	if kw < 0 {
		kw = 0
	}
	sum := vw + kw
	if sum == 0 {
		return 0.7, 0.3
	}
	return vw / sum, kw / sum
}
