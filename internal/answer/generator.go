// Package answer turns retrieved chunks into grounded answers, with a
// deterministic extractive fallback when no LLM is reachable.
package answer

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/models"
	"github.com/quarry-ai/quarry/internal/retriever"
)

// Answer methods reported to the caller.
const (
	MethodLLM              = "llm"
	MethodExtractive       = "extractive"
	MethodTranscriptSummary = "transcript_summary"
	MethodInsufficient     = "insufficient_data"
)

const (
	defaultGenTimeout  = 45 * time.Second
	maxContextChars    = 12000
	maxTranscriptChars = 15000
)

// QueryOptions are the caller-visible knobs for one question.
type QueryOptions struct {
	DocumentIDs         []string
	FallbackLatest      bool // no doc filter given: target the most recent document
	Limit               int
	VectorWeight        float64
	KeywordWeight       float64
	SimilarityThreshold float64
	Rerank              bool
	Diversify           bool
}

// Source identifies one chunk that grounded the answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Ordinal    int     `json:"ordinal"`
	Score      float64 `json:"score"`
}

// Answer is the full response to a query.
type Answer struct {
	Answer           string   `json:"answer"`
	Confidence       float64  `json:"confidence"`
	Sources          []Source `json:"sources"`
	Method           string   `json:"method"`
	GenerationTimeMs int64    `json:"generation_time_ms"`
}

// Generator orchestrates retrieval and generation. A nil LLM provider is
// allowed; every query then takes the extractive path.
type Generator struct {
	db         core.DbClient
	retriever  *retriever.Retriever
	llm        core.LLMProvider
	summarizer *FrequencySummarizer
	timeout    time.Duration
}

func NewGenerator(db core.DbClient, r *retriever.Retriever, llm core.LLMProvider) *Generator {
	return &Generator{
		db:         db,
		retriever:  r,
		llm:        llm,
		summarizer: NewFrequencySummarizer(0),
		timeout:    defaultGenTimeout,
	}
}

// Query answers a question over the tenant's corpus. It never returns
// an error for a generation failure, only for invalid input or a broken
// retrieval layer; degraded paths still produce an answer.
func (g *Generator) Query(ctx context.Context, tenantID, query string, opts QueryOptions) (*Answer, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrValidation)
	}

	docIDs := opts.DocumentIDs
	if len(docIDs) == 0 && opts.FallbackLatest {
		latest, err := g.db.LatestDocumentID(ctx, tenantID)
		if err == nil && latest != "" {
			docIDs = []string{latest}
		}
	}

	if ans := g.tryTranscriptSummary(ctx, tenantID, query, docIDs); ans != nil {
		ans.GenerationTimeMs = time.Since(start).Milliseconds()
		return ans, nil
	}

	results, err := g.retriever.Search(ctx, tenantID, query, retriever.Options{
		Limit:               opts.Limit,
		DocumentIDs:         docIDs,
		VectorWeight:        opts.VectorWeight,
		KeywordWeight:       opts.KeywordWeight,
		SimilarityThreshold: opts.SimilarityThreshold,
		Rerank:              opts.Rerank,
		Diversify:           opts.Diversify,
	})
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return &Answer{
			Answer:           "I could not find anything in your documents related to this question. Try rephrasing it or ingest more material first.",
			Confidence:       0,
			Method:           MethodInsufficient,
			GenerationTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	ans := g.generate(ctx, tenantID, query, results)
	ans.GenerationTimeMs = time.Since(start).Milliseconds()
	return ans, nil
}

func (g *Generator) generate(ctx context.Context, tenantID, query string, results []retriever.Result) *Answer {
	contextText := buildContext(results)
	sources := g.buildSources(ctx, tenantID, results)
	confidence := confidenceFrom(results)

	if g.llm != nil {
		genCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		text, err := g.llm.Generate(genCtx, groundedSystemPrompt,
			fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, query))
		if err == nil && strings.TrimSpace(text) != "" {
			return &Answer{Answer: strings.TrimSpace(text), Confidence: confidence, Sources: sources, Method: MethodLLM}
		}
		log.Printf("answer: generation failed, extractive fallback: %v", err)
	}

	summary := g.summarizer.Summarize(joinContents(results))
	if summary == "" {
		summary = results[0].Chunk.Content
	}
	return &Answer{
		Answer: "Based on the most relevant passages found:\n\n" + summary,
		// fallback answers are never better than a coin flip
		Confidence: min(confidence, 0.5),
		Sources:    sources,
		Method:     MethodExtractive,
	}
}

const groundedSystemPrompt = `You are a helpful assistant that answers strictly from the provided context.
Answer in the same language as the question. If the context does not contain
the answer, say so instead of guessing. Be concise and cite facts from the
context rather than outside knowledge.`

// tryTranscriptSummary handles "summarize this" style questions against
// a single video document by summarizing the whole transcript instead
// of retrieving fragments. Returns nil when the fast path does not apply.
func (g *Generator) tryTranscriptSummary(ctx context.Context, tenantID, query string, docIDs []string) *Answer {
	if len(docIDs) != 1 || !summaryIntent(query) {
		return nil
	}
	doc, err := g.db.GetDocumentByID(ctx, tenantID, docIDs[0])
	if err != nil || doc.Source != models.SourceVideo {
		return nil
	}
	chunks, err := g.db.GetChunksByDocument(ctx, doc.ID)
	if err != nil || len(chunks) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, ch := range chunks {
		if sb.Len() >= maxTranscriptChars {
			break
		}
		sb.WriteString(ch.Content)
		sb.WriteString("\n")
	}
	transcript := sb.String()
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[:maxTranscriptChars]
	}

	var text string
	if g.llm != nil {
		genCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		out, err := g.llm.Generate(genCtx, groundedSystemPrompt,
			fmt.Sprintf("Summarize the following transcript. Answer in the language of this request: %q\n\nTranscript:\n%s", query, transcript))
		if err == nil {
			text = strings.TrimSpace(out)
		} else {
			log.Printf("answer: transcript summary generation failed, extractive fallback: %v", err)
		}
	}
	if text == "" {
		text = g.summarizer.Summarize(transcript)
	}
	if text == "" {
		return nil
	}

	return &Answer{
		Answer:     text,
		Confidence: 0.8,
		Sources:    []Source{{DocumentID: doc.ID, Title: doc.Title, Ordinal: 0, Score: 1}},
		Method:     MethodTranscriptSummary,
	}
}

var summaryIntentRe = regexp.MustCompile(`(?i)\b(summar(y|ize|ise)|tl;?dr|resum(o|a|e|ir)|overview|main points|key points|principais pontos)\b`)

func summaryIntent(query string) bool {
	return summaryIntentRe.MatchString(query)
}

func buildContext(results []retriever.Result) string {
	var sb strings.Builder
	for i, res := range results {
		if sb.Len() >= maxContextChars {
			break
		}
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, res.Chunk.Content)
	}
	s := sb.String()
	if len(s) > maxContextChars {
		s = s[:maxContextChars]
	}
	return s
}

func joinContents(results []retriever.Result) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, res.Chunk.Content)
	}
	return strings.Join(parts, "\n")
}

// buildSources resolves document titles once per document.
func (g *Generator) buildSources(ctx context.Context, tenantID string, results []retriever.Result) []Source {
	titles := map[string]string{}
	out := make([]Source, 0, len(results))
	for _, res := range results {
		title, ok := titles[res.Chunk.DocumentID]
		if !ok {
			if doc, err := g.db.GetDocumentByID(ctx, tenantID, res.Chunk.DocumentID); err == nil {
				title = doc.Title
			}
			titles[res.Chunk.DocumentID] = title
		}
		out = append(out, Source{
			DocumentID: res.Chunk.DocumentID,
			Title:      title,
			Ordinal:    res.Chunk.Ordinal,
			Score:      res.Score,
		})
	}
	return out
}

// confidenceFrom averages the top three scores, clamped to [0,1].
func confidenceFrom(results []retriever.Result) float64 {
	n := len(results)
	if n > 3 {
		n = 3
	}
	var sum float64
	for _, res := range results[:n] {
		sum += res.Score
	}
	c := sum / float64(n)
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
