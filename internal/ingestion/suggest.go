package ingestion

import (
	"context"
	"log"
	"strings"
	"time"
)

const (
	suggestSampleChars = 3000
	suggestTimeout     = 30 * time.Second
	maxSuggestions     = 5
)

const suggestSystemPrompt = `You write short, useful questions a reader could ask about a document.
Return one question per line, no numbering, no extra text.`

// suggestQuestions asks the model for starter questions over the start
// of the document and attaches them to its metadata. Fire-and-forget:
// runs in its own goroutine with its own deadline, failures only log.
func (p *Pipeline) suggestQuestions(docID, content string) {
	if p.llm == nil || strings.TrimSpace(content) == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), suggestTimeout)
		defer cancel()

		sample := content
		if len(sample) > suggestSampleChars {
			sample = sample[:suggestSampleChars]
		}

		out, err := p.llm.Generate(ctx, suggestSystemPrompt,
			"Suggest questions for this document:\n\n"+sample)
		if err != nil {
			log.Printf("ingestion: suggested questions failed for %s: %v", docID, err)
			return
		}

		questions := parseQuestions(out)
		if len(questions) == 0 {
			return
		}
		if err := p.db.UpdateDocumentMetadata(ctx, docID, map[string]any{"suggested_questions": questions}); err != nil {
			log.Printf("ingestion: storing suggested questions failed for %s: %v", docID, err)
		}
	}()
}

func parseQuestions(out string) []string {
	var qs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" {
			continue
		}
		qs = append(qs, line)
		if len(qs) == maxSuggestions {
			break
		}
	}
	return qs
}
