package extractor

import (
	"context"
	"time"
)

// Per-method time budgets scale with input size so a 200MB PDF is not
// held to the same deadline as a 10KB note. OCR is the slowest path and
// gets the most generous multiplier.
const (
	baseBudget    = 10 * time.Second
	budgetPerMB   = 2 * time.Second
	ocrMultiplier = 4
	maxBudget     = 10 * time.Minute
)

func methodBudget(sizeBytes int64, ocr bool) time.Duration {
	mb := sizeBytes / (1 << 20)
	budget := baseBudget + time.Duration(mb)*budgetPerMB
	if ocr {
		budget *= ocrMultiplier
	}
	if budget > maxBudget {
		budget = maxBudget
	}
	return budget
}

// runBounded executes fn under a deadline derived from the input size.
// Exceeding the deadline is that method failing, never a fatal pipeline
// error; fn keeps running on its goroutine and is abandoned.
func runBounded(ctx context.Context, budget time.Duration, fn func(ctx context.Context) (string, error)) (string, error) {
	bctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type res struct {
		text string
		err  error
	}
	done := make(chan res, 1)
	go func() {
		text, err := fn(bctx)
		done <- res{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-bctx.Done():
		return "", bctx.Err()
	}
}
