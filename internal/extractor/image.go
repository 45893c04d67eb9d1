package extractor

import (
	"context"
)

// extractImage is OCR-only: there is no text layer to fall back on.
func (e *Extractor) extractImage(ctx context.Context, data []byte) (*Result, error) {
	text, name := e.tryChain(ctx, int64(len(data)), []method{
		{name: "ocr", ocr: true, run: func(ctx context.Context) (string, error) {
			return e.ocr.Run(ctx, data)
		}},
	})
	if name == "" {
		return nil, nil
	}
	return &Result{Content: text, Method: name}, nil
}
