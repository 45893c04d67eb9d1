package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// ErrToolUnavailable marks an external tool that is not installed on
// this host. Callers treat it as a soft failure and move on to the next
// method in the chain.
var ErrToolUnavailable = errors.New("external tool unavailable")

// Tool is an external extraction capability with a uniform contract:
// bytes in, text out, bounded by the caller's context deadline. Backed by
// subprocesses or embedded libraries; the pipeline does not care which.
type Tool interface {
	Name() string
	Run(ctx context.Context, input []byte) (string, error)
}

// TempOutputArg is a placeholder argument. Each Run replaces it with a
// fresh throwaway file path, for tools that insist on writing a file
// output the caller does not want. ocrmypdf needs this: its sidecar text
// goes to stdout, so the output PDF must land somewhere else.
const TempOutputArg = "{temp-output}"

// ExecTool invokes a subprocess, feeding the input on stdin and reading
// text from stdout. A missing binary is reported as ErrToolUnavailable.
type ExecTool struct {
	binary string
	args   []string
}

func NewExecTool(binary string, args ...string) *ExecTool {
	return &ExecTool{binary: binary, args: args}
}

func (t *ExecTool) Name() string { return t.binary }

func (t *ExecTool) Run(ctx context.Context, input []byte) (string, error) {
	if _, err := exec.LookPath(t.binary); err != nil {
		return "", fmt.Errorf("%s: %w", t.binary, ErrToolUnavailable)
	}

	args, cleanup, err := expandArgs(t.args)
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.binary, err)
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s: %v (%s)", t.binary, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// expandArgs substitutes every TempOutputArg with a new temp file path.
// The returned cleanup removes those files and must always be called.
func expandArgs(args []string) ([]string, func(), error) {
	out := make([]string, len(args))
	copy(out, args)

	var paths []string
	cleanup := func() {
		for _, p := range paths {
			os.Remove(p)
		}
	}

	for i, a := range out {
		if a != TempOutputArg {
			continue
		}
		f, err := os.CreateTemp("", "quarry-tool-*")
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("temp output: %w", err)
		}
		f.Close()
		paths = append(paths, f.Name())
		out[i] = f.Name()
	}
	return out, cleanup, nil
}

// OCRTool runs Tesseract over image bytes via gosseract.
type OCRTool struct {
	languages []string
}

func NewOCRTool(languages ...string) *OCRTool {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &OCRTool{languages: languages}
}

func (t *OCRTool) Name() string { return "tesseract" }

func (t *OCRTool) Run(ctx context.Context, input []byte) (string, error) {
	type ocrResult struct {
		text string
		err  error
	}
	done := make(chan ocrResult, 1)

	// gosseract has no context plumbing; run it on the side and abandon
	// it on deadline. The pipeline has no mid-step cancellation anyway.
	go func() {
		client := gosseract.NewClient()
		defer client.Close()
		_ = client.SetLanguage(t.languages...)
		if err := client.SetImageFromBytes(input); err != nil {
			done <- ocrResult{err: fmt.Errorf("tesseract: %w", err)}
			return
		}
		text, err := client.Text()
		done <- ocrResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
