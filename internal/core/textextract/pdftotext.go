package textextract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Pdftotext shells out to poppler's pdftotext.
type Pdftotext struct {
	Binary string
	runner Runner
	logger *slog.Logger
}

// NewPdftotext returns the external strategy. An empty binary means "pdftotext".
func NewPdftotext(binary string, logger *slog.Logger) *Pdftotext {
	if binary == "" {
		binary = "pdftotext"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pdftotext{Binary: binary, runner: execRunner{}, logger: logger}
}

func (p *Pdftotext) Name() string { return MethodPdftotext }

func (p *Pdftotext) Extract(ctx context.Context, content []byte) (Output, error) {
	if _, err := p.runner.LookPath(p.Binary); err != nil {
		return Output{}, fmt.Errorf("%w: %s: %v", ErrStrategyUnavailable, p.Binary, err)
	}

	tmp, err := os.CreateTemp("", "clinical-*.pdf")
	if err != nil {
		return Output{}, err
	}
	defer func(path string) {
		if err := os.Remove(path); err != nil {
			p.logger.Warn("failed to remove temp file", "path", path, "error", err)
		}
	}(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return Output{}, err
	}
	if err := tmp.Close(); err != nil {
		return Output{}, err
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.Binary, p.logger, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		return Output{}, fmt.Errorf("pdftotext: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	text := string(out)
	// form feed separates pages
	pages := strings.Count(text, "\f")
	if pages == 0 && text != "" {
		pages = 1
	}
	text = strings.TrimRight(strings.ReplaceAll(text, "\f", "\n"), "\n")
	return Output{Text: text, Pages: pages}, nil
}
