// Package textextract turns PDF bytes into plain text by trying an ordered
// list of strategies until one returns enough text.
package textextract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/clinical-extract/internal/common"
)

// DefaultMinChars is the length below which a strategy's text counts as too
// short and the next strategy is tried.
const DefaultMinChars = 50

// Attempt records what one strategy produced.
type Attempt struct {
	Strategy    string        `json:"strategy"`
	Chars       int           `json:"chars"`
	Pages       int           `json:"pages"`
	Unavailable bool          `json:"unavailable,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Result is the outcome of extracting one document.
type Result struct {
	Text       string
	Method     string
	Pages      int
	Duration   time.Duration
	Attempts   []Attempt
	Unreadable bool
}

// Config configures an Extractor.
type Config struct {
	MinChars int
}

type Extractor struct {
	strategies []Strategy
	minChars   int
	logger     *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger, strategies ...Strategy) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	return &Extractor{strategies: strategies, minChars: cfg.MinChars, logger: logger}
}

// Strategies returns the configured strategy names in order.
func (e *Extractor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract never fails: a document nothing can read comes back with empty text
// and Unreadable set. The first strategy reaching MinChars runes wins; if none
// does, the longest text seen is kept.
func (e *Extractor) Extract(ctx context.Context, pdf []byte) Result {
	start := time.Now()
	var (
		res       Result
		bestChars int
	)

	for _, s := range e.strategies {
		if ctx.Err() != nil {
			break
		}
		t0 := time.Now()
		out, err := s.Extract(ctx, pdf)
		att := Attempt{Strategy: s.Name(), Duration: time.Since(t0)}
		if err != nil {
			att.Error = err.Error()
			att.Unavailable = errors.Is(err, ErrStrategyUnavailable)
			if att.Unavailable {
				e.logger.Debug("text strategy unavailable", "strategy", s.Name(), "error", err)
			} else {
				e.logger.Warn("text strategy failed", "strategy", s.Name(), "error", err)
			}
			res.Attempts = append(res.Attempts, att)
			continue
		}

		att.Chars = utf8.RuneCountInString(out.Text)
		att.Pages = out.Pages
		res.Attempts = append(res.Attempts, att)
		e.logger.Debug("text strategy done", "strategy", s.Name(), "chars", att.Chars, "pages", out.Pages)

		if att.Chars > bestChars {
			bestChars = att.Chars
			res.Text, res.Method, res.Pages = out.Text, s.Name(), out.Pages
		}
		if att.Chars >= e.minChars {
			break
		}
	}

	res.Duration = time.Since(start)
	res.Unreadable = strings.TrimSpace(res.Text) == ""
	return res
}

// FromConfig builds the chain named by cfg.Strategies. The pdftotext strategy
// is left out unless cfg.EnablePdftotext is set.
func FromConfig(cfg common.ExtractConfig, logger *slog.Logger) (*Extractor, error) {
	strategies := make([]Strategy, 0, len(cfg.Strategies))
	for _, n := range cfg.Strategies {
		switch strings.TrimSpace(n) {
		case MethodPDFText:
			strategies = append(strategies, PlainText{})
		case MethodPDFCPU:
			strategies = append(strategies, ContentStream{})
		case MethodPdftotext:
			if cfg.EnablePdftotext {
				strategies = append(strategies, NewPdftotext(cfg.Pdftotext, logger))
			}
		default:
			return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown text strategy %q", n), common.ErrInvalidInput)
		}
	}
	if len(strategies) == 0 {
		return nil, common.NewAppError(common.CodeConfig, "no text strategy enabled", common.ErrInvalidInput)
	}
	return NewExtractor(Config{MinChars: cfg.MinChars}, logger, strategies...), nil
}
