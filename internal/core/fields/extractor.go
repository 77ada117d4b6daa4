// Package fields turns document text into one row of field values by running
// each field's pattern alternatives in order.
package fields

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
)

// Row holds one document's values keyed by field name. A nil value means the
// field was not found, which is different from an empty match.
type Row map[string]*string

// Value returns the field's value and whether it was found.
func (r Row) Value(field string) (string, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// Outcome is the result kind of running one pattern.
type Outcome int

const (
	NoMatch Outcome = iota
	Matched
	CompileError // pattern is not a valid expression; skipped
	MatchError   // engine gave up on this text (e.g. match timeout); skipped
)

func (o Outcome) String() string {
	switch o {
	case NoMatch:
		return "no_match"
	case Matched:
		return "matched"
	case CompileError:
		return "compile_error"
	case MatchError:
		return "match_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MatchResult is the outcome of one pattern against one text.
type MatchResult struct {
	Outcome Outcome
	Value   string
	Err     error
}

// Options configures Compile.
type Options struct {
	Engine       Engine
	MatchTimeout time.Duration
	Logger       *slog.Logger
}

type compiledPattern struct {
	source string
	m      matcher
	err    error
}

func (p compiledPattern) run(text string) MatchResult {
	if p.err != nil {
		return MatchResult{Outcome: CompileError, Err: p.err}
	}
	return p.m.match(text)
}

// PatternError describes a pattern that failed to compile.
type PatternError struct {
	Field   string
	Index   int
	Pattern string
	Err     error
}

func (e PatternError) Error() string {
	return fmt.Sprintf("field %q pattern %d: %v", e.Field, e.Index, e.Err)
}

func (e PatternError) Unwrap() error { return common.ErrMalformedFieldPattern }

// Extractor is a pattern table compiled once for a run. It is read-only after
// Compile and safe to share.
type Extractor struct {
	fields    []string
	compiled  map[string][]compiledPattern
	malformed []PatternError
}

// Compile prepares every pattern of t. Patterns that do not compile are kept as
// CompileError outcomes and reported by Malformed; they never fail the call.
func Compile(t *patterns.Table, opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engine := opts.Engine
	if engine == "" {
		engine = EngineRegexp2
	}

	e := &Extractor{
		fields:   t.Fields(),
		compiled: make(map[string][]compiledPattern, t.Len()),
	}
	for _, field := range e.fields {
		srcs := t.Patterns(field)
		list := make([]compiledPattern, 0, len(srcs))
		for i, src := range srcs {
			m, err := compile(engine, src, opts.MatchTimeout)
			if err != nil {
				pe := PatternError{Field: field, Index: i, Pattern: src, Err: err}
				e.malformed = append(e.malformed, pe)
				logger.Warn("malformed field pattern skipped", "field", field, "index", i, "engine", string(engine), "error", err)
			}
			list = append(list, compiledPattern{source: src, m: m, err: err})
		}
		e.compiled[field] = list
	}
	return e
}

// Fields returns the field names in table order.
func (e *Extractor) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Malformed lists the patterns that could not be compiled.
func (e *Extractor) Malformed() []PatternError {
	return e.malformed
}

// Extract returns a row with exactly one entry per field. For each field the
// first matching alternative wins; its last participating capture group is the
// value (the whole match when the pattern has no groups). Fields with no
// matching alternative are nil.
func (e *Extractor) Extract(text string) Row {
	row := make(Row, len(e.fields))
	for _, field := range e.fields {
		row[field] = nil
		for _, p := range e.compiled[field] {
			res := p.run(text)
			if res.Outcome == Matched {
				v := res.Value
				row[field] = &v
				break
			}
		}
	}
	return row
}

// PatternAttempt is one alternative tried while explaining a field.
type PatternAttempt struct {
	Index   int
	Pattern string
	Result  MatchResult
}

// FieldTrace shows how a field got its value.
type FieldTrace struct {
	Field    string
	Value    *string
	Attempts []PatternAttempt
}

// Explain runs the same algorithm as Extract but records every attempt up to
// and including the winning one. Used when authoring patterns.
func (e *Extractor) Explain(text string) []FieldTrace {
	traces := make([]FieldTrace, 0, len(e.fields))
	for _, field := range e.fields {
		tr := FieldTrace{Field: field}
		for i, p := range e.compiled[field] {
			res := p.run(text)
			tr.Attempts = append(tr.Attempts, PatternAttempt{Index: i, Pattern: p.source, Result: res})
			if res.Outcome == Matched {
				v := res.Value
				tr.Value = &v
				break
			}
		}
		traces = append(traces, tr)
	}
	return traces
}

// Extract compiles t with the default engine and extracts one row from text.
func Extract(text string, t *patterns.Table) Row {
	return Compile(t, Options{}).Extract(text)
}
