package textextract

import (
	"context"
	"errors"
	"fmt"
)

// ErrStrategyUnavailable is returned by a strategy that cannot run at all in
// this process (missing binary, disabled backend).
var ErrStrategyUnavailable = errors.New("text strategy unavailable")

// Output is what a single strategy read from a document.
type Output struct {
	Text  string
	Pages int
}

// Strategy is one way of turning PDF bytes into text. Implementations must not
// modify pdf.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, pdf []byte) (Output, error)
}

// Built-in strategy names, also used as Result.Method.
const (
	MethodPDFText   = "pdf-text"
	MethodPDFCPU    = "pdfcpu-content"
	MethodPdftotext = "pdftotext"
)

// panicError turns a recovered library panic into an error.
func panicError(strategy string, r any) error {
	return fmt.Errorf("%s: recovered from panic: %v", strategy, r)
}
