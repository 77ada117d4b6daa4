package textextract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PlainText reads the text layer page by page with ledongthuc/pdf.
type PlainText struct{}

func (PlainText) Name() string { return MethodPDFText }

func (PlainText) Extract(ctx context.Context, content []byte) (out Output, err error) {
	if len(content) == 0 {
		return Output{}, fmt.Errorf("empty PDF content")
	}
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			out, err = Output{}, panicError(MethodPDFText, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Output{}, fmt.Errorf("open pdf: %w", err)
	}

	n := r.NumPage()
	chunks := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			chunks = append(chunks, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// one bad page should not lose the others
			chunks = append(chunks, "")
			continue
		}
		chunks = append(chunks, text)
	}
	return Output{Text: strings.Join(chunks, "\n"), Pages: n}, nil
}
