package ingest

import (
	"fmt"
	"io"
	"mime/multipart"

	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
)

// FromUploads reads multipart file parts in upload order. Each part is capped
// at maxBytes (no cap when <= 0).
func FromUploads(files []*multipart.FileHeader, maxBytes int64) ([]core.Document, error) {
	docs := make([]core.Document, 0, len(files))
	for _, fh := range files {
		if maxBytes > 0 && fh.Size > maxBytes {
			return nil, common.WrapError(common.ErrInvalidInput,
				fmt.Sprintf("%s is larger than %d bytes", fh.Filename, maxBytes))
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		b, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		docs = append(docs, core.Document{Name: fh.Filename, Content: b})
	}
	return docs, nil
}
