package server

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
)

const patternsBaseName = "patterns_es"

// patternFormat resolves JSON vs YAML from an explicit value, then the
// content type, then the first non-blank byte of the body.
func patternFormat(explicit, contentType string, body []byte) string {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case "yaml", "yml":
		return constants.PatternsYAML
	case "json":
		return constants.PatternsJSON
	}
	if strings.Contains(strings.ToLower(contentType), "yaml") {
		return constants.PatternsYAML
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] != '{' {
		return constants.PatternsYAML
	}
	return constants.PatternsJSON
}

func writeTable(c *gin.Context, t *patterns.Table, format string) {
	out, err := patterns.Export(t, format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contentType, ext := "application/json; charset=utf-8", "json"
	if format == constants.PatternsYAML {
		contentType, ext = "application/yaml; charset=utf-8", "yaml"
	}
	c.Header("Content-Disposition", `attachment; filename="`+patternsBaseName+"."+ext+`"`)
	c.Data(http.StatusOK, contentType, out)
}

// DefaultPatterns exports the session default table, ready to edit and upload.
func (h *Handler) DefaultPatterns(c *gin.Context) {
	writeTable(c, h.svc.DefaultPatterns(), patternFormat(c.Query("format"), "", nil))
}

// ValidatePatterns checks a table without running anything.
func (h *Handler) ValidatePatterns(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		h.writeError(c, common.WrapError(common.ErrInvalidInput, "read body"))
		return
	}
	format := patternFormat(c.Query("format"), c.ContentType(), body)
	t, err := patterns.Parse(body, format)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"format":   format,
		"fields":   t.Fields(),
		"patterns": t.PatternCount(),
	})
}
