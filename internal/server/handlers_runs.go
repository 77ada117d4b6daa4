package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
	"github.com/joseph-ayodele/clinical-extract/internal/core/fields"
	"github.com/joseph-ayodele/clinical-extract/internal/entity"
	"github.com/joseph-ayodele/clinical-extract/internal/export"
	"github.com/joseph-ayodele/clinical-extract/internal/ingest"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
)

type runResponse struct {
	RunID     string                 `json:"run_id"`
	Status    constants.RunStatus    `json:"status"`
	Columns   []string               `json:"columns,omitempty"`
	Rows      []fields.Row           `json:"rows,omitempty"`
	Documents []core.DocumentOutcome `json:"documents,omitempty"`
}

type runDetail struct {
	*entity.Run
	Rows []entity.RunRow `json:"rows,omitempty"`
}

// CreateRun accepts multipart uploads:
//
//	files          one or more PDFs, processed in upload order
//	patterns       pattern table text (JSON or YAML), or
//	patterns_file  an uploaded pattern table
//	normalize, file_column, async  booleans
//	file_column_name
func (h *Handler) CreateRun(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		h.writeError(c, common.NewAppError(common.CodeInvalidInput, "multipart form expected: "+err.Error(), common.ErrInvalidInput))
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.writeError(c, common.NewAppError(common.CodeInvalidInput, "upload at least one PDF in field \"files\"", common.ErrInvalidInput))
		return
	}
	docs, err := ingest.FromUploads(files, h.maxUploadBytes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	runReq := RunRequest{Documents: docs, FileColumnName: strings.TrimSpace(c.PostForm("file_column_name"))}
	if v := runReq.Validate(); v.HasErrors() {
		h.writeValidation(c, v)
		return
	}

	table, err := h.tableFromForm(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	runReq.Table = table

	if runReq.Normalize, err = formBool(c, "normalize"); err != nil {
		h.writeError(c, err)
		return
	}
	if runReq.FileColumn, err = formBool(c, "file_column"); err != nil {
		h.writeError(c, err)
		return
	}
	asyncFlag, err := formBool(c, "async")
	if err != nil {
		h.writeError(c, err)
		return
	}
	runReq.Async = asyncFlag != nil && *asyncFlag

	sub, err := h.svc.Submit(c.Request.Context(), runReq)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if sub.Result == nil {
		c.JSON(http.StatusAccepted, runResponse{RunID: sub.RunID.String(), Status: sub.Status})
		return
	}
	c.JSON(http.StatusOK, runResponse{
		RunID:     sub.RunID.String(),
		Status:    sub.Status,
		Columns:   sub.Result.Columns,
		Rows:      sub.Result.Rows,
		Documents: sub.Result.Documents,
	})
}

// tableFromForm returns nil when the caller did not send a table.
func (h *Handler) tableFromForm(c *gin.Context) (*patterns.Table, error) {
	if fh, err := c.FormFile("patterns_file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, 1<<20))
		if err != nil {
			return nil, common.WrapError(common.ErrInvalidInput, "read patterns_file")
		}
		return patterns.Load(patterns.FileSource(fh.Filename, data))
	}
	text := c.PostForm("patterns")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	format := patternFormat(c.PostForm("patterns_format"), "", []byte(text))
	return patterns.Load(patterns.TextSource(text, format))
}

func formBool(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetPostForm(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return nil, common.NewAppError(common.CodeInvalidInput, name+" must be a boolean", common.ErrInvalidInput)
	}
	return &v, nil
}

func (h *Handler) ListRuns(c *gin.Context) {
	runs, err := h.svc.ListRuns(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if runs == nil {
		runs = []*entity.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) GetRun(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	run, rows, err := h.svc.GetRun(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, runDetail{Run: run, Rows: rows})
}

// ExportRun downloads a finished run as resultados_clinicos.{csv,json,xlsx}.
func (h *Handler) ExportRun(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	format, ok := constants.CanonicalizeExportFormat(c.Query("format"))
	if !ok {
		h.writeError(c, common.NewAppError(common.CodeInvalidInput,
			"format must be one of "+strings.Join(constants.ExportFormatsAsStringSlice(), ", "), common.ErrInvalidInput))
		return
	}
	b, err := h.svc.Export(c.Request.Context(), id, format)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.FileName(format)+`"`)
	c.Data(http.StatusOK, format.ContentType(), b)
}

// RunPatterns re-exports the table a run used.
func (h *Handler) RunPatterns(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	t, err := h.svc.RunPatterns(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	writeTable(c, t, patternFormat(c.Query("format"), "", nil))
}

func (h *Handler) runID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	if v := common.NewValidator().Field("id", raw, common.UUID); v.HasErrors() {
		h.writeValidation(c, v)
		return uuid.Nil, false
	}
	return uuid.MustParse(raw), true
}
