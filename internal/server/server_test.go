package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
	"github.com/joseph-ayodele/clinical-extract/internal/core/async"
	"github.com/joseph-ayodele/clinical-extract/internal/core/fields"
	"github.com/joseph-ayodele/clinical-extract/internal/core/textextract"
	"github.com/joseph-ayodele/clinical-extract/internal/repository"
)

// cannedText treats the uploaded bytes as the document text.
type cannedText struct{}

func (cannedText) Extract(_ context.Context, pdf []byte) textextract.Result {
	return textextract.Result{Text: string(pdf), Method: "canned", Unreadable: len(bytes.TrimSpace(pdf)) == 0}
}

const vitalsJSON = `{"FC": ["FC\\s*[:\\-]?\\s*(\\d+)"], "Temp": ["(TEMP)\\s*(\\d+\\.?\\d*)"]}`

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.MemoryDSN, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	runs := repository.NewRunRepository(db, nil)
	proc := core.NewProcessor(nil, cannedText{}, fields.Options{})
	queue := async.NewRunQueue(proc, runs, nil, async.WithWorkers(1))
	t.Cleanup(func() { queue.Shutdown(context.Background()) })

	return NewService(proc, runs, queue, nil, nil, common.DefaultConfig().Batch, nil)
}

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewHandler(newTestService(t), 1<<20, nil))
}

type upload struct{ name, content string }

func multipartRequest(t *testing.T, files []upload, values map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		w, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, _ = w.Write([]byte(f.content))
	}
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := do(newTestRouter(t), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestDefaultPatterns(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/patterns/default", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "{\n  \"Nombre\": ["))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "patterns_es.json")

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/patterns/default?format=yaml", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Nombre:"))
	assert.Contains(t, w.Header().Get("Content-Type"), "yaml")
}

func TestValidatePatterns(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, httptest.NewRequest(http.MethodPost, "/api/v1/patterns/validate", strings.NewReader(vitalsJSON)))
	require.Equal(t, http.StatusOK, w.Code)
	var ok struct {
		Fields   []string `json:"fields"`
		Patterns int      `json:"patterns"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ok))
	assert.Equal(t, []string{"FC", "Temp"}, ok.Fields)
	assert.Equal(t, 2, ok.Patterns)

	w = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/patterns/validate", strings.NewReader("FC:\n  - 'FC (\\d+)'\n")))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/patterns/validate", strings.NewReader(`{"FC": "FC (\\d+)"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), common.CodeInvalidPatternFormat)
}

func TestCreateRun_Sync(t *testing.T) {
	r := newTestRouter(t)
	req := multipartRequest(t, []upload{
		{"uno.pdf", "FC: 80\nTEMP 36,6"},
		{"dos.pdf", ""},
		{"tres.pdf", "FC 120"},
	}, map[string]string{"patterns": vitalsJSON})

	w := do(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		RunID     string                 `json:"run_id"`
		Status    string                 `json:"status"`
		Columns   []string               `json:"columns"`
		Rows      []map[string]*string   `json:"rows"`
		Documents []core.DocumentOutcome `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "DONE", res.Status)
	assert.Equal(t, []string{"file", "FC", "Temp"}, res.Columns)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "36.6", *res.Rows[0]["Temp"])
	assert.Nil(t, res.Rows[1]["FC"])
	assert.True(t, res.Documents[1].Unreadable)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+res.RunID+"/export?format=csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "file,FC,Temp\nuno.pdf,80,36.6\ndos.pdf,,\ntres.pdf,120,\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "resultados_clinicos.csv")

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+res.RunID+"/export?format=xlsx", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, constants.ExportXLSX.ContentType(), w.Header().Get("Content-Type"))

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+res.RunID+"/export?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+res.RunID+"/patterns", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "{\n  \"FC\": ["))

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+res.RunID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"file_name":"tres.pdf"`)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), res.RunID)
}

func TestCreateRun_Options(t *testing.T) {
	r := newTestRouter(t)
	req := multipartRequest(t, []upload{{"a.pdf", "TEMP 36,6"}},
		map[string]string{"patterns": vitalsJSON, "normalize": "false", "file_column": "false"})
	w := do(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"columns":["FC","Temp"]`)
	assert.Contains(t, w.Body.String(), `"Temp":"36"`)
}

func TestCreateRun_Errors(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, multipartRequest(t, nil, map[string]string{"patterns": vitalsJSON}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, multipartRequest(t, []upload{{"a.pdf", "x"}}, map[string]string{"patterns": `["FC"]`}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, multipartRequest(t, []upload{{"a.pdf", "x"}}, map[string]string{"normalize": "maybe"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, multipartRequest(t, []upload{{"a.pdf", "x"}},
		map[string]string{"patterns": vitalsJSON, "file_column_name": "FC"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/6f1c1f8e-2f0a-4c55-9a43-0d4b3c0f9a11", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidationErrors(t *testing.T) {
	r := newTestRouter(t)

	decode := func(w *httptest.ResponseRecorder) map[string]any {
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body
	}

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/not-a-uuid/export", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(w)
	assert.Equal(t, common.CodeInvalidInput, body["code"])
	assert.Contains(t, body["error"], "validation failed")
	assert.Equal(t, []any{map[string]any{"field": "id", "message": "must be a valid UUID"}}, body["details"])

	w = do(r, multipartRequest(t, []upload{{"a.pdf", "FC 80"}},
		map[string]string{"patterns": vitalsJSON, "file_column_name": strings.Repeat("n", MaxFileColumnName+1)}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	details := decode(w)["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "file_column_name", details[0].(map[string]any)["field"])

	w = do(r, multipartRequest(t, []upload{{"a.pdf", "FC 80"}},
		map[string]string{"patterns": vitalsJSON, "file_column_name": strings.Repeat("n", MaxFileColumnName)}))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateRun_DefaultTable(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, multipartRequest(t, []upload{{"a.pdf", "EDAD: 54 FC: 88"}}, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Columns []string             `json:"columns"`
		Rows    []map[string]*string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Columns, 25)
	assert.Equal(t, "54", *res.Rows[0]["Edad"])
}

func TestCreateRun_Async(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, multipartRequest(t, []upload{{"a.pdf", "FC 99"}},
		map[string]string{"patterns": vitalsJSON, "async": "true"}))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var sub struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, "QUEUED", sub.Status)

	require.Eventually(t, func() bool {
		w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+sub.RunID, nil))
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), `"status":"DONE"`)
	}, 5*time.Second, 10*time.Millisecond)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+sub.RunID+"/export?format=json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `{"file": "a.pdf", "FC": "99", "Temp": null}`)
}
