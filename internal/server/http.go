package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/clinical-extract/internal/common"
)

// Handler serves the HTTP API.
type Handler struct {
	svc            *Service
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewHandler(svc *Service, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes, logger: logger}
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	if h.maxUploadBytes > 0 {
		r.MaxMultipartMemory = h.maxUploadBytes
	}
	r.Use(RequestID(), Recovery(h.logger), RequestLogger(h.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.GET("/patterns/default", h.DefaultPatterns)
		api.POST("/patterns/validate", h.ValidatePatterns)

		api.POST("/runs", h.CreateRun)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
		api.GET("/runs/:id/export", h.ExportRun)
		api.GET("/runs/:id/patterns", h.RunPatterns)
	}
	return r
}

// statusFor maps application errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidPatternFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// writeValidation reports every failed rule, not just the first.
func (h *Handler) writeValidation(c *gin.Context, v *common.Validator) {
	err := v.Error()
	details := make([]fieldError, 0, len(v.Errors()))
	for _, fe := range v.Errors() {
		details = append(details, fieldError{Field: fe.Field, Message: fe.Message})
	}
	c.AbortWithStatusJSON(statusFor(err), gin.H{
		"error":      err.Error(),
		"code":       common.CodeInvalidInput,
		"details":    details,
		"request_id": GetRequestID(c),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error(), "request_id": GetRequestID(c)}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		body["code"] = appErr.Code
		body["error"] = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		common.LoggerFromContext(c.Request.Context(), h.logger).Error("request failed", "path", c.FullPath(), "error", err)
		body["error"] = "Internal server error"
	}
	c.AbortWithStatusJSON(status, body)
}
