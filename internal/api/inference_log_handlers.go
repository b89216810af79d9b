package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

// InferenceLogReader reads the external call audit log.
type InferenceLogReader interface {
	List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error)
	GetStats(ctx context.Context, query models.InferenceLogQuery) (*models.InferenceLogStats, error)
}

// InferenceLogHandler handles HTTP requests for inference log management
type InferenceLogHandler struct {
	repo   InferenceLogReader
	logger *slog.Logger
}

// NewInferenceLogHandler creates a new handler
func NewInferenceLogHandler(repo InferenceLogReader, logger *slog.Logger) *InferenceLogHandler {
	return &InferenceLogHandler{
		repo:   repo,
		logger: logger,
	}
}

const (
	defaultInferenceLogLimit = 100
	maxInferenceLogLimit     = 1000
)

func parseInferenceLogQuery(r *http.Request) (models.InferenceLogQuery, error) {
	params := r.URL.Query()
	query := models.InferenceLogQuery{
		Provider:  params.Get("provider"),
		Operation: params.Get("operation"),
		Status:    params.Get("status"),
		Limit:     defaultInferenceLogLimit,
	}

	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return query, models.ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		query.Limit = min(limit, maxInferenceLogLimit)
	}

	if v := params.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return query, models.ValidationError{Field: "offset", Message: "must be a non-negative integer"}
		}
		query.Offset = offset
	}

	if v := params.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return query, models.ValidationError{Field: "since", Message: "must be an RFC 3339 timestamp"}
		}
		query.Since = &since
	}
	return query, nil
}

// ListInferenceLogs handles GET /api/admin/inference-logs
func (h *InferenceLogHandler) ListInferenceLogs(w http.ResponseWriter, r *http.Request) {
	query, err := parseInferenceLogQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	logs, err := h.repo.List(r.Context(), query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetInferenceStats handles GET /api/admin/inference-logs/stats
func (h *InferenceLogHandler) GetInferenceStats(w http.ResponseWriter, r *http.Request) {
	query, err := parseInferenceLogQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	stats, err := h.repo.GetStats(r.Context(), query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}
