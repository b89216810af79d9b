package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/disasterwatch/disasterwatch/internal/auth"
	"github.com/disasterwatch/disasterwatch/internal/models"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps err onto an HTTP status and a client-safe message.
// Expected outcomes are logged at debug, faults at error.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body := classify(err)

	attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status, "error", err}
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", attrs...)
	case status == http.StatusForbidden:
		logger.Warn("request forbidden", attrs...)
	default:
		logger.Debug("request rejected", attrs...)
	}

	writeJSON(w, logger, status, body)
}

func classify(err error) (int, ErrorResponse) {
	var verr models.ValidationError
	var upstream *models.UpstreamError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Error: verr.Message, Field: verr.Field}
	case errors.As(err, &tooLarge):
		return http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			Field: "body",
		}
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorResponse{Error: "authentication required"}
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Error: "forbidden"}
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not found"}
	case errors.Is(err, models.ErrClassificationRejected):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: models.ErrClassificationRejected.Error(), Field: "image"}
	case errors.As(err, &upstream):
		return http.StatusBadGateway, ErrorResponse{Error: upstream.Service + " unavailable, try again later"}
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "service temporarily unavailable, try again later"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
	}
}

// authErrors adapts writeError for the auth middleware.
func authErrors(logger *slog.Logger) auth.ErrorWriter {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, logger, err)
	}
}

// decodeJSON reads a JSON body into dst. Malformed bodies are validation
// errors on "body".
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return models.ValidationError{Field: "body", Message: "is required"}
		}
		return models.ValidationError{Field: "body", Message: "must be valid JSON"}
	}
	return nil
}
