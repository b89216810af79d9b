package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/disasterwatch/disasterwatch/internal/auth"
	"github.com/disasterwatch/disasterwatch/internal/classifier"
	"github.com/disasterwatch/disasterwatch/internal/geocode"
	"github.com/disasterwatch/disasterwatch/internal/models"
	"github.com/disasterwatch/disasterwatch/internal/wizard"
)

// LocationResolver turns free text into coordinates.
type LocationResolver interface {
	Resolve(ctx context.Context, text string) (geocode.Result, error)
}

// IntakeHandler serves the submission helpers: image analysis, geocoding
// and the one-shot wizard submission.
type IntakeHandler struct {
	classifier    wizard.Classifier
	resolver      LocationResolver
	creator       wizard.Creator
	maxImageBytes int64
	logger        *slog.Logger
}

// NewIntakeHandler creates a new intake handler
func NewIntakeHandler(c wizard.Classifier, resolver LocationResolver, creator wizard.Creator, maxImageBytes int64, logger *slog.Logger) *IntakeHandler {
	return &IntakeHandler{
		classifier:    c,
		resolver:      resolver,
		creator:       creator,
		maxImageBytes: maxImageBytes,
		logger:        logger,
	}
}

// AnalyzeRequest carries the photo to classify as a data URI.
type AnalyzeRequest struct {
	Image string `json:"image"`
}

// AnalyzeImage handles POST /api/analyze-image
func (h *IntakeHandler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, requestBodyLimit(h.maxImageBytes))

	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		writeError(w, r, h.logger, models.ValidationError{Field: "image", Message: "is required"})
		return
	}
	img, err := parseImage(req.Image, h.maxImageBytes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	verdict, err := h.classifier.Classify(r.Context(), img)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, verdict)
}

// GeocodeResponse is the outcome of a location lookup. Latitude and
// Longitude are null when the location could not be resolved.
type GeocodeResponse struct {
	Location  string         `json:"location"`
	Resolved  bool           `json:"resolved"`
	Latitude  *float64       `json:"latitude"`
	Longitude *float64       `json:"longitude"`
	Source    geocode.Source `json:"source,omitempty"`
}

// Geocode handles GET /api/geocode?location=
func (h *IntakeHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	location := strings.TrimSpace(r.URL.Query().Get("location"))
	if location == "" {
		writeError(w, r, h.logger, models.ValidationError{Field: "location", Message: "is required"})
		return
	}

	res, err := h.resolver.Resolve(r.Context(), location)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := GeocodeResponse{Location: location, Resolved: res.Resolved(), Source: res.Source}
	if res.Resolved() {
		lat, lng := res.Coordinates.Latitude, res.Coordinates.Longitude
		resp.Latitude, resp.Longitude = &lat, &lng
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// SubmissionRequest runs the whole wizard in one call. With UseSuggestion
// the classifier's title, category and description replace the typed ones.
type SubmissionRequest struct {
	ReportRequest
	UseSuggestion bool `json:"use_suggestion"`
}

// SubmissionResponse is the wizard receipt.
type SubmissionResponse struct {
	TrackingID string              `json:"tracking_id"`
	Status     models.Status       `json:"status"`
	Message    string              `json:"message"`
	Step       string              `json:"step"`
	Suggestion *classifier.Verdict `json:"suggestion,omitempty"`
}

// Submit handles POST /api/submissions
func (h *IntakeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, requestBodyLimit(h.maxImageBytes))

	var req SubmissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	coords, err := req.coordinates()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	img, err := parseImage(req.Image, h.maxImageBytes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	review, err := wizard.Form{}.Submit(wizard.Input{
		Category:    req.Category,
		Severity:    req.Severity,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Coordinates: coords,
		Image:       img,
		ReporterID:  principal.ID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	confirm, err := review.Analyze(r.Context(), h.classifier)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var suggestion *classifier.Verdict
	if v, ok := confirm.Suggestion(); ok {
		suggestion = &v
		if req.UseSuggestion {
			confirm = confirm.AcceptSuggestion()
		}
	}

	receipt, err := confirm.Submit(r.Context(), h.creator)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, SubmissionResponse{
		TrackingID: receipt.TrackingID(),
		Status:     receipt.Status(),
		Message:    receipt.Message(),
		Step:       receipt.Step().String(),
		Suggestion: suggestion,
	})
}
