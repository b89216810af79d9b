package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/disasterwatch/disasterwatch/internal/auth"
	"github.com/disasterwatch/disasterwatch/internal/media"
	"github.com/disasterwatch/disasterwatch/internal/models"
)

// ReportService is the report lifecycle as seen by the HTTP layer.
type ReportService interface {
	Create(ctx context.Context, in models.NewReport) (*models.Report, error)
	List(ctx context.Context, principal models.Principal, query models.ReportQuery) ([]models.Report, error)
	Get(ctx context.Context, principal models.Principal, trackingID string) (*models.Report, error)
	UpdateStatus(ctx context.Context, principal models.Principal, trackingID string, status models.Status) (*models.Report, error)
}

// Tracker serves the public tracking view.
type Tracker interface {
	Lookup(ctx context.Context, trackingID string) (*models.PublicView, error)
}

// ReportHandler serves the report routes.
type ReportHandler struct {
	reports       ReportService
	tracker       Tracker
	maxImageBytes int64
	logger        *slog.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports ReportService, tracker Tracker, maxImageBytes int64, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reports:       reports,
		tracker:       tracker,
		maxImageBytes: maxImageBytes,
		logger:        logger,
	}
}

// ReportRequest is the JSON body for creating a report. Image is a data URI.
type ReportRequest struct {
	Category    string   `json:"category"`
	Severity    string   `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Image       string   `json:"image"`
}

// coordinates returns the supplied pair. Sending only one half is an error.
func (req ReportRequest) coordinates() (*models.Coordinates, error) {
	switch {
	case req.Latitude == nil && req.Longitude == nil:
		return nil, nil
	case req.Latitude == nil:
		return nil, models.ValidationError{Field: "latitude", Message: "is required when longitude is set"}
	case req.Longitude == nil:
		return nil, models.ValidationError{Field: "longitude", Message: "is required when latitude is set"}
	}
	return &models.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}, nil
}

// CreateReportResponse acknowledges a new report.
type CreateReportResponse struct {
	TrackingID string        `json:"tracking_id"`
	Status     models.Status `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// requestBodyLimit leaves room for base64 expansion of the largest image.
func requestBodyLimit(maxImageBytes int64) int64 {
	return maxImageBytes*4/3 + 64<<10
}

// parseImage decodes an optional data URI and enforces the size limit.
func parseImage(raw string, maxBytes int64) (*models.Image, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	img, err := media.ParseDataURI(raw)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(img.Data)) > maxBytes {
		return nil, models.ValidationError{Field: "image", Message: fmt.Sprintf("must be at most %d bytes", maxBytes)}
	}
	return img, nil
}

// Create handles POST /api/reports
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, requestBodyLimit(h.maxImageBytes))

	var req ReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	in, err := h.newReport(r, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	report, err := h.reports.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, CreateReportResponse{
		TrackingID: report.TrackingID,
		Status:     report.Status,
		CreatedAt:  report.CreatedAt,
	})
}

func (h *ReportHandler) newReport(r *http.Request, req ReportRequest) (models.NewReport, error) {
	coords, err := req.coordinates()
	if err != nil {
		return models.NewReport{}, err
	}
	img, err := parseImage(req.Image, h.maxImageBytes)
	if err != nil {
		return models.NewReport{}, err
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	return models.NewReport{
		Category:    models.Category(req.Category),
		Severity:    models.Severity(req.Severity),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Coordinates: coords,
		Image:       img,
		ReporterID:  principal.ID,
	}, nil
}

// ReportsResponse is a page of reports.
type ReportsResponse struct {
	Reports []models.Report `json:"reports"`
	Count   int             `json:"count"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// List handles GET /api/reports
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	query, err := parseReportQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	reports, err := h.reports.List(r.Context(), principal, query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ReportsResponse{
		Reports: reports,
		Count:   len(reports),
		Limit:   query.Limit,
		Offset:  query.Offset,
	})
}

func parseReportQuery(r *http.Request) (models.ReportQuery, error) {
	params := r.URL.Query()
	var query models.ReportQuery

	if v := params.Get("status"); v != "" && !strings.EqualFold(v, "all") {
		status, err := models.ParseStatus(v)
		if err != nil {
			return query, models.ValidationError{Field: "status", Message: err.Error()}
		}
		query.Status = &status
	}

	// "type" is accepted as an alias for category.
	category := params.Get("category")
	if category == "" {
		category = params.Get("type")
	}
	if category != "" && !strings.EqualFold(category, "all") {
		c, err := models.ParseCategory(category)
		if err != nil {
			return query, models.ValidationError{Field: "category", Message: err.Error()}
		}
		query.Category = &c
	}

	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return query, models.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
		}
		query.Limit = limit
	}
	if v := params.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return query, models.ValidationError{Field: "offset", Message: "must be a non-negative integer"}
		}
		query.Offset = offset
	}
	return query, nil
}

// Get handles GET /api/reports/{trackingID}
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	report, err := h.reports.Get(r.Context(), principal, r.PathValue("trackingID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, report)
}

// StatusRequest is the body of a status change.
type StatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/reports/{trackingID}
func (h *ReportHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// Unknown spellings go through unchanged so the service can check the
	// principal before rejecting the value.
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		status = models.Status(strings.TrimSpace(req.Status))
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	report, err := h.reports.UpdateStatus(r.Context(), principal, r.PathValue("trackingID"), status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, report)
}

// Track handles GET /api/reports/{trackingID}/details
func (h *ReportHandler) Track(w http.ResponseWriter, r *http.Request) {
	view, err := h.tracker.Lookup(r.Context(), r.PathValue("trackingID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, view)
}
