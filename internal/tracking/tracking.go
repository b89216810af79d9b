// Package tracking answers public "where is my report" lookups.
package tracking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disasterwatch/disasterwatch/internal/geocode"
	"github.com/disasterwatch/disasterwatch/internal/lifecycle"
	"github.com/disasterwatch/disasterwatch/internal/models"
)

// ReportGetter loads a report by tracking ID.
type ReportGetter interface {
	GetByTrackingID(ctx context.Context, trackingID string) (*models.Report, error)
}

// Resolver derives display coordinates from a location string.
type Resolver interface {
	Resolve(ctx context.Context, text string) (geocode.Result, error)
}

// Service serves the public tracking view. It requires no credentials.
type Service struct {
	reports  ReportGetter
	resolver Resolver
	logger   *slog.Logger
}

// NewService creates a tracking Service. resolver may be nil.
func NewService(reports ReportGetter, resolver Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reports: reports, resolver: resolver, logger: logger}
}

// Lookup returns the public view of a report. Unknown IDs return
// models.ErrNotFound. When the report has no stored coordinates they are
// resolved from its location on every call and never written back.
func (s *Service) Lookup(ctx context.Context, trackingID string) (*models.PublicView, error) {
	id := lifecycle.NormalizeTrackingID(trackingID)
	if id == "" {
		return nil, models.ValidationError{Field: "tracking_id", Message: "is required"}
	}

	report, err := s.reports.GetByTrackingID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", id, err)
	}

	view := report.PublicView()
	if view.Latitude != nil || s.resolver == nil {
		return &view, nil
	}

	res, err := s.resolver.Resolve(ctx, report.Location)
	if err != nil {
		// The view is still useful without a map pin.
		s.logger.Warn("display coordinates unavailable", "tracking_id", id, "error", err)
		return &view, nil
	}
	if res.Resolved() && res.Coordinates.Valid() {
		view.SetCoordinates(res.Coordinates)
	}
	return &view, nil
}
