// Package lifecycle owns report creation and the moderation status machine.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disasterwatch/disasterwatch/internal/eventbus"
	"github.com/disasterwatch/disasterwatch/internal/geocode"
	"github.com/disasterwatch/disasterwatch/internal/metrics"
	"github.com/disasterwatch/disasterwatch/internal/models"
	"github.com/disasterwatch/disasterwatch/internal/storage"
	"github.com/disasterwatch/disasterwatch/internal/validation"
)

const maxTrackingIDAttempts = 5

// Resolver derives coordinates from a location string.
type Resolver interface {
	Resolve(ctx context.Context, text string) (geocode.Result, error)
}

// Options wires optional collaborators into a Service. Nil fields fall back
// to no-op implementations.
type Options struct {
	Resolver  Resolver
	Images    storage.ImageStore
	Publisher eventbus.Publisher
	Validator *validation.Validator
	Metrics   *metrics.Pipeline
	Logger    *slog.Logger
}

// Service implements report intake and moderation.
type Service struct {
	repo      Repository
	resolver  Resolver
	images    storage.ImageStore
	publisher eventbus.Publisher
	validator *validation.Validator
	metrics   *metrics.Pipeline
	logger    *slog.Logger

	now        func() time.Time
	trackingID func() (string, error)
}

// NewService creates a Service backed by repo.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:       repo,
		resolver:   opts.Resolver,
		images:     opts.Images,
		publisher:  opts.Publisher,
		validator:  opts.Validator,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        time.Now,
		trackingID: NewTrackingID,
	}
	if s.images == nil {
		s.images = storage.InlineStore{}
	}
	if s.publisher == nil {
		s.publisher = eventbus.Noop{}
	}
	if s.validator == nil {
		s.validator = validation.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Create validates the submission, derives coordinates when the caller did
// not supply them, stores the image, assigns a tracking ID and persists the
// report as PENDING.
func (s *Service) Create(ctx context.Context, in models.NewReport) (*models.Report, error) {
	in = normalize(in)
	if err := s.validator.Struct(in); err != nil {
		s.logger.Debug("report rejected by validation", "error", err)
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	report := &models.Report{
		Category:    in.Category,
		Severity:    in.Severity,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Status:      models.StatusPending,
		ReporterID:  in.ReporterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if in.Coordinates != nil {
		report.SetCoordinates(in.Coordinates)
	} else {
		report.SetCoordinates(s.deriveCoordinates(ctx, in.Location))
	}

	if in.Image != nil {
		ref, err := s.images.Put(ctx, in.Image)
		if err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		report.Image = ref
	}

	if err := s.insert(ctx, report); err != nil {
		if report.Image != "" && !strings.HasPrefix(report.Image, "data:") {
			s.logger.Error("report not stored, uploaded image is orphaned", "image", report.Image, "error", err)
		}
		return nil, err
	}

	s.metrics.ObserveReportCreated(string(report.Category), string(report.Severity))
	s.logger.Info("report created",
		"tracking_id", report.TrackingID,
		"category", report.Category,
		"severity", report.Severity,
		"located", report.Coordinates() != nil)

	s.publish(ctx, eventbus.NewEvent(eventbus.EventReportCreated, report.TrackingID, eventbus.ReportCreated{
		Category: report.Category,
		Severity: report.Severity,
		Status:   report.Status,
		Located:  report.Coordinates() != nil,
	}))

	return report, nil
}

// deriveCoordinates never blocks intake: failures and misses leave the
// report without coordinates.
func (s *Service) deriveCoordinates(ctx context.Context, location string) *models.Coordinates {
	if s.resolver == nil {
		return nil
	}
	res, err := s.resolver.Resolve(ctx, location)
	if err != nil {
		s.logger.Warn("location resolution failed at intake", "error", err)
		return nil
	}
	if !res.Resolved() || !res.Coordinates.Valid() {
		return nil
	}
	return res.Coordinates
}

func (s *Service) insert(ctx context.Context, report *models.Report) error {
	for attempt := 1; attempt <= maxTrackingIDAttempts; attempt++ {
		id, err := s.trackingID()
		if err != nil {
			return err
		}
		report.TrackingID = id

		err = s.repo.Create(ctx, report)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return fmt.Errorf("create report: %w", err)
		}
		s.logger.Warn("tracking id collision", "attempt", attempt)
	}
	return fmt.Errorf("create report: no free tracking id after %d attempts", maxTrackingIDAttempts)
}

// List returns reports for moderators and admins, newest first.
func (s *Service) List(ctx context.Context, principal models.Principal, query models.ReportQuery) ([]models.Report, error) {
	if !principal.CanModerate() {
		return nil, models.ErrForbidden
	}
	query.Normalize()

	reports, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// Get returns the full report, including reporter identity, to moderators
// and admins.
func (s *Service) Get(ctx context.Context, principal models.Principal, trackingID string) (*models.Report, error) {
	if !principal.CanModerate() {
		return nil, models.ErrForbidden
	}
	report, err := s.repo.GetByTrackingID(ctx, NormalizeTrackingID(trackingID))
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

// UpdateStatus moves a report to status. Only status and updated_at change;
// concurrent updates are last writer wins.
func (s *Service) UpdateStatus(ctx context.Context, principal models.Principal, trackingID string, status models.Status) (*models.Report, error) {
	if !principal.CanModerate() {
		s.logger.Warn("status change denied", "principal", principal.ID, "role", principal.Role)
		return nil, models.ErrForbidden
	}
	if !knownStatus(status) {
		return nil, models.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}

	trackingID = NormalizeTrackingID(trackingID)
	current, err := s.repo.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !IsValidTransition(current.Status, status) {
		return nil, models.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot move from %s to %s", current.Status, status),
		}
	}

	updated, previous, err := s.repo.UpdateStatus(ctx, trackingID, status, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.metrics.ObserveTransition(string(previous), string(status))
	s.logger.Info("report status changed",
		"tracking_id", trackingID,
		"from", previous,
		"to", status,
		"by", principal.ID)

	s.publish(ctx, eventbus.NewEvent(eventbus.EventReportStatusUpdated, trackingID, eventbus.StatusUpdated{
		From:      previous,
		To:        status,
		ChangedBy: principal.ID,
	}))

	return updated, nil
}

// IsValidTransition reports whether a report may move from one status to
// another. Any known status may move to any known status, including back
// to PENDING and to itself.
func IsValidTransition(from, to models.Status) bool {
	return knownStatus(from) && knownStatus(to)
}

func knownStatus(status models.Status) bool {
	for _, s := range models.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *Service) publish(ctx context.Context, event eventbus.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish report event",
			"event_type", event.EventType,
			"tracking_id", event.TrackingID,
			"error", err)
	}
}

func normalize(in models.NewReport) models.NewReport {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.ReporterID = strings.TrimSpace(in.ReporterID)
	if in.ReporterID == "" {
		in.ReporterID = models.AnonymousReporterID
	}
	if c, err := models.ParseCategory(string(in.Category)); err == nil {
		in.Category = c
	}
	if sev, err := models.ParseSeverity(string(in.Severity)); err == nil {
		in.Severity = sev
	}
	return in
}
