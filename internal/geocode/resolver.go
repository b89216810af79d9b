// Package geocode turns a free-text location into coordinates: a literal
// "lat, lng" pair first, then one forward geocoding request.
package geocode

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/disasterwatch/disasterwatch/internal/metrics"
	"github.com/disasterwatch/disasterwatch/internal/models"
)

var coordinatePair = regexp.MustCompile(`^\s*([+-]?\d+(?:\.\d+)?)\s*,\s*([+-]?\d+(?:\.\d+)?)\s*$`)

// Geocoder looks up an address. A nil result with a nil error means the
// provider had no candidate.
type Geocoder interface {
	Forward(ctx context.Context, query string) (*models.Coordinates, error)
}

// Source says which strategy produced a Result.
type Source string

const (
	SourceNone     Source = ""
	SourceLiteral  Source = "literal"
	SourceGeocoder Source = "geocoder"
)

// Result is the outcome of a resolution. Coordinates is nil when unresolved.
type Result struct {
	Coordinates *models.Coordinates
	Source      Source
}

// Resolved reports whether coordinates were found.
func (r Result) Resolved() bool {
	return r.Coordinates != nil
}

// Resolver tries each strategy in order and stops at the first hit.
type Resolver struct {
	geocoder Geocoder
	metrics  *metrics.Pipeline
	logger   *slog.Logger
}

// NewResolver creates a resolver. A nil geocoder limits resolution to
// literal coordinate pairs.
func NewResolver(geocoder Geocoder, m *metrics.Pipeline, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{geocoder: geocoder, metrics: m, logger: logger}
}

// Resolve never fabricates coordinates. When the geocoder call fails it
// returns an unresolved Result together with a *models.UpstreamError so the
// caller can tell "no match" from "service down".
func (r *Resolver) Resolve(ctx context.Context, text string) (Result, error) {
	if coords, ok := ParseCoordinates(text); ok {
		r.metrics.ObserveGeocode(metrics.OutcomeLiteral)
		return Result{Coordinates: &coords, Source: SourceLiteral}, nil
	}

	query := strings.TrimSpace(text)
	if query == "" || r.geocoder == nil {
		r.metrics.ObserveGeocode(metrics.OutcomeUnresolved)
		return Result{}, nil
	}

	coords, err := r.geocoder.Forward(ctx, query)
	if err != nil {
		r.metrics.ObserveGeocode(metrics.OutcomeError)
		r.logger.Warn("geocoder unavailable", "error", err)
		return Result{}, &models.UpstreamError{Service: "geocoder", Err: err}
	}
	if coords == nil {
		r.metrics.ObserveGeocode(metrics.OutcomeUnresolved)
		r.logger.Debug("location not found", "location", query)
		return Result{}, nil
	}

	r.metrics.ObserveGeocode(metrics.OutcomeResolved)
	return Result{Coordinates: coords, Source: SourceGeocoder}, nil
}

// ParseCoordinates recognises "<lat>, <lng>" with optional sign and decimal
// part and returns the numbers exactly as written.
func ParseCoordinates(text string) (models.Coordinates, bool) {
	m := coordinatePair.FindStringSubmatch(text)
	if m == nil {
		return models.Coordinates{}, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return models.Coordinates{}, false
	}
	lng, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return models.Coordinates{}, false
	}
	return models.Coordinates{Latitude: lat, Longitude: lng}, true
}
