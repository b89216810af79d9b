package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

type countingGeocoder struct {
	calls  int
	result *models.Coordinates
	err    error
}

func (g *countingGeocoder) Forward(ctx context.Context, query string) (*models.Coordinates, error) {
	g.calls++
	return g.result, g.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		input string
		lat   float64
		lng   float64
		ok    bool
	}{
		{"40.71, -74.00", 40.71, -74.00, true},
		{"23.235789,72.663040", 23.235789, 72.663040, true},
		{"  -33.86 ,  151.2 ", -33.86, 151.2, true},
		{"+10, 20", 10, 20, true},
		{"40.71", 0, 0, false},
		{"40.71, -74.00, 5", 0, 0, false},
		{"Main St, Springfield", 0, 0, false},
		{"40.71 N, 74.00 W", 0, 0, false},
		{"", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCoordinates(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseCoordinates(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && (got.Latitude != tt.lat || got.Longitude != tt.lng) {
				t.Errorf("ParseCoordinates(%q) = %+v, want %v,%v", tt.input, got, tt.lat, tt.lng)
			}
		})
	}
}

func TestResolveCoordinatePairMakesNoNetworkCall(t *testing.T) {
	geocoder := &countingGeocoder{result: &models.Coordinates{Latitude: 1, Longitude: 2}}
	r := NewResolver(geocoder, nil, quietLogger())

	res, err := r.Resolve(context.Background(), "40.71, -74.00")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if geocoder.calls != 0 {
		t.Fatalf("expected zero geocoder calls, got %d", geocoder.calls)
	}
	if !res.Resolved() || res.Source != SourceLiteral {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Coordinates.Latitude != 40.71 || res.Coordinates.Longitude != -74.00 {
		t.Errorf("coordinates = %+v", res.Coordinates)
	}
}

func TestResolveFallsBackToGeocoder(t *testing.T) {
	geocoder := &countingGeocoder{result: &models.Coordinates{Latitude: 40.758, Longitude: -73.9855}}
	r := NewResolver(geocoder, nil, quietLogger())

	res, err := r.Resolve(context.Background(), "Times Square, New York")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if geocoder.calls != 1 {
		t.Fatalf("expected one geocoder call, got %d", geocoder.calls)
	}
	if res.Source != SourceGeocoder || res.Coordinates.Latitude != 40.758 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestResolveUnresolved(t *testing.T) {
	tests := []struct {
		name     string
		geocoder *countingGeocoder
		text     string
		calls    int
	}{
		{"no candidates", &countingGeocoder{}, "Nowhere Lane", 1},
		{"blank text", &countingGeocoder{}, "   ", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.geocoder, nil, quietLogger())
			res, err := r.Resolve(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if res.Resolved() {
				t.Fatalf("expected unresolved, got %+v", res)
			}
			if tt.geocoder.calls != tt.calls {
				t.Errorf("geocoder calls = %d, want %d", tt.geocoder.calls, tt.calls)
			}
		})
	}
}

func TestResolveWithoutGeocoder(t *testing.T) {
	r := NewResolver(nil, nil, quietLogger())
	res, err := r.Resolve(context.Background(), "Main St, Springfield")
	if err != nil || res.Resolved() {
		t.Fatalf("expected unresolved without error, got %+v, %v", res, err)
	}
}

func TestResolveGeocoderFailureIsDistinguishable(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	r := NewResolver(&countingGeocoder{err: cause}, nil, quietLogger())

	res, err := r.Resolve(context.Background(), "Main St, Springfield")
	if res.Resolved() {
		t.Fatalf("failure must not fabricate coordinates: %+v", res)
	}
	var upstream *models.UpstreamError
	if !errors.As(err, &upstream) || upstream.Service != "geocoder" {
		t.Fatalf("expected geocoder UpstreamError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved")
	}
}
