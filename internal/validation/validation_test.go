package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

func validReport() models.NewReport {
	return models.NewReport{
		Category:    models.CategoryFlood,
		Severity:    models.SeverityEmergency,
		Title:       "Street flooding",
		Description: "Water rising fast",
		Location:    "40.71, -74.00",
		ReporterID:  models.AnonymousReporterID,
	}
}

func TestStructAcceptsValidReport(t *testing.T) {
	if err := New().Struct(validReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStructNamesFailingField(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.NewReport)
		wantField string
		wantMsg   string
	}{
		{"missing title", func(r *models.NewReport) { r.Title = "" }, "title", "is required"},
		{"missing location", func(r *models.NewReport) { r.Location = "" }, "location", "is required"},
		{"missing category", func(r *models.NewReport) { r.Category = "" }, "category", "is required"},
		{"unknown category", func(r *models.NewReport) { r.Category = "VOLCANO" }, "category", "must be one of"},
		{"unknown severity", func(r *models.NewReport) { r.Severity = "URGENT" }, "severity", "must be one of"},
		{"long title", func(r *models.NewReport) { r.Title = strings.Repeat("x", 201) }, "title", "at most 200"},
		{"latitude out of range", func(r *models.NewReport) {
			r.Coordinates = &models.Coordinates{Latitude: 95, Longitude: 0}
		}, "coordinates", "out of range"},
		{"longitude out of range", func(r *models.NewReport) {
			r.Coordinates = &models.Coordinates{Latitude: 0, Longitude: -181}
		}, "coordinates", "out of range"},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReport()
			tt.mutate(&r)

			err := v.Struct(r)
			var verr models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
			if !strings.Contains(verr.Message, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", verr.Message, tt.wantMsg)
			}
		})
	}
}

func TestRoleAndEmailTags(t *testing.T) {
	type signup struct {
		Email string `json:"email" validate:"required,email"`
		Role  string `json:"role" validate:"required,role"`
	}

	v := New()
	if err := v.Struct(signup{Email: "a@example.com", Role: "moderator"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := v.Struct(signup{Email: "not-an-email", Role: "ADMIN"})
	var verr models.ValidationError
	if !errors.As(err, &verr) || verr.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}

	err = v.Struct(signup{Email: "a@example.com", Role: "root"})
	if !errors.As(err, &verr) || verr.Field != "role" {
		t.Fatalf("expected role validation error, got %v", err)
	}
}

func TestMaxBytesCountsEncodedLength(t *testing.T) {
	type secret struct {
		Password string `json:"password" validate:"maxbytes=8"`
	}

	v := New()
	if err := v.Struct(secret{Password: "abcdefgh"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Five runes, ten bytes.
	err := v.Struct(secret{Password: "ééééé"})
	var verr models.ValidationError
	if !errors.As(err, &verr) || verr.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}
	if !strings.Contains(verr.Message, "8 bytes") {
		t.Errorf("message = %q", verr.Message)
	}
}
