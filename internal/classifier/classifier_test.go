package classifier

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

type fakeVision struct {
	answers  []string
	err      error
	requests []Request
}

func (f *fakeVision) Complete(ctx context.Context, req Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.answers) == 0 {
		return "", errors.New("unexpected call")
	}
	answer := f.answers[0]
	f.answers = f.answers[1:]
	return answer, nil
}

func testImage(t *testing.T) *models.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &models.Image{Data: buf.Bytes(), MimeType: "image/png"}
}

func newTestClassifier(model VisionModel) *Classifier {
	return New(model, Options{
		MaxImageDimension: 1568,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestClassifyRejectsNonDisasterImage(t *testing.T) {
	model := &fakeVision{answers: []string{"NO"}}

	_, err := newTestClassifier(model).Classify(context.Background(), testImage(t))
	if !errors.Is(err, models.ErrClassificationRejected) {
		t.Fatalf("expected ErrClassificationRejected, got %v", err)
	}
	if len(model.requests) != 1 {
		t.Fatalf("extraction must not run after a rejection, got %d calls", len(model.requests))
	}
	if model.requests[0].Operation != models.OperationImageGate {
		t.Errorf("first call operation = %q", model.requests[0].Operation)
	}
}

func TestClassifyGateRequiresExactYes(t *testing.T) {
	tests := []struct {
		answer string
		accept bool
	}{
		{"YES", true},
		{"  yes\n", true},
		{"Yes", true},
		{"YES.", false},
		{"Yes, this shows a flood", false},
		{"", false},
		{"NO", false},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			if got := IsAffirmative(tt.answer); got != tt.accept {
				t.Errorf("IsAffirmative(%q) = %v, want %v", tt.answer, got, tt.accept)
			}
		})
	}
}

func TestClassifyExtractsSuggestion(t *testing.T) {
	model := &fakeVision{answers: []string{
		"YES",
		"TITLE: Flooded residential street\nTYPE: Flood\nDESCRIPTION: Water covers the road up to car doors.",
	}}

	verdict, err := newTestClassifier(model).Classify(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if len(model.requests) != 2 || model.requests[1].Operation != models.OperationImageExtract {
		t.Fatalf("expected gate then extract, got %+v", model.requests)
	}
	if verdict.Title != "Flooded residential street" {
		t.Errorf("Title = %q", verdict.Title)
	}
	if verdict.Category != models.CategoryFlood {
		t.Errorf("Category = %q", verdict.Category)
	}
	if verdict.Description != "Water covers the road up to car doors." {
		t.Errorf("Description = %q", verdict.Description)
	}
}

func TestClassifyUpstreamFailureIsNotRejection(t *testing.T) {
	model := &fakeVision{err: errors.New("503 from provider")}

	_, err := newTestClassifier(model).Classify(context.Background(), testImage(t))
	if errors.Is(err, models.ErrClassificationRejected) {
		t.Fatal("upstream failure reported as rejection")
	}
	var upstream *models.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Service != "vision" {
		t.Errorf("Service = %q", upstream.Service)
	}
}

func TestClassifyRequiresImage(t *testing.T) {
	model := &fakeVision{}
	_, err := newTestClassifier(model).Classify(context.Background(), nil)
	var verr models.ValidationError
	if !errors.As(err, &verr) || verr.Field != "image" {
		t.Fatalf("expected image validation error, got %v", err)
	}
	if len(model.requests) != 0 {
		t.Fatal("no model call expected without an image")
	}
}

func TestClassifyUnconfigured(t *testing.T) {
	_, err := newTestClassifier(Unconfigured{}).Classify(context.Background(), testImage(t))
	if !errors.Is(err, ErrNotConfigured) || !models.IsUpstream(err) {
		t.Fatalf("expected upstream ErrNotConfigured, got %v", err)
	}
}

func TestParseExtraction(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Verdict
	}{
		{
			name: "one field per line",
			text: "TITLE: Wildfire near ridge\nTYPE: Wildfire\nDESCRIPTION: Smoke visible from town",
			want: Verdict{Title: "Wildfire near ridge", Category: models.CategoryWildfire, RawCategory: "Wildfire", Description: "Smoke visible from town"},
		},
		{
			name: "single line",
			text: "TITLE: Collapsed bridge TYPE: Earthquake DESCRIPTION: Span has fallen into the river",
			want: Verdict{Title: "Collapsed bridge", Category: models.CategoryEarthquake, RawCategory: "Earthquake", Description: "Span has fallen into the river"},
		},
		{
			name: "missing description",
			text: "TITLE: Mudslide\nTYPE: Landslide",
			want: Verdict{Title: "Mudslide", Category: models.CategoryLandslide, RawCategory: "Landslide"},
		},
		{
			name: "unknown type keeps raw text",
			text: "TITLE: Ash cloud\nTYPE: Volcano\nDESCRIPTION: Grey plume",
			want: Verdict{Title: "Ash cloud", RawCategory: "Volcano", Description: "Grey plume"},
		},
		{
			name: "markdown emphasis stripped",
			text: "**TITLE:** Storm surge\n**TYPE:** Hurricane.\n",
			want: Verdict{Title: "Storm surge", Category: models.CategoryHurricane, RawCategory: "Hurricane"},
		},
		{
			name: "unparseable",
			text: "I cannot help with that.",
			want: Verdict{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseExtraction(tt.text); got != tt.want {
				t.Errorf("ParseExtraction() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
