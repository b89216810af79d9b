// Package classifier decides whether a photo shows a disaster and, when it
// does, extracts a suggested title, category and description from it.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/disasterwatch/disasterwatch/internal/media"
	"github.com/disasterwatch/disasterwatch/internal/metrics"
	"github.com/disasterwatch/disasterwatch/internal/models"
)

const gatePrompt = `Determine if this image depicts a disaster scenario. Respond with ONLY 'YES' or 'NO'.
Consider disaster scenarios like earthquakes, hurricanes, floods, wildfires, tornadoes, tsunamis, or landslides.`

const extractPrompt = `Analyze this emergency situation image and respond in this exact format without any asterisks or bullet points:
TITLE: Write a clear, brief title
TYPE: Choose one (Earthquake, Hurricane, Flood, Wildfire, Tornado, Tsunami, Landslide, Other)
DESCRIPTION: Write a clear, concise description`

// Each label is matched on its own; a value runs until the next label or
// the end of its line.
var (
	titlePattern       = regexp.MustCompile(`(?m)TITLE:[ \t]*(.*?)[ \t]*(?:TYPE:|DESCRIPTION:|$)`)
	typePattern        = regexp.MustCompile(`(?m)TYPE:[ \t]*(.*?)[ \t]*(?:TITLE:|DESCRIPTION:|$)`)
	descriptionPattern = regexp.MustCompile(`(?m)DESCRIPTION:[ \t]*(.*?)[ \t]*(?:TITLE:|TYPE:|$)`)
)

// Verdict is the structured suggestion extracted from an accepted image.
type Verdict struct {
	Title string `json:"title"`
	// Category is empty when the model named something outside the
	// enumeration; RawCategory keeps what it actually said.
	Category    models.Category `json:"category,omitempty"`
	RawCategory string          `json:"report_type"`
	Description string          `json:"description"`
}

// Options tune a Classifier.
type Options struct {
	MaxImageDimension int
	Metrics           *metrics.Pipeline
	Logger            *slog.Logger
}

// Classifier runs the two-call gate then extract protocol against a VisionModel.
type Classifier struct {
	model   VisionModel
	maxDim  int
	metrics *metrics.Pipeline
	logger  *slog.Logger
}

// New creates a Classifier.
func New(model VisionModel, opts Options) *Classifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		model:   model,
		maxDim:  opts.MaxImageDimension,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Classify asks the gate question first and only issues the extraction call
// when the answer is YES. A negative gate answer yields
// models.ErrClassificationRejected; a failed call yields *models.UpstreamError.
func (c *Classifier) Classify(ctx context.Context, img *models.Image) (Verdict, error) {
	if img == nil || len(img.Data) == 0 {
		return Verdict{}, models.ValidationError{Field: "image", Message: "is required"}
	}

	prepared, err := media.Downscale(img, c.maxDim)
	if err != nil {
		return Verdict{}, err
	}

	answer, err := c.model.Complete(ctx, Request{
		Operation: models.OperationImageGate,
		Prompt:    gatePrompt,
		Image:     prepared,
	})
	if err != nil {
		return Verdict{}, c.upstream(ctx, "gate", err)
	}

	if !IsAffirmative(answer) {
		c.metrics.ObserveClassification(metrics.OutcomeRejected)
		c.logger.Info("image rejected by disaster gate", "answer", truncate(answer, 40))
		return Verdict{}, models.ErrClassificationRejected
	}

	text, err := c.model.Complete(ctx, Request{
		Operation: models.OperationImageExtract,
		Prompt:    extractPrompt,
		Image:     prepared,
	})
	if err != nil {
		return Verdict{}, c.upstream(ctx, "extract", err)
	}

	verdict := ParseExtraction(text)
	c.metrics.ObserveClassification(metrics.OutcomeAccepted)
	c.logger.Debug("image classified",
		"category", verdict.Category,
		"raw_category", verdict.RawCategory)

	return verdict, nil
}

func (c *Classifier) upstream(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("classify %s: %w", step, ctxErr)
	}
	c.metrics.ObserveClassification(metrics.OutcomeError)
	return &models.UpstreamError{Service: "vision", Err: fmt.Errorf("%s: %w", step, err)}
}

// IsAffirmative reports whether a gate answer is exactly YES, ignoring case
// and surrounding whitespace.
func IsAffirmative(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "YES")
}

// ParseExtraction pulls TITLE, TYPE and DESCRIPTION out of the model's
// reply. Missing labels leave the field empty; it never fails.
func ParseExtraction(text string) Verdict {
	v := Verdict{
		Title:       firstMatch(titlePattern, text),
		RawCategory: strings.TrimRight(firstMatch(typePattern, text), "."),
		Description: firstMatch(descriptionPattern, text),
	}
	if category, err := models.ParseCategory(v.RawCategory); err == nil {
		v.Category = category
	}
	return v
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], " \t*")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
