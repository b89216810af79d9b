// Package wizard drives a report submission through its four steps:
// form entry, AI-assisted review, confirmation and receipt.
//
// Each step is its own type and a step can only be reached through the
// previous one, so a Confirm without reviewed data or a Receipt without a
// tracking ID cannot be built.
package wizard

import (
	"context"
	"fmt"
	"strings"

	"github.com/disasterwatch/disasterwatch/internal/classifier"
	"github.com/disasterwatch/disasterwatch/internal/models"
	"github.com/disasterwatch/disasterwatch/internal/validation"
)

// Step names a wizard state.
type Step int

const (
	StepForm Step = iota + 1
	StepReview
	StepConfirm
	StepReceipt
)

func (s Step) String() string {
	switch s {
	case StepForm:
		return "form"
	case StepReview:
		return "review"
	case StepConfirm:
		return "confirm"
	case StepReceipt:
		return "receipt"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Next is the transition function. It is total: the receipt is terminal and
// maps to itself, and anything unknown restarts at the form.
func Next(s Step) Step {
	switch s {
	case StepForm:
		return StepReview
	case StepReview:
		return StepConfirm
	case StepConfirm, StepReceipt:
		return StepReceipt
	default:
		return StepForm
	}
}

// Classifier judges an attached photo.
type Classifier interface {
	Classify(ctx context.Context, img *models.Image) (classifier.Verdict, error)
}

// Creator persists the finished report.
type Creator interface {
	Create(ctx context.Context, in models.NewReport) (*models.Report, error)
}

// Input is what the reporter fills in on the form.
type Input struct {
	Category    string
	Severity    string
	Title       string
	Description string
	Location    string
	Coordinates *models.Coordinates
	Image       *models.Image
	ReporterID  string
}

// Draft is the report accumulated so far. States hold it by value and every
// change produces a new Draft, so earlier states are never affected.
type Draft struct {
	Category    models.Category
	Severity    models.Severity
	Title       string
	Description string
	Location    string
	Coordinates *models.Coordinates
	Image       *models.Image
	ReporterID  string
}

// NewReport converts the draft into lifecycle input.
func (d Draft) NewReport() models.NewReport {
	return models.NewReport{
		Category:    d.Category,
		Severity:    d.Severity,
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Location,
		Coordinates: d.Coordinates,
		Image:       d.Image,
		ReporterID:  d.ReporterID,
	}
}

func (d Draft) withImage(img *models.Image) Draft {
	d.Image = img
	return d
}

// withSuggestion overlays the non-empty parts of an accepted AI verdict.
func (d Draft) withSuggestion(v classifier.Verdict) Draft {
	if v.Title != "" {
		d.Title = v.Title
	}
	if v.Category != "" {
		d.Category = v.Category
	}
	if v.Description != "" {
		d.Description = v.Description
	}
	return d
}

var validator = validation.New()

func (d Draft) validate() error {
	return validator.Struct(d.NewReport())
}

// Form is the first step. The zero value is ready to use.
type Form struct{}

// Step reports StepForm.
func (Form) Step() Step { return StepForm }

// Submit checks the required fields and moves to review.
func (Form) Submit(in Input) (*Review, error) {
	draft := Draft{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		Coordinates: in.Coordinates,
		Image:       in.Image,
		ReporterID:  strings.TrimSpace(in.ReporterID),
	}
	if draft.ReporterID == "" {
		draft.ReporterID = models.AnonymousReporterID
	}

	if strings.TrimSpace(in.Category) == "" {
		return nil, models.ValidationError{Field: "category", Message: "is required"}
	}
	category, err := models.ParseCategory(in.Category)
	if err != nil {
		return nil, models.ValidationError{Field: "category", Message: err.Error()}
	}
	draft.Category = category

	if strings.TrimSpace(in.Severity) == "" {
		return nil, models.ValidationError{Field: "severity", Message: "is required"}
	}
	severity, err := models.ParseSeverity(in.Severity)
	if err != nil {
		return nil, models.ValidationError{Field: "severity", Message: err.Error()}
	}
	draft.Severity = severity

	if err := draft.validate(); err != nil {
		return nil, err
	}
	if in.Image != nil && len(in.Image.Data) == 0 {
		return nil, models.ValidationError{Field: "image", Message: "is empty"}
	}

	return &Review{draft: draft}, nil
}

// Review is the AI-assisted review step.
type Review struct {
	draft Draft
}

// Step reports StepReview.
func (*Review) Step() Step { return StepReview }

// Draft returns a copy of the accumulated data.
func (r *Review) Draft() Draft { return r.draft }

// Analyze classifies the attached photo, if any, and moves to confirmation.
// When the photo is rejected or the classifier fails, the error is returned
// and the caller stays on this Review; it must replace or remove the photo
// before trying again.
func (r *Review) Analyze(ctx context.Context, c Classifier) (*Confirm, error) {
	if r.draft.Image == nil {
		return &Confirm{draft: r.draft}, nil
	}

	verdict, err := c.Classify(ctx, r.draft.Image)
	if err != nil {
		return nil, err
	}
	return &Confirm{draft: r.draft, suggestion: &verdict}, nil
}

// ReplaceImage returns a new Review carrying img instead of the current photo.
func (r *Review) ReplaceImage(img *models.Image) (*Review, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, models.ValidationError{Field: "image", Message: "is empty"}
	}
	return &Review{draft: r.draft.withImage(img)}, nil
}

// RemoveImage returns a new Review without a photo.
func (r *Review) RemoveImage() *Review {
	return &Review{draft: r.draft.withImage(nil)}
}

// Confirm is the confirmation step. It may carry an AI suggestion the
// reporter can accept or ignore.
type Confirm struct {
	draft      Draft
	suggestion *classifier.Verdict
}

// Step reports StepConfirm.
func (*Confirm) Step() Step { return StepConfirm }

// Draft returns a copy of the accumulated data.
func (c *Confirm) Draft() Draft { return c.draft }

// Suggestion returns the classifier's verdict, if a photo was analyzed.
func (c *Confirm) Suggestion() (classifier.Verdict, bool) {
	if c.suggestion == nil {
		return classifier.Verdict{}, false
	}
	return *c.suggestion, true
}

// AcceptSuggestion overwrites title, category and description with the
// suggested values. Empty suggested fields keep what the reporter typed.
// The suggestion is consumed.
func (c *Confirm) AcceptSuggestion() *Confirm {
	if c.suggestion == nil {
		return c
	}
	return &Confirm{draft: c.draft.withSuggestion(*c.suggestion)}
}

// Edit holds the fields a reporter may change on the confirmation step.
// Nil fields are left as they are.
type Edit struct {
	Category    *string
	Severity    *string
	Title       *string
	Description *string
	Location    *string
}

// Edit applies changes and revalidates the draft.
func (c *Confirm) Edit(e Edit) (*Confirm, error) {
	draft := c.draft
	if e.Category != nil {
		category, err := models.ParseCategory(*e.Category)
		if err != nil {
			return nil, models.ValidationError{Field: "category", Message: err.Error()}
		}
		draft.Category = category
	}
	if e.Severity != nil {
		severity, err := models.ParseSeverity(*e.Severity)
		if err != nil {
			return nil, models.ValidationError{Field: "severity", Message: err.Error()}
		}
		draft.Severity = severity
	}
	if e.Title != nil {
		draft.Title = strings.TrimSpace(*e.Title)
	}
	if e.Description != nil {
		draft.Description = strings.TrimSpace(*e.Description)
	}
	if e.Location != nil {
		draft.Location = strings.TrimSpace(*e.Location)
		// Coordinates typed for the old location no longer apply.
		draft.Coordinates = nil
	}
	if err := draft.validate(); err != nil {
		return nil, err
	}
	return &Confirm{draft: draft, suggestion: c.suggestion}, nil
}

// Submit persists the report and moves to the receipt. On error the caller
// stays on this Confirm and may retry.
func (c *Confirm) Submit(ctx context.Context, creator Creator) (*Receipt, error) {
	report, err := creator.Create(ctx, c.draft.NewReport())
	if err != nil {
		return nil, err
	}
	return &Receipt{report: *report}, nil
}

// Receipt is the terminal step.
type Receipt struct {
	report models.Report
}

// Step reports StepReceipt.
func (*Receipt) Step() Step { return StepReceipt }

// TrackingID is the identifier the reporter uses to follow the report.
func (r *Receipt) TrackingID() string { return r.report.TrackingID }

// Status is the status the report was filed with.
func (r *Receipt) Status() models.Status { return r.report.Status }

// Message is the next-steps text shown to the reporter.
func (r *Receipt) Message() string {
	return fmt.Sprintf("Your report has been submitted. Keep your tracking ID %s to check its status; "+
		"responders will review it shortly.", r.report.TrackingID)
}

// Advance is a no-op: the receipt is terminal.
func (r *Receipt) Advance() *Receipt { return r }
