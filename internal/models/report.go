package models

import (
	"fmt"
	"strings"
	"time"
)

// Report is a disaster incident report as stored by the lifecycle store.
type Report struct {
	TrackingID  string    `json:"tracking_id"`
	InternalID  int64     `json:"id"`
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Image       string    `json:"image,omitempty"` // object URL or data URI; empty when no photo was attached
	Status      Status    `json:"status"`
	ReporterID  string    `json:"reporter_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Category is the kind of disaster being reported.
type Category string

const (
	CategoryEarthquake Category = "EARTHQUAKE"
	CategoryHurricane  Category = "HURRICANE"
	CategoryFlood      Category = "FLOOD"
	CategoryWildfire   Category = "WILDFIRE"
	CategoryTornado    Category = "TORNADO"
	CategoryTsunami    Category = "TSUNAMI"
	CategoryLandslide  Category = "LANDSLIDE"
	CategoryOther      Category = "OTHER"
)

// Categories lists every accepted category.
var Categories = []Category{
	CategoryEarthquake,
	CategoryHurricane,
	CategoryFlood,
	CategoryWildfire,
	CategoryTornado,
	CategoryTsunami,
	CategoryLandslide,
	CategoryOther,
}

// ParseCategory maps user or model supplied text onto a Category.
// Matching is case-insensitive; anything outside the enumeration is an error.
func ParseCategory(raw string) (Category, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	for _, c := range Categories {
		if string(c) == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", raw)
}

// Severity is the urgency the reporter assigned at submission.
type Severity string

const (
	SeverityNonEmergency Severity = "NON_EMERGENCY"
	SeverityLowPriority  Severity = "LOW_PRIORITY"
	SeverityEmergency    Severity = "EMERGENCY"
	SeverityCritical     Severity = "CRITICAL"
)

// Severities lists every accepted severity.
var Severities = []Severity{
	SeverityNonEmergency,
	SeverityLowPriority,
	SeverityEmergency,
	SeverityCritical,
}

// ParseSeverity accepts both the wire form (LOW_PRIORITY) and the camel form
// (LowPriority) of a severity.
func ParseSeverity(raw string) (Severity, error) {
	normalized := normalizeEnum(raw)
	for _, s := range Severities {
		if normalizeEnum(string(s)) == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", raw)
}

// Status is the moderation state of a report.
type Status string

const (
	StatusPending    Status = "PENDING"    // submitted, not yet looked at
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusDismissed  Status = "DISMISSED"
)

// Statuses lists every accepted status.
var Statuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusResolved,
	StatusDismissed,
}

// ParseStatus accepts both IN_PROGRESS and InProgress spellings.
func ParseStatus(raw string) (Status, error) {
	normalized := normalizeEnum(raw)
	for _, s := range Statuses {
		if normalizeEnum(string(s)) == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

func normalizeEnum(raw string) string {
	return strings.ToUpper(strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(raw)))
}

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Valid reports whether the pair lies inside the WGS84 ranges.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Coordinates returns the stored pair, or nil while the report has none.
func (r *Report) Coordinates() *Coordinates {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	return &Coordinates{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

// SetCoordinates stores both halves of the pair together, or clears both.
func (r *Report) SetCoordinates(c *Coordinates) {
	if c == nil {
		r.Latitude, r.Longitude = nil, nil
		return
	}
	lat, lng := c.Latitude, c.Longitude
	r.Latitude, r.Longitude = &lat, &lng
}

// NewReport is the validated input for creating a report.
type NewReport struct {
	Category    Category     `json:"category" validate:"required,category"`
	Severity    Severity     `json:"severity" validate:"required,severity"`
	Title       string       `json:"title" validate:"required,max=200"`
	Description string       `json:"description" validate:"required,max=5000"`
	Location    string       `json:"location" validate:"required,max=500"`
	Coordinates *Coordinates `json:"coordinates"`
	Image       *Image       `json:"-"`
	ReporterID  string       `json:"reporter_id" validate:"required"`
}

// Image is an uploaded photo held in memory during intake.
type Image struct {
	Data     []byte
	MimeType string
}

// PublicView is the part of a report an unauthenticated tracker may see.
// Reporter identity and the storage key are deliberately absent.
type PublicView struct {
	TrackingID  string    `json:"tracking_id"`
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Image       string    `json:"image,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PublicView projects the report onto its public fields.
func (r *Report) PublicView() PublicView {
	view := PublicView{
		TrackingID:  r.TrackingID,
		Category:    r.Category,
		Severity:    r.Severity,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		Image:       r.Image,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if c := r.Coordinates(); c != nil {
		view.SetCoordinates(c)
	}
	return view
}

// SetCoordinates sets the display coordinates of the view.
func (v *PublicView) SetCoordinates(c *Coordinates) {
	if c == nil {
		v.Latitude, v.Longitude = nil, nil
		return
	}
	lat, lng := c.Latitude, c.Longitude
	v.Latitude, v.Longitude = &lat, &lng
}
