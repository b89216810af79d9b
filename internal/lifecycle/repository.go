package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

// Repository persists reports.
type Repository interface {
	// Create inserts the report and sets its InternalID. It returns
	// models.ErrConflict when the tracking ID is already taken.
	Create(ctx context.Context, report *models.Report) error

	// GetByTrackingID returns models.ErrNotFound for unknown IDs.
	GetByTrackingID(ctx context.Context, trackingID string) (*models.Report, error)

	// List returns reports matching the query, newest first.
	List(ctx context.Context, query models.ReportQuery) ([]models.Report, error)

	// UpdateStatus sets status and moves updated_at to at, or to just after
	// the stored value when at is not later. It returns the updated report
	// and the status it replaced.
	UpdateStatus(ctx context.Context, trackingID string, status models.Status, at time.Time) (*models.Report, models.Status, error)

	// CountByReporter returns the number of reports per reporter ID.
	CountByReporter(ctx context.Context) (map[string]int, error)
}

// MemoryRepository implements Repository in memory for tests and local runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	reports map[string]models.Report
	nextID  int64
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{reports: make(map[string]models.Report)}
}

func (r *MemoryRepository) Create(ctx context.Context, report *models.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reports[report.TrackingID]; exists {
		return fmt.Errorf("tracking id %s: %w", report.TrackingID, models.ErrConflict)
	}
	r.nextID++
	report.InternalID = r.nextID
	r.reports[report.TrackingID] = *report
	return nil
}

func (r *MemoryRepository) GetByTrackingID(ctx context.Context, trackingID string) (*models.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, ok := r.reports[trackingID]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", trackingID, models.ErrNotFound)
	}
	return &report, nil
}

func (r *MemoryRepository) List(ctx context.Context, query models.ReportQuery) ([]models.Report, error) {
	r.mu.RLock()
	matching := make([]models.Report, 0, len(r.reports))
	for _, report := range r.reports {
		if query.Status != nil && report.Status != *query.Status {
			continue
		}
		if query.Category != nil && report.Category != *query.Category {
			continue
		}
		matching = append(matching, report)
	}
	r.mu.RUnlock()

	sort.Slice(matching, func(i, j int) bool {
		if !matching[i].CreatedAt.Equal(matching[j].CreatedAt) {
			return matching[i].CreatedAt.After(matching[j].CreatedAt)
		}
		return matching[i].InternalID > matching[j].InternalID
	})

	if query.Offset >= len(matching) {
		return []models.Report{}, nil
	}
	matching = matching[query.Offset:]
	if query.Limit > 0 && query.Limit < len(matching) {
		matching = matching[:query.Limit]
	}
	return matching, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, trackingID string, status models.Status, at time.Time) (*models.Report, models.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, ok := r.reports[trackingID]
	if !ok {
		return nil, "", fmt.Errorf("report %s: %w", trackingID, models.ErrNotFound)
	}

	previous := report.Status
	report.Status = status
	report.UpdatedAt = nextUpdatedAt(report.UpdatedAt, at)
	r.reports[trackingID] = report
	return &report, previous, nil
}

func (r *MemoryRepository) CountByReporter(ctx context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, report := range r.reports {
		counts[report.ReporterID]++
	}
	return counts, nil
}

// nextUpdatedAt keeps updated_at strictly increasing at the microsecond
// precision Postgres stores.
func nextUpdatedAt(previous, at time.Time) time.Time {
	at = at.Truncate(time.Microsecond)
	if !at.After(previous) {
		return previous.Add(time.Microsecond)
	}
	return at
}
