package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

const reportColumns = `id, tracking_id, category, severity, title, description, location,
	latitude, longitude, image, status, reporter_id, created_at, updated_at`

// PostgresReportRepository stores reports in PostgreSQL.
type PostgresReportRepository struct {
	db *sql.DB
}

// NewPostgresReportRepository creates a new repository
func NewPostgresReportRepository(db *sql.DB) *PostgresReportRepository {
	return &PostgresReportRepository{db: db}
}

// Create inserts the report and fills in its internal ID.
func (r *PostgresReportRepository) Create(ctx context.Context, report *models.Report) error {
	query := `
		INSERT INTO reports (
			tracking_id, category, severity, title, description, location,
			latitude, longitude, image, status, reporter_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		report.TrackingID,
		report.Category,
		report.Severity,
		report.Title,
		report.Description,
		report.Location,
		report.Latitude,
		report.Longitude,
		sql.NullString{String: report.Image, Valid: report.Image != ""},
		report.Status,
		report.ReporterID,
		report.CreatedAt,
		report.UpdatedAt,
	).Scan(&report.InternalID)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", report.TrackingID, translateError(err))
	}
	return nil
}

// GetByTrackingID retrieves a report by its public identifier.
func (r *PostgresReportRepository) GetByTrackingID(ctx context.Context, trackingID string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE tracking_id = $1`

	report, err := scanReport(r.db.QueryRowContext(ctx, query, trackingID))
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", trackingID, translateError(err))
	}
	return report, nil
}

// List retrieves reports with optional status and category filters, newest first.
func (r *PostgresReportRepository) List(ctx context.Context, query models.ReportQuery) ([]models.Report, error) {
	sqlQuery := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if query.Status != nil {
		sqlQuery += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *query.Status)
		argPos++
	}

	if query.Category != nil {
		sqlQuery += fmt.Sprintf(" AND category = $%d", argPos)
		args = append(args, *query.Category)
		argPos++
	}

	sqlQuery += " ORDER BY created_at DESC, id DESC"

	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, query.Limit)
		argPos++
	}

	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, query.Offset)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", translateError(err))
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", translateError(err))
	}

	return reports, nil
}

// UpdateStatus changes status and bumps updated_at in a single statement.
// The row lock taken by the CTE serialises concurrent moderators; the last
// one to commit wins.
func (r *PostgresReportRepository) UpdateStatus(ctx context.Context, trackingID string, status models.Status, at time.Time) (*models.Report, models.Status, error) {
	query := `
		WITH prev AS (
			SELECT id, status FROM reports WHERE tracking_id = $1 FOR UPDATE
		)
		UPDATE reports r
		SET status = $2,
		    updated_at = GREATEST($3::timestamptz, r.updated_at + INTERVAL '1 microsecond')
		FROM prev
		WHERE r.id = prev.id
		RETURNING prev.status, r.id, r.tracking_id, r.category, r.severity, r.title,
			r.description, r.location, r.latitude, r.longitude, r.image, r.status,
			r.reporter_id, r.created_at, r.updated_at
	`

	var previous models.Status
	var report models.Report
	var image sql.NullString

	err := r.db.QueryRowContext(ctx, query, trackingID, status, at).Scan(
		&previous,
		&report.InternalID,
		&report.TrackingID,
		&report.Category,
		&report.Severity,
		&report.Title,
		&report.Description,
		&report.Location,
		&report.Latitude,
		&report.Longitude,
		&image,
		&report.Status,
		&report.ReporterID,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("report %s: %w", trackingID, translateError(err))
	}
	report.Image = image.String

	return &report, previous, nil
}

// CountByReporter returns the number of reports filed by each reporter.
func (r *PostgresReportRepository) CountByReporter(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT reporter_id, COUNT(*) FROM reports GROUP BY reporter_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", translateError(err))
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var reporterID string
		var count int
		if err := rows.Scan(&reporterID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan report count: %w", err)
		}
		counts[reporterID] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*models.Report, error) {
	var report models.Report
	var image sql.NullString

	err := row.Scan(
		&report.InternalID,
		&report.TrackingID,
		&report.Category,
		&report.Severity,
		&report.Title,
		&report.Description,
		&report.Location,
		&report.Latitude,
		&report.Longitude,
		&image,
		&report.Status,
		&report.ReporterID,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	report.Image = image.String
	return &report, nil
}
