package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

// InferenceLogRepository stores one row per vision model or geocoder call.
// It implements inference.Store and the admin read side.
type InferenceLogRepository struct {
	db *sql.DB
}

// NewInferenceLogRepository creates a repository over db.
func NewInferenceLogRepository(db *sql.DB) *InferenceLogRepository {
	return &InferenceLogRepository{db: db}
}

// Create inserts a call record. created_at is set by the database.
func (r *InferenceLogRepository) Create(ctx context.Context, log models.InferenceLog) error {
	query := `
		INSERT INTO inference_logs (
			provider, model, operation, tokens_used, input_tokens, output_tokens,
			cost_usd, latency_ms, status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.Provider,
		log.Model,
		log.Operation,
		log.TokensUsed,
		log.InputTokens,
		log.OutputTokens,
		log.CostUSD,
		log.LatencyMs,
		log.Status,
		log.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert inference log: %w", translateError(err))
	}
	return nil
}

// inferenceFilter holds the conditions shared by List and GetStats.
type inferenceFilter models.InferenceLogQuery

// apply appends the filter's conditions to sqlQuery.
func (q inferenceFilter) apply(sqlQuery string, args []interface{}) (string, []interface{}) {
	if q.Provider != "" {
		args = append(args, q.Provider)
		sqlQuery += fmt.Sprintf(" AND provider = $%d", len(args))
	}
	if q.Operation != "" {
		args = append(args, q.Operation)
		sqlQuery += fmt.Sprintf(" AND operation = $%d", len(args))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		sqlQuery += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if q.Since != nil {
		args = append(args, *q.Since)
		sqlQuery += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	return sqlQuery, args
}

// List retrieves inference logs with optional filtering, newest first.
func (r *InferenceLogRepository) List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error) {
	sqlQuery, args := inferenceFilter(query).apply(`
		SELECT id, provider, model, operation, tokens_used, input_tokens, output_tokens,
		       cost_usd, latency_ms, status, error_message, created_at
		FROM inference_logs
		WHERE 1=1
	`, nil)

	sqlQuery += " ORDER BY created_at DESC, id DESC"

	if query.Limit > 0 {
		args = append(args, query.Limit)
		sqlQuery += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if query.Offset > 0 {
		args = append(args, query.Offset)
		sqlQuery += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inference logs: %w", translateError(err))
	}
	defer rows.Close()

	logs := []models.InferenceLog{}
	for rows.Next() {
		var log models.InferenceLog
		err := rows.Scan(
			&log.ID,
			&log.Provider,
			&log.Model,
			&log.Operation,
			&log.TokensUsed,
			&log.InputTokens,
			&log.OutputTokens,
			&log.CostUSD,
			&log.LatencyMs,
			&log.Status,
			&log.ErrorMessage,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inference log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inference logs: %w", translateError(err))
	}

	return logs, nil
}

// GetStats aggregates the calls matching query. Limit and Offset are ignored.
func (r *InferenceLogRepository) GetStats(ctx context.Context, query models.InferenceLogQuery) (*models.InferenceLogStats, error) {
	sqlQuery, args := inferenceFilter(query).apply(`
		SELECT
			COUNT(*) as total_calls,
			COALESCE(SUM(tokens_used), 0) as total_tokens,
			COALESCE(SUM(cost_usd), 0)::float8 as total_cost_usd,
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) as successful_calls,
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0) as failed_calls,
			COALESCE(AVG(latency_ms), 0)::float8 as avg_latency_ms
		FROM inference_logs
		WHERE 1=1
	`, nil)

	var stats models.InferenceLogStats
	err := r.db.QueryRowContext(ctx, sqlQuery, args...).Scan(
		&stats.TotalCalls,
		&stats.TotalTokens,
		&stats.TotalCostUSD,
		&stats.SuccessfulCalls,
		&stats.FailedCalls,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get inference stats: %w", translateError(err))
	}

	return &stats, nil
}
