package models

import "time"

// InferenceLog records a single call to an external model or geocoder.
type InferenceLog struct {
	ID           int64     `json:"id"`
	Provider     string    `json:"provider"`  // 'openai', 'mapbox'
	Model        string    `json:"model"`     // 'gpt-4o', 'mapbox.places'
	Operation    string    `json:"operation"` // 'image_gate', 'image_extract', 'geocode'
	TokensUsed   int       `json:"tokens_used"`
	InputTokens  *int      `json:"input_tokens,omitempty"`
	OutputTokens *int      `json:"output_tokens,omitempty"`
	CostUSD      *float64  `json:"cost_usd,omitempty"`
	LatencyMs    int       `json:"latency_ms"`
	Status       string    `json:"status"` // 'success', 'error'
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Inference log statuses.
const (
	InferenceStatusSuccess = "success"
	InferenceStatusError   = "error"
)

// Inference log operations.
const (
	OperationImageGate    = "image_gate"
	OperationImageExtract = "image_extract"
	OperationGeocode      = "geocode"
)

// InferenceLogQuery filters the admin inference log listing.
type InferenceLogQuery struct {
	Provider  string
	Operation string
	Status    string
	Since     *time.Time
	Limit     int
	Offset    int
}

// InferenceLogStats aggregates calls matching a query.
type InferenceLogStats struct {
	TotalCalls      int     `json:"total_calls"`
	TotalTokens     int64   `json:"total_tokens"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}
