// Package eventbus appends report events to a Redis stream for downstream
// consumers such as dashboards and analytics jobs.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

// Event types.
const (
	EventReportCreated       = "report.created"
	EventReportStatusUpdated = "report.status.updated"
)

// Event is one entry on the report stream.
type Event struct {
	EventID    string      `json:"event_id"`
	EventType  string      `json:"event_type"`
	TrackingID string      `json:"tracking_id"`
	Payload    interface{} `json:"payload"`
	Timestamp  time.Time   `json:"timestamp"`
}

// ReportCreated is the payload of report.created. Reporter identity is not
// included.
type ReportCreated struct {
	Category models.Category `json:"category"`
	Severity models.Severity `json:"severity"`
	Status   models.Status   `json:"status"`
	Located  bool            `json:"located"`
}

// StatusUpdated is the payload of report.status.updated.
type StatusUpdated struct {
	From      models.Status `json:"from"`
	To        models.Status `json:"to"`
	ChangedBy string        `json:"changed_by"`
}

// NewEvent stamps a fresh event.
func NewEvent(eventType, trackingID string, payload interface{}) Event {
	return Event{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		TrackingID: trackingID,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(ctx context.Context, event Event) error { return nil }

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	client streamAdder
	closer func() error
	stream string
	logger *slog.Logger
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// NewRedisPublisher connects and pings Redis.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	p := newRedisPublisher(client, cfg.Stream, logger)
	p.closer = client.Close
	return p, nil
}

func newRedisPublisher(client streamAdder, stream string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, stream: stream, logger: logger}
}

// Publish appends the event to the stream.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event_id":    event.EventID,
			"event_type":  event.EventType,
			"tracking_id": event.TrackingID,
			"payload":     string(eventJSON),
			"timestamp":   event.Timestamp.Format(time.RFC3339),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published event", "event_type", event.EventType, "tracking_id", event.TrackingID)
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
