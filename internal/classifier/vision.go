package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/disasterwatch/disasterwatch/internal/inference"
	"github.com/disasterwatch/disasterwatch/internal/media"
	"github.com/disasterwatch/disasterwatch/internal/models"
)

// Request is a single prompt plus image sent to a vision model.
type Request struct {
	Operation string // recorded in the inference log
	Prompt    string
	Image     *models.Image
}

// VisionModel answers a prompt about an image with free text.
type VisionModel interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrNotConfigured is returned by Unconfigured.
var ErrNotConfigured = errors.New("vision model not configured")

// Unconfigured is the VisionModel used when no API key is set.
type Unconfigured struct{}

func (Unconfigured) Complete(ctx context.Context, req Request) (string, error) {
	return "", ErrNotConfigured
}

// OpenAIConfig holds configuration for the OpenAI vision model.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // empty for the public API
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// OpenAIVision sends prompts to an OpenAI chat completion model with the
// image attached inline as a data URI.
type OpenAIVision struct {
	client          *openai.Client
	config          OpenAIConfig
	inferenceLogger *inference.Logger
	logger          *slog.Logger
}

// NewOpenAIVision creates a vision model client.
func NewOpenAIVision(cfg OpenAIConfig, inferenceLogger *inference.Logger, logger *slog.Logger) *OpenAIVision {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAIVision{
		client:          openai.NewClientWithConfig(clientConfig),
		config:          cfg,
		inferenceLogger: inferenceLogger,
		logger:          logger,
	}
}

// Complete issues one chat completion. No retries: the caller decides.
func (v *OpenAIVision) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     v.config.Model,
		MaxTokens: v.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    media.DataURI(req.Image),
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	latency := time.Since(start)

	v.inferenceLogger.LogOpenAICall(ctx, v.config.Model, req.Operation, resp.Usage, latency, err)

	if err != nil {
		v.logger.Warn("vision model call failed",
			"operation", req.Operation,
			"model", v.config.Model,
			"duration_ms", latency.Milliseconds(),
			"error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	v.logger.Debug("vision model call",
		"operation", req.Operation,
		"model", v.config.Model,
		"tokens", resp.Usage.TotalTokens,
		"duration_ms", latency.Milliseconds())

	return resp.Choices[0].Message.Content, nil
}
