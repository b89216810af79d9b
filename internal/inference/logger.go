package inference

import (
	"context"
	"log/slog"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

// Store persists inference log entries.
type Store interface {
	Create(ctx context.Context, log models.InferenceLog) error
}

// Logger records external model and geocoder calls. A nil *Logger is valid
// and records nothing.
type Logger struct {
	store  Store
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewLogger creates a new inference logger
func NewLogger(store Store, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		store:  store,
		logger: logger,
	}
}

// CallParams describes one external call.
type CallParams struct {
	Provider     string
	Model        string
	Operation    string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
	Err          error
}

// LogCall records the call without blocking the caller.
func (l *Logger) LogCall(ctx context.Context, params CallParams) {
	if l == nil || l.store == nil {
		return
	}

	entry := models.InferenceLog{
		Provider:   params.Provider,
		Model:      params.Model,
		Operation:  params.Operation,
		TokensUsed: params.InputTokens + params.OutputTokens,
		LatencyMs:  int(params.Latency.Milliseconds()),
		Status:     models.InferenceStatusSuccess,
	}
	if params.InputTokens > 0 || params.OutputTokens > 0 {
		in, out := params.InputTokens, params.OutputTokens
		entry.InputTokens = &in
		entry.OutputTokens = &out
	}
	if params.Provider == "openai" {
		cost := estimateOpenAICost(params.Model, params.InputTokens, params.OutputTokens)
		entry.CostUSD = &cost
	}
	if params.Err != nil {
		entry.Status = models.InferenceStatusError
		msg := params.Err.Error()
		entry.ErrorMessage = &msg
	}

	// Detach from the request so a finished response does not cancel the write.
	bgCtx := context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		writeCtx, cancel := context.WithTimeout(bgCtx, 5*time.Second)
		defer cancel()
		if err := l.store.Create(writeCtx, entry); err != nil {
			l.logger.Error("failed to log inference call", "operation", entry.Operation, "error", err)
		}
	}()
}

// LogOpenAICall is a helper for OpenAI chat completion calls.
func (l *Logger) LogOpenAICall(ctx context.Context, model, operation string, usage openai.Usage, latency time.Duration, err error) {
	l.LogCall(ctx, CallParams{
		Provider:     "openai",
		Model:        model,
		Operation:    operation,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		Latency:      latency,
		Err:          err,
	})
}

// Wait blocks until pending writes have finished. Called on shutdown.
func (l *Logger) Wait() {
	if l == nil {
		return
	}
	l.wg.Wait()
}

// estimateOpenAICost provides rough cost estimates (update with actual pricing)
func estimateOpenAICost(model string, inputTokens, outputTokens int) float64 {
	// Per 1M tokens
	var inputCostPer1M, outputCostPer1M float64

	switch model {
	case "gpt-4o":
		inputCostPer1M = 2.50
		outputCostPer1M = 10.00
	case "gpt-4o-mini":
		inputCostPer1M = 0.15
		outputCostPer1M = 0.60
	case "gpt-4-turbo", "gpt-4-turbo-preview":
		inputCostPer1M = 10.00
		outputCostPer1M = 30.00
	default:
		inputCostPer1M = 5.00
		outputCostPer1M = 15.00
	}

	inputCost := (float64(inputTokens) / 1_000_000) * inputCostPer1M
	outputCost := (float64(outputTokens) / 1_000_000) * outputCostPer1M

	return inputCost + outputCost
}
