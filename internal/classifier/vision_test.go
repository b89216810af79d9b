package classifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disasterwatch/disasterwatch/internal/inference"
	"github.com/disasterwatch/disasterwatch/internal/models"
)

type memoryInferenceStore struct {
	mu   sync.Mutex
	logs []models.InferenceLog
}

func (s *memoryInferenceStore) Create(ctx context.Context, log models.InferenceLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

func TestOpenAIVisionSendsImageInline(t *testing.T) {
	var (
		gotPath  string
		gotAuth  string
		gotModel string
		gotParts []map[string]any
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []map[string]any `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = body.Model
		if len(body.Messages) > 0 {
			gotParts = body.Messages[0].Content
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "YES"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 800, "completion_tokens": 1, "total_tokens": 801}
		}`)
	}))
	defer srv.Close()

	store := &memoryInferenceStore{}
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	inferenceLogger := inference.NewLogger(store, discard)

	vision := NewOpenAIVision(OpenAIConfig{
		APIKey:    "sk-test",
		BaseURL:   srv.URL + "/v1",
		Model:     "gpt-4o",
		MaxTokens: 10,
		Timeout:   5 * time.Second,
	}, inferenceLogger, discard)

	answer, err := vision.Complete(context.Background(), Request{
		Operation: models.OperationImageGate,
		Prompt:    "Is this a disaster?",
		Image:     testImage(t),
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	inferenceLogger.Wait()

	if answer != "YES" {
		t.Errorf("answer = %q", answer)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotModel != "gpt-4o" {
		t.Errorf("model = %q", gotModel)
	}
	if len(gotParts) != 2 {
		t.Fatalf("expected text and image parts, got %v", gotParts)
	}
	if gotParts[0]["type"] != "text" || gotParts[0]["text"] != "Is this a disaster?" {
		t.Errorf("unexpected text part %v", gotParts[0])
	}
	imagePart, _ := gotParts[1]["image_url"].(map[string]any)
	url, _ := imagePart["url"].(string)
	if gotParts[1]["type"] != "image_url" || !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("unexpected image part %v", gotParts[1])
	}

	if len(store.logs) != 1 {
		t.Fatalf("expected one inference log, got %d", len(store.logs))
	}
	if store.logs[0].Operation != models.OperationImageGate || store.logs[0].TokensUsed != 801 {
		t.Errorf("unexpected inference log %+v", store.logs[0])
	}
}

func TestOpenAIVisionReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error": {"message": "overloaded", "type": "server_error"}}`)
	}))
	defer srv.Close()

	vision := NewOpenAIVision(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil, nil)
	c := New(vision, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	_, err := c.Classify(context.Background(), testImage(t))
	if !models.IsUpstream(err) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}
