package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pdfquery-mcp/internal/resilience"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func newTestGenerator(t *testing.T, url string, cfg Config) *OpenAIGenerator {
	t.Helper()
	cfg.APIKey = "test-key"
	cfg.BaseURL = url
	g, err := NewOpenAIGenerator(cfg, nil)
	require.NoError(t, err)
	return g
}

func TestGenerate(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion("  Hold the button for ten seconds.\n"))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, Config{Temperature: DefaultTemperature})
	answer, err := g.Generate(context.Background(), "system text", "user text")
	require.NoError(t, err)
	assert.Equal(t, "Hold the button for ten seconds.", answer)

	assert.Equal(t, DefaultModel, got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "system text", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "user text", got.Messages[1].Content)
}

func TestGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	g := newTestGenerator(t, server.URL, Config{Timeout: 50 * time.Millisecond})
	_, err := g.Generate(context.Background(), "s", "u")
	assert.ErrorIs(t, err, types.ErrGenerationTimeout)
	assert.True(t, types.IsRetryable(err))
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, types.ErrConfiguration},
		{"bad request", http.StatusBadRequest, types.ErrInvalidInput},
		{"server error", http.StatusInternalServerError, types.ErrExternalService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test"}}`))
			}))
			defer server.Close()

			g := newTestGenerator(t, server.URL, Config{})
			_, err := g.Generate(context.Background(), "s", "u")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(completion("ok"))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, Config{Resilience: resilience.Config{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}})
	answer, err := g.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerate_DeadlineDuringBackoffIsTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, Config{
		Timeout: 100 * time.Millisecond,
		Resilience: resilience.Config{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     time.Second,
		},
	})

	start := time.Now()
	_, err := g.Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrGenerationTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_CanceledIsNotTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	g := newTestGenerator(t, server.URL, Config{Timeout: 5 * time.Second})
	_, err := g.Generate(ctx, "s", "u")
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrGenerationTimeout)
}

func TestGenerate_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := completion("")
		resp["choices"] = []any{}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, Config{})
	_, err := g.Generate(context.Background(), "s", "u")
	assert.ErrorIs(t, err, types.ErrExternalService)
}

func TestNewOpenAIGenerator_RequiresKey(t *testing.T) {
	_, err := NewOpenAIGenerator(Config{}, nil)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestGenerate_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion("ok"))
	}))
	defer server.Close()

	// One token per minute: the second call cannot get a token before its deadline
	g := newTestGenerator(t, server.URL, Config{RequestsPerSecond: 1.0 / 60, Burst: 1, Timeout: 50 * time.Millisecond})
	_, err := g.Generate(context.Background(), "s", "u")
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "s", "u")
	assert.ErrorIs(t, err, types.ErrGenerationTimeout)
}
