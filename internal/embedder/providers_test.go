package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiItem struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// embeddingServer returns vectors in reverse order to exercise index sorting
func embeddingServer(t *testing.T, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]apiItem, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dim)
			vec[0] = float64(i + 1)
			data = append(data, apiItem{Object: "embedding", Index: i, Embedding: vec})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func statusServer(status int, calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"error":{"message":"status %d","type":"test"}}`, status)
	}))
}

func fastRetry(cfg Config) Config {
	cfg.MaxRetries = 3
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestJinaProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("batch is ordered by index", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, JinaDimension, &calls)
		defer server.Close()

		provider, err := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL}, NewCache(10))
		require.NoError(t, err)

		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)
		for i, emb := range resp.Embeddings {
			assert.Equal(t, float32(i+1), emb.Vector[0])
			assert.Equal(t, ProviderJina, emb.Provider)
		}
		assert.Equal(t, DefaultJinaModel, resp.Model)
	})

	t.Run("cache avoids repeat calls", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, JinaDimension, &calls)
		defer server.Close()

		provider, err := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL}, NewCache(10))
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "same"})
		require.NoError(t, err)
		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "same"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("dimension mismatch is permanent", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 8, &calls)
		defer server.Close()

		provider, err := NewJinaProvider(fastRetry(Config{APIKey: "test-key", BaseURL: server.URL}), nil)
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := statusServer(http.StatusUnauthorized, &calls)
		defer server.Close()

		provider, err := NewJinaProvider(fastRetry(Config{APIKey: "test-key", BaseURL: server.URL}), nil)
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server error is retried", func(t *testing.T) {
		var calls atomic.Int32
		server := statusServer(http.StatusServiceUnavailable, &calls)
		defer server.Close()

		provider, err := NewJinaProvider(fastRetry(Config{APIKey: "test-key", BaseURL: server.URL}), nil)
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewJinaProvider(Config{}, nil)
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("batch too large", func(t *testing.T) {
		provider, err := NewJinaProvider(Config{APIKey: "k"}, nil)
		require.NoError(t, err)
		texts := make([]string, MaxBatchSize+1)
		for i := range texts {
			texts[i] = "t"
		}
		_, err = provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})
}

func TestOpenAIProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("batch is ordered by index", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, OpenAIDimension, &calls)
		defer server.Close()

		provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL}, nil)
		require.NoError(t, err)
		assert.Equal(t, OpenAIDimension, provider.Dimension())

		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "b"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)
		assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0])
		assert.Equal(t, float32(2), resp.Embeddings[1].Vector[0])
		assert.Equal(t, ProviderOpenAI, resp.Provider)
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := statusServer(http.StatusBadRequest, &calls)
		defer server.Close()

		provider, err := NewOpenAIProvider(fastRetry(Config{APIKey: "test-key", BaseURL: server.URL}), nil)
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrProviderFailed))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("unknown model needs a dimension", func(t *testing.T) {
		_, err := NewOpenAIProvider(Config{APIKey: "k", Model: "custom-model"}, nil)
		assert.ErrorIs(t, err, ErrUnsupportedModel)

		provider, err := NewOpenAIProvider(Config{APIKey: "k", Model: "custom-model", Dimension: 768}, nil)
		require.NoError(t, err)
		assert.Equal(t, 768, provider.Dimension())
	})
}

func TestRetryWithBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		got, err := retryWithBackoff(context.Background(), cfg, func() (int, error) {
			attempts++
			if attempts < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("permanent stops immediately", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(context.Background(), cfg, func() (int, error) {
			attempts++
			return 0, permanent(errors.New("bad request"))
		})
		assert.True(t, IsPermanent(err))
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := retryWithBackoff(ctx, cfg, func() (int, error) {
			return 0, errors.New("transient")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsPermanentStatus(t *testing.T) {
	assert.True(t, isPermanentStatus(http.StatusBadRequest))
	assert.True(t, isPermanentStatus(http.StatusUnauthorized))
	assert.False(t, isPermanentStatus(http.StatusTooManyRequests))
	assert.False(t, isPermanentStatus(http.StatusRequestTimeout))
	assert.False(t, isPermanentStatus(http.StatusInternalServerError))
}
