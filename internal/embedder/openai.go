package embedder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Embedder using the OpenAI embeddings API or any
// compatible endpoint
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	// reduced is set when the dimension differs from the model's native size
	reduced bool
	cache   *Cache
	retry   RetryConfig
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(cfg Config, cache *Cache) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	native, known := openAIModelDimensions[model]
	dimension := cfg.Dimension
	if dimension <= 0 {
		if !known {
			return nil, fmt.Errorf("%w: dimension of %s is unknown, set it explicitly", ErrUnsupportedModel, model)
		}
		dimension = native
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL+"/"),
		option.WithMaxRetries(0), // retries are handled by retryWithBackoff
		option.WithRequestTimeout(defaultHTTPTimeout),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		dimension: dimension,
		reduced:   known && dimension != native,
		cache:     cache,
		retry:     cfg.retryConfig(),
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	embeddings, err := generateCached(ctx, o.cache, model, req.Texts, func(ctx context.Context, texts []string) ([]*Embedding, error) {
		embs, err := retryWithBackoff(ctx, o.retry, func() ([]*Embedding, error) {
			return o.callAPI(ctx, texts, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		return embs, nil
	})
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      model,
	}, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if o.reduced {
		params.Dimensions = openai.Int(int64(o.dimension))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && isPermanentStatus(apiErr.StatusCode) {
			return nil, permanent(err)
		}
		return nil, err
	}

	data := resp.Data
	sort.Slice(data, func(a, b int) bool { return data[a].Index < data[b].Index })

	embeddings := make([]*Embedding, len(data))
	for i, item := range data {
		if len(item.Embedding) != o.dimension {
			return nil, permanent(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(item.Embedding), o.dimension))
		}
		embeddings[i] = &Embedding{
			Vector:    Float64To32(item.Embedding),
			Dimension: len(item.Embedding),
			Provider:  ProviderOpenAI,
			Model:     model,
		}
	}
	return embeddings, nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
