// Package generator produces answer text from a prompt through an
// OpenAI-compatible chat completions endpoint.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/dshills/pdfquery-mcp/internal/resilience"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// Defaults for answer generation
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.1
	DefaultTimeout     = 60 * time.Second
	DefaultBaseURL     = "https://api.openai.com/v1"
)

// Generator turns a system instruction and a user prompt into answer text
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Config configures the OpenAI generator
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration // Bound on a whole Generate call

	// RequestsPerSecond limits outgoing calls; zero disables the limiter
	RequestsPerSecond float64
	Burst             int

	Resilience resilience.Config
}

// OpenAIGenerator calls the chat completions API
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
	exec        *resilience.Executor
	logger      *slog.Logger
}

// NewOpenAIGenerator creates a generator. The API key is required.
func NewOpenAIGenerator(cfg Config, logger *slog.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfiguration, "generator.new", "OPENAI_API_KEY is required for answer generation")
	}
	if logger == nil {
		logger = slog.Default()
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL+"/"),
		option.WithMaxRetries(0), // retries belong to the resilience executor
	)

	return &OpenAIGenerator{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		limiter:     limiter,
		exec:        resilience.NewExecutor(cfg.Resilience, logger),
		logger:      logger,
	}, nil
}

// Model returns the chat model name
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// Generate returns the trimmed answer text. A call that exceeds the
// configured timeout fails with types.ErrGenerationTimeout.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	var answer string

	err := g.exec.Execute(ctx, "generate", func(ctx context.Context) error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				// Wait fails early when the deadline cannot be met
				if errors.Is(ctx.Err(), context.Canceled) {
					return ctx.Err()
				}
				return types.WrapError(types.ErrGenerationTimeout, "generator.rate_limit", err)
			}
		}

		resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			Model:       openai.ChatModel(g.model),
			Temperature: openai.Float(g.temperature),
		})
		if err != nil {
			return g.mapError(ctx, err)
		}
		if len(resp.Choices) == 0 {
			return types.NewError(types.ErrExternalService, "generator.generate", "response has no choices")
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}, resilience.ClassifyByKind)

	if err != nil {
		// The deadline can also expire between attempts or during backoff
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, types.ErrGenerationTimeout) {
			err = types.WrapError(types.ErrGenerationTimeout, "generator.generate",
				fmt.Errorf("no answer within %s: %w", g.timeout, err))
		}
		if resilience.IsCircuitOpen(err) {
			err = types.WrapError(types.ErrExternalService, "generator.generate", err)
		}
		g.logger.Warn("generation_failed", "model", g.model, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return "", err
	}

	g.logger.Debug("generation_completed", "model", g.model, "duration_ms", time.Since(start).Milliseconds(), "chars", len(answer))
	return answer, nil
}

// mapError translates client failures into the error taxonomy
func (g *OpenAIGenerator) mapError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.WrapError(types.ErrGenerationTimeout, "generator.generate",
			fmt.Errorf("no answer within %s: %w", g.timeout, err))
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return types.WrapError(types.ErrConfiguration, "generator.generate", err)
		case http.StatusBadRequest:
			return types.WrapError(types.ErrInvalidInput, "generator.generate", err)
		}
	}
	return types.WrapError(types.ErrExternalService, "generator.generate", err)
}
