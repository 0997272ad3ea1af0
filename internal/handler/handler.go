// Package handler turns retrieval results into the two response shapes of the
// server: a generated answer with citations, or the raw ranked chunks.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/pdfquery-mcp/internal/confidence"
	"github.com/dshills/pdfquery-mcp/internal/generator"
	"github.com/dshills/pdfquery-mcp/internal/metrics"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// Defaults for Options
const (
	DefaultLimit         = 5
	DefaultMaxLimit      = 20
	DefaultPreviewLength = 200
)

// Query modes reported to metrics
const (
	ModeQuery     = "query"
	ModeRetrieval = "retrieval"
)

// Retriever returns ranked chunks for a query
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) (*types.RetrievalResult, error)
}

// Options bounds caller-supplied limits and shapes previews
type Options struct {
	DefaultLimit  int
	MaxLimit      int
	PreviewLength int
}

// DefaultOptions returns the standard limits
func DefaultOptions() Options {
	return Options{
		DefaultLimit:  DefaultLimit,
		MaxLimit:      DefaultMaxLimit,
		PreviewLength: DefaultPreviewLength,
	}
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = DefaultMaxLimit
	}
	if o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = o.MaxLimit
	}
	if o.PreviewLength <= 0 {
		o.PreviewLength = DefaultPreviewLength
	}
	return o
}

// validate trims the query and resolves the chunk limit. It runs before any
// index is touched.
func (o Options) validate(query string, maxChunks *int) (string, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", 0, types.NewError(types.ErrEmptyQuery, "handler.validate", "question must not be blank")
	}

	limit := o.DefaultLimit
	if maxChunks != nil {
		limit = *maxChunks
	}
	if limit < 1 || limit > o.MaxLimit {
		return "", 0, types.NewError(types.ErrInvalidInput, "handler.validate",
			fmt.Sprintf("max_chunks must be between 1 and %d, got %d", o.MaxLimit, limit))
	}
	return query, limit, nil
}

// RetrievalHandler returns ranked chunks without generating an answer
type RetrievalHandler struct {
	retriever Retriever
	options   Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewRetrievalHandler creates a retrieval-only handler. m may be nil.
func NewRetrievalHandler(retriever Retriever, options Options, m *metrics.Metrics, logger *slog.Logger) *RetrievalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalHandler{
		retriever: retriever,
		options:   options.withDefaults(),
		metrics:   m,
		logger:    logger,
	}
}

// Validate checks the input without touching any index, so callers can reject
// it before triggering a build
func (h *RetrievalHandler) Validate(query string, maxChunks *int) error {
	_, _, err := h.options.validate(query, maxChunks)
	return err
}

// Handle retrieves at most maxChunks chunks (the default limit when nil)
func (h *RetrievalHandler) Handle(ctx context.Context, query string, maxChunks *int) (*types.RetrievalResponse, error) {
	start := time.Now()

	query, limit, err := h.options.validate(query, maxChunks)
	if err != nil {
		return nil, err
	}

	result, err := h.retriever.Retrieve(ctx, query, limit)
	if err != nil {
		h.metrics.RecordQuery(ModeRetrieval, ErrorCode(err), 0, time.Since(start))
		return nil, err
	}

	chunks := make([]types.ChunkJSON, 0, len(result.Chunks))
	for _, c := range result.Chunks {
		chunks = append(chunks, chunkJSON(c))
	}

	h.metrics.RecordQuery(ModeRetrieval, string(result.Outcome), len(chunks), time.Since(start))
	h.logger.Debug("retrieval_handled",
		"outcome", result.Outcome,
		"chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds())

	return &types.RetrievalResponse{
		Query:       query,
		Chunks:      chunks,
		TotalChunks: len(chunks),
	}, nil
}

func chunkJSON(c types.ScoredChunk) types.ChunkJSON {
	metadata := map[string]any{
		"heading_path": c.HeadingPath(),
		"content_hash": c.HashHex(),
		"score":        c.Score,
		"rank":         c.Rank,
	}
	if c.Header1 != "" {
		metadata["header_1"] = c.Header1
	}
	if c.Header2 != "" {
		metadata["header_2"] = c.Header2
	}
	if c.LexicalRank > 0 {
		metadata["lexical_rank"] = c.LexicalRank
	}
	if c.SemanticRank > 0 {
		metadata["semantic_rank"] = c.SemanticRank
	}

	return types.ChunkJSON{
		Content:      c.Content,
		DocumentName: c.SourceDocument,
		PageNumber:   c.PageNumber,
		Metadata:     metadata,
	}
}

// QueryHandler answers a question from retrieved context
type QueryHandler struct {
	retriever Retriever
	generator generator.Generator
	scorer    *confidence.Scorer
	options   Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewQueryHandler creates a question-answering handler. gen may be nil, in
// which case every non-empty retrieval fails with a configuration error.
func NewQueryHandler(retriever Retriever, gen generator.Generator, scorer *confidence.Scorer, options Options, m *metrics.Metrics, logger *slog.Logger) *QueryHandler {
	if scorer == nil {
		scorer = confidence.NewScorer(confidence.DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHandler{
		retriever: retriever,
		generator: gen,
		scorer:    scorer,
		options:   options.withDefaults(),
		metrics:   m,
		logger:    logger,
	}
}

// Validate checks the input without touching any index
func (h *QueryHandler) Validate(question string, maxChunks *int) error {
	_, _, err := h.options.validate(question, maxChunks)
	return err
}

// Answer retrieves context for question and generates a cited answer. An
// empty retrieval yields NoMatchAnswer with zero confidence and no sources.
func (h *QueryHandler) Answer(ctx context.Context, question string, maxChunks *int) (*types.Answer, error) {
	start := time.Now()

	question, limit, err := h.options.validate(question, maxChunks)
	if err != nil {
		return nil, err
	}

	answer, chunks, err := h.answer(ctx, question, limit)
	if err != nil {
		h.metrics.RecordQuery(ModeQuery, ErrorCode(err), 0, time.Since(start))
		h.logger.Warn("query_failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	outcome := string(types.OutcomeResults)
	if chunks == 0 {
		outcome = string(types.OutcomeEmpty)
	} else {
		h.metrics.RecordConfidence(answer.Confidence)
	}
	h.metrics.RecordQuery(ModeQuery, outcome, chunks, time.Since(start))
	h.logger.Info("query_answered",
		"chunks", chunks,
		"sources", len(answer.Sources),
		"confidence", answer.Confidence,
		"duration_ms", time.Since(start).Milliseconds())

	return answer, nil
}

func (h *QueryHandler) answer(ctx context.Context, question string, limit int) (*types.Answer, int, error) {
	result, err := h.retriever.Retrieve(ctx, question, limit)
	if err != nil {
		return nil, 0, err
	}
	if result.Empty() {
		return &types.Answer{
			Text:       NoMatchAnswer,
			Sources:    []types.Source{},
			Confidence: 0.0,
		}, 0, nil
	}

	if h.generator == nil {
		return nil, 0, types.NewError(types.ErrConfiguration, "handler.query", "answer generation is not configured")
	}

	prompt := UserPrompt(BuildContext(result.Chunks), question)
	text, err := h.generator.Generate(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, 0, err
	}
	text = strings.TrimSpace(text)

	return &types.Answer{
		Text:       text,
		Sources:    BuildSources(result.Chunks, h.options.PreviewLength),
		Confidence: h.scorer.Score(text, len(result.Chunks)),
	}, len(result.Chunks), nil
}

// Handle is Answer in the wire shape
func (h *QueryHandler) Handle(ctx context.Context, question string, maxChunks *int) (*types.QueryResponse, error) {
	answer, err := h.Answer(ctx, question, maxChunks)
	if err != nil {
		return nil, err
	}

	sources := make([]types.SourceJSON, len(answer.Sources))
	for i, s := range answer.Sources {
		sources[i] = types.SourceJSON{
			DocumentName: s.DocumentName,
			PageNumber:   s.PageNumber,
			ChunkText:    s.ChunkPreview,
		}
	}

	score := answer.Confidence
	return &types.QueryResponse{
		Answer:          answer.Text,
		Sources:         sources,
		ConfidenceScore: &score,
	}, nil
}
