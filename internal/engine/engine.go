package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/pdfquery-mcp/internal/embedder"
	"github.com/dshills/pdfquery-mcp/internal/indexer"
	"github.com/dshills/pdfquery-mcp/internal/metrics"
	"github.com/dshills/pdfquery-mcp/internal/storage"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// State is the lifecycle state of the engine
type State int32

const (
	StateUninitialized State = iota
	StateBuilding
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CorpusBuilder rebuilds the stored corpus
type CorpusBuilder interface {
	Build(ctx context.Context, config *indexer.Config, progress indexer.ProgressFunc) (*indexer.Statistics, error)
}

// Retriever answers ranked retrieval requests over the current corpus
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) (*types.RetrievalResult, error)
	SetBuildID(buildID string)
}

// Options wires an Engine
type Options struct {
	Storage   storage.Storage
	Builder   CorpusBuilder
	Retriever Retriever
	// Embedder is compared against the stored corpus before it is reused
	Embedder embedder.Embedder

	BuildConfig indexer.Config
	// ReuseExisting serves a persisted corpus instead of rebuilding at startup
	ReuseExisting bool

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Engine is the single owner of the corpus and its retriever
type Engine struct {
	storage   storage.Storage
	builder   CorpusBuilder
	retriever Retriever
	embedder  embedder.Embedder
	config    indexer.Config
	reuse     bool
	metrics   *metrics.Metrics
	logger    *slog.Logger

	state atomic.Int32
	// initMu serializes EnsureReady so concurrent callers share one build
	initMu sync.Mutex
	// queryMu is held for reading by queries and for writing by rebuilds
	queryMu sync.RWMutex
	lock    indexer.BuildLock

	mu        sync.Mutex
	lastStats *indexer.Statistics
	lastErr   error
}

// New creates an engine in the Uninitialized state. Nothing is built until
// EnsureReady or Rebuild is called.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Storage == nil:
		return nil, types.NewError(types.ErrConfiguration, "engine.new", "storage is required")
	case opts.Builder == nil:
		return nil, types.NewError(types.ErrConfiguration, "engine.new", "builder is required")
	case opts.Retriever == nil:
		return nil, types.NewError(types.ErrConfiguration, "engine.new", "retriever is required")
	case opts.Embedder == nil:
		return nil, types.NewError(types.ErrConfiguration, "engine.new", "embedder is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		storage:   opts.Storage,
		builder:   opts.Builder,
		retriever: opts.Retriever,
		embedder:  opts.Embedder,
		config:    opts.BuildConfig,
		reuse:     opts.ReuseExisting,
		metrics:   opts.Metrics,
		logger:    logger,
	}, nil
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	return State(e.state.Load())
}

// EnsureReady builds the corpus unless the engine is already Ready. It is
// safe to call concurrently: one caller builds while the others wait and then
// observe the result. A Failed engine retries the build.
func (e *Engine) EnsureReady(ctx context.Context) error {
	if e.State() == StateReady {
		return nil
	}

	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.State() == StateReady {
		return nil
	}
	// Holding the build lock keeps an explicit Rebuild from racing the lazy build
	if !e.lock.TryAcquire() {
		return types.NewError(types.ErrRetrieverNotReady, "engine.ensure_ready", "corpus build in progress")
	}
	defer e.lock.Release()

	if e.reuse {
		reused, err := e.reuseExisting(ctx)
		if err != nil {
			e.setFailed(err)
			return err
		}
		if reused {
			return nil
		}
	}

	_, err := e.build(ctx, nil)
	return err
}

// Rebuild replaces the corpus. A rebuild requested while another is running
// fails with ErrBuildInProgress. When the build fails the previous corpus is
// still stored, so an engine that was Ready before goes back to Ready.
func (e *Engine) Rebuild(ctx context.Context, progress indexer.ProgressFunc) (*indexer.Statistics, error) {
	if !e.lock.TryAcquire() {
		return nil, types.NewError(types.ErrBuildInProgress, "engine.rebuild", "another build is running")
	}
	defer e.lock.Release()

	return e.build(ctx, progress)
}

// build runs the builder. The caller holds the build lock.
func (e *Engine) build(ctx context.Context, progress indexer.ProgressFunc) (*indexer.Statistics, error) {
	previous := State(e.state.Swap(int32(StateBuilding)))

	// Wait for in-flight queries to drain
	e.queryMu.Lock()
	defer e.queryMu.Unlock()

	start := time.Now()
	config := e.config
	stats, err := e.builder.Build(ctx, &config, progress)
	if err != nil {
		e.metrics.RecordBuild("failed", time.Since(start))
		if previous == StateReady {
			e.state.Store(int32(StateReady))
			e.recordError(err)
			e.logger.Warn("rebuild_failed_previous_corpus_kept", "error", err)
		} else {
			e.setFailed(err)
			e.logger.Error("corpus_build_failed", "error", err)
		}
		return stats, err
	}

	e.retriever.SetBuildID(stats.BuildID)
	e.metrics.RecordBuild("success", time.Since(start))
	e.metrics.SetCorpusSize(stats.DocumentsIndexed, stats.ChunksStored)

	e.mu.Lock()
	e.lastStats = stats
	e.lastErr = nil
	e.mu.Unlock()

	e.state.Store(int32(StateReady))
	e.logger.Info("engine_ready",
		"build_id", stats.BuildID,
		"documents", stats.DocumentsIndexed,
		"chunks", stats.ChunksStored,
		"duration_ms", stats.Duration.Milliseconds())
	return stats, nil
}

// reuseExisting moves to Ready over the persisted corpus when it was built
// with the configured embedder. It reports false when there is nothing to reuse.
func (e *Engine) reuseExisting(ctx context.Context) (bool, error) {
	corpus, err := e.storage.GetCorpus(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read corpus: %w", err)
	}
	if corpus.ChunkCount == 0 {
		return false, nil
	}
	if err := CheckCompatible(corpus, e.embedder); err != nil {
		return false, err
	}

	e.retriever.SetBuildID(corpus.BuildID)
	e.metrics.SetCorpusSize(corpus.DocumentCount, corpus.ChunkCount)
	e.state.Store(int32(StateReady))
	e.logger.Info("corpus_reused",
		"build_id", corpus.BuildID,
		"chunks", corpus.ChunkCount,
		"built_at", corpus.BuiltAt)
	return true, nil
}

// CheckCompatible reports a configuration error when the corpus was embedded
// with a different provider, model or dimension than emb
func CheckCompatible(corpus *storage.Corpus, emb embedder.Embedder) error {
	if corpus.EmbeddingProvider == emb.Provider() &&
		corpus.EmbeddingModel == emb.Model() &&
		corpus.EmbeddingDimension == emb.Dimension() {
		return nil
	}
	return types.NewError(types.ErrConfiguration, "engine.check_corpus", fmt.Sprintf(
		"corpus was embedded with %s/%s (%d dims) but the embedder is %s/%s (%d dims); rebuild the index",
		corpus.EmbeddingProvider, corpus.EmbeddingModel, corpus.EmbeddingDimension,
		emb.Provider(), emb.Model(), emb.Dimension()))
}

// Retrieve runs a hybrid retrieval. It never triggers a build.
func (e *Engine) Retrieve(ctx context.Context, query string, limit int) (*types.RetrievalResult, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	// A rebuild holds the write lock for the whole build; fail instead of queuing
	if !e.queryMu.TryRLock() {
		return nil, types.NewError(types.ErrRetrieverNotReady, "engine.retrieve", "corpus build in progress")
	}
	defer e.queryMu.RUnlock()

	if err := e.checkReady(); err != nil {
		return nil, err
	}
	return e.retriever.Retrieve(ctx, query, limit)
}

func (e *Engine) checkReady() error {
	if state := e.State(); state != StateReady {
		return types.NewError(types.ErrRetrieverNotReady, "engine.retrieve",
			fmt.Sprintf("engine is %s", state))
	}
	return nil
}

// Metrics returns the collector the engine reports to, possibly nil
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

func (e *Engine) setFailed(err error) {
	e.state.Store(int32(StateFailed))
	e.recordError(err)
}

func (e *Engine) recordError(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}
