package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dshills/pdfquery-mcp/internal/confidence"
	"github.com/dshills/pdfquery-mcp/internal/config"
	"github.com/dshills/pdfquery-mcp/internal/converter"
	"github.com/dshills/pdfquery-mcp/internal/embedder"
	"github.com/dshills/pdfquery-mcp/internal/engine"
	"github.com/dshills/pdfquery-mcp/internal/generator"
	"github.com/dshills/pdfquery-mcp/internal/handler"
	"github.com/dshills/pdfquery-mcp/internal/indexer"
	"github.com/dshills/pdfquery-mcp/internal/metrics"
	"github.com/dshills/pdfquery-mcp/internal/searcher"
	"github.com/dshills/pdfquery-mcp/internal/storage"
)

// app holds the wired components of one command invocation
type app struct {
	cfg       *config.Config
	store     *storage.SQLiteStorage
	embedder  embedder.Embedder
	convCache *converter.CachedConverter
	engine    *engine.Engine
	metrics   *metrics.Metrics
	query     *handler.QueryHandler // Nil when generation is disabled
	retrieval *handler.RetrievalHandler
}

// newApp validates cfg and wires storage, embedder, converter, engine and
// handlers. Generation is wired only when withGeneration is set and the
// configuration enables it.
func newApp(cfg *config.Config, logger *slog.Logger, withGeneration bool) (a *app, err error) {
	if !withGeneration {
		cfg.Generation.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Index.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	a = &app{cfg: cfg, metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.store, err = storage.NewSQLiteStorage(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// One embedder instance serves both the build and the queries
	a.embedder, err = embedder.New(cfg.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	pdf, err := a.pdfConverter(logger)
	if err != nil {
		return nil, err
	}

	builder := indexer.New(converter.DefaultRouter(pdf), a.embedder, a.store, logger)
	retriever, err := searcher.NewHybridRetriever(
		searcher.NewLexicalIndex(a.store),
		searcher.NewSemanticIndex(a.store, a.embedder),
		a.store,
		cfg.SearcherConfig(),
	)
	if err != nil {
		return nil, err
	}

	a.engine, err = engine.New(engine.Options{
		Storage:       a.store,
		Builder:       builder,
		Retriever:     retriever,
		Embedder:      a.embedder,
		BuildConfig:   cfg.BuildConfig(),
		ReuseExisting: cfg.Index.ReuseExisting,
		Metrics:       a.metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	opts := cfg.HandlerOptions()
	a.retrieval = handler.NewRetrievalHandler(a.engine, opts, a.metrics, logger)

	if cfg.Generation.Enabled {
		gen, err := generator.NewOpenAIGenerator(cfg.GeneratorConfig(), logger)
		if err != nil {
			return nil, err
		}
		scorer := confidence.NewScorer(cfg.Confidence)
		a.query = handler.NewQueryHandler(a.engine, gen, scorer, opts, a.metrics, logger)
	}

	return a, nil
}

// pdfConverter picks the document service or the built-in text extractor and
// wraps it in the on-disk Markdown cache when enabled
func (a *app) pdfConverter(logger *slog.Logger) (converter.Converter, error) {
	var pdf converter.Converter = converter.NewPDFConverter()
	if a.cfg.Converter.URL != "" {
		docling, err := converter.NewDoclingConverter(converter.DoclingConfig{
			BaseURL: a.cfg.Converter.URL,
			Path:    a.cfg.Converter.Path,
			Timeout: a.cfg.Converter.Timeout,
		})
		if err != nil {
			return nil, err
		}
		pdf = docling
	}

	if !a.cfg.Index.ConversionCache {
		return pdf, nil
	}
	cached, err := converter.NewCachedConverter(pdf, a.cfg.ConversionCachePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversion cache: %w", err)
	}
	a.convCache = cached
	return cached, nil
}

// Close releases every opened resource
func (a *app) Close() error {
	var errs []error
	if a.convCache != nil {
		errs = append(errs, a.convCache.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
