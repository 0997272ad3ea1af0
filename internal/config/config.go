// Package config loads server settings from an optional YAML file, a .env
// file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/pdfquery-mcp/internal/confidence"
	"github.com/dshills/pdfquery-mcp/internal/embedder"
	"github.com/dshills/pdfquery-mcp/internal/generator"
	"github.com/dshills/pdfquery-mcp/internal/handler"
	"github.com/dshills/pdfquery-mcp/internal/indexer"
	"github.com/dshills/pdfquery-mcp/internal/resilience"
	"github.com/dshills/pdfquery-mcp/internal/searcher"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// Environment variables that override file settings
const (
	EnvDocumentsDir      = "PDF_DOCUMENTS_DIR"
	EnvIndexDir          = "PDFQUERY_INDEX_DIR"
	EnvIndexDirLegacy    = "CHROMA_DB_DIR"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvJinaAPIKey        = "JINA_API_KEY"
	EnvEmbeddingProvider = "PDFQUERY_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "PDFQUERY_EMBEDDING_MODEL"
	EnvLLMModel          = "PDFQUERY_LLM_MODEL"
	EnvOpenAIBaseURL     = "OPENAI_BASE_URL"
	EnvConverterURL      = "PDFQUERY_CONVERTER_URL"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFormat         = "LOG_FORMAT"
	EnvMetricsAddr       = "PDFQUERY_METRICS_ADDR"
	EnvReuseIndex        = "PDFQUERY_REUSE_INDEX"
)

// DatabaseFile is the SQLite file name inside the index directory
const DatabaseFile = "corpus.db"

// ConversionCacheFile is the bbolt file name inside the index directory
const ConversionCacheFile = "conversions.bolt"

// Config is the root configuration
type Config struct {
	Documents  DocumentsConfig   `yaml:"documents"`
	Index      IndexConfig       `yaml:"index"`
	Converter  ConverterConfig   `yaml:"converter"`
	Embedding  EmbeddingConfig   `yaml:"embedding"`
	Retrieval  RetrievalConfig   `yaml:"retrieval"`
	Generation GenerationConfig  `yaml:"generation"`
	Confidence confidence.Config `yaml:"confidence"`
	Logging    LoggingConfig     `yaml:"logging"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// DocumentsConfig locates the corpus
type DocumentsConfig struct {
	Dir     string   `yaml:"dir"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// IndexConfig controls where and how the corpus is built
type IndexConfig struct {
	Dir             string `yaml:"dir"`
	Workers         int    `yaml:"workers"`
	BatchSize       int    `yaml:"batch_size"`
	ReuseExisting   bool   `yaml:"reuse_existing"`
	ConversionCache bool   `yaml:"conversion_cache"`
}

// ConverterConfig selects the document converter. An empty URL uses the
// built-in PDF text extractor.
type ConverterConfig struct {
	URL     string        `yaml:"url"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	CacheSize int    `yaml:"cache_size"`
	APIKey    string `yaml:"-"`
}

// RetrievalConfig holds fusion parameters and caller limits
type RetrievalConfig struct {
	DefaultLimit   int     `yaml:"default_limit"`
	MaxLimit       int     `yaml:"max_limit"`
	LexicalK       int     `yaml:"lexical_k"`
	SemanticK      int     `yaml:"semantic_k"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	RRFConstant    float64 `yaml:"rrf_k"`
	CacheSize      int     `yaml:"cache_size"`
	PreviewLength  int     `yaml:"preview_length"`
}

// GenerationConfig configures answer generation
type GenerationConfig struct {
	Enabled           bool              `yaml:"enabled"`
	Model             string            `yaml:"model"`
	BaseURL           string            `yaml:"base_url"`
	Temperature       float64           `yaml:"temperature"`
	Timeout           time.Duration     `yaml:"timeout"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Burst             int               `yaml:"burst"`
	Resilience        resilience.Config `yaml:"resilience"`
	APIKey            string            `yaml:"-"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables the Prometheus listener when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration
func Default() *Config {
	rc := searcher.DefaultConfig()
	return &Config{
		Documents: DocumentsConfig{
			Dir:     "./documents",
			Include: append([]string(nil), indexer.DefaultInclude...),
		},
		Index: IndexConfig{
			Dir:             "./.pdfquery",
			BatchSize:       embedder.DefaultBatchSize,
			ReuseExisting:   true,
			ConversionCache: true,
		},
		Embedding: EmbeddingConfig{
			CacheSize: embedder.DefaultCacheSize,
		},
		Retrieval: RetrievalConfig{
			DefaultLimit:   handler.DefaultLimit,
			MaxLimit:       handler.DefaultMaxLimit,
			LexicalK:       rc.LexicalK,
			SemanticK:      rc.SemanticK,
			LexicalWeight:  rc.LexicalWeight,
			SemanticWeight: rc.SemanticWeight,
			RRFConstant:    rc.RRFConstant,
			CacheSize:      rc.CacheSize,
			PreviewLength:  handler.DefaultPreviewLength,
		},
		Generation: GenerationConfig{
			Enabled:     true,
			Model:       generator.DefaultModel,
			Temperature: generator.DefaultTemperature,
			Timeout:     generator.DefaultTimeout,
			Resilience:  resilience.DefaultConfig(),
		},
		Confidence: confidence.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first when present. path may be empty; a named file must exist.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.WrapError(types.ErrConfiguration, "config.load", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.WrapError(types.ErrConfiguration, "config.load",
				fmt.Errorf("parse %s: %w", path, err))
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	set := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}

	set(&c.Documents.Dir, EnvDocumentsDir)
	set(&c.Index.Dir, EnvIndexDir, EnvIndexDirLegacy)
	set(&c.Embedding.Provider, EnvEmbeddingProvider)
	set(&c.Embedding.Model, EnvEmbeddingModel)
	set(&c.Generation.Model, EnvLLMModel)
	set(&c.Generation.BaseURL, EnvOpenAIBaseURL)
	set(&c.Converter.URL, EnvConverterURL)
	set(&c.Logging.Level, EnvLogLevel)
	set(&c.Logging.Format, EnvLogFormat)
	set(&c.Metrics.Addr, EnvMetricsAddr)
	set(&c.Generation.APIKey, EnvOpenAIAPIKey)

	openAIKey, _ := lookup(EnvOpenAIAPIKey)
	jinaKey, _ := lookup(EnvJinaAPIKey)
	c.Embedding.Provider = embedder.DetectProvider(c.Embedding.Provider, strings.TrimSpace(openAIKey), strings.TrimSpace(jinaKey))
	switch c.Embedding.Provider {
	case embedder.ProviderJina:
		set(&c.Embedding.APIKey, EnvJinaAPIKey)
	case embedder.ProviderOpenAI:
		set(&c.Embedding.APIKey, EnvOpenAIAPIKey)
	}
	if c.Embedding.Provider == embedder.ProviderOpenAI && c.Embedding.BaseURL == "" {
		set(&c.Embedding.BaseURL, EnvOpenAIBaseURL)
	}

	if v, ok := lookup(EnvReuseIndex); ok && strings.TrimSpace(v) != "" {
		reuse, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return types.NewError(types.ErrConfiguration, "config.env",
				fmt.Sprintf("%s must be a boolean, got %q", EnvReuseIndex, v))
		}
		c.Index.ReuseExisting = reuse
	}
	return nil
}

// Validate reports the first invalid setting as a configuration error
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return types.NewError(types.ErrConfiguration, "config.validate", fmt.Sprintf(format, args...))
	}

	if c.Documents.Dir == "" {
		return fail("documents directory is required (set %s)", EnvDocumentsDir)
	}
	info, err := os.Stat(c.Documents.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fail("documents directory %s does not exist", c.Documents.Dir)
		}
		return types.WrapError(types.ErrConfiguration, "config.validate", err)
	}
	if !info.IsDir() {
		return fail("documents path %s is not a directory", c.Documents.Dir)
	}
	if c.Index.Dir == "" {
		return fail("index directory is required")
	}

	r := c.Retrieval
	switch {
	case r.DefaultLimit < 1 || r.MaxLimit < 1:
		return fail("retrieval limits must be positive")
	case r.DefaultLimit > r.MaxLimit:
		return fail("default_limit %d exceeds max_limit %d", r.DefaultLimit, r.MaxLimit)
	case r.PreviewLength < 1:
		return fail("preview_length must be positive")
	}
	if err := c.SearcherConfig().Validate(); err != nil {
		return err
	}
	if err := c.Confidence.Validate(); err != nil {
		return err
	}

	if c.Index.Workers < 0 || c.Index.BatchSize < 0 {
		return fail("index workers and batch_size must be non-negative")
	}
	if c.Index.BatchSize > embedder.MaxBatchSize {
		return fail("index batch_size must be at most %d", embedder.MaxBatchSize)
	}

	switch c.Embedding.Provider {
	case embedder.ProviderLocal:
	case embedder.ProviderJina:
		if c.Embedding.APIKey == "" {
			return fail("%s is required for the jina embedding provider", EnvJinaAPIKey)
		}
	case embedder.ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return fail("%s is required for the openai embedding provider", EnvOpenAIAPIKey)
		}
	default:
		return fail("unknown embedding provider %q", c.Embedding.Provider)
	}

	if c.Generation.Enabled {
		if c.Generation.APIKey == "" {
			return fail("%s is required when generation is enabled", EnvOpenAIAPIKey)
		}
		if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
			return fail("generation temperature must be within [0, 2]")
		}
		if c.Generation.Timeout <= 0 {
			return fail("generation timeout must be positive")
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fail("log format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// DatabasePath is the SQLite file of the corpus
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Index.Dir, DatabaseFile)
}

// ConversionCachePath is the bbolt file of converted Markdown
func (c *Config) ConversionCachePath() string {
	return filepath.Join(c.Index.Dir, ConversionCacheFile)
}

// SearcherConfig returns the fusion parameters
func (c *Config) SearcherConfig() searcher.Config {
	return searcher.Config{
		LexicalK:       c.Retrieval.LexicalK,
		SemanticK:      c.Retrieval.SemanticK,
		LexicalWeight:  c.Retrieval.LexicalWeight,
		SemanticWeight: c.Retrieval.SemanticWeight,
		RRFConstant:    c.Retrieval.RRFConstant,
		CacheSize:      c.Retrieval.CacheSize,
	}
}

// HandlerOptions returns the caller-facing limits
func (c *Config) HandlerOptions() handler.Options {
	return handler.Options{
		DefaultLimit:  c.Retrieval.DefaultLimit,
		MaxLimit:      c.Retrieval.MaxLimit,
		PreviewLength: c.Retrieval.PreviewLength,
	}
}

// BuildConfig returns the indexer settings
func (c *Config) BuildConfig() indexer.Config {
	return indexer.Config{
		Root:      c.Documents.Dir,
		Include:   c.Documents.Include,
		Exclude:   c.Documents.Exclude,
		Workers:   c.Index.Workers,
		BatchSize: c.Index.BatchSize,
	}
}

// EmbedderConfig returns the embedding provider settings
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		APIKey:    c.Embedding.APIKey,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Embedding.Dimension,
		CacheSize: c.Embedding.CacheSize,
	}
}

// GeneratorConfig returns the chat completion settings
func (c *Config) GeneratorConfig() generator.Config {
	return generator.Config{
		APIKey:            c.Generation.APIKey,
		BaseURL:           c.Generation.BaseURL,
		Model:             c.Generation.Model,
		Temperature:       c.Generation.Temperature,
		Timeout:           c.Generation.Timeout,
		RequestsPerSecond: c.Generation.RequestsPerSecond,
		Burst:             c.Generation.Burst,
		Resilience:        c.Generation.Resilience,
	}
}
