package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pdfquery-mcp/internal/embedder"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

var allEnv = []string{
	EnvDocumentsDir, EnvIndexDir, EnvIndexDirLegacy, EnvOpenAIAPIKey, EnvJinaAPIKey,
	EnvEmbeddingProvider, EnvEmbeddingModel, EnvLLMModel, EnvOpenAIBaseURL,
	EnvConverterURL, EnvLogLevel, EnvLogFormat, EnvMetricsAddr, EnvReuseIndex,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnv {
		t.Setenv(key, "")
	}
}

func mapLookup(env map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, 3, cfg.Retrieval.LexicalK)
	assert.Equal(t, 3, cfg.Retrieval.SemanticK)
	assert.Equal(t, 0.5, cfg.Retrieval.LexicalWeight)
	assert.Equal(t, 0.5, cfg.Retrieval.SemanticWeight)
	assert.Equal(t, 60.0, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 200, cfg.Retrieval.PreviewLength)
	assert.Equal(t, "gpt-4o-mini", cfg.Generation.Model)
	assert.Equal(t, 0.1, cfg.Generation.Temperature)
	assert.Equal(t, 60*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 0.5, cfg.Confidence.Base)
	assert.Equal(t, []string{"**/*.pdf", "**/*.md", "**/*.markdown"}, cfg.Documents.Include)
	assert.True(t, cfg.Index.ReuseExisting)
}

func TestApplyEnv_ReuseIndex(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.applyEnv(mapLookup(map[string]string{EnvReuseIndex: "false"})))
	assert.False(t, cfg.Index.ReuseExisting)

	require.NoError(t, cfg.applyEnv(mapLookup(map[string]string{EnvReuseIndex: " 1 "})))
	assert.True(t, cfg.Index.ReuseExisting)

	err := cfg.applyEnv(mapLookup(map[string]string{EnvReuseIndex: "sometimes"}))
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.applyEnv(mapLookup(map[string]string{
		EnvDocumentsDir:   " /data/pdfs ",
		EnvIndexDirLegacy: "/data/chroma",
		EnvOpenAIAPIKey:   "sk-test",
		EnvLLMModel:       "gpt-4o",
		EnvLogLevel:       "debug",
		EnvMetricsAddr:    ":9090",
	})))

	assert.Equal(t, "/data/pdfs", cfg.Documents.Dir)
	assert.Equal(t, "/data/chroma", cfg.Index.Dir)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Generation.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, embedder.ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestApplyEnv_IndexDirPrecedence(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.applyEnv(mapLookup(map[string]string{
		EnvIndexDir:       "/primary",
		EnvIndexDirLegacy: "/legacy",
	})))
	assert.Equal(t, "/primary", cfg.Index.Dir)
}

func TestApplyEnv_ProviderSelection(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		wantProvider string
		wantKey      string
	}{
		{"no keys", map[string]string{}, embedder.ProviderLocal, ""},
		{"jina key", map[string]string{EnvJinaAPIKey: "jina"}, embedder.ProviderJina, "jina"},
		{"openai preferred", map[string]string{EnvJinaAPIKey: "jina", EnvOpenAIAPIKey: "sk"}, embedder.ProviderOpenAI, "sk"},
		{"explicit", map[string]string{EnvEmbeddingProvider: "Jina", EnvJinaAPIKey: "jina", EnvOpenAIAPIKey: "sk"}, embedder.ProviderJina, "jina"},
		{"explicit local", map[string]string{EnvEmbeddingProvider: "local", EnvOpenAIAPIKey: "sk"}, embedder.ProviderLocal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.applyEnv(mapLookup(tt.env)))
			assert.Equal(t, tt.wantProvider, cfg.Embedding.Provider)
			assert.Equal(t, tt.wantKey, cfg.Embedding.APIKey)
		})
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "pdfquery.yaml")
	yamlText := `
documents:
  dir: /from/file
  exclude: ["drafts/**"]
retrieval:
  lexical_k: 4
  lexical_weight: 0.7
  semantic_weight: 0.3
generation:
  enabled: false
  timeout: 30s
confidence:
  base: 0.4
logging:
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(yamlText), 0o644))
	t.Setenv(EnvDocumentsDir, "/from/env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Documents.Dir)
	assert.Equal(t, []string{"drafts/**"}, cfg.Documents.Exclude)
	assert.Equal(t, 4, cfg.Retrieval.LexicalK)
	assert.Equal(t, 3, cfg.Retrieval.SemanticK, "unset keys keep defaults")
	assert.Equal(t, 0.7, cfg.Retrieval.LexicalWeight)
	assert.False(t, cfg.Generation.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 0.4, cfg.Confidence.Base)
	assert.Equal(t, 0.2, cfg.Confidence.LongAnswerBonus)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, embedder.ProviderLocal, cfg.Embedding.Provider)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, types.ErrConfiguration)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("retrieval: [unclosed"), 0o644))
	_, err = Load(bad)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.Documents.Dir = t.TempDir()
	cfg.Index.Dir = t.TempDir()
	cfg.Embedding.Provider = embedder.ProviderLocal
	cfg.Generation.APIKey = "sk-test"
	return cfg
}

func TestValidate(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.pdf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing documents dir", func(c *Config) { c.Documents.Dir = "" }, true},
		{"documents dir does not exist", func(c *Config) { c.Documents.Dir = "/nonexistent/pdfquery" }, true},
		{"documents path is a file", func(c *Config) { c.Documents.Dir = file }, true},
		{"zero default limit", func(c *Config) { c.Retrieval.DefaultLimit = 0 }, true},
		{"default above max", func(c *Config) { c.Retrieval.DefaultLimit = 50 }, true},
		{"negative weight", func(c *Config) { c.Retrieval.LexicalWeight = -0.1 }, true},
		{"all-zero weights", func(c *Config) { c.Retrieval.LexicalWeight, c.Retrieval.SemanticWeight = 0, 0 }, true},
		{"one zero weight", func(c *Config) { c.Retrieval.LexicalWeight = 0 }, false},
		{"bad confidence", func(c *Config) { c.Confidence.Base = 1.5 }, true},
		{"generation without key", func(c *Config) { c.Generation.APIKey = "" }, true},
		{"retrieval only without key", func(c *Config) { c.Generation.APIKey = ""; c.Generation.Enabled = false }, false},
		{"jina without key", func(c *Config) { c.Embedding.Provider = embedder.ProviderJina }, true},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }, true},
		{"oversized batch", func(c *Config) { c.Index.BatchSize = embedder.MaxBatchSize + 1 }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, filepath.Join(cfg.Index.Dir, DatabaseFile), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(cfg.Index.Dir, ConversionCacheFile), cfg.ConversionCachePath())

	sc := cfg.SearcherConfig()
	assert.NoError(t, sc.Validate())
	assert.Equal(t, cfg.Retrieval.RRFConstant, sc.RRFConstant)

	bc := cfg.BuildConfig()
	assert.Equal(t, cfg.Documents.Dir, bc.Root)

	gc := cfg.GeneratorConfig()
	assert.Equal(t, "sk-test", gc.APIKey)
	assert.Equal(t, 0.1, gc.Temperature)

	ho := cfg.HandlerOptions()
	assert.Equal(t, 5, ho.DefaultLimit)
}
