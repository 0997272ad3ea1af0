package embedder

import (
	"fmt"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // jina, openai, local; empty selects by available keys
	Model     string // Provider default when empty
	APIKey    string
	BaseURL   string // Override for compatible endpoints and tests
	Dimension int    // Model default when zero
	CacheSize int    // Zero disables the cache

	// Retry overrides; zero values fall back to DefaultRetryConfig
	MaxRetries int
	RetryDelay time.Duration
}

func (c Config) retryConfig() RetryConfig {
	rc := DefaultRetryConfig()
	if c.MaxRetries > 0 {
		rc.MaxRetries = c.MaxRetries
	}
	if c.RetryDelay > 0 {
		rc.BaseDelay = c.RetryDelay
	}
	return rc
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		return NewJinaProvider(cfg, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider picks a provider when none is configured explicitly.
// Priority: explicit name, then OpenAI key, then Jina key, then local.
func DetectProvider(explicit, openAIKey, jinaKey string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	if openAIKey != "" {
		return ProviderOpenAI
	}
	if jinaKey != "" {
		return ProviderJina
	}
	return ProviderLocal
}
