package converter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.etcd.io/bbolt"
)

var bucketMarkdown = []byte("markdown")

// CachedConverter stores converted Markdown in a bbolt file. Entries are keyed
// by converter name and the SHA-256 of the source bytes, so an edited file or
// a different converter always misses.
type CachedConverter struct {
	inner  Converter
	db     *bbolt.DB
	logger *slog.Logger
}

// NewCachedConverter opens (or creates) the cache database at path
func NewCachedConverter(inner Converter, path string, logger *slog.Logger) (*CachedConverter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversion cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMarkdown); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketMarkdown, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &CachedConverter{inner: inner, db: db, logger: logger}, nil
}

func (c *CachedConverter) Name() string {
	return c.inner.Name()
}

func (c *CachedConverter) Convert(ctx context.Context, path string) (string, error) {
	key, err := c.key(path)
	if err != nil {
		// Unreadable files fail in the inner converter with a proper error
		return c.inner.Convert(ctx, path)
	}

	if md, ok := c.get(key); ok {
		c.logger.Debug("conversion_cache_hit", "document", path)
		return md, nil
	}

	md, err := c.inner.Convert(ctx, path)
	if err != nil {
		return "", err
	}
	if md == "" {
		return md, nil
	}

	if err := c.put(key, md); err != nil {
		c.logger.Warn("conversion_cache_write_failed", "document", path, "error", err)
	}
	return md, nil
}

// Len returns the number of cached conversions
func (c *CachedConverter) Len() int {
	n := 0
	_ = c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketMarkdown).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the cache database
func (c *CachedConverter) Close() error {
	return c.db.Close()
}

func (c *CachedConverter) key(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return []byte(c.inner.Name() + ":" + hex.EncodeToString(h.Sum(nil))), nil
}

func (c *CachedConverter) get(key []byte) (string, bool) {
	var md string
	var found bool
	_ = c.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketMarkdown).Get(key); data != nil {
			md = string(data)
			found = true
		}
		return nil
	})
	return md, found
}

func (c *CachedConverter) put(key []byte, md string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMarkdown).Put(key, []byte(md))
	})
}
