// Package cache memoizes upstream page fetches in a single JSON file so
// that re-runs of the pipeline do not hammer the source.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/bgg-indexer/internal/monitoring"
)

// flushEvery bounds how many fetched-but-unflushed entries a crash can lose.
const flushEvery = 100

// Fetcher performs the actual network retrieval on a cache miss.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Cache maps URL -> raw response body, mirrored to a JSON file on disk.
// Safe for use by concurrent workers; a single mutex guards load, insert
// and flush. The file is rewritten whole on every flush, so concurrent
// external mutation of the same file is unsupported.
type Cache struct {
	path    string
	fetcher Fetcher
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	entries map[string]string
	changes int
}

// Open prepares a cache backed by the file at path. The file is not read
// until the first Fetch. Callers must Close the cache to guarantee the
// final flush, including on error paths.
func Open(path string, fetcher Fetcher, logger *zap.Logger, metrics *monitoring.Metrics) *Cache {
	return &Cache{
		path:    path,
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch returns the cached body for url, requesting and memoizing it on a
// miss. A hit never touches the network.
func (c *Cache) Fetch(ctx context.Context, url string) (string, error) {
	return c.fetch(ctx, url, false)
}

// FetchNoCache requests url even when a cached body exists, replacing the
// stored entry with the fresh response.
func (c *Cache) FetchNoCache(ctx context.Context, url string) (string, error) {
	return c.fetch(ctx, url, true)
}

func (c *Cache) fetch(ctx context.Context, url string, bypass bool) (string, error) {
	c.mu.Lock()
	if err := c.loadLocked(); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if !bypass {
		if body, ok := c.entries[url]; ok {
			c.mu.Unlock()
			c.metrics.IncPageFetched("hit")
			c.logger.Debug("cache hit", zap.String("url", url))
			return body, nil
		}
	}
	c.mu.Unlock()

	c.logger.Info("requesting", zap.String("url", url))
	start := time.Now()
	body, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	c.metrics.ObserveFetch(time.Since(start))
	c.metrics.IncPageFetched("miss")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = body
	c.changes++
	if c.changes >= flushEvery {
		if err := c.flushLocked(); err != nil {
			return "", err
		}
	}
	return body, nil
}

// loadLocked reads the backing file on first use. A missing file is an
// empty cache; any other read or parse failure is fatal.
func (c *Cache) loadLocked() error {
	if c.entries != nil {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		c.entries = make(map[string]string)
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: read %s: %w", c.path, err)
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("cache: parse %s: %w", c.path, err)
	}
	c.entries = entries
	c.logger.Info("cache loaded", zap.String("path", c.path), zap.Int("entries", len(entries)))
	return nil
}

func (c *Cache) flushLocked() error {
	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("cache: write %s: %w", c.path, err)
	}
	c.logger.Debug("cache flushed", zap.String("path", c.path), zap.Int("entries", len(c.entries)))
	c.changes = 0
	return nil
}

// Flush writes the cache to disk if there are unflushed entries.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil || c.changes == 0 {
		return nil
	}
	return c.flushLocked()
}

// Close flushes any pending entries. It is safe to call after a failed run.
func (c *Cache) Close() error {
	return c.Flush()
}

// Len reports the number of cached entries, loading the file if needed.
func (c *Cache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(); err != nil {
		return 0, err
	}
	return len(c.entries), nil
}
