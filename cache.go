package sitterscan

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/jward/sitterscan/internal/grammar"
)

// CacheStats counts TreeCache activity over its lifetime.
type CacheStats struct {
	Entries  int `json:"entries"`
	Hits     int `json:"hits"`
	Misses   int `json:"misses"`
	Failures int `json:"failures"`
}

// TreeCache maps file paths to parsed trees. Entries are inserted on first
// access and never replaced or evicted; failed reads and parses are not
// cached and are retried on the next access.
type TreeCache struct {
	mu      sync.Mutex
	engine  ParseEngine
	fs      afero.Fs
	logger  *slog.Logger
	onStore func(path string)

	entries map[string]CachedTree
	stats   CacheStats
}

// CacheOption configures a TreeCache.
type CacheOption func(*TreeCache)

// WithCacheFs sets the filesystem files are read from. Defaults to the OS.
func WithCacheFs(fs afero.Fs) CacheOption {
	return func(c *TreeCache) {
		c.fs = fs
	}
}

// WithCacheLogger sets the logger for skipped files.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *TreeCache) {
		c.logger = l
	}
}

// WithStoreHook registers fn to be called with each newly cached path.
func WithStoreHook(fn func(path string)) CacheOption {
	return func(c *TreeCache) {
		c.onStore = fn
	}
}

// NewTreeCache creates an empty cache that parses through engine.
func NewTreeCache(engine ParseEngine, opts ...CacheOption) *TreeCache {
	c := &TreeCache{
		engine:  engine,
		fs:      afero.NewOsFs(),
		logger:  slog.Default(),
		entries: make(map[string]CachedTree),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrParse returns the cached tree for path, parsing and storing it on
// first access. ok is false when the file has no supported language, cannot
// be read, is not valid UTF-8, or fails to parse; the caller skips such files.
func (c *TreeCache) GetOrParse(ctx context.Context, path string) (CachedTree, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[path]; ok {
		c.stats.Hits++
		return entry, true
	}
	c.stats.Misses++

	language, ok := grammar.LanguageForFile(path)
	if !ok {
		c.logger.Debug("skipping unsupported file", "path", path)
		return CachedTree{}, false
	}

	src, err := afero.ReadFile(c.fs, path)
	if err != nil {
		c.stats.Failures++
		c.logger.Warn("skipping unreadable file", "path", path, "error", err)
		return CachedTree{}, false
	}
	if !utf8.Valid(src) {
		c.stats.Failures++
		c.logger.Warn("skipping file with invalid encoding", "path", path)
		return CachedTree{}, false
	}

	tree, err := c.engine.Parse(ctx, language, src)
	if err != nil {
		c.stats.Failures++
		c.logger.Warn("skipping unparsable file", "path", path, "language", language, "error", err)
		return CachedTree{}, false
	}

	entry := CachedTree{Tree: tree, Source: src, Language: language}
	c.entries[path] = entry
	c.stats.Entries = len(c.entries)
	if c.onStore != nil {
		c.onStore(path)
	}
	return entry, true
}

// Stats returns a snapshot of the cache counters.
func (c *TreeCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close releases every cached tree. The cache must not be used afterwards.
func (c *TreeCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p, entry := range c.entries {
		entry.Tree.Close()
		delete(c.entries, p)
	}
	c.stats.Entries = 0
}
