// Package grammar adapts smacker/go-tree-sitter to the scanner: the
// extension table, parsing, and query compilation.
package grammar

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"
)

// ErrUnsupportedLanguage is returned for language names without a grammar.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// DefaultQueryCacheSize bounds the number of compiled queries kept alive.
const DefaultQueryCacheSize = 256

type queryKey struct {
	language string
	pattern  string
}

// Engine parses source text and compiles query patterns. Compiled queries
// are memoised per (language, pattern); the active query set is re-fetched
// every round and usually repeats, so recompiling it each time is waste.
type Engine struct {
	queries *lru.Cache[queryKey, *sitter.Query]
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	queryCacheSize int
}

// WithQueryCacheSize sets how many compiled queries the Engine retains.
func WithQueryCacheSize(n int) EngineOption {
	return func(c *engineConfig) {
		c.queryCacheSize = n
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg := engineConfig{queryCacheSize: DefaultQueryCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.queryCacheSize < 1 {
		cfg.queryCacheSize = 1
	}
	cache, err := lru.NewWithEvict[queryKey, *sitter.Query](cfg.queryCacheSize, func(_ queryKey, q *sitter.Query) {
		q.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("grammar: query cache: %w", err)
	}
	return &Engine{queries: cache}, nil
}

// Parse parses src with the grammar for language.
func (e *Engine) Parse(ctx context.Context, language string, src []byte) (*sitter.Tree, error) {
	lang, ok := GrammarForLanguage(language)
	if !ok {
		return nil, fmt.Errorf("grammar: parse %q: %w", language, ErrUnsupportedLanguage)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("grammar: parse %s: %w", language, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("grammar: parse %s: no tree produced", language)
	}
	return tree, nil
}

// CompileQuery compiles pattern against the grammar for language. The
// returned query is owned by the Engine and must not be closed by callers.
func (e *Engine) CompileQuery(language, pattern string) (*sitter.Query, error) {
	key := queryKey{language: language, pattern: pattern}
	if q, ok := e.queries.Get(key); ok {
		return q, nil
	}

	lang, ok := GrammarForLanguage(language)
	if !ok {
		return nil, fmt.Errorf("grammar: compile query for %q: %w", language, ErrUnsupportedLanguage)
	}
	q, err := sitter.NewQuery([]byte(pattern), lang)
	if err != nil {
		return nil, fmt.Errorf("grammar: compile query: %w", err)
	}
	e.queries.Add(key, q)
	return q, nil
}

// CachedQueries returns the number of compiled queries currently retained.
func (e *Engine) CachedQueries() int {
	return e.queries.Len()
}

// Close releases all compiled queries.
func (e *Engine) Close() {
	e.queries.Purge()
}
