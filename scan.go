package sitterscan

import (
	"context"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/spf13/afero"

	"github.com/jward/sitterscan/internal/grammar"
)

// ParseEngine is the parsing and query compilation capability the scanner
// consumes. *grammar.Engine implements it.
type ParseEngine interface {
	Parse(ctx context.Context, language string, src []byte) (*sitter.Tree, error)
	CompileQuery(language, pattern string) (*sitter.Query, error)
}

var _ ParseEngine = (*grammar.Engine)(nil)

// Scanner runs scan cycles: every file is looked up in the tree cache and
// matched against the queries routed to its extension.
type Scanner struct {
	cache     *TreeCache
	collector *Collector
	logger    *slog.Logger

	organizationID  string
	codeBaseVersion string

	fs      afero.Fs
	onStore func(string)
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithOrganization stamps every MatchRecord with the organization id.
func WithOrganization(id string) Option {
	return func(s *Scanner) {
		s.organizationID = id
	}
}

// WithCodeVersion stamps every MatchRecord with the code version, usually
// the commit hash.
func WithCodeVersion(v string) Option {
	return func(s *Scanner) {
		s.codeBaseVersion = v
	}
}

// WithLogger sets the logger used by the scanner, its cache and collector.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// WithFs sets the filesystem source files are read from.
func WithFs(fs afero.Fs) Option {
	return func(s *Scanner) {
		s.fs = fs
	}
}

// WithCachedHook registers fn to be called with every path newly added to
// the tree cache.
func WithCachedHook(fn func(path string)) Option {
	return func(s *Scanner) {
		s.onStore = fn
	}
}

// NewScanner creates a Scanner with an empty tree cache.
func NewScanner(engine ParseEngine, opts ...Option) *Scanner {
	s := &Scanner{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	cacheOpts := []CacheOption{WithCacheLogger(s.logger)}
	if s.fs != nil {
		cacheOpts = append(cacheOpts, WithCacheFs(s.fs))
	}
	if s.onStore != nil {
		cacheOpts = append(cacheOpts, WithStoreHook(s.onStore))
	}
	s.cache = NewTreeCache(engine, cacheOpts...)
	s.collector = NewCollector(engine, s.logger)
	return s
}

// Cache returns the scanner's tree cache.
func (s *Scanner) Cache() *TreeCache {
	return s.cache
}

// Close releases the cached trees.
func (s *Scanner) Close() {
	s.cache.Close()
}

// ScanFiles runs one scan cycle over files with the given query set. Files
// with no supported language, no readable content or no parse are skipped.
// Records are returned in file order, then query order, then match order.
func (s *Scanner) ScanFiles(ctx context.Context, files []string, queries []StructuralQuery) []MatchRecord {
	routes := RouteQueries(queries)
	s.logger.Debug("routing queries", "queries", len(queries), "file_types", routes.FileTypes(), "files", len(files))

	var records []MatchRecord
	for _, path := range files {
		entry, ok := s.cache.GetOrParse(ctx, path)
		if !ok {
			continue
		}

		for _, q := range routes.For(grammar.ExtensionOf(path)) {
			for _, m := range s.collector.Run(entry.Tree, entry.Source, q.Query, entry.Language) {
				records = append(records, MatchRecord{
					File:            path,
					Line:            m.Line,
					Column:          m.Column,
					Text:            m.Value,
					CaptureName:     m.Name,
					NodeType:        m.NodeType,
					QuestionID:      q.QuestionID,
					OrganizationID:  s.organizationID,
					CodeBaseVersion: s.codeBaseVersion,
				})
			}
		}
	}
	return records
}

// BuildEvidence returns one EvidencePayload per query, in query order. A
// query whose question has no records reports the no-match sentinel.
func BuildEvidence(queries []StructuralQuery, records []MatchRecord) []EvidencePayload {
	byQuestion := make(map[string][]CaptureMatch)
	for _, r := range records {
		byQuestion[r.QuestionID] = append(byQuestion[r.QuestionID], r.Capture())
	}

	out := make([]EvidencePayload, 0, len(queries))
	for _, q := range queries {
		evidence := byQuestion[q.QuestionID]
		if len(evidence) == 0 {
			evidence = []CaptureMatch{NoMatchEvidence()}
		}
		out = append(out, EvidencePayload{
			QuestionID:      q.QuestionID,
			SourceID:        q.ObjectID,
			SourceType:      SourceTypeTreeSitter,
			Evidence:        evidence,
			EvidenceContext: q.Reasoning,
		})
	}
	return out
}
