package sitterscan

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/jward/sitterscan/internal/grammar"
	"github.com/jward/sitterscan/internal/logging"
)

// benchGoSource is a mid-sized Go file with types, methods and calls.
const benchGoSource = `package bench

import (
	"errors"
	"fmt"
)

type Store interface {
	Get(key string) (string, error)
	Put(key, value string) error
}

type memStore struct {
	items map[string]string
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]string)}
}

func (m *memStore) Get(key string) (string, error) {
	v, ok := m.items[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *memStore) Put(key, value string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	m.items[key] = value
	return nil
}

func fill(s Store, n int) error {
	for i := 0; i < n; i++ {
		if err := s.Put(fmt.Sprintf("k%d", i), "v"); err != nil {
			return err
		}
	}
	return nil
}
`

var benchQueries = []StructuralQuery{
	{QuestionID: "types", FileType: ".go", Query: "(type_spec name: (type_identifier) @type_name)"},
	{QuestionID: "methods", FileType: ".go", Query: "(method_declaration name: (field_identifier) @method)"},
	{QuestionID: "calls", FileType: ".go", Query: "(call_expression function: (selector_expression field: (field_identifier) @callee))"},
	{QuestionID: "errors", FileType: ".go", Query: `((call_expression function: (selector_expression operand: (identifier) @pkg)) (#eq? @pkg "fmt"))`},
}

func benchFiles(b *testing.B, n int) (afero.Fs, []string) {
	b.Helper()
	fs := afero.NewMemMapFs()
	files := make([]string, n)
	for i := range files {
		files[i] = fmt.Sprintf("/bench/pkg%d/store.go", i)
		src := strings.Replace(benchGoSource, "package bench", fmt.Sprintf("package pkg%d", i), 1)
		if err := afero.WriteFile(fs, files[i], []byte(src), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	return fs, files
}

func newBenchEngine(b *testing.B) *grammar.Engine {
	b.Helper()
	engine, err := grammar.NewEngine()
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(engine.Close)
	return engine
}

// BenchmarkScanFiles_Cold measures a first scan cycle: every file is read
// and parsed.
func BenchmarkScanFiles_Cold(b *testing.B) {
	fs, files := benchFiles(b, 50)
	engine := newBenchEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := NewScanner(engine, WithFs(fs), WithLogger(logging.Nop()))
		s.ScanFiles(ctx, files, benchQueries)
		s.Close()
	}
}

// BenchmarkScanFiles_Cached measures later cycles, which only run queries
// against cached trees.
func BenchmarkScanFiles_Cached(b *testing.B) {
	fs, files := benchFiles(b, 50)
	engine := newBenchEngine(b)
	ctx := context.Background()

	s := NewScanner(engine, WithFs(fs), WithLogger(logging.Nop()))
	b.Cleanup(s.Close)
	s.ScanFiles(ctx, files, benchQueries)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.ScanFiles(ctx, files, benchQueries)
	}
}

func BenchmarkBuildEvidence(b *testing.B) {
	fs, files := benchFiles(b, 50)
	engine := newBenchEngine(b)
	s := NewScanner(engine, WithFs(fs), WithLogger(logging.Nop()))
	b.Cleanup(s.Close)
	records := s.ScanFiles(context.Background(), files, benchQueries)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildEvidence(benchQueries, records)
	}
}
