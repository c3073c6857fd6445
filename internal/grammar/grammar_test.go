package grammar

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageForFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"main.rs", "rust", true},
		{"app.js", "javascript", true},
		{"script.py", "python", true},
		{"main.go", "go", true},
		{"app.ts", "typescript", true},
		{"App.java", "java", true},
		{"main.cpp", "cpp", true},
		{"util.h", "cpp", true},
		{"util.hpp", "cpp", true},
		{"main.cc", "cpp", true},
		{"app.rb", "ruby", true},
		{"index.php", "php", true},
		{"test_repo/test_python.py", "python", true},
		{"path/to/LIB.RS", "rust", true}, // case insensitive
		{"file.txt", "", false},
		{"test.xyz", "", false},
		{"Makefile", "", false},
		{"app.tsx", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, ok := LanguageForFile(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtensionOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ".rs", ExtensionOf("src/main.rs"))
	assert.Equal(t, ".rs", ExtensionOf("src/MAIN.RS"))
	assert.Equal(t, ".gz", ExtensionOf("archive.tar.gz"))
	assert.Equal(t, "", ExtensionOf("Makefile"))
}

func TestGrammarForLanguage(t *testing.T) {
	t.Parallel()

	for _, entry := range Extensions() {
		l, ok := GrammarForLanguage(entry.Language)
		assert.True(t, ok, "grammar for %s", entry.Language)
		assert.NotNil(t, l)
	}

	_, ok := GrammarForLanguage("cobol")
	assert.False(t, ok)
}

func TestExtensions_Sorted(t *testing.T) {
	t.Parallel()
	exts := Extensions()
	require.Len(t, exts, len(extToLanguage))
	for i := 1; i < len(exts); i++ {
		assert.Less(t, exts[i-1].Extension, exts[i].Extension)
	}
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestEngine_Parse(t *testing.T) {
	e := newTestEngine(t)

	tree, err := e.Parse(context.Background(), "rust", []byte("fn main() {}\n"))
	require.NoError(t, err)
	defer tree.Close()

	root := tree.RootNode()
	assert.Equal(t, "source_file", root.Type())
	assert.Positive(t, int(root.ChildCount()))
}

func TestEngine_ParseUnsupportedLanguage(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Parse(context.Background(), "cobol", []byte("DISPLAY 'HI'."))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedLanguage))
}

func TestEngine_CompileQueryMemoised(t *testing.T) {
	e := newTestEngine(t)

	q1, err := e.CompileQuery("rust", "(function_item name: (identifier) @fn)")
	require.NoError(t, err)
	q2, err := e.CompileQuery("rust", "(function_item name: (identifier) @fn)")
	require.NoError(t, err)

	assert.Same(t, q1, q2)
	assert.Equal(t, 1, e.CachedQueries())
}

func TestEngine_CompileQueryMalformed(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CompileQuery("rust", "(function_item name: (identifier @fn")
	require.Error(t, err)
	assert.Equal(t, 0, e.CachedQueries())

	_, err = e.CompileQuery("rust", "(no_such_node) @x")
	require.Error(t, err)
}

func TestEngine_CompileQueryEvicts(t *testing.T) {
	e := newTestEngine(t, WithQueryCacheSize(1))

	_, err := e.CompileQuery("rust", "(function_item) @fn")
	require.NoError(t, err)
	_, err = e.CompileQuery("rust", "(struct_item) @st")
	require.NoError(t, err)

	assert.Equal(t, 1, e.CachedQueries())
}
