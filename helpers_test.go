package sitterscan

import (
	"context"
	"sync"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jward/sitterscan/internal/grammar"
	"github.com/jward/sitterscan/internal/logging"
)

// rustSample defines struct User at 1:8, fn display at 6:8, fn main at 11:4.
const rustSample = `struct User {
    name: String,
}

impl User {
    fn display(&self) {
        println!("{}", self.name);
    }
}

fn main() {
    let u = User { name: String::from("a") };
    u.display();
}
`

const (
	structQuery   = "(struct_item name: (type_identifier) @struct_name)"
	functionQuery = "(function_item name: (identifier) @function_name)"
)

type compileCall struct {
	language string
	pattern  string
}

// countingEngine wraps a real engine and records every call.
type countingEngine struct {
	inner *grammar.Engine

	mu       sync.Mutex
	parses   int
	compiles []compileCall
}

func newCountingEngine(t *testing.T) *countingEngine {
	t.Helper()
	e, err := grammar.NewEngine()
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return &countingEngine{inner: e}
}

func (c *countingEngine) Parse(ctx context.Context, language string, src []byte) (*sitter.Tree, error) {
	c.mu.Lock()
	c.parses++
	c.mu.Unlock()
	return c.inner.Parse(ctx, language, src)
}

func (c *countingEngine) CompileQuery(language, pattern string) (*sitter.Query, error) {
	c.mu.Lock()
	c.compiles = append(c.compiles, compileCall{language: language, pattern: pattern})
	c.mu.Unlock()
	return c.inner.CompileQuery(language, pattern)
}

func (c *countingEngine) parseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parses
}

func (c *countingEngine) compileCalls() []compileCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]compileCall(nil), c.compiles...)
}

// memFs returns an in-memory filesystem holding files.
func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func newTestScanner(t *testing.T, engine ParseEngine, files map[string]string, opts ...Option) *Scanner {
	t.Helper()
	opts = append([]Option{WithFs(memFs(t, files)), WithLogger(logging.Nop())}, opts...)
	s := NewScanner(engine, opts...)
	t.Cleanup(s.Close)
	return s
}

func writeMem(fs afero.Fs, path, content string) error {
	return afero.WriteFile(fs, path, []byte(content), 0o644)
}
