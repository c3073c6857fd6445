package sitterscan

import (
	"fmt"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"
)

// Collector evaluates query patterns over cached trees.
type Collector struct {
	engine ParseEngine
	logger *slog.Logger
}

// NewCollector creates a Collector compiling queries through engine. A nil
// logger falls back to slog.Default().
func NewCollector(engine ParseEngine, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{engine: engine, logger: logger}
}

// Run compiles pattern for language and evaluates it over tree, returning
// one CaptureMatch per capture of every match in engine order. A pattern
// that fails to compile is logged and yields no captures.
func (c *Collector) Run(tree *sitter.Tree, src []byte, pattern, language string) []CaptureMatch {
	q, err := c.engine.CompileQuery(language, pattern)
	if err != nil {
		c.logger.Warn("query failed to compile", "language", language, "error", err)
		return nil
	}

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, tree.RootNode())

	var out []CaptureMatch
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, src)
		for _, capture := range match.Captures {
			out = append(out, captureFromNode(q, capture, src))
		}
	}
	return out
}

func captureFromNode(q *sitter.Query, capture sitter.QueryCapture, src []byte) CaptureMatch {
	name := fmt.Sprintf("capture_%d", capture.Index)
	if capture.Index < q.CaptureCount() {
		name = q.CaptureNameForId(capture.Index)
	}
	node := capture.Node
	start := node.StartPoint()
	return CaptureMatch{
		Name:     name,
		Value:    string(src[node.StartByte():node.EndByte()]),
		Line:     int(start.Row) + 1,
		Column:   int(start.Column) + 1,
		NodeType: node.Type(),
	}
}
