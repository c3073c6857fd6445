package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/sitterscan"
	"github.com/jward/sitterscan/internal/discover"
	"github.com/jward/sitterscan/internal/grammar"
)

var flagEvidence bool

var runQueriesCmd = &cobra.Command{
	Use:   "run-queries <queries.json> [path]",
	Short: "Run structural queries from a file over a local directory",
	Long: "Runs queries locally without contacting the findings service. The file holds either a JSON " +
		"array of queries or an object with a TreeSitterQueries array, as the service returns them.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runRunQueries,
}

func init() {
	runQueriesCmd.Flags().BoolVar(&flagEvidence, "evidence", false, "print evidence payloads instead of individual matches")
	runQueriesCmd.Flags().StringSliceVar(&flagExclude, "exclude", nil, "gitignore-style pattern to exclude (repeatable)")
}

func runRunQueries(cmd *cobra.Command, args []string) error {
	_, logger, err := loadSettings(cmd)
	if err != nil {
		return outputError("run-queries", err)
	}

	queries, err := loadQueries(args[0])
	if err != nil {
		return outputError("run-queries", err)
	}

	dir := "."
	if len(args) > 1 {
		dir = args[1]
	}
	target, err := resolveTargetDir(dir)
	if err != nil {
		return outputError("run-queries", err)
	}
	files, err := discover.New(
		discover.WithExcludes(flagExclude...),
		discover.WithLogger(logger),
	).Find(target)
	if err != nil {
		return outputError("run-queries", err)
	}

	engine, err := grammar.NewEngine()
	if err != nil {
		return outputError("run-queries", fmt.Errorf("creating engine: %w", err))
	}
	defer engine.Close()
	scanner := sitterscan.NewScanner(engine, sitterscan.WithLogger(logger))
	defer scanner.Close()

	records := scanner.ScanFiles(commandContext(cmd), files, queries)

	if flagEvidence {
		payloads := sitterscan.BuildEvidence(queries, records)
		return outputResult(cmd, CLIResult{Command: "run-queries", Results: payloads})
	}
	matches := make([]CLIMatch, 0, len(records))
	for _, r := range records {
		matches = append(matches, toCLIMatch(target, r))
	}
	total := len(matches)
	return outputResult(cmd, CLIResult{Command: "run-queries", Results: matches, TotalCount: &total})
}

// loadQueries reads a query file in either accepted shape.
func loadQueries(path string) ([]sitterscan.StructuralQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading queries: %w", err)
	}
	data = bytes.TrimSpace(data)

	var queries []sitterscan.StructuralQuery
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &queries); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return queries, nil
	}

	var envelope struct {
		TreeSitterQueries []sitterscan.StructuralQuery `json:"TreeSitterQueries"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if envelope.TreeSitterQueries == nil {
		return nil, fmt.Errorf("parsing %s: no TreeSitterQueries array", path)
	}
	return envelope.TreeSitterQueries, nil
}

func toCLIMatch(target string, r sitterscan.MatchRecord) CLIMatch {
	file := r.File
	if rel, err := filepath.Rel(target, r.File); err == nil {
		file = filepath.ToSlash(rel)
	}
	return CLIMatch{
		QuestionID:  r.QuestionID,
		File:        file,
		Line:        r.Line,
		Column:      r.Column,
		CaptureName: r.CaptureName,
		NodeType:    r.NodeType,
		Text:        r.Text,
	}
}
