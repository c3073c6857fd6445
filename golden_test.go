package sitterscan

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/sitterscan/internal/discover"
	"github.com/jward/sitterscan/internal/grammar"
	"github.com/jward/sitterscan/internal/logging"
)

// Golden test format.
type goldenFile struct {
	Evidence []goldenEvidence `json:"evidence"`
}

type goldenEvidence struct {
	QuestionID string          `json:"question_id"`
	NoMatch    bool            `json:"no_match,omitempty"`
	Captures   []goldenCapture `json:"captures,omitempty"`
}

type goldenCapture struct {
	File     string `json:"file"`
	Name     string `json:"name"`
	Value    string `json:"value"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	NodeType string `json:"node_type"`
}

// TestGolden walks testdata/{language}/{case}/ directories. Each case has a
// src/ tree, the queries.json run over it, and the golden.json evidence the
// queries must produce.
func TestGolden(t *testing.T) {
	langDirs, err := os.ReadDir("testdata")
	if err != nil {
		t.Skip("no testdata directory found")
	}

	engine, err := grammar.NewEngine()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	for _, langDir := range langDirs {
		if !langDir.IsDir() {
			continue
		}
		langRoot := filepath.Join("testdata", langDir.Name())
		cases, err := os.ReadDir(langRoot)
		if err != nil {
			continue
		}
		for _, c := range cases {
			if !c.IsDir() {
				continue
			}
			caseDir := filepath.Join(langRoot, c.Name())
			t.Run(langDir.Name()+"/"+c.Name(), func(t *testing.T) {
				runGoldenCase(t, engine, caseDir)
			})
		}
	}
}

func runGoldenCase(t *testing.T, engine *grammar.Engine, caseDir string) {
	var queries []StructuralQuery
	readJSON(t, filepath.Join(caseDir, "queries.json"), &queries)
	var want goldenFile
	readJSON(t, filepath.Join(caseDir, "golden.json"), &want)

	srcDir := filepath.Join(caseDir, "src")
	files, err := discover.New(discover.WithLogger(logging.Nop())).Find(srcDir)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	scanner := NewScanner(engine, WithLogger(logging.Nop()))
	t.Cleanup(scanner.Close)

	records := scanner.ScanFiles(context.Background(), files, queries)

	// Captures carry no file, so they are recovered from the records, which
	// BuildEvidence keeps in order.
	byQuestion := make(map[string][]MatchRecord)
	for _, r := range records {
		byQuestion[r.QuestionID] = append(byQuestion[r.QuestionID], r)
	}

	payloads := BuildEvidence(queries, records)
	require.Len(t, payloads, len(want.Evidence))

	for i, exp := range want.Evidence {
		got := payloads[i]
		assert.Equal(t, exp.QuestionID, got.QuestionID)
		if exp.NoMatch {
			assert.True(t, got.NoMatch(), "%s: expected the no-match sentinel", exp.QuestionID)
			continue
		}

		recs := byQuestion[exp.QuestionID]
		require.Len(t, recs, len(exp.Captures), "%s capture count", exp.QuestionID)
		for j, wc := range exp.Captures {
			rel, err := filepath.Rel(srcDir, recs[j].File)
			require.NoError(t, err)
			assert.Equal(t, wc, goldenCapture{
				File:     filepath.ToSlash(rel),
				Name:     got.Evidence[j].Name,
				Value:    got.Evidence[j].Value,
				Line:     got.Evidence[j].Line,
				Col:      got.Evidence[j].Column,
				NodeType: got.Evidence[j].NodeType,
			}, "%s capture %d", exp.QuestionID, j)
		}
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}
