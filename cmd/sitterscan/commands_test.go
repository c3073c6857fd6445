package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/sitterscan"
)

const userSample = `struct User {
    name: String,
}

fn main() {
    let u = User { name: String::new() };
}
`

// executeCommand runs the root command with args and returns its stdout.
// Commands share package-level flag state, so these tests are not parallel.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	errorHandled = false
	err := rootCmd.Execute()
	return out.String(), err
}

func writeSource(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func clearServiceEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"API_KEY", "ORGANIZATION_ID", "REPORT_ID", "API_BASE_URL", "POLL_INTERVAL",
		"MAX_POLLS", "HTTP_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT", "JOURNAL_PATH"} {
		t.Setenv(k, "")
	}
}

type fakeService struct {
	mu       sync.Mutex
	request  sitterscan.ReportRequest
	fetches  int
	evidence []sitterscan.EvidencePayload
}

func (f *fakeService) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /org/org-1/rpc/initiate-code-scan-report/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.request))
		json.NewEncoder(w).Encode(map[string]string{"report_id": "rep-7"})
	})
	mux.HandleFunc("GET /org/org-1/rpc/get-preloaded-queries/rep-7", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.fetches++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"TreeSitterQueries": []sitterscan.StructuralQuery{
			{QuestionID: "q-struct", FileType: ".rs", Query: "(struct_item name: (type_identifier) @struct_name)", ObjectID: "o1"},
			{QuestionID: "q-py", FileType: ".py", Query: "(function_definition) @def", ObjectID: "o2"},
		}})
	})
	mux.HandleFunc("POST /org/org-1/evidence", func(w http.ResponseWriter, r *http.Request) {
		var p sitterscan.EvidencePayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.evidence = append(f.evidence, p)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestScanThenHistory(t *testing.T) {
	clearServiceEnv(t)
	target := t.TempDir()
	writeSource(t, target, "src/main.rs", userSample)
	writeSource(t, target, "README.md", "# app")
	writeSource(t, target, "node_modules/dep/index.js", "module.exports = 1")
	journal := filepath.Join(t.TempDir(), "journal.db")

	fake := &fakeService{}
	srv := fake.server(t)

	out, err := executeCommand(t, "scan", target,
		"--format", "json",
		"--api-key", "key-1",
		"--org", "org-1",
		"--base-url", srv.URL,
		"--max-polls", "2",
		"--poll-interval", "0",
		"--log-level", "error",
		"--journal", journal,
	)
	require.NoError(t, err)

	var res struct {
		Command string         `json:"command"`
		Results CLIScanSummary `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "scan", res.Command)
	assert.Equal(t, "rep-7", res.Results.ReportID)
	assert.Equal(t, 1, res.Results.Files)
	assert.Equal(t, 2, res.Results.Rounds)
	assert.Equal(t, 1, res.Results.Cache.Entries)
	assert.Equal(t, 1, res.Results.Cache.Hits)

	assert.Equal(t, "rs", fake.request.FileTypes)
	require.Len(t, fake.evidence, 4)
	assert.Equal(t, "q-struct", fake.evidence[0].QuestionID)
	require.Len(t, fake.evidence[0].Evidence, 1)
	assert.Equal(t, "User", fake.evidence[0].Evidence[0].Value)
	assert.True(t, fake.evidence[1].NoMatch())

	out, err = executeCommand(t, "history", target, "--format", "json", "--journal", journal)
	require.NoError(t, err)
	var hist struct {
		Results    []CLIRound `json:"results"`
		TotalCount int        `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	require.Equal(t, 2, hist.TotalCount)
	assert.Equal(t, 2, hist.Results[0].Number)
	assert.Equal(t, "rep-7", hist.Results[0].ReportID)
	assert.Equal(t, "succeeded", hist.Results[0].Status)
	assert.Equal(t, 2, hist.Results[0].Evidence)
	assert.Equal(t, 1, hist.Results[0].NoMatch)
}

func TestScan_ZeroPollsOnlyOpensReport(t *testing.T) {
	clearServiceEnv(t)
	target := t.TempDir()
	writeSource(t, target, "src/main.rs", userSample)

	fake := &fakeService{}
	srv := fake.server(t)

	out, err := executeCommand(t, "scan", target,
		"--format", "json",
		"--api-key", "key-1",
		"--organization-id", "org-1",
		"--base-url", srv.URL,
		"--max-polls", "0",
		"--poll-interval", "0",
		"--log-level", "error",
		"--journal", filepath.Join(t.TempDir(), "journal.db"),
	)
	require.NoError(t, err)

	var res struct {
		Results CLIScanSummary `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "rep-7", res.Results.ReportID)
	assert.Zero(t, res.Results.Rounds)
	assert.Equal(t, "rs", fake.request.FileTypes)
	assert.Zero(t, fake.fetches)
	assert.Empty(t, fake.evidence)
}

func TestScan_MissingCredentials(t *testing.T) {
	clearServiceEnv(t)
	_, err := executeCommand(t, "scan", t.TempDir(), "--format", "text", "--api-key", "", "--org", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY is required")
	assert.True(t, errorHandled)
}

func TestHistory_NoJournal(t *testing.T) {
	clearServiceEnv(t)
	missing := filepath.Join(t.TempDir(), "none", "journal.db")
	out, err := executeCommand(t, "history", t.TempDir(), "--format", "json", "--journal", missing)
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"history","results":[],"total_count":0}`, out)
	assert.NoFileExists(t, missing)
}

func TestRunQueries(t *testing.T) {
	clearServiceEnv(t)
	target := t.TempDir()
	writeSource(t, target, "main.rs", userSample)
	queriesPath := filepath.Join(t.TempDir(), "queries.json")
	require.NoError(t, os.WriteFile(queriesPath, []byte(`{"TreeSitterQueries":[
		{"question_id":"q-struct","file_type":".rs","query":"(struct_item name: (type_identifier) @struct_name)","object_id":"o1"}
	]}`), 0o644))

	out, err := executeCommand(t, "run-queries", queriesPath, target, "--format", "json", "--log-level", "error")
	require.NoError(t, err)

	var res struct {
		Results    []CLIMatch `json:"results"`
		TotalCount int        `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, 1, res.TotalCount)
	assert.Equal(t, CLIMatch{
		QuestionID:  "q-struct",
		File:        "main.rs",
		Line:        1,
		Column:      8,
		CaptureName: "struct_name",
		NodeType:    "type_identifier",
		Text:        "User",
	}, res.Results[0])
}

func TestLanguages_Text(t *testing.T) {
	clearServiceEnv(t)
	out, err := executeCommand(t, "languages", "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "EXTENSION")
	assert.Contains(t, out, ".rs")
	assert.Contains(t, out, "rust")
	assert.NotContains(t, out, "FILES")
}

func TestLoadQueries(t *testing.T) {
	dir := t.TempDir()
	arrayPath := filepath.Join(dir, "array.json")
	require.NoError(t, os.WriteFile(arrayPath, []byte(`[{"question_id":"q1","file_type":".go","query":"(identifier) @id","object_id":"o1"}]`), 0o644))
	got, err := loadQueries(arrayPath)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "q1", got[0].QuestionID)

	emptyPath := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(emptyPath, []byte(`{"other":[]}`), 0o644))
	_, err = loadQueries(emptyPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TreeSitterQueries")

	_, err = loadQueries(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
