package sitterscan

import (
	"encoding/json"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// SourceTypeTreeSitter is the source_type stamped on every evidence post.
const SourceTypeTreeSitter = "tree-sitter-query"

// StructuralQuery is one active query as served by the findings service.
// FileType is a dot-prefixed extension such as ".rs".
type StructuralQuery struct {
	QuestionID string `json:"question_id"`
	FileType   string `json:"file_type"`
	Query      string `json:"query"`
	ObjectID   string `json:"object_id"`
	Prompt     string `json:"prompt"`
	Reasoning  string `json:"reasoning"`
}

// CaptureMatch is one capture inside one query match. Line and Column are
// 1-based.
type CaptureMatch struct {
	Name     string
	Value    string
	Line     int
	Column   int
	NodeType string
}

// captureMatchJSON is the wire shape: position travels as a [line, column] pair.
type captureMatchJSON struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Position [2]int `json:"position"`
	NodeType string `json:"node_type"`
}

// MarshalJSON implements json.Marshaler.
func (c CaptureMatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(captureMatchJSON{
		Name:     c.Name,
		Value:    c.Value,
		Position: [2]int{c.Line, c.Column},
		NodeType: c.NodeType,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CaptureMatch) UnmarshalJSON(data []byte) error {
	var w captureMatchJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("sitterscan: decode capture match: %w", err)
	}
	*c = CaptureMatch{
		Name:     w.Name,
		Value:    w.Value,
		Line:     w.Position[0],
		Column:   w.Position[1],
		NodeType: w.NodeType,
	}
	return nil
}

// NoMatchEvidence returns the sentinel reported for a query with no captures.
func NoMatchEvidence() CaptureMatch {
	return CaptureMatch{
		Name:     "no_match",
		Value:    "No matches found",
		Line:     0,
		Column:   0,
		NodeType: "none",
	}
}

// MatchRecord is a capture enriched with its file and session context.
type MatchRecord struct {
	File            string `json:"file"`
	Line            int    `json:"line"`
	Column          int    `json:"column"`
	Text            string `json:"text"`
	CaptureName     string `json:"capture_name"`
	NodeType        string `json:"node_type"`
	QuestionID      string `json:"question_id"`
	OrganizationID  string `json:"organization_id"`
	CodeBaseVersion string `json:"code_base_version"`
}

// Capture returns the record as a capture-shaped evidence entry.
func (r MatchRecord) Capture() CaptureMatch {
	return CaptureMatch{
		Name:     r.CaptureName,
		Value:    r.Text,
		Line:     r.Line,
		Column:   r.Column,
		NodeType: r.NodeType,
	}
}

// EvidencePayload is the body posted for one query in one round.
type EvidencePayload struct {
	QuestionID      string         `json:"question_id"`
	SourceID        string         `json:"source_id"`
	SourceType      string         `json:"source_type"`
	Evidence        []CaptureMatch `json:"evidence"`
	EvidenceContext string         `json:"evidence_context"`
}

// NoMatch reports whether the payload carries only the no-match sentinel.
func (p EvidencePayload) NoMatch() bool {
	return len(p.Evidence) == 1 && p.Evidence[0] == NoMatchEvidence()
}

// ReportRequest is the body used to open a new scan report.
type ReportRequest struct {
	FileTypes  string `json:"file_types"`
	CommitHash string `json:"commit_hash"`
	BranchName string `json:"branch_name"`
	RepoURL    string `json:"repo_url"`
}

// CachedTree is a parsed tree with the source it was parsed from. Values
// returned by TreeCache are borrowed views; the cache owns the tree.
type CachedTree struct {
	Tree     *sitter.Tree
	Source   []byte
	Language string
}
