package main

import (
	"time"

	"github.com/jward/sitterscan"
	"github.com/jward/sitterscan/internal/discover"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIScanSummary describes a finished polling session.
type CLIScanSummary struct {
	ReportID string                    `json:"report_id"`
	Target   string                    `json:"target"`
	Files    int                       `json:"files"`
	Rounds   int                       `json:"rounds"`
	Census   []discover.ExtensionCount `json:"census"`
	Cache    sitterscan.CacheStats     `json:"cache"`
	Stale    []string                  `json:"stale,omitempty"`
}

// CLIMatch is a MatchRecord with its file relative to the scan target.
type CLIMatch struct {
	QuestionID  string `json:"question_id"`
	File        string `json:"file"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	CaptureName string `json:"capture_name"`
	NodeType    string `json:"node_type"`
	Text        string `json:"text"`
}

// CLIRound is one journal round.
type CLIRound struct {
	ID         int64      `json:"id"`
	SessionID  string     `json:"session_id"`
	ReportID   string     `json:"report_id"`
	Number     int        `json:"number"`
	Status     string     `json:"status"`
	Queries    int        `json:"queries"`
	Records    int        `json:"records"`
	Evidence   int        `json:"evidence"`
	NoMatch    int        `json:"no_match"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CLILanguage is one row of the extension table, with an optional file
// count from a census of a target directory.
type CLILanguage struct {
	Extension string `json:"extension"`
	Language  string `json:"language"`
	Files     *int   `json:"files,omitempty"`
}
