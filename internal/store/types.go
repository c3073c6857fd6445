package store

import "time"

// Round statuses.
const (
	RoundRunning   = "running"
	RoundSucceeded = "succeeded"
	RoundFailed    = "failed"
)

// Session is one run of the poller against one report identifier.
type Session struct {
	ID             string
	ReportID       string
	OrganizationID string
	CommitHash     string
	BranchName     string
	RepoURL        string
	StartedAt      time.Time
}

// Round is one fetch/scan/report iteration within a session.
type Round struct {
	ID          int64
	SessionID   string
	Number      int
	Status      string
	QueryCount  int
	RecordCount int
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Evidence records one evidence post. Digest identifies the posted entries
// so consecutive rounds can be compared without storing the payload.
type Evidence struct {
	ID         int64
	RoundID    int64
	QuestionID string
	SourceID   string
	EntryCount int
	NoMatch    bool
	Digest     string
}

// RoundSummary is a round joined with its session, for listing history.
type RoundSummary struct {
	Round
	ReportID      string
	EvidenceCount int
	NoMatchCount  int
}
