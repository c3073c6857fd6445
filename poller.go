package sitterscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jward/sitterscan/internal/grammar"
	"github.com/jward/sitterscan/internal/store"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxPolls     = 20
)

// ErrNoReportID is returned by Round when no report identifier has been
// acquired.
var ErrNoReportID = errors.New("sitterscan: no report id; call Initialize first")

// FindingsService is the remote service queries are fetched from and
// evidence is posted to. *findings.Client implements it.
type FindingsService interface {
	InitiateReport(ctx context.Context, req ReportRequest) (string, error)
	FetchQueries(ctx context.Context, reportID string) ([]StructuralQuery, error)
	PostEvidence(ctx context.Context, payload EvidencePayload) error
}

// PollerConfig is the explicit configuration of a Poller.
type PollerConfig struct {
	// OrganizationID is recorded in the journal only; the service client
	// carries its own organization.
	OrganizationID string

	// ReportID, when set, is used verbatim instead of opening a new report.
	ReportID string

	// PollInterval is slept between rounds, never after the last one.
	PollInterval time.Duration

	// MaxPolls bounds the number of rounds Run attempts. Zero or negative
	// means DefaultMaxPolls.
	MaxPolls int

	// KeepGoing makes Run continue after a failed round. Failed rounds still
	// count toward MaxPolls.
	KeepGoing bool
}

// RoundResult summarizes one completed round.
type RoundResult struct {
	Number   int `json:"number"`
	Queries  int `json:"queries"`
	Records  int `json:"records"`
	Evidence int `json:"evidence"`
	NoMatch  int `json:"no_match"`
}

// Poller drives the fetch, scan, report loop against a FindingsService.
type Poller struct {
	service FindingsService
	scanner *Scanner
	cfg     PollerConfig
	logger  *slog.Logger
	journal *store.Store

	reportID string
	request  ReportRequest
	session  *store.Session
	rounds   int
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerLogger sets the poller's logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = l
	}
}

// WithJournal records sessions, rounds and evidence digests in s. Journal
// failures are logged and never fail a round.
func WithJournal(s *store.Store) PollerOption {
	return func(p *Poller) {
		p.journal = s
	}
}

// NewPoller creates a Poller. cfg.ReportID, if set, becomes the session's
// report identifier without contacting the service.
func NewPoller(service FindingsService, scanner *Scanner, cfg PollerConfig, opts ...PollerOption) *Poller {
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	p := &Poller{
		service:  service,
		scanner:  scanner,
		cfg:      cfg,
		logger:   slog.Default(),
		reportID: cfg.ReportID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FileTypeCensus returns the distinct extensions of files, without the dot,
// sorted and comma-separated.
func FileTypeCensus(files []string) string {
	seen := make(map[string]bool)
	for _, f := range files {
		if ext := grammar.ExtensionOf(f); ext != "" {
			seen[strings.TrimPrefix(ext, ".")] = true
		}
	}
	exts := make([]string, 0, len(seen))
	for ext := range seen {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ",")
}

// ReportID returns the active report identifier, or "" before Initialize.
func (p *Poller) ReportID() string {
	return p.reportID
}

// Rounds returns the number of rounds attempted so far.
func (p *Poller) Rounds() int {
	return p.rounds
}

// Initialize acquires the report identifier once. A preset or previously
// acquired identifier is returned without contacting the service.
func (p *Poller) Initialize(ctx context.Context, req ReportRequest) (string, error) {
	if p.reportID == "" {
		id, err := p.service.InitiateReport(ctx, req)
		if err != nil {
			return "", fmt.Errorf("sitterscan: initiate report: %w", err)
		}
		p.reportID = id
		p.logger.Info("report initiated", "report_id", id, "file_types", req.FileTypes)
	} else {
		p.logger.Info("using existing report", "report_id", p.reportID)
	}
	p.request = req
	p.openSession()
	return p.reportID, nil
}

func (p *Poller) openSession() {
	if p.journal == nil || p.session != nil {
		return
	}
	sess := &store.Session{
		ReportID:       p.reportID,
		OrganizationID: p.cfg.OrganizationID,
		CommitHash:     p.request.CommitHash,
		BranchName:     p.request.BranchName,
		RepoURL:        p.request.RepoURL,
	}
	if err := p.journal.CreateSession(sess); err != nil {
		p.logger.Warn("journal: session not recorded", "error", err)
		return
	}
	p.session = sess
}

// Round runs one fetch, scan, report iteration over files. Any service
// failure aborts the round and is returned; nothing is retried.
func (p *Poller) Round(ctx context.Context, files []string) (RoundResult, error) {
	if p.reportID == "" {
		return RoundResult{}, ErrNoReportID
	}
	p.rounds++
	res := RoundResult{Number: p.rounds}
	jr := p.startJournalRound(res.Number)

	queries, err := p.service.FetchQueries(ctx, p.reportID)
	if err != nil {
		err = fmt.Errorf("sitterscan: round %d: fetch queries: %w", res.Number, err)
		p.finishJournalRound(jr, res, nil, err)
		return res, err
	}
	res.Queries = len(queries)
	p.logger.Debug("queries fetched", "round", res.Number, "count", len(queries))

	records := p.scanner.ScanFiles(ctx, files, queries)
	res.Records = len(records)

	payloads := BuildEvidence(queries, records)
	previous := p.previousDigests(res.Number, queries)

	var posted []store.Evidence
	for _, payload := range payloads {
		if err := p.service.PostEvidence(ctx, payload); err != nil {
			err = fmt.Errorf("sitterscan: round %d: post evidence for %s: %w", res.Number, payload.QuestionID, err)
			p.finishJournalRound(jr, res, posted, err)
			return res, err
		}
		res.Evidence++
		if payload.NoMatch() {
			res.NoMatch++
		}

		row := evidenceRow(payload)
		if prev, ok := previous[payload.QuestionID]; ok && prev == row.Digest {
			p.logger.Info("evidence unchanged since previous round", "round", res.Number, "question_id", payload.QuestionID)
		}
		posted = append(posted, row)
	}

	p.finishJournalRound(jr, res, posted, nil)
	stats := p.scanner.Cache().Stats()
	p.logger.Debug("tree cache", "entries", stats.Entries, "hits", stats.Hits, "misses", stats.Misses, "failures", stats.Failures)
	p.logger.Info("round complete",
		"round", res.Number, "queries", res.Queries, "records", res.Records, "no_match", res.NoMatch)
	return res, nil
}

// Run executes up to MaxPolls rounds, sleeping PollInterval between them.
// Without KeepGoing the first failed round ends the run. Cancelling ctx
// stops the run at the next sleep.
func (p *Poller) Run(ctx context.Context, files []string) error {
	var failures []error
	for i := 0; i < p.cfg.MaxPolls; i++ {
		if _, err := p.Round(ctx, files); err != nil {
			if !p.cfg.KeepGoing || errors.Is(err, ErrNoReportID) {
				return err
			}
			p.logger.Error("round failed", "round", p.rounds, "error", err)
			failures = append(failures, err)
		}
		if i == p.cfg.MaxPolls-1 {
			break
		}
		if err := sleep(ctx, p.cfg.PollInterval); err != nil {
			return err
		}
	}
	return errors.Join(failures...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func evidenceRow(payload EvidencePayload) store.Evidence {
	encoded, _ := json.Marshal(payload.Evidence)
	return store.Evidence{
		QuestionID: payload.QuestionID,
		SourceID:   payload.SourceID,
		EntryCount: len(payload.Evidence),
		NoMatch:    payload.NoMatch(),
		Digest:     store.Digest(encoded),
	}
}

func (p *Poller) startJournalRound(number int) *store.Round {
	if p.session == nil {
		return nil
	}
	r := &store.Round{SessionID: p.session.ID, Number: number}
	if _, err := p.journal.StartRound(r); err != nil {
		p.logger.Warn("journal: round not recorded", "round", number, "error", err)
		return nil
	}
	return r
}

func (p *Poller) finishJournalRound(r *store.Round, res RoundResult, evidence []store.Evidence, roundErr error) {
	if r == nil {
		return
	}
	r.Status = store.RoundSucceeded
	r.QueryCount = res.Queries
	r.RecordCount = res.Records
	if roundErr != nil {
		r.Status = store.RoundFailed
		r.Error = roundErr.Error()
	}
	if err := p.journal.CommitRound(r, evidence); err != nil {
		p.logger.Warn("journal: round not committed", "round", r.Number, "error", err)
	}
}

func (p *Poller) previousDigests(number int, queries []StructuralQuery) map[string]string {
	if p.session == nil {
		return nil
	}
	ids := make([]string, 0, len(queries))
	for _, q := range queries {
		ids = append(ids, q.QuestionID)
	}
	digests, err := p.journal.PreviousDigests(p.session.ID, number, ids)
	if err != nil {
		p.logger.Warn("journal: previous digests unavailable", "round", number, "error", err)
		return nil
	}
	return digests
}
