package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// --- Session operations ---

// CreateSession inserts s, assigning a new UUID when s.ID is empty and the
// current time when StartedAt is zero.
func (s *Store) CreateSession(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, report_id, organization_id, commit_hash, branch_name, repo_url, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ReportID, sess.OrganizationID, sess.CommitHash, sess.BranchName,
		sess.RepoURL, sess.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) SessionByID(id string) (*Session, error) {
	sess := &Session{}
	err := s.db.QueryRow(
		`SELECT id, report_id, organization_id, commit_hash, branch_name, repo_url, started_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ReportID, &sess.OrganizationID, &sess.CommitHash, &sess.BranchName,
		&sess.RepoURL, &sess.StartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session by id: %w", err)
	}
	return sess, nil
}

// --- Round operations ---

// StartRound inserts a running round.
func (s *Store) StartRound(r *Round) (int64, error) {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	r.Status = RoundRunning
	res, err := s.db.Exec(
		"INSERT INTO rounds (session_id, number, status, started_at) VALUES (?, ?, ?, ?)",
		r.SessionID, r.Number, r.Status, r.StartedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert round: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

func (s *Store) RoundsBySession(sessionID string) ([]*Round, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, number, status, query_count, record_count, error, started_at, finished_at
		 FROM rounds WHERE session_id = ? ORDER BY number`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("rounds by session: %w", err)
	}
	defer rows.Close()
	var rounds []*Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// RecentRounds returns up to limit rounds across all sessions, newest first.
func (s *Store) RecentRounds(limit int) ([]*RoundSummary, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.session_id, r.number, r.status, r.query_count, r.record_count, r.error,
			r.started_at, r.finished_at, se.report_id,
			(SELECT COUNT(*) FROM evidence e WHERE e.round_id = r.id),
			(SELECT COUNT(*) FROM evidence e WHERE e.round_id = r.id AND e.no_match)
		 FROM rounds r JOIN sessions se ON se.id = r.session_id
		 ORDER BY r.started_at DESC, r.id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent rounds: %w", err)
	}
	defer rows.Close()
	var out []*RoundSummary
	for rows.Next() {
		rs := &RoundSummary{}
		var errMsg sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&rs.ID, &rs.SessionID, &rs.Number, &rs.Status, &rs.QueryCount,
			&rs.RecordCount, &errMsg, &rs.StartedAt, &finished, &rs.ReportID,
			&rs.EvidenceCount, &rs.NoMatchCount); err != nil {
			return nil, fmt.Errorf("scan round summary: %w", err)
		}
		rs.Error = errMsg.String
		if finished.Valid {
			rs.FinishedAt = &finished.Time
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func scanRound(rows *sql.Rows) (*Round, error) {
	r := &Round{}
	var errMsg sql.NullString
	var finished sql.NullTime
	if err := rows.Scan(&r.ID, &r.SessionID, &r.Number, &r.Status, &r.QueryCount,
		&r.RecordCount, &errMsg, &r.StartedAt, &finished); err != nil {
		return nil, fmt.Errorf("scan round: %w", err)
	}
	r.Error = errMsg.String
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return r, nil
}

// --- Evidence operations ---

func (s *Store) EvidenceByRound(roundID int64) ([]*Evidence, error) {
	rows, err := s.db.Query(
		`SELECT id, round_id, question_id, source_id, entry_count, no_match, digest
		 FROM evidence WHERE round_id = ? ORDER BY id`, roundID,
	)
	if err != nil {
		return nil, fmt.Errorf("evidence by round: %w", err)
	}
	defer rows.Close()
	var out []*Evidence
	for rows.Next() {
		e := &Evidence{}
		if err := rows.Scan(&e.ID, &e.RoundID, &e.QuestionID, &e.SourceID, &e.EntryCount,
			&e.NoMatch, &e.Digest); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PreviousDigests returns, for each question in questionIDs, the digest of
// its evidence in the latest round of sessionID numbered below beforeRound.
// Questions with no earlier evidence are absent from the map.
func (s *Store) PreviousDigests(sessionID string, beforeRound int, questionIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(questionIDs) == 0 {
		return out, nil
	}
	args := append([]any{sessionID, beforeRound}, stringsToArgs(questionIDs)...)
	rows, err := s.db.Query(
		`SELECT e.question_id, e.digest
		 FROM evidence e JOIN rounds r ON r.id = e.round_id
		 WHERE r.session_id = ? AND r.number < ? AND e.question_id IN (`+placeholderList(len(questionIDs))+`)
		 ORDER BY r.number, e.id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("previous digests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var qid, digest string
		if err := rows.Scan(&qid, &digest); err != nil {
			return nil, fmt.Errorf("scan digest: %w", err)
		}
		out[qid] = digest
	}
	return out, rows.Err()
}
