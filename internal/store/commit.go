package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CommitRound finalizes r and inserts its evidence rows within a single
// transaction. r.Status, QueryCount, RecordCount and Error are written as
// given; FinishedAt is set to now. Evidence rows get r.ID as their round.
func (s *Store) CommitRound(r *Round, evidence []Evidence) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit round: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.Exec(
		`UPDATE rounds SET status = ?, query_count = ?, record_count = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		r.Status, r.QueryCount, r.RecordCount, nullString(r.Error), now, r.ID,
	)
	if err != nil {
		return fmt.Errorf("commit round: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("commit round: round %d not found", r.ID)
	}
	r.FinishedAt = &now

	for i := range evidence {
		e := &evidence[i]
		e.RoundID = r.ID
		id, err := insertEvidenceTx(tx, e)
		if err != nil {
			return fmt.Errorf("commit round: evidence %q: %w", e.QuestionID, err)
		}
		e.ID = id
	}

	return tx.Commit()
}

func insertEvidenceTx(tx *sql.Tx, e *Evidence) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO evidence (round_id, question_id, source_id, entry_count, no_match, digest)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.RoundID, e.QuestionID, e.SourceID, e.EntryCount, e.NoMatch, e.Digest,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
