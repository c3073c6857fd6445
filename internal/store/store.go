package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite scan journal: sessions, rounds, and the evidence
// posted in each round.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled. The
// parent directory is created if missing.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Open opens the journal at dbPath and migrates it.
func Open(dbPath string) (*Store, error) {
	s, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the journal tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sessions (
  id              TEXT PRIMARY KEY,
  report_id       TEXT NOT NULL,
  organization_id TEXT NOT NULL,
  commit_hash     TEXT,
  branch_name     TEXT,
  repo_url        TEXT,
  started_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS rounds (
  id              INTEGER PRIMARY KEY,
  session_id      TEXT NOT NULL REFERENCES sessions(id),
  number          INTEGER NOT NULL,
  status          TEXT NOT NULL,
  query_count     INTEGER DEFAULT 0,
  record_count    INTEGER DEFAULT 0,
  error           TEXT,
  started_at      TIMESTAMP NOT NULL,
  finished_at     TIMESTAMP,
  UNIQUE(session_id, number)
);

CREATE TABLE IF NOT EXISTS evidence (
  id              INTEGER PRIMARY KEY,
  round_id        INTEGER NOT NULL REFERENCES rounds(id),
  question_id     TEXT NOT NULL,
  source_id       TEXT,
  entry_count     INTEGER NOT NULL,
  no_match        BOOLEAN DEFAULT FALSE,
  digest          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rounds_session ON rounds(session_id);
CREATE INDEX IF NOT EXISTS idx_evidence_round ON evidence(round_id);
CREATE INDEX IF NOT EXISTS idx_evidence_question ON evidence(question_id);
`
