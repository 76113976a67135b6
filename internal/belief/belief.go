package belief

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region schema
const beliefSchema = `
CREATE TABLE IF NOT EXISTS beliefs (
	belief_id  TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT 'organ',
	confidence REAL NOT NULL DEFAULT 0.5,
	created_at TEXT NOT NULL
);
`
// #endregion schema

// #region types
// Belief is one extracted proposition the organism holds.
type Belief struct {
	ID         string
	Text       string
	Source     string // "organ" | "user" | "websense"
	Confidence float64
	CreatedAt  time.Time
}
// #endregion types

// #region store
// Store persists beliefs. Writes carry timestamps so the rollback valve can
// revert everything learned inside a bad update's window.
type Store struct {
	db *sql.DB
}

// NewStore creates the beliefs table if needed and returns a store.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(beliefSchema); err != nil {
		return nil, fmt.Errorf("migrate beliefs: %w", err)
	}
	return &Store{db: db}, nil
}

// Add stores a belief and returns its id.
func (s *Store) Add(text, source string, confidence float64) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO beliefs (belief_id, text, source, confidence, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, text, source, confidence, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("add belief: %w", err)
	}
	return id, nil
}

// Recent returns the newest beliefs.
func (s *Store) Recent(limit int) ([]Belief, error) {
	rows, err := s.db.Query(
		`SELECT belief_id, text, source, confidence, created_at
		 FROM beliefs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent beliefs: %w", err)
	}
	defer rows.Close()

	var out []Belief
	for rows.Next() {
		var b Belief
		var createdStr string
		if err := rows.Scan(&b.ID, &b.Text, &b.Source, &b.Confidence, &createdStr); err != nil {
			return nil, fmt.Errorf("scan belief: %w", err)
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBetween removes beliefs created in [from, to] and returns how many
// were removed.
func (s *Store) DeleteBetween(from, to time.Time) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM beliefs WHERE created_at >= ? AND created_at <= ?`,
		from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("delete beliefs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
// #endregion store
