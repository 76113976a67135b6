package health

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS health_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	component  TEXT NOT NULL,
	ok         INTEGER NOT NULL,
	latency_ms REAL NOT NULL,
	error      TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_health_log_created ON health_log (created_at);
`
// #endregion schema

// #region types
// Entry is one measured call into an external boundary. Written
// unconditionally, success or failure.
type Entry struct {
	Component string
	OK        bool
	LatencyMS float64
	Error     string
	CreatedAt time.Time
}
// #endregion types

// #region store
// Store persists the health log and answers the aggregate queries that
// feed the homeostatic model.
type Store struct {
	db *sql.DB
}

// NewStore creates the health_log table if needed and returns a store.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate health: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one entry.
func (s *Store) Record(e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	var errStr interface{}
	if e.Error != "" {
		errStr = e.Error
	}
	_, err := s.db.Exec(
		`INSERT INTO health_log (component, ok, latency_ms, error, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.Component, ok, e.LatencyMS, errStr, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record health: %w", err)
	}
	return nil
}
// #endregion store

// #region queries
// ErrRate returns the failure fraction over the window, 0 when idle.
func (s *Store) ErrRate(window time.Duration) (float64, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339Nano)
	var total, failed float64
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END), 0)
		 FROM health_log WHERE created_at >= ?`, cutoff,
	).Scan(&total, &failed)
	if err != nil {
		return 0, fmt.Errorf("err rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return failed / total, nil
}

// P95Latency returns the 95th-percentile latency in milliseconds over the
// window, 0 when idle.
func (s *Store) P95Latency(window time.Duration) (float64, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339Nano)
	rows, err := s.db.Query(
		`SELECT latency_ms FROM health_log WHERE created_at >= ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("p95 latency: %w", err)
	}
	defer rows.Close()

	var lats []float64
	for rows.Next() {
		var l float64
		if err := rows.Scan(&l); err != nil {
			return 0, fmt.Errorf("scan latency: %w", err)
		}
		lats = append(lats, l)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(lats) == 0 {
		return 0, nil
	}
	sort.Float64s(lats)
	idx := int(float64(len(lats))*0.95) - 1
	if idx < 0 {
		idx = 0
	}
	return lats[idx], nil
}

// Recent returns the latest entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT component, ok, latency_ms, error, created_at
		 FROM health_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent health: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ok int
		var errStr sql.NullString
		var createdStr string
		if err := rows.Scan(&e.Component, &ok, &e.LatencyMS, &errStr, &createdStr); err != nil {
			return nil, fmt.Errorf("scan health: %w", err)
		}
		e.OK = ok != 0
		if errStr.Valid {
			e.Error = errStr.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion queries
