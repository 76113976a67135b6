package operator

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested operator version does not exist.
var ErrNotFound = errors.New("operator version not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS operators (
	matrix_name    TEXT NOT NULL,
	version        INTEGER NOT NULL,
	rows           INTEGER NOT NULL,
	cols           INTEGER NOT NULL,
	parent_version INTEGER NOT NULL DEFAULT 0,
	meta_json      TEXT,
	created_at     TEXT NOT NULL,
	PRIMARY KEY (matrix_name, version)
);

CREATE TABLE IF NOT EXISTS operator_entries (
	matrix_name TEXT NOT NULL,
	version     INTEGER NOT NULL,
	row         INTEGER NOT NULL,
	col         INTEGER NOT NULL,
	value       REAL NOT NULL,
	PRIMARY KEY (matrix_name, version, row, col),
	FOREIGN KEY (matrix_name, version) REFERENCES operators (matrix_name, version)
);

CREATE TABLE IF NOT EXISTS operator_audit (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	matrix_name TEXT NOT NULL,
	version     INTEGER NOT NULL,
	action      TEXT NOT NULL,
	note        TEXT,
	created_at  TEXT NOT NULL
);
`
// #endregion schema

// #region store
// Store persists operator versions. Versions are written once; a write to
// an existing (name, version) replaces it atomically and leaves an audit
// row, so a retried bootstrap cannot fork history silently.
type Store struct {
	db *sql.DB
}

// NewStore opens the operator tables on the shared connection.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate operators: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion store

// #region put
// Put writes one operator version in a single transaction.
func (s *Store) Put(m *SparseMatrix) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var exists int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM operators WHERE matrix_name = ? AND version = ?`,
		m.Name, m.Version,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s v%d: %w", m.Name, m.Version, err)
	}
	action := "created"
	if exists > 0 {
		action = "replaced"
		if _, err := tx.Exec(
			`DELETE FROM operator_entries WHERE matrix_name = ? AND version = ?`,
			m.Name, m.Version,
		); err != nil {
			return fmt.Errorf("clear %s v%d: %w", m.Name, m.Version, err)
		}
		if _, err := tx.Exec(
			`DELETE FROM operators WHERE matrix_name = ? AND version = ?`,
			m.Name, m.Version,
		); err != nil {
			return fmt.Errorf("clear %s v%d header: %w", m.Name, m.Version, err)
		}
	}

	var metaJSON []byte
	if len(m.Meta) > 0 {
		metaJSON, err = json.Marshal(m.Meta)
		if err != nil {
			return fmt.Errorf("encode meta: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO operators (matrix_name, version, rows, cols, parent_version, meta_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Name, m.Version, m.Rows, m.Cols, m.ParentVersion, nullableString(metaJSON), now,
	); err != nil {
		return fmt.Errorf("insert %s v%d: %w", m.Name, m.Version, err)
	}

	entryStmt, err := tx.Prepare(
		`INSERT INTO operator_entries (matrix_name, version, row, col, value) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare entries: %w", err)
	}
	defer entryStmt.Close()
	for _, t := range m.Triples() {
		if _, err := entryStmt.Exec(m.Name, m.Version, t.Row, t.Col, t.V); err != nil {
			return fmt.Errorf("insert entry (%d,%d): %w", t.Row, t.Col, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO operator_audit (matrix_name, version, action, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.Name, m.Version, action, m.Meta["note"], now,
	); err != nil {
		return fmt.Errorf("audit %s v%d: %w", m.Name, m.Version, err)
	}

	return tx.Commit()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
// #endregion put

// #region get
// Get loads one operator version. Returns ErrNotFound when absent.
func (s *Store) Get(name string, version int) (*SparseMatrix, error) {
	var rows, cols, parent int
	var metaJSON sql.NullString
	err := s.db.QueryRow(
		`SELECT rows, cols, parent_version, meta_json FROM operators WHERE matrix_name = ? AND version = ?`,
		name, version,
	).Scan(&rows, &cols, &parent, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s v%d: %w", name, version, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s v%d: %w", name, version, err)
	}

	m := New(name, version, rows, cols)
	m.ParentVersion = parent
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &m.Meta); err != nil {
			return nil, fmt.Errorf("decode meta %s v%d: %w", name, version, err)
		}
	}

	entryRows, err := s.db.Query(
		`SELECT row, col, value FROM operator_entries WHERE matrix_name = ? AND version = ?`,
		name, version,
	)
	if err != nil {
		return nil, fmt.Errorf("load entries %s v%d: %w", name, version, err)
	}
	defer entryRows.Close()
	for entryRows.Next() {
		var r, c int
		var v float64
		if err := entryRows.Scan(&r, &c, &v); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		m.Entries[Key{Row: r, Col: c}] = v
	}
	return m, entryRows.Err()
}

// Info describes one stored version without its entries.
type Info struct {
	Name          string
	Version       int
	Rows          int
	Cols          int
	ParentVersion int
	CreatedAt     time.Time
}

// List returns every stored version of a named operator, oldest first.
func (s *Store) List(name string) ([]Info, error) {
	rows, err := s.db.Query(
		`SELECT version, rows, cols, parent_version, created_at FROM operators WHERE matrix_name = ? ORDER BY version`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		info := Info{Name: name}
		var created string
		if err := rows.Scan(&info.Version, &info.Rows, &info.Cols, &info.ParentVersion, &created); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// LatestVersion returns the highest stored version, 0 when none exist.
func (s *Store) LatestVersion(name string) (int, error) {
	var v sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(version) FROM operators WHERE matrix_name = ?`, name,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("latest %s: %w", name, err)
	}
	return int(v.Int64), nil
}
// #endregion get
