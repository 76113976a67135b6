// Package adapter maps event types to the encoder and live operator
// version that handle them. The binding is the organism's only mutable
// pointer into operator history: learning advances it, rollback rewinds it.
package adapter

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS adapter_bindings (
	event_type     TEXT PRIMARY KEY,
	encoder_name   TEXT NOT NULL,
	matrix_name    TEXT NOT NULL,
	matrix_version INTEGER NOT NULL,
	updated_at     TEXT NOT NULL
);
`
// #endregion schema

// #region binding
// Binding routes one event type.
type Binding struct {
	EventType     string
	EncoderName   string
	MatrixName    string
	MatrixVersion int
}
// #endregion binding

// #region registry
// Registry persists the event-type bindings.
type Registry struct {
	db *sql.DB
}

// NewRegistry opens the binding table on the shared connection.
func NewRegistry(db *sql.DB) (*Registry, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate bindings: %w", err)
	}
	return &Registry{db: db}, nil
}

// Get returns the binding for an event type; ok is false when none is
// registered.
func (r *Registry) Get(eventType string) (Binding, bool, error) {
	b := Binding{EventType: eventType}
	err := r.db.QueryRow(
		`SELECT encoder_name, matrix_name, matrix_version FROM adapter_bindings WHERE event_type = ?`,
		eventType,
	).Scan(&b.EncoderName, &b.MatrixName, &b.MatrixVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Binding{}, false, nil
	}
	if err != nil {
		return Binding{}, false, fmt.Errorf("get binding %q: %w", eventType, err)
	}
	return b, true, nil
}

// Upsert writes or replaces the binding for its event type.
func (r *Registry) Upsert(b Binding) error {
	_, err := r.db.Exec(
		`INSERT INTO adapter_bindings (event_type, encoder_name, matrix_name, matrix_version, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(event_type) DO UPDATE SET
		   encoder_name = excluded.encoder_name,
		   matrix_name = excluded.matrix_name,
		   matrix_version = excluded.matrix_version,
		   updated_at = excluded.updated_at`,
		b.EventType, b.EncoderName, b.MatrixName, b.MatrixVersion,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert binding %q: %w", b.EventType, err)
	}
	return nil
}

// All returns every binding, ordered by event type.
func (r *Registry) All() ([]Binding, error) {
	rows, err := r.db.Query(
		`SELECT event_type, encoder_name, matrix_name, matrix_version FROM adapter_bindings ORDER BY event_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	var out []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.EventType, &b.EncoderName, &b.MatrixName, &b.MatrixVersion); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
// #endregion registry
