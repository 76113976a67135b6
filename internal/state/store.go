package state

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS current_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	dim        INTEGER NOT NULL,
	state_vec  BLOB NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS state_snapshots (
	snapshot_id TEXT PRIMARY KEY,
	dim         INTEGER NOT NULL,
	state_vec   BLOB NOT NULL,
	audit_json  TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
	event_id     TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	payload_json TEXT,
	created_at   TEXT NOT NULL,
	tick_id      TEXT,
	consumed_at  TEXT
);

CREATE INDEX IF NOT EXISTS idx_event_log_created ON event_log (created_at);

CREATE TABLE IF NOT EXISTS ticks (
	tick_id        TEXT PRIMARY KEY,
	seq            INTEGER NOT NULL,
	events_applied INTEGER NOT NULL,
	created_at     TEXT NOT NULL
);
`
// #endregion schema

// #region store
// Store owns the organism database: current state, snapshots, event log.
// Other packages create their own tables on the shared connection.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate state: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the shared *sql.DB for the other organism stores.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion store

// #region vector-io
// InitVector creates a zero current-state row of the given dimension if no
// current state exists yet.
func (s *Store) InitVector(dim int) (Vector, error) {
	cur, err := s.GetVector()
	if err == nil {
		return cur.Grow(dim), nil
	}
	vec := make(Vector, dim)
	_, err = s.db.Exec(
		`INSERT INTO current_state (id, dim, state_vec, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		dim, encodeVector(vec), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("init vector: %w", err)
	}
	return vec, nil
}

// GetVector reads the current state vector.
func (s *Store) GetVector() (Vector, error) {
	var dim int
	var blob []byte
	err := s.db.QueryRow(`SELECT dim, state_vec FROM current_state WHERE id = 1`).Scan(&dim, &blob)
	if err != nil {
		return nil, fmt.Errorf("get current state: %w", err)
	}
	return decodeVector(blob, dim), nil
}

// SetVector replaces the current state vector.
func (s *Store) SetVector(v Vector) error {
	_, err := s.db.Exec(
		`INSERT INTO current_state (id, dim, state_vec, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET dim = excluded.dim, state_vec = excluded.state_vec, updated_at = excluded.updated_at`,
		len(v), encodeVector(v), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set current state: %w", err)
	}
	return nil
}
// #endregion vector-io

// #region snapshots
// SaveSnapshot persists a historical copy of the state with its audit trail.
func (s *Store) SaveSnapshot(v Vector, audit []AuditEntry) (string, error) {
	id := uuid.New().String()
	var auditJSON interface{}
	if len(audit) > 0 {
		b, err := json.Marshal(audit)
		if err != nil {
			return "", fmt.Errorf("marshal audit: %w", err)
		}
		auditJSON = string(b)
	}
	_, err := s.db.Exec(
		`INSERT INTO state_snapshots (snapshot_id, dim, state_vec, audit_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, len(v), encodeVector(v), auditJSON, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return id, nil
}

// ListSnapshots returns the most recent snapshots, newest first.
func (s *Store) ListSnapshots(limit int) ([]Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT snapshot_id, dim, state_vec, audit_json, created_at
		 FROM state_snapshots ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var dim int
		var blob []byte
		var auditJSON sql.NullString
		var createdStr string
		if err := rows.Scan(&snap.ID, &dim, &blob, &auditJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Values = decodeVector(blob, dim)
		if auditJSON.Valid {
			if err := json.Unmarshal([]byte(auditJSON.String), &snap.Audit); err != nil {
				return nil, fmt.Errorf("unmarshal audit: %w", err)
			}
		}
		snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, snap)
	}
	return out, rows.Err()
}
// #endregion snapshots

// #region event-log
// AppendEvent writes one event to the durable log.
func (s *Store) AppendEvent(ev Event) error {
	var payloadJSON interface{}
	if len(ev.Payload) > 0 {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		payloadJSON = string(b)
	}
	_, err := s.db.Exec(
		`INSERT INTO event_log (event_id, event_type, payload_json, created_at) VALUES (?, ?, ?, ?)`,
		ev.ID, ev.Type, payloadJSON, ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// MarkConsumed stamps events as consumed by the given tick.
func (s *Store) MarkConsumed(eventIDs []string, tickID string, at time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE event_log SET tick_id = ?, consumed_at = ? WHERE event_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare consume: %w", err)
	}
	defer stmt.Close()

	ts := at.UTC().Format(time.RFC3339Nano)
	for _, id := range eventIDs {
		if _, err := stmt.Exec(tickID, ts, id); err != nil {
			return fmt.Errorf("mark consumed %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Events returns the full event log in insertion order. tick_id groups
// events that were applied in the same tick, which is what replay needs.
// Ordering is by rowid: RFC3339Nano trims trailing fractional zeros, so
// the timestamp strings do not sort chronologically.
func (s *Store) Events() ([]Event, []string, error) {
	rows, err := s.db.Query(
		`SELECT event_id, event_type, payload_json, created_at, tick_id
		 FROM event_log ORDER BY rowid`,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	var tickIDs []string
	for rows.Next() {
		var ev Event
		var payloadJSON, tickID sql.NullString
		var createdStr string
		if err := rows.Scan(&ev.ID, &ev.Type, &payloadJSON, &createdStr, &tickID); err != nil {
			return nil, nil, fmt.Errorf("scan event: %w", err)
		}
		if payloadJSON.Valid {
			if err := json.Unmarshal([]byte(payloadJSON.String), &ev.Payload); err != nil {
				return nil, nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		events = append(events, ev)
		tickIDs = append(tickIDs, tickID.String)
	}
	return events, tickIDs, rows.Err()
}

// RecordTick logs one tick, including decay-only ticks with no events.
// Replay needs every tick: decay applies per tick whether or not events
// arrived.
func (s *Store) RecordTick(tickID string, seq, eventsApplied int, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO ticks (tick_id, seq, events_applied, created_at) VALUES (?, ?, ?, ?)`,
		tickID, seq, eventsApplied, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record tick: %w", err)
	}
	return nil
}

// TickRecord is one logged tick.
type TickRecord struct {
	ID            string
	Seq           int
	EventsApplied int
	CreatedAt     time.Time
}

// Ticks returns every logged tick in insertion order, which is the order
// the live heartbeat applied them. seq restarts per process and the
// timestamp strings do not sort chronologically, so rowid is the ordering
// replay relies on.
func (s *Store) Ticks() ([]TickRecord, error) {
	rows, err := s.db.Query(`SELECT tick_id, seq, events_applied, created_at FROM ticks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list ticks: %w", err)
	}
	defer rows.Close()

	var out []TickRecord
	for rows.Next() {
		var t TickRecord
		var createdStr string
		if err := rows.Scan(&t.ID, &t.Seq, &t.EventsApplied, &createdStr); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountEventsSince counts logged events of a type newer than since.
func (s *Store) CountEventsSince(eventType string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM event_log WHERE event_type = ? AND created_at >= ?`,
		eventType, since.UTC().Format(time.RFC3339Nano),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
// #endregion event-log

// #region vector-encoding
func encodeVector(v Vector) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte, dim int) Vector {
	v := make(Vector, dim)
	for i := range v {
		if i*8+8 <= len(b) {
			v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
		}
	}
	return v
}
// #endregion vector-encoding
