package plasticity

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const logSchema = `
CREATE TABLE IF NOT EXISTS matrix_update_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type      TEXT NOT NULL,
	matrix_name     TEXT NOT NULL,
	from_version    INTEGER NOT NULL,
	to_version      INTEGER NOT NULL,
	reward          REAL NOT NULL,
	delta_frobenius REAL NOT NULL,
	pain_before     REAL NOT NULL,
	pain_after      REAL,
	rolled_back     INTEGER NOT NULL DEFAULT 0,
	rollback_reason TEXT,
	created_at      TEXT NOT NULL
);
`
// #endregion schema

// #region row
// Row is one ledger entry for an operator version transition. This ledger
// is the only input the rollback mechanism needs.
type Row struct {
	ID             int64
	EventType      string
	MatrixName     string
	FromVersion    int
	ToVersion      int
	Reward         float64
	DeltaFrobenius float64
	PainBefore     float64
	PainAfter      *float64
	RolledBack     bool
	RollbackReason string
	CreatedAt      time.Time
}
// #endregion row

// #region log
// UpdateLog is the append-only matrix update ledger.
type UpdateLog struct {
	db *sql.DB
}

// NewUpdateLog creates the ledger table if needed.
func NewUpdateLog(db *sql.DB) (*UpdateLog, error) {
	if _, err := db.Exec(logSchema); err != nil {
		return nil, fmt.Errorf("migrate update log: %w", err)
	}
	return &UpdateLog{db: db}, nil
}

// Append writes a ledger row and returns its id.
func (l *UpdateLog) Append(r Row) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := l.db.Exec(
		`INSERT INTO matrix_update_log
		 (event_type, matrix_name, from_version, to_version, reward, delta_frobenius, pain_before, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.EventType, r.MatrixName, r.FromVersion, r.ToVersion,
		r.Reward, r.DeltaFrobenius, r.PainBefore,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("append update log: %w", err)
	}
	return res.LastInsertId()
}

// PendingPositive returns unevaluated rows with reward above the floor,
// oldest first. These are the updates the rollback valve must audit.
func (l *UpdateLog) PendingPositive(rewardFloor float64) ([]Row, error) {
	rows, err := l.db.Query(
		`SELECT id, event_type, matrix_name, from_version, to_version, reward,
		        delta_frobenius, pain_before, created_at
		 FROM matrix_update_log
		 WHERE reward > ? AND rolled_back = 0 AND pain_after IS NULL
		 ORDER BY id`, rewardFloor,
	)
	if err != nil {
		return nil, fmt.Errorf("pending updates: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var createdStr string
		if err := rows.Scan(&r.ID, &r.EventType, &r.MatrixName, &r.FromVersion, &r.ToVersion,
			&r.Reward, &r.DeltaFrobenius, &r.PainBefore, &createdStr); err != nil {
			return nil, fmt.Errorf("scan update row: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkEvaluated records the post-update pain reading on a row that survived
// the regression check.
func (l *UpdateLog) MarkEvaluated(id int64, painAfter float64) error {
	_, err := l.db.Exec(
		`UPDATE matrix_update_log SET pain_after = ? WHERE id = ?`, painAfter, id,
	)
	if err != nil {
		return fmt.Errorf("mark evaluated: %w", err)
	}
	return nil
}

// MarkRolledBack flags a row as reverted with its reason.
func (l *UpdateLog) MarkRolledBack(id int64, painAfter float64, reason string) error {
	_, err := l.db.Exec(
		`UPDATE matrix_update_log SET pain_after = ?, rolled_back = 1, rollback_reason = ? WHERE id = ?`,
		painAfter, reason, id,
	)
	if err != nil {
		return fmt.Errorf("mark rolled back: %w", err)
	}
	return nil
}

// Get retrieves one ledger row by id.
func (l *UpdateLog) Get(id int64) (Row, error) {
	var r Row
	var painAfter sql.NullFloat64
	var rolledBack int
	var reason sql.NullString
	var createdStr string
	err := l.db.QueryRow(
		`SELECT id, event_type, matrix_name, from_version, to_version, reward,
		        delta_frobenius, pain_before, pain_after, rolled_back, rollback_reason, created_at
		 FROM matrix_update_log WHERE id = ?`, id,
	).Scan(&r.ID, &r.EventType, &r.MatrixName, &r.FromVersion, &r.ToVersion, &r.Reward,
		&r.DeltaFrobenius, &r.PainBefore, &painAfter, &rolledBack, &reason, &createdStr)
	if err != nil {
		return Row{}, fmt.Errorf("get update row %d: %w", id, err)
	}
	if painAfter.Valid {
		v := painAfter.Float64
		r.PainAfter = &v
	}
	r.RolledBack = rolledBack != 0
	if reason.Valid {
		r.RollbackReason = reason.String
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return r, nil
}

// Recent returns the newest ledger rows.
func (l *UpdateLog) Recent(limit int) ([]Row, error) {
	rows, err := l.db.Query(
		`SELECT id FROM matrix_update_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent updates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		r, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
// #endregion log
