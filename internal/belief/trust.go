package belief

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// #region schema
const trustSchema = `
CREATE TABLE IF NOT EXISTS domain_trust (
	domain     TEXT PRIMARY KEY,
	trust      REAL NOT NULL,
	prev_trust REAL,
	updated_at TEXT NOT NULL
);
`
// #endregion schema

// #region trust-store
// TrustStore tracks per-domain trust for web evidence. Each write keeps the
// previous value so a correlated rollback can restore it.
type TrustStore struct {
	db *sql.DB
}

// NewTrustStore creates the domain_trust table if needed and returns a store.
func NewTrustStore(db *sql.DB) (*TrustStore, error) {
	if _, err := db.Exec(trustSchema); err != nil {
		return nil, fmt.Errorf("migrate domain trust: %w", err)
	}
	return &TrustStore{db: db}, nil
}

// Get returns the trust for a domain, defaulting to 0.5 when unknown.
func (s *TrustStore) Get(domain string) (float64, error) {
	var trust float64
	err := s.db.QueryRow(`SELECT trust FROM domain_trust WHERE domain = ?`, domain).Scan(&trust)
	if errors.Is(err, sql.ErrNoRows) {
		return 0.5, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get trust %s: %w", domain, err)
	}
	return trust, nil
}

// Set writes a domain's trust, preserving the prior value.
func (s *TrustStore) Set(domain string, trust float64) error {
	prev, err := s.Get(domain)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO domain_trust (domain, trust, prev_trust, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET prev_trust = domain_trust.trust, trust = excluded.trust, updated_at = excluded.updated_at`,
		domain, trust, prev, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set trust %s: %w", domain, err)
	}
	return nil
}

// RevertBetween restores prev_trust for domains updated in [from, to].
// Returns how many rows were reverted.
func (s *TrustStore) RevertBetween(from, to time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE domain_trust SET trust = prev_trust, updated_at = ?
		 WHERE prev_trust IS NOT NULL AND updated_at >= ? AND updated_at <= ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("revert trust: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
// #endregion trust-store
