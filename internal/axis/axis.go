// Package axis owns the named dimensions of the state vector. Axes are
// append-only: an axis keeps its index forever, so every stored vector and
// operator stays valid as the space grows.
package axis

import (
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS axes (
	axis_name  TEXT PRIMARY KEY,
	idx        INTEGER NOT NULL UNIQUE,
	protected  INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
`
// #endregion schema

// #region registry
// Registry is the persistent axis table with an in-memory index.
type Registry struct {
	db *sql.DB

	mu        sync.RWMutex
	byName    map[string]int
	byIndex   []string
	protected map[string]bool
}

// NewRegistry opens the axis table on the shared connection and loads it.
func NewRegistry(db *sql.DB) (*Registry, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate axes: %w", err)
	}
	r := &Registry{
		db:        db,
		byName:    make(map[string]int),
		protected: make(map[string]bool),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	rows, err := r.db.Query(`SELECT axis_name, idx, protected FROM axes ORDER BY idx`)
	if err != nil {
		return fmt.Errorf("load axes: %w", err)
	}
	defer rows.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	for rows.Next() {
		var name string
		var idx, prot int
		if err := rows.Scan(&name, &idx, &prot); err != nil {
			return fmt.Errorf("scan axis: %w", err)
		}
		r.byName[name] = idx
		for len(r.byIndex) <= idx {
			r.byIndex = append(r.byIndex, "")
		}
		r.byIndex[idx] = name
		if prot != 0 {
			r.protected[name] = true
		}
	}
	return rows.Err()
}
// #endregion registry

// #region ensure
// Ensure registers an axis if absent and returns its index.
func (r *Registry) Ensure(name string) (int, error) {
	return r.ensure(name, false)
}

// EnsureProtected registers an axis as protected. An existing axis is
// upgraded; protection is never removed.
func (r *Registry) EnsureProtected(name string) (int, error) {
	return r.ensure(name, true)
}

func (r *Registry) ensure(name string, protected bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byName[name]; ok {
		if protected && !r.protected[name] {
			if _, err := r.db.Exec(`UPDATE axes SET protected = 1 WHERE axis_name = ?`, name); err != nil {
				return 0, fmt.Errorf("protect axis %q: %w", name, err)
			}
			r.protected[name] = true
		}
		return idx, nil
	}

	idx := len(r.byIndex)
	prot := 0
	if protected {
		prot = 1
	}
	_, err := r.db.Exec(
		`INSERT INTO axes (axis_name, idx, protected, created_at) VALUES (?, ?, ?, ?)`,
		name, idx, prot, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("register axis %q: %w", name, err)
	}
	r.byName[name] = idx
	r.byIndex = append(r.byIndex, name)
	if protected {
		r.protected[name] = true
	}
	return idx, nil
}
// #endregion ensure

// #region lookup
// Index returns the vector index of a named axis.
func (r *Registry) Index(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	return idx, ok
}

// Name returns the axis name at a vector index.
func (r *Registry) Name(idx int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.byIndex) || r.byIndex[idx] == "" {
		return "", false
	}
	return r.byIndex[idx], true
}

// Names returns every axis name in index order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.byIndex))
	copy(out, r.byIndex)
	return out
}

// Count returns the state dimension.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIndex)
}

// IsProtected reports whether a named axis is protected from untrusted
// operator coupling.
func (r *Registry) IsProtected(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.protected[name]
}

// ProtectedSet returns the protected indices as a set.
func (r *Registry) ProtectedSet() map[int]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]bool, len(r.protected))
	for name := range r.protected {
		out[r.byName[name]] = true
	}
	return out
}
// #endregion lookup
