package state

import "time"

// #region event
// Event is one typed input to the organism. Immutable once logged; the
// append-only event log is the system's durable record of inputs.
type Event struct {
	ID        string
	Type      string
	Payload   map[string]any
	CreatedAt time.Time
}
// #endregion event

// #region vector
// Vector is the bounded organism state over the axis registry. Every
// component lies in [0,1] after each tick.
type Vector []float64

// Clone returns an independent copy.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Grow extends the vector with zeros to at least dim components.
func (v Vector) Grow(dim int) Vector {
	if len(v) >= dim {
		return v
	}
	out := make(Vector, dim)
	copy(out, v)
	return out
}
// #endregion vector

// #region audit
// AuditEntry is one "why" record attached to a tick or snapshot.
type AuditEntry struct {
	Source string         `json:"source"`
	Note   string         `json:"note"`
	Data   map[string]any `json:"data,omitempty"`
}
// #endregion audit

// #region snapshot
// Snapshot is a persisted historical copy of the state vector with its
// audit trail.
type Snapshot struct {
	ID        string
	Values    Vector
	Audit     []AuditEntry
	CreatedAt time.Time
}
// #endregion snapshot
