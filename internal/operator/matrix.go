// Package operator holds the versioned linear operators that couple events
// into the state. A written version is immutable; learning always writes a
// new version and repoints the live binding.
package operator

import (
	"math"
	"sort"
)

// Epsilon is the magnitude below which an entry is treated as zero and not
// stored.
const Epsilon = 1e-8

// #region matrix
// Key addresses one sparse entry.
type Key struct {
	Row int
	Col int
}

// SparseMatrix is one operator version. Rows is the output (state)
// dimension, Cols the input (feature) dimension.
type SparseMatrix struct {
	Name          string
	Version       int
	Rows          int
	Cols          int
	Entries       map[Key]float64
	Meta          map[string]string
	ParentVersion int
}

// New returns an empty matrix of the given shape.
func New(name string, version, rows, cols int) *SparseMatrix {
	return &SparseMatrix{
		Name:    name,
		Version: version,
		Rows:    rows,
		Cols:    cols,
		Entries: make(map[Key]float64),
	}
}

// NewIdentity returns a dim×dim identity operator.
func NewIdentity(name string, version, dim int) *SparseMatrix {
	m := New(name, version, dim, dim)
	for i := 0; i < dim; i++ {
		m.Entries[Key{Row: i, Col: i}] = 1.0
	}
	return m
}
// #endregion matrix

// #region access
// Get reads one entry, 0 when absent.
func (m *SparseMatrix) Get(row, col int) float64 {
	return m.Entries[Key{Row: row, Col: col}]
}

// Set writes one entry, deleting it when the value is effectively zero.
// Out-of-shape coordinates are ignored.
func (m *SparseMatrix) Set(row, col int, v float64) {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return
	}
	k := Key{Row: row, Col: col}
	if math.Abs(v) < Epsilon {
		delete(m.Entries, k)
		return
	}
	m.Entries[k] = v
}

// Clone returns a deep copy sharing nothing with the receiver.
func (m *SparseMatrix) Clone() *SparseMatrix {
	out := &SparseMatrix{
		Name:          m.Name,
		Version:       m.Version,
		Rows:          m.Rows,
		Cols:          m.Cols,
		Entries:       make(map[Key]float64, len(m.Entries)),
		ParentVersion: m.ParentVersion,
	}
	for k, v := range m.Entries {
		out.Entries[k] = v
	}
	if m.Meta != nil {
		out.Meta = make(map[string]string, len(m.Meta))
		for k, v := range m.Meta {
			out.Meta[k] = v
		}
	}
	return out
}
// #endregion access

// #region math
// Apply computes y = M·x. Input components beyond Cols and entries beyond
// len(x) are ignored rather than failing: operators written for a smaller
// space stay usable after the space grows.
func (m *SparseMatrix) Apply(x []float64) []float64 {
	y := make([]float64, m.Rows)
	for k, v := range m.Entries {
		if k.Col >= len(x) || k.Row >= len(y) {
			continue
		}
		y[k.Row] += v * x[k.Col]
	}
	return y
}

// FrobeniusNorm returns sqrt(Σ v²) over the stored entries.
func (m *SparseMatrix) FrobeniusNorm() float64 {
	var sum float64
	for _, v := range m.Entries {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// DeltaFrobenius returns the Frobenius norm of (m − other).
func (m *SparseMatrix) DeltaFrobenius(other *SparseMatrix) float64 {
	var sum float64
	for k, v := range m.Entries {
		d := v - other.Entries[k]
		sum += d * d
	}
	for k, v := range other.Entries {
		if _, ok := m.Entries[k]; !ok {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}
// #endregion math

// #region triples
// Triple is one entry in row-major order.
type Triple struct {
	Row int
	Col int
	V   float64
}

// Triples returns the entries sorted row-major, for stable storage and
// inspection.
func (m *SparseMatrix) Triples() []Triple {
	out := make([]Triple, 0, len(m.Entries))
	for k, v := range m.Entries {
		out = append(out, Triple{Row: k.Row, Col: k.Col, V: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}
// #endregion triples
