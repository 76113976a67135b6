package encoder

import (
	"organism/internal/axis"
	"organism/internal/state"
)

// #region interface
// Encoder turns one event into a feature vector over the state space.
// Encoders are pure: same event, same dimension, same output.
type Encoder interface {
	Name() string
	Encode(stateDim int, ev state.Event) (vec []float64, notes []string)
}
// #endregion interface

// #region registry
// Registry maps encoder names to implementations.
type Registry struct {
	byName map[string]Encoder
}

// NewRegistry builds the standard encoder set over the given axis registry.
func NewRegistry(axes *axis.Registry) *Registry {
	r := &Registry{byName: make(map[string]Encoder)}
	r.Register(NewFreeText(axes))
	r.Register(NewWebEvidence(axes))
	r.Register(NewDrives(axes))
	return r
}

// Register adds or replaces an encoder by name.
func (r *Registry) Register(e Encoder) {
	r.byName[e.Name()] = e
}

// Lookup returns the encoder registered under name.
func (r *Registry) Lookup(name string) (Encoder, bool) {
	e, ok := r.byName[name]
	return e, ok
}
// #endregion registry

// #region helpers
// clamp01 restricts v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// setAxis writes a feature on a named axis if it exists and is in range.
func setAxis(vec []float64, axes *axis.Registry, name string, v float64) bool {
	idx, ok := axes.Index(name)
	if !ok || idx >= len(vec) {
		return false
	}
	vec[idx] = v
	return true
}
// #endregion helpers
