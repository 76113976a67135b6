package integrator

import (
	"fmt"

	"organism/internal/adapter"
	"organism/internal/encoder"
	"organism/internal/operator"
	"organism/internal/state"
)

// #region config
// Config holds the core-equation parameters.
type Config struct {
	Decay  float64 // global scalar decay per tick
	ClipLo float64
	ClipHi float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Decay:  0.995,
		ClipLo: 0.0,
		ClipHi: 1.0,
	}
}
// #endregion config

// #region sources
// Sources bundles the lookups a tick needs: which binding handles an event
// type, which encoder it names, and which operator version is live.
type Sources struct {
	Bindings  *adapter.Registry
	Encoders  *encoder.Registry
	Operators *operator.Store
}
// #endregion sources

// #region tick
// Tick applies the core equation once:
//
//	S' = clip(decay·S + Σ_k A_k·φ(E_k))
//
// Events are applied strictly in the given order; a bad binding skips that
// event with an audit note and never fails the tick. The returned audit
// trail is the tick's "why".
func Tick(vec state.Vector, events []state.Event, src Sources, cfg Config) (state.Vector, []state.AuditEntry) {
	next := vec.Clone()
	audit := make([]state.AuditEntry, 0, len(events)+2)

	for i := range next {
		next[i] *= cfg.Decay
	}
	audit = append(audit, state.AuditEntry{
		Source: "integrator",
		Note:   fmt.Sprintf("decay applied: %.4f", cfg.Decay),
	})

	for _, ev := range events {
		entry := applyEvent(next, ev, src)
		audit = append(audit, entry)
	}

	clipped := 0
	for i, v := range next {
		if v < cfg.ClipLo {
			next[i] = cfg.ClipLo
			clipped++
		} else if v > cfg.ClipHi {
			next[i] = cfg.ClipHi
			clipped++
		}
	}
	audit = append(audit, state.AuditEntry{
		Source: "integrator",
		Note:   fmt.Sprintf("clip [%.2f,%.2f]: %d components clamped", cfg.ClipLo, cfg.ClipHi, clipped),
	})

	return next, audit
}

// applyEvent accumulates one event's contribution into next in place.
func applyEvent(next state.Vector, ev state.Event, src Sources) state.AuditEntry {
	binding, ok, err := src.Bindings.Get(ev.Type)
	if err != nil {
		return gapEntry(ev, fmt.Sprintf("binding lookup failed: %v", err))
	}
	if !ok {
		return gapEntry(ev, "no adapter binding registered")
	}

	enc, ok := src.Encoders.Lookup(binding.EncoderName)
	if !ok {
		return gapEntry(ev, fmt.Sprintf("encoder %q not registered", binding.EncoderName))
	}

	m, err := src.Operators.Get(binding.MatrixName, binding.MatrixVersion)
	if err != nil {
		return gapEntry(ev, fmt.Sprintf("operator %s v%d unavailable: %v", binding.MatrixName, binding.MatrixVersion, err))
	}

	x, notes := enc.Encode(len(next), ev)
	y := m.Apply(x)
	for i := 0; i < len(next) && i < len(y); i++ {
		next[i] += y[i]
	}

	return state.AuditEntry{
		Source: "integrator",
		Note:   fmt.Sprintf("applied %s via %s v%d", ev.Type, binding.MatrixName, binding.MatrixVersion),
		Data: map[string]any{
			"event_id": ev.ID,
			"encoder":  binding.EncoderName,
			"notes":    notes,
		},
	}
}

func gapEntry(ev state.Event, note string) state.AuditEntry {
	return state.AuditEntry{
		Source: "integrator",
		Note:   fmt.Sprintf("skipped %s: %s", ev.Type, note),
		Data:   map[string]any{"event_id": ev.ID},
	}
}
// #endregion tick
