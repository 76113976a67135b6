package encoder

import (
	"fmt"

	"organism/internal/axis"
	"organism/internal/state"
)

// #region webevidence
// WebEvidence encodes web-search evidence events. Fresh evidence relieves
// websense pressure and uncertainty proportionally to result count and the
// average source trust reported by the caller.
type WebEvidence struct {
	axes *axis.Registry
}

// NewWebEvidence returns the web-evidence encoder.
func NewWebEvidence(axes *axis.Registry) *WebEvidence {
	return &WebEvidence{axes: axes}
}

// Name implements Encoder.
func (e *WebEvidence) Name() string { return "webevidence" }

// Encode implements Encoder. Payload keys: "results" (count), "trust"
// (mean source trust in [0,1], defaults to 0.5).
func (e *WebEvidence) Encode(stateDim int, ev state.Event) ([]float64, []string) {
	vec := make([]float64, stateDim)
	var notes []string

	results := toFloat(ev.Payload["results"])
	trust := toFloat(ev.Payload["trust"])
	if trust == 0 {
		trust = 0.5
	}
	trust = clamp01(trust)

	yield := clamp01(results/5.0) * trust

	setAxis(vec, e.axes, "pressure_websense", -0.30*yield)
	setAxis(vec, e.axes, "uncertainty", -0.15*yield)
	setAxis(vec, e.axes, "curiosity", 0.05*(1-yield))
	setAxis(vec, e.axes, "confidence", 0.10*yield)

	notes = append(notes, fmt.Sprintf("webevidence: results=%.0f trust=%.2f yield=%.3f", results, trust, yield))
	return vec, notes
}

// toFloat coerces JSON-decoded numeric payload values.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
// #endregion webevidence
