package encoder

import (
	"fmt"

	"organism/internal/axis"
	"organism/internal/state"
)

// #region drives
// Drives encodes the generic drive-field shape that organs and internal
// couplings emit: {"drives": {axis_name: delta, ...}}. Target-mode payloads
// are resolved to deltas by the heartbeat before they reach the log, so by
// the time an event is encoded the values are always deltas.
type Drives struct {
	axes *axis.Registry
}

// NewDrives returns the drive-field encoder.
func NewDrives(axes *axis.Registry) *Drives {
	return &Drives{axes: axes}
}

// Name implements Encoder.
func (e *Drives) Name() string { return "drives" }

// Encode implements Encoder.
func (e *Drives) Encode(stateDim int, ev state.Event) ([]float64, []string) {
	vec := make([]float64, stateDim)
	var notes []string

	raw, ok := ev.Payload["drives"]
	if !ok {
		notes = append(notes, "no drives in payload")
		return vec, notes
	}

	drives, ok := raw.(map[string]any)
	if !ok {
		// Direct float maps occur when the event was built in-process
		// rather than decoded from JSON.
		if direct, ok2 := raw.(map[string]float64); ok2 {
			drives = make(map[string]any, len(direct))
			for k, v := range direct {
				drives[k] = v
			}
		} else {
			notes = append(notes, "malformed drives payload")
			return vec, notes
		}
	}

	applied := 0
	for name, v := range drives {
		if setAxis(vec, e.axes, name, toFloat(v)) {
			applied++
		} else {
			notes = append(notes, fmt.Sprintf("unknown axis %q skipped", name))
		}
	}
	notes = append(notes, fmt.Sprintf("drives: %d of %d axes applied", applied, len(drives)))
	return vec, notes
}
// #endregion drives
