package runtime

import (
	"organism/internal/adapter"
	"organism/internal/integrator"
	"organism/internal/operator"
	"organism/internal/plasticity"
	"organism/internal/replay"
	"organism/internal/state"
)

// VerifyReplay re-derives the state from the durable logs and reports the
// divergence from the live vector.
func (e *Engine) VerifyReplay() (replay.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	src := integrator.Sources{Bindings: e.bindings, Encoders: e.encoders, Operators: e.ops}
	return replay.Verify(e.store, src, integrator.Config{
		Decay:  e.cfg.Heartbeat.Decay,
		ClipLo: e.cfg.Heartbeat.ClipLo,
		ClipHi: e.cfg.Heartbeat.ClipHi,
	})
}

// Bindings returns the live event-type routing.
func (e *Engine) Bindings() ([]adapter.Binding, error) {
	return e.bindings.All()
}

// OperatorHistory returns every stored version of a named operator.
func (e *Engine) OperatorHistory(name string) ([]operator.Info, error) {
	return e.ops.List(name)
}

// Snapshots returns the most recent persisted snapshots.
func (e *Engine) Snapshots(limit int) ([]state.Snapshot, error) {
	return e.store.ListSnapshots(limit)
}

// UpdateHistory returns the most recent plasticity ledger rows.
func (e *Engine) UpdateHistory(limit int) ([]plasticity.Row, error) {
	return e.updates.Recent(limit)
}
