// Package replay re-derives the organism state from the durable logs
// alone. The integrator is pure, events are logged in resolved (delta)
// form, and every tick is recorded including decay-only ones, so replaying
// the logs must land on the live state exactly. A divergence means the
// logs are no longer the full story.
package replay

import (
	"fmt"
	"math"

	"organism/internal/integrator"
	"organism/internal/state"
)

// #region result
// Result is one full replay of the logs.
type Result struct {
	Ticks      int          // ticks replayed, decay-only included
	Applied    int          // events applied
	Skipped    int          // logged events never consumed by a tick
	Final      state.Vector // the re-derived state
	Divergence float64      // max abs component diff vs the live state
}
// #endregion result

// #region replay
// Replay recomputes the state from a zero vector by re-running every
// recorded tick through the integrator with exactly the events it
// originally consumed. Operators resolve through the same sources as the
// live path; version history must therefore be intact.
func Replay(store *state.Store, src integrator.Sources, cfg integrator.Config, dim int) (Result, error) {
	ticks, err := store.Ticks()
	if err != nil {
		return Result{}, fmt.Errorf("replay: %w", err)
	}
	events, tickIDs, err := store.Events()
	if err != nil {
		return Result{}, fmt.Errorf("replay: %w", err)
	}

	byTick := make(map[string][]state.Event)
	consumed := 0
	for i, ev := range events {
		if tickIDs[i] == "" {
			continue
		}
		byTick[tickIDs[i]] = append(byTick[tickIDs[i]], ev)
		consumed++
	}

	vec := make(state.Vector, dim)
	res := Result{Skipped: len(events) - consumed}
	for _, t := range ticks {
		batch := byTick[t.ID]
		vec, _ = integrator.Tick(vec, batch, src, cfg)
		res.Ticks++
		res.Applied += len(batch)
	}

	res.Final = vec
	return res, nil
}

// Verify replays the logs and compares the result against the live state.
func Verify(store *state.Store, src integrator.Sources, cfg integrator.Config) (Result, error) {
	live, err := store.GetVector()
	if err != nil {
		return Result{}, fmt.Errorf("verify: %w", err)
	}
	res, err := Replay(store, src, cfg, len(live))
	if err != nil {
		return Result{}, err
	}
	res.Divergence = Divergence(res.Final, live)
	return res, nil
}

// Divergence returns the max absolute component difference, treating
// missing components as zero.
func Divergence(a, b state.Vector) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var max float64
	for i := 0; i < n; i++ {
		var av, bv float64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if d := math.Abs(av - bv); d > max {
			max = d
		}
	}
	return max
}
// #endregion replay
