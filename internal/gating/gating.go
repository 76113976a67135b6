// Package gating decides whether an optional organ runs on a given tick.
// Gates are probabilistic rather than thresholded: a hard threshold under
// noisy upstream scores collapses into never-run or always-run, a Bernoulli
// draw on the score does not.
package gating

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// #region gate
// Gate configures one optional organ's scheduling.
type Gate struct {
	Organ           string
	PressureAxis    string        // internal pressure axis feeding the score
	ForcedThreshold float64       // score at or above this runs deterministically
	MinInterval     time.Duration // refractory interval between runs
}

// Decision is one fully logged gate evaluation.
type Decision struct {
	Organ      string
	Score      float64
	Threshold  float64
	Sample     float64 // the uniform draw, -1 when not sampled
	Forced     bool
	Refractory bool
	Run        bool
}
// #endregion gate

// #region kernel
// Kernel evaluates gates with an explicitly owned RNG stream, seeded once
// at construction so tests can inject a deterministic stream.
type Kernel struct {
	log *zap.Logger

	mu      sync.Mutex
	gates   map[string]Gate
	rng     *rand.Rand
	lastRun map[string]time.Time
}

// NewKernel creates a gating kernel with the given gates and RNG seed.
func NewKernel(gates []Gate, seed int64, log *zap.Logger) *Kernel {
	if log == nil {
		log = zap.NewNop()
	}
	byName := make(map[string]Gate, len(gates))
	for _, g := range gates {
		byName[g.Organ] = g
	}
	return &Kernel{
		log:     log,
		gates:   byName,
		rng:     rand.New(rand.NewSource(seed)),
		lastRun: make(map[string]time.Time),
	}
}

// Gate returns the configuration for an organ, if registered.
func (k *Kernel) Gate(organ string) (Gate, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	g, ok := k.gates[organ]
	return g, ok
}
// #endregion kernel

// #region decide
// Decide evaluates one gate. pressure is the organ's internal pressure axis
// reading; proposed is an externally proposed action strength (the policy
// prior). The score is the max of the two, clipped to [0,1].
//
// Refractory wins over everything: within MinInterval of the last run the
// gate is closed regardless of score. Otherwise score ≥ ForcedThreshold
// runs deterministically, and anything below is a Bernoulli draw.
func (k *Kernel) Decide(organ string, pressure, proposed float64, now time.Time) Decision {
	k.mu.Lock()
	defer k.mu.Unlock()

	g, ok := k.gates[organ]
	if !ok {
		return Decision{Organ: organ, Sample: -1}
	}

	score := pressure
	if proposed > score {
		score = proposed
	}
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	d := Decision{Organ: organ, Score: score, Threshold: g.ForcedThreshold, Sample: -1}

	if last, ok := k.lastRun[organ]; ok && g.MinInterval > 0 && now.Sub(last) < g.MinInterval {
		d.Refractory = true
		k.logDecision(d)
		return d
	}

	if score >= g.ForcedThreshold {
		d.Forced = true
		d.Run = true
	} else {
		d.Sample = k.rng.Float64()
		d.Run = d.Sample < score
	}

	if d.Run {
		k.lastRun[organ] = now
	}
	k.logDecision(d)
	return d
}

// ResetRefractory clears the last-run record for an organ, reopening its
// gate immediately.
func (k *Kernel) ResetRefractory(organ string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.lastRun, organ)
}

func (k *Kernel) logDecision(d Decision) {
	k.log.Debug("gate decision",
		zap.String("organ", d.Organ),
		zap.Float64("score", d.Score),
		zap.Float64("threshold", d.Threshold),
		zap.Float64("sample", d.Sample),
		zap.Bool("forced", d.Forced),
		zap.Bool("refractory", d.Refractory),
		zap.Bool("run", d.Run))
}
// #endregion decide
