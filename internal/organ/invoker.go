package organ

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"organism/internal/health"
	"organism/internal/state"
)

// #region config
// InvokerConfig holds the organ-call policy.
type InvokerConfig struct {
	Timeout time.Duration
	// Homeostatic cost of external compute per second of wall-clock time.
	EnergyCostPerSec  float64
	FatigueGainPerSec float64
	StressGainPerSec  float64
}

// DefaultInvokerConfig returns the production defaults.
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		Timeout:           45 * time.Second,
		EnergyCostPerSec:  0.004,
		FatigueGainPerSec: 0.002,
		StressGainPerSec:  0.001,
	}
}
// #endregion config

// #region enqueuer
// Enqueuer is the slice of the heartbeat the invoker needs to bill compute
// cost back into the state.
type Enqueuer interface {
	Enqueue(ev state.Event) error
}
// #endregion enqueuer

// #region invoker
// Invoker serializes all organ calls behind one lock: the external
// inference service is single-capacity, so concurrent calls would thrash
// it, not parallelize it. Every call is measured into the health log,
// success or failure, and billed against the energy axis proportionally to
// wall-clock time.
type Invoker struct {
	mu     sync.Mutex
	health *health.Store
	hb     Enqueuer
	cfg    InvokerConfig
	log    *zap.Logger
}

// NewInvoker wires an invoker. hb may be nil in tests; health must not be.
func NewInvoker(healthStore *health.Store, hb Enqueuer, cfg InvokerConfig, log *zap.Logger) *Invoker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Invoker{health: healthStore, hb: hb, cfg: cfg, log: log}
}

// Invoke runs one organ call under the capacity lock. Failure of the organ —
// including timeout — is an ordinary health event, not an error: the caller
// gets a neutral result and the turn proceeds.
func (v *Invoker) Invoke(ctx context.Context, o Organ, in Input) Result {
	v.mu.Lock()
	defer v.mu.Unlock()

	callCtx := ctx
	var cancel context.CancelFunc
	if v.cfg.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, v.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := o.Invoke(callCtx, in)
	elapsed := time.Since(start)

	entry := health.Entry{
		Component: "organ." + o.Name(),
		OK:        err == nil,
		LatencyMS: float64(elapsed.Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if herr := v.health.Record(entry); herr != nil {
		v.log.Warn("health record failed", zap.Error(herr))
	}

	v.billCompute(o.Name(), elapsed)

	if err != nil {
		v.log.Warn("organ call failed",
			zap.String("organ", o.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return Result{Mode: "delta"}
	}
	return res
}

// billCompute debits energy and credits fatigue/stress for the wall-clock
// cost of the call, through the ordinary trusted health event path so the
// heartbeat stays the sole state writer.
func (v *Invoker) billCompute(organName string, elapsed time.Duration) {
	if v.hb == nil {
		return
	}
	sec := elapsed.Seconds()
	if sec <= 0 {
		return
	}
	ev := state.Event{
		Type: "health",
		Payload: map[string]any{
			"drives": map[string]float64{
				"energy":  -v.cfg.EnergyCostPerSec * sec,
				"fatigue": v.cfg.FatigueGainPerSec * sec,
				"stress":  v.cfg.StressGainPerSec * sec,
			},
			"_mode":  "delta",
			"source": "compute_cost." + organName,
		},
	}
	if err := v.hb.Enqueue(ev); err != nil {
		v.log.Warn("compute cost enqueue failed", zap.Error(err))
	}
}
// #endregion invoker
