// Package plasticity implements the generic online operator learning rule.
// An update never mutates a stored operator: it clones the live version,
// applies a bounded sparse delta, writes the result as a new version, and
// repoints the adapter binding. The matrix update log records every
// transition for the rollback valve.
package plasticity

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"organism/internal/adapter"
	"organism/internal/axis"
	"organism/internal/operator"
)

// trustedEventTypes may influence protected axes. Everything else has the
// protected rows and columns structurally stripped from its updates.
var trustedEventTypes = map[string]bool{
	"health":        true,
	"resources":     true,
	"reward_signal": true,
}

// Trusted reports whether an event type may touch protected axes.
func Trusted(eventType string) bool {
	return trustedEventTypes[eventType]
}

// #region config
// Config bounds the learning rule.
type Config struct {
	Eta          float64 // learning rate
	TopK         int     // sparsity cap on u and x
	L2Decay      float64 // shrink applied to the whole operator before the step
	MaxAbs       float64 // per-entry clamp
	FrobeniusCap float64 // global norm clamp
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Eta:          0.10,
		TopK:         12,
		L2Decay:      0.002,
		MaxAbs:       2.0,
		FrobeniusCap: 5.0,
	}
}
// #endregion config

// #region engine
// Engine applies plasticity updates to event-type operators.
type Engine struct {
	ops      *operator.Store
	bindings *adapter.Registry
	axes     *axis.Registry
	updates  *UpdateLog
	cfg      Config
	log      *zap.Logger
}

// NewEngine wires a plasticity engine over the shared stores.
func NewEngine(ops *operator.Store, bindings *adapter.Registry, axes *axis.Registry, updates *UpdateLog, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{ops: ops, bindings: bindings, axes: axes, updates: updates, cfg: cfg, log: log}
}

// Result describes one applied update.
type Result struct {
	LogID          int64
	MatrixName     string
	FromVersion    int
	ToVersion      int
	DeltaFrobenius float64
	EntriesDropped int // entries removed by the protected-axis filter
}
// #endregion engine

// #region apply
// Apply learns from one observation: u is the desired state delta
// (axis name → target delta), x the observed input features (axis name →
// value), reward the scalar outcome in [-1, 1]. painBefore is the current
// protected-pain reading, captured in the ledger for later regression
// evaluation.
//
// A storage failure aborts this single update and leaves the prior binding
// intact.
func (e *Engine) Apply(eventType string, u, x map[string]float64, reward, painBefore float64, note string) (Result, error) {
	b, ok, err := e.bindings.Get(eventType)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("no binding for event type %q", eventType)
	}

	cur, err := e.ops.Get(b.MatrixName, b.MatrixVersion)
	if err != nil {
		return Result{}, fmt.Errorf("load %s v%d: %w", b.MatrixName, b.MatrixVersion, err)
	}

	uIdx := e.topK(u)
	xIdx := e.topK(x)

	next := cur.Clone()

	// L2 decay shrinks everything except protected diagonals, which are
	// pinned back to identity below anyway.
	for key, v := range next.Entries {
		next.Set(key.Row, key.Col, v*(1-e.cfg.L2Decay))
	}

	r := math.Abs(clamp(reward, -1, 1))
	sign := 1.0
	if reward < 0 {
		sign = -1.0
	}
	for i, ui := range uIdx {
		for j, xj := range xIdx {
			delta := e.cfg.Eta * r * sign * ui * xj
			v := next.Get(i, j) + delta
			next.Set(i, j, clamp(v, -e.cfg.MaxAbs, e.cfg.MaxAbs))
		}
	}

	dropped := 0
	if !Trusted(eventType) {
		dropped = e.enforceProtected(next)
	}

	if norm := next.FrobeniusNorm(); norm > e.cfg.FrobeniusCap && norm > 0 {
		scale := e.cfg.FrobeniusCap / norm
		for key, v := range next.Entries {
			next.Set(key.Row, key.Col, v*scale)
		}
		if !Trusted(eventType) {
			// Rescaling touches protected diagonals too; pin them again.
			e.enforceProtected(next)
		}
	}

	latest, err := e.ops.LatestVersion(b.MatrixName)
	if err != nil {
		return Result{}, err
	}
	next.Version = latest + 1
	next.ParentVersion = cur.Version
	next.Meta = map[string]string{"note": note, "event_type": eventType}

	deltaFrob := next.DeltaFrobenius(cur)

	if err := e.ops.Put(next); err != nil {
		return Result{}, fmt.Errorf("write %s v%d: %w", next.Name, next.Version, err)
	}

	b.MatrixVersion = next.Version
	if err := e.bindings.Upsert(b); err != nil {
		return Result{}, fmt.Errorf("repoint binding %s: %w", eventType, err)
	}

	logID, err := e.updates.Append(Row{
		EventType:      eventType,
		MatrixName:     next.Name,
		FromVersion:    cur.Version,
		ToVersion:      next.Version,
		Reward:         reward,
		DeltaFrobenius: deltaFrob,
		PainBefore:     painBefore,
	})
	if err != nil {
		return Result{}, err
	}

	e.log.Info("plasticity update",
		zap.String("event_type", eventType),
		zap.String("matrix", next.Name),
		zap.Int("from_version", cur.Version),
		zap.Int("to_version", next.Version),
		zap.Float64("reward", reward),
		zap.Float64("delta_frobenius", deltaFrob),
		zap.Int("protected_dropped", dropped))

	return Result{
		LogID:          logID,
		MatrixName:     next.Name,
		FromVersion:    cur.Version,
		ToVersion:      next.Version,
		DeltaFrobenius: deltaFrob,
		EntriesDropped: dropped,
	}, nil
}
// #endregion apply

// #region protected
// enforceProtected strips every off-diagonal entry touching a protected
// axis and forces protected diagonals to exactly 1.0. This makes "pain
// cannot be trained away" a structural property of the written operator.
func (e *Engine) enforceProtected(m *operator.SparseMatrix) int {
	protected := e.axes.ProtectedSet()
	dropped := 0
	for key := range m.Entries {
		if !protected[key.Row] && !protected[key.Col] {
			continue
		}
		if key.Row == key.Col {
			continue
		}
		delete(m.Entries, key)
		dropped++
	}
	for idx := range protected {
		if idx < m.Rows && idx < m.Cols {
			m.Entries[operator.Key{Row: idx, Col: idx}] = 1.0
		}
	}
	return dropped
}
// #endregion protected

// #region helpers
// topK converts a sparse named map to index space, keeping only the K
// largest-magnitude components.
func (e *Engine) topK(m map[string]float64) map[int]float64 {
	type comp struct {
		idx int
		v   float64
	}
	comps := make([]comp, 0, len(m))
	for name, v := range m {
		if v == 0 {
			continue
		}
		if idx, ok := e.axes.Index(name); ok {
			comps = append(comps, comp{idx, v})
		}
	}
	sort.Slice(comps, func(i, j int) bool {
		ai, aj := math.Abs(comps[i].v), math.Abs(comps[j].v)
		if ai != aj {
			return ai > aj
		}
		return comps[i].idx < comps[j].idx
	})
	k := e.cfg.TopK
	if k <= 0 || k > len(comps) {
		k = len(comps)
	}
	out := make(map[int]float64, k)
	for _, c := range comps[:k] {
		out[c.idx] = c.v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
// #endregion helpers
