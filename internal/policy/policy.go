package policy

import (
	"fmt"
	"math"

	"organism/internal/adapter"
	"organism/internal/axis"
	"organism/internal/operator"
	"organism/internal/state"
)

// MatrixName is the dedicated operator holding the policy weights. It uses
// the same versioned-immutable-with-mutable-pointer pattern as every other
// operator, but is scored as a linear model, not a state coupling.
const MatrixName = "P_policy"

// BindingKey is the adapter-registry key for the live policy version.
const BindingKey = "policy"

// #region actions
// Actions is the fixed action set, in logit order.
var Actions = []string{"websense", "daydream", "evolve", "autotalk"}

// ActionIndex returns the logit index for an action name, -1 if unknown.
func ActionIndex(name string) int {
	for i, a := range Actions {
		if a == name {
			return i
		}
	}
	return -1
}
// #endregion actions

// #region features
// featureAxes are the named axes read into the feature vector, in order.
// A trailing bias of 1.0 brings the feature count to len(featureAxes)+1.
var featureAxes = []string{
	"energy",
	"fatigue",
	"stress",
	"pain",
	"pain_physical",
	"pain_psych",
	"sleep_pressure",
	"uncertainty",
	"curiosity",
	"boredom",
	"social_need",
	"confidence",
	"pressure_websense",
	"pressure_daydream",
	"pressure_evolve",
	"pressure_autotalk",
	"sat_a1",
	"sat_a2",
}

// FeatureCount is the policy input width.
var FeatureCount = len(featureAxes) + 1
// #endregion features

// #region config
// Config bounds the online policy updates.
type Config struct {
	Eta          float64 // learning rate
	L2Decay      float64 // weight shrink applied before each step
	MaxAbs       float64 // per-entry clamp
	FrobeniusCap float64 // global norm clamp
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Eta:          0.05,
		L2Decay:      0.001,
		MaxAbs:       2.0,
		FrobeniusCap: 6.0,
	}
}
// #endregion config

// #region kernel
// Kernel is the trainable action prior over the fixed action set.
type Kernel struct {
	ops      *operator.Store
	bindings *adapter.Registry
	axes     *axis.Registry
	cfg      Config
}

// NewKernel creates a policy kernel over the shared stores.
func NewKernel(ops *operator.Store, bindings *adapter.Registry, axes *axis.Registry, cfg Config) *Kernel {
	return &Kernel{ops: ops, bindings: bindings, axes: axes, cfg: cfg}
}

// Bootstrap seeds version 1 of the policy matrix and its binding if absent.
func (k *Kernel) Bootstrap() error {
	if _, ok, err := k.bindings.Get(BindingKey); err != nil {
		return err
	} else if ok {
		return nil
	}
	m := operator.New(MatrixName, 1, len(Actions), FeatureCount)
	if err := k.ops.Put(m); err != nil {
		return fmt.Errorf("seed policy: %w", err)
	}
	return k.bindings.Upsert(adapter.Binding{
		EventType:     BindingKey,
		EncoderName:   "none",
		MatrixName:    MatrixName,
		MatrixVersion: 1,
	})
}
// #endregion kernel

// #region predict
// Prediction is one scored pass over the current state.
type Prediction struct {
	Version  int
	Features []float64
	Logits   []float64
	Probs    []float64
}

// Features extracts the bounded policy inputs from the state vector.
func (k *Kernel) Features(vec state.Vector) []float64 {
	x := make([]float64, FeatureCount)
	for i, name := range featureAxes {
		if idx, ok := k.axes.Index(name); ok && idx < len(vec) {
			x[i] = vec[idx]
		}
	}
	x[FeatureCount-1] = 1.0 // bias
	return x
}

// Predict computes logits = W·x and probs = softmax(logits) for the live
// policy version.
func (k *Kernel) Predict(vec state.Vector) (Prediction, error) {
	b, ok, err := k.bindings.Get(BindingKey)
	if err != nil {
		return Prediction{}, err
	}
	if !ok {
		return Prediction{}, fmt.Errorf("policy binding %q missing", BindingKey)
	}
	w, err := k.ops.Get(b.MatrixName, b.MatrixVersion)
	if err != nil {
		return Prediction{}, fmt.Errorf("load policy: %w", err)
	}

	x := k.Features(vec)
	logits := w.Apply(x)
	return Prediction{
		Version:  w.Version,
		Features: x,
		Logits:   logits,
		Probs:    softmax(logits),
	}, nil
}
// #endregion predict

// #region update
// Update applies one REINFORCE-style gradient step and writes the result as
// a new operator version, advancing the live binding. The source version
// stays inspectable for audit and rollback.
//
//	ΔW[i][j] = η · clamp(reward, -1, 1) · (𝟙[i=action] − probs[i]) · x[j]
func (k *Kernel) Update(fromVersion int, x []float64, action int, reward float64, note string) (int, error) {
	if action < 0 || action >= len(Actions) {
		return 0, fmt.Errorf("action index %d out of range", action)
	}
	w, err := k.ops.Get(MatrixName, fromVersion)
	if err != nil {
		return 0, fmt.Errorf("load policy v%d: %w", fromVersion, err)
	}

	probs := softmax(w.Apply(x))
	r := clamp(reward, -1, 1)

	next := w.Clone()
	for key, v := range next.Entries {
		next.Set(key.Row, key.Col, v*(1-k.cfg.L2Decay))
	}
	for i := 0; i < len(Actions); i++ {
		indicator := 0.0
		if i == action {
			indicator = 1.0
		}
		g := k.cfg.Eta * r * (indicator - probs[i])
		for j := 0; j < len(x) && j < next.Cols; j++ {
			if x[j] == 0 {
				continue
			}
			v := next.Get(i, j) + g*x[j]
			next.Set(i, j, clamp(v, -k.cfg.MaxAbs, k.cfg.MaxAbs))
		}
	}

	if norm := next.FrobeniusNorm(); norm > k.cfg.FrobeniusCap && norm > 0 {
		scale := k.cfg.FrobeniusCap / norm
		for key, v := range next.Entries {
			next.Set(key.Row, key.Col, v*scale)
		}
	}

	latest, err := k.ops.LatestVersion(MatrixName)
	if err != nil {
		return 0, err
	}
	next.Version = latest + 1
	next.ParentVersion = fromVersion
	next.Meta = map[string]string{"note": note}

	if err := k.ops.Put(next); err != nil {
		return 0, fmt.Errorf("write policy v%d: %w", next.Version, err)
	}
	err = k.bindings.Upsert(adapter.Binding{
		EventType:     BindingKey,
		EncoderName:   "none",
		MatrixName:    MatrixName,
		MatrixVersion: next.Version,
	})
	if err != nil {
		return 0, fmt.Errorf("advance policy binding: %w", err)
	}
	return next.Version, nil
}
// #endregion update

// #region math
func softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxL := logits[0]
	for _, l := range logits[1:] {
		if l > maxL {
			maxL = l
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxL)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
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
// #endregion math
