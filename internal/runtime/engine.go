// Package runtime wires the organism together and owns the two execution
// paths: externally driven turns and the autonomous tick. Both share one
// coarse turn lock — exactly one full turn or tick runs at a time.
package runtime

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"organism/internal/adapter"
	"organism/internal/axis"
	"organism/internal/belief"
	"organism/internal/config"
	"organism/internal/encoder"
	"organism/internal/gating"
	"organism/internal/health"
	"organism/internal/heartbeat"
	"organism/internal/inference"
	"organism/internal/integrator"
	"organism/internal/operator"
	"organism/internal/organ"
	"organism/internal/plasticity"
	"organism/internal/policy"
	"organism/internal/rollback"
	"organism/internal/state"
)

// #region engine
// Engine is the assembled organism.
type Engine struct {
	cfg config.Config
	log *zap.Logger

	store    *state.Store
	axes     *axis.Registry
	ops      *operator.Store
	bindings *adapter.Registry
	encoders *encoder.Registry
	hb       *heartbeat.Heartbeat
	pol      *policy.Kernel
	plastic  *plasticity.Engine
	updates  *plasticity.UpdateLog
	gates    *gating.Kernel
	checker  *rollback.Checker
	healths  *health.Store
	beliefs  *belief.Store
	trust    *belief.TrustStore
	invoker  *organ.Invoker
	organs   map[string]organ.Organ

	mu sync.Mutex // the turn lock: one full turn/tick at a time

	broker *broker

	// Policy credit assignment: the prediction behind the most recent
	// gated action, rewarded by the next scored evaluation.
	lastPred   *policy.Prediction
	lastAction int

	// Recent answer-quality scores feeding psychological pain.
	quality []float64
}

// New opens the store and wires every component. The caller owns Close.
func New(cfg config.Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	db := store.DB()

	axes, err := axis.NewRegistry(db)
	if err != nil {
		store.Close()
		return nil, err
	}
	ops, err := operator.NewStore(db)
	if err != nil {
		store.Close()
		return nil, err
	}
	bindings, err := adapter.NewRegistry(db)
	if err != nil {
		store.Close()
		return nil, err
	}
	updates, err := plasticity.NewUpdateLog(db)
	if err != nil {
		store.Close()
		return nil, err
	}
	healths, err := health.NewStore(db)
	if err != nil {
		store.Close()
		return nil, err
	}
	beliefs, err := belief.NewStore(db)
	if err != nil {
		store.Close()
		return nil, err
	}
	trust, err := belief.NewTrustStore(db)
	if err != nil {
		store.Close()
		return nil, err
	}

	encoders := encoder.NewRegistry(axes)
	src := integrator.Sources{Bindings: bindings, Encoders: encoders, Operators: ops}

	hb := heartbeat.New(store, axes, src, heartbeat.Config{
		Integrator: integrator.Config{
			Decay:  cfg.Heartbeat.Decay,
			ClipLo: cfg.Heartbeat.ClipLo,
			ClipHi: cfg.Heartbeat.ClipHi,
		},
		SnapshotEvery: cfg.Heartbeat.SnapshotEvery,
	}, log)

	pol := policy.NewKernel(ops, bindings, axes, policy.Config{
		Eta:          cfg.Policy.Eta,
		L2Decay:      cfg.Policy.L2Decay,
		MaxAbs:       cfg.Policy.MaxAbs,
		FrobeniusCap: cfg.Policy.FrobeniusCap,
	})

	plastic := plasticity.NewEngine(ops, bindings, axes, updates, plasticity.Config{
		Eta:          cfg.Plastic.Eta,
		TopK:         cfg.Plastic.TopK,
		L2Decay:      cfg.Plastic.L2Decay,
		MaxAbs:       cfg.Plastic.MaxAbs,
		FrobeniusCap: cfg.Plastic.FrobeniusCap,
	}, log)

	seed := cfg.Gating.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gates := gating.NewKernel([]gating.Gate{
		{Organ: "websense", PressureAxis: "pressure_websense", ForcedThreshold: cfg.Gating.Websense.ForcedThreshold, MinInterval: cfg.Gating.Websense.MinInterval},
		{Organ: "daydream", PressureAxis: "pressure_daydream", ForcedThreshold: cfg.Gating.Daydream.ForcedThreshold, MinInterval: cfg.Gating.Daydream.MinInterval},
		{Organ: "evolve", PressureAxis: "pressure_evolve", ForcedThreshold: cfg.Gating.Evolve.ForcedThreshold, MinInterval: cfg.Gating.Evolve.MinInterval},
		{Organ: "autotalk", PressureAxis: "pressure_autotalk", ForcedThreshold: cfg.Gating.Autotalk.ForcedThreshold, MinInterval: cfg.Gating.Autotalk.MinInterval},
	}, seed, log)

	checker := rollback.NewChecker(updates, bindings, beliefs, trust, rollback.Config{
		RewardFloor:  cfg.Rollback.RewardFloor,
		PainMargin:   cfg.Rollback.PainMargin,
		RevertWindow: cfg.Rollback.RevertWindow,
	}, log)

	invoker := organ.NewInvoker(healths, hb, organ.InvokerConfig{
		Timeout:           cfg.Organs.Timeout,
		EnergyCostPerSec:  cfg.Organs.EnergyCostPerSec,
		FatigueGainPerSec: cfg.Organs.FatigueGainPerSec,
		StressGainPerSec:  cfg.Organs.StressGainPerSec,
	}, log)

	client := inference.NewClient(cfg.Inference.BaseURL, cfg.Inference.Model, cfg.Inference.Timeout)

	e := &Engine{
		cfg:        cfg,
		log:        log,
		store:      store,
		axes:       axes,
		ops:        ops,
		bindings:   bindings,
		encoders:   encoders,
		hb:         hb,
		pol:        pol,
		plastic:    plastic,
		updates:    updates,
		gates:      gates,
		checker:    checker,
		healths:    healths,
		beliefs:    beliefs,
		trust:      trust,
		invoker:    invoker,
		organs:     buildOrgans(client),
		broker:     newBroker(),
		lastAction: -1,
	}

	if err := e.bootstrap(); err != nil {
		store.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	e.broker.close()
	return e.store.Close()
}

// SetOrgan replaces a reasoning component. Organs are swappable by design;
// tests install stubs here.
func (e *Engine) SetOrgan(name string, o organ.Organ) {
	e.organs[name] = o
}
// #endregion engine

// #region bootstrap
// defaultBindings is the event routing a fresh organism starts with. Every
// operator seeds as identity.
var defaultBindings = []adapter.Binding{
	{EventType: "user_message", EncoderName: "freetext", MatrixName: "M_user", MatrixVersion: 1},
	{EventType: "web_evidence", EncoderName: "webevidence", MatrixName: "M_websense", MatrixVersion: 1},
	{EventType: "drive", EncoderName: "drives", MatrixName: "M_drive", MatrixVersion: 1},
	{EventType: "health", EncoderName: "drives", MatrixName: "M_health", MatrixVersion: 1},
	{EventType: "resources", EncoderName: "drives", MatrixName: "M_resources", MatrixVersion: 1},
	{EventType: "reward_signal", EncoderName: "drives", MatrixName: "M_reward", MatrixVersion: 1},
}

// baselineDrives is the resting profile a fresh organism wakes with.
var baselineDrives = map[string]float64{
	"energy":     0.70,
	"confidence": 0.50,
	"curiosity":  0.40,
	"boredom":    0.20,
	"sat_a1":     0.50,
	"sat_a2":     0.50,
	"sat_a3":     0.50,
	"sat_a4":     0.50,
}

func (e *Engine) bootstrap() error {
	if err := axis.SeedDefaults(e.axes); err != nil {
		return fmt.Errorf("seed axes: %w", err)
	}

	dim := e.axes.Count()
	vec, err := e.store.InitVector(dim)
	if err != nil {
		return err
	}

	fresh := true
	for _, b := range defaultBindings {
		if _, ok, err := e.bindings.Get(b.EventType); err != nil {
			return err
		} else if ok {
			fresh = false
			continue
		}
		if err := e.ops.Put(operator.NewIdentity(b.MatrixName, 1, dim)); err != nil {
			return fmt.Errorf("seed %s: %w", b.MatrixName, err)
		}
		if err := e.bindings.Upsert(b); err != nil {
			return err
		}
	}

	if err := e.pol.Bootstrap(); err != nil {
		return err
	}

	if fresh && isZero(vec) {
		ev := state.Event{
			Type: "health",
			Payload: map[string]any{
				"drives": baselineDrives,
				"_mode":  "target",
				"source": "bootstrap",
			},
		}
		if err := e.hb.Enqueue(ev); err != nil {
			return err
		}
		if _, err := e.hb.Step(); err != nil {
			return err
		}
		e.log.Info("organism bootstrapped", zap.Int("dim", dim))
	}
	return nil
}

func isZero(v state.Vector) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
// #endregion bootstrap

// #region status
// Status returns the current state as a named-axis map.
func (e *Engine) Status() (map[string]float64, error) {
	vec, err := e.store.GetVector()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(vec))
	for i, v := range vec {
		if name, ok := e.axes.Name(i); ok {
			out[name] = v
		}
	}
	return out, nil
}

// axisValue reads one named component, 0 when absent.
func (e *Engine) axisValue(vec state.Vector, name string) float64 {
	if idx, ok := e.axes.Index(name); ok && idx < len(vec) {
		return vec[idx]
	}
	return 0
}

// stateSummary renders the state for organ prompts, largest axes first.
func (e *Engine) stateSummary(vec state.Vector) string {
	type av struct {
		name string
		v    float64
	}
	items := make([]av, 0, len(vec))
	for i, v := range vec {
		if name, ok := e.axes.Name(i); ok {
			items = append(items, av{name, v})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].v != items[j].v {
			return items[i].v > items[j].v
		}
		return items[i].name < items[j].name
	})
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%s=%.3f\n", it.name, it.v)
	}
	return b.String()
}

// featureMap converts a feature vector into the sparse named form the
// plasticity rule consumes.
func (e *Engine) featureMap(vec []float64) map[string]float64 {
	out := make(map[string]float64)
	for i, v := range vec {
		if v == 0 {
			continue
		}
		if name, ok := e.axes.Name(i); ok {
			out[name] = v
		}
	}
	return out
}
// #endregion status
