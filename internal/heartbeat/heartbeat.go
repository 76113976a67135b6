package heartbeat

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"organism/internal/axis"
	"organism/internal/integrator"
	"organism/internal/state"
)

// #region config
// Config holds heartbeat parameters.
type Config struct {
	Integrator    integrator.Config
	SnapshotEvery int // persist a snapshot every N ticks, 0 disables
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Integrator:    integrator.DefaultConfig(),
		SnapshotEvery: 25,
	}
}
// #endregion config

// #region heartbeat
// Heartbeat is the only component allowed to load-mutate-save the persisted
// state. Enqueue may be called concurrently; Step runs under a single-writer
// discipline (the runtime's turn lock) and drains the queue atomically.
// Ticks are caller-driven: there is no internal timer.
type Heartbeat struct {
	store *state.Store
	axes  *axis.Registry
	src   integrator.Sources
	cfg   Config
	log   *zap.Logger

	mu        sync.Mutex
	queue     []state.Event
	tickCount int
}

// New creates a heartbeat over the given store and tick sources.
func New(store *state.Store, axes *axis.Registry, src integrator.Sources, cfg Config, log *zap.Logger) *Heartbeat {
	if log == nil {
		log = zap.NewNop()
	}
	return &Heartbeat{store: store, axes: axes, src: src, cfg: cfg, log: log}
}
// #endregion heartbeat

// #region enqueue
// Enqueue timestamps the event if needed, appends it to the durable event
// log, and pushes it onto the in-memory queue for the next tick.
//
// Target-mode drive payloads are resolved to deltas here, against the
// current reading, so the logged event is already in delta form and replay
// stays deterministic.
func (h *Heartbeat) Enqueue(ev state.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if err := h.resolveTargetMode(&ev); err != nil {
		return err
	}

	if err := h.store.AppendEvent(ev); err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.Type, err)
	}

	h.mu.Lock()
	h.queue = append(h.queue, ev)
	n := len(h.queue)
	h.mu.Unlock()

	h.log.Debug("event enqueued",
		zap.String("event_type", ev.Type),
		zap.String("event_id", ev.ID),
		zap.Int("queue_len", n))
	return nil
}

// resolveTargetMode rewrites {"drives": {...}, "_mode": "target"} payloads
// into delta form using the current state reading.
func (h *Heartbeat) resolveTargetMode(ev *state.Event) error {
	mode, _ := ev.Payload["_mode"].(string)
	if mode != "target" {
		return nil
	}
	drives, ok := ev.Payload["drives"].(map[string]float64)
	if !ok {
		if anyMap, ok2 := ev.Payload["drives"].(map[string]any); ok2 {
			drives = make(map[string]float64, len(anyMap))
			for k, v := range anyMap {
				if f, ok3 := v.(float64); ok3 {
					drives[k] = f
				}
			}
		} else {
			return nil
		}
	}

	cur, err := h.store.GetVector()
	if err != nil {
		return fmt.Errorf("resolve target drives: %w", err)
	}

	deltas := make(map[string]float64, len(drives))
	for name, target := range drives {
		idx, ok := h.axes.Index(name)
		if !ok || idx >= len(cur) {
			continue
		}
		// The tick decays before it accumulates, so the delta must cover
		// the decayed value to land on the target exactly.
		deltas[name] = target - cur[idx]*h.cfg.Integrator.Decay
	}

	payload := make(map[string]any, len(ev.Payload))
	for k, v := range ev.Payload {
		payload[k] = v
	}
	payload["drives"] = deltas
	payload["_mode"] = "delta"
	payload["_resolved_from"] = "target"
	ev.Payload = payload
	return nil
}
// #endregion enqueue

// #region step
// StepResult is what one tick produced.
type StepResult struct {
	TickID     string
	Applied    int
	Vector     state.Vector
	Audit      []state.AuditEntry
	SnapshotID string
}

// Step atomically drains the queue, runs one tick, persists the new state,
// and snapshots with the audit trail every N ticks.
func (h *Heartbeat) Step() (StepResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	events := h.queue
	h.queue = nil
	tickID := uuid.New().String()

	cur, err := h.store.GetVector()
	if err != nil {
		// Put the events back so they are not lost to a transient read error.
		h.queue = append(events, h.queue...)
		return StepResult{}, fmt.Errorf("step: %w", err)
	}

	next, audit := integrator.Tick(cur, events, h.src, h.cfg.Integrator)

	if err := h.store.SetVector(next); err != nil {
		h.queue = append(events, h.queue...)
		return StepResult{}, fmt.Errorf("persist state: %w", err)
	}

	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	now := time.Now().UTC()
	if err := h.store.MarkConsumed(ids, tickID, now); err != nil {
		h.log.Warn("mark consumed failed", zap.Error(err))
	}

	h.tickCount++
	if err := h.store.RecordTick(tickID, h.tickCount, len(events), now); err != nil {
		h.log.Warn("record tick failed", zap.Error(err))
	}
	res := StepResult{TickID: tickID, Applied: len(events), Vector: next, Audit: audit}

	if h.cfg.SnapshotEvery > 0 && h.tickCount%h.cfg.SnapshotEvery == 0 {
		id, err := h.store.SaveSnapshot(next, audit)
		if err != nil {
			h.log.Warn("snapshot failed", zap.Error(err))
		} else {
			res.SnapshotID = id
		}
	}

	h.log.Debug("tick complete",
		zap.String("tick_id", tickID),
		zap.Int("events", len(events)),
		zap.Int("tick_count", h.tickCount))
	return res, nil
}

// Pending returns the number of queued, unapplied events.
func (h *Heartbeat) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}
// #endregion step
