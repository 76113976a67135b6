package plasticity

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"organism/internal/adapter"
	"organism/internal/axis"
	"organism/internal/operator"
)

type fixture struct {
	engine   *Engine
	axes     *axis.Registry
	ops      *operator.Store
	bindings *adapter.Registry
	updates  *UpdateLog
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	axes, err := axis.NewRegistry(db)
	if err != nil {
		t.Fatalf("axis registry: %v", err)
	}
	if err := axis.SeedDefaults(axes); err != nil {
		t.Fatalf("seed axes: %v", err)
	}
	ops, err := operator.NewStore(db)
	if err != nil {
		t.Fatalf("operator store: %v", err)
	}
	bindings, err := adapter.NewRegistry(db)
	if err != nil {
		t.Fatalf("adapter registry: %v", err)
	}
	updates, err := NewUpdateLog(db)
	if err != nil {
		t.Fatalf("update log: %v", err)
	}

	dim := axes.Count()
	if err := ops.Put(operator.NewIdentity("M_user", 1, dim)); err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	if err := bindings.Upsert(adapter.Binding{
		EventType: "user_message", EncoderName: "freetext", MatrixName: "M_user", MatrixVersion: 1,
	}); err != nil {
		t.Fatalf("seed binding: %v", err)
	}

	eng := NewEngine(ops, bindings, axes, updates, DefaultConfig(), nil)
	return fixture{engine: eng, axes: axes, ops: ops, bindings: bindings, updates: updates}
}

func TestApplyWritesNewVersionAndAdvancesBinding(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Apply("user_message",
		map[string]float64{"curiosity": 0.5},
		map[string]float64{"uncertainty": 0.3},
		0.8, 0.2, "test")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.FromVersion != 1 || res.ToVersion != 2 {
		t.Fatalf("expected v1->v2, got v%d->v%d", res.FromVersion, res.ToVersion)
	}
	if res.DeltaFrobenius <= 0 {
		t.Fatal("expected a nonzero update")
	}

	b, _, err := f.bindings.Get("user_message")
	if err != nil {
		t.Fatalf("Get binding: %v", err)
	}
	if b.MatrixVersion != 2 {
		t.Fatalf("binding not advanced: v%d", b.MatrixVersion)
	}

	// The source version is untouched.
	v1, err := f.ops.Get("M_user", 1)
	if err != nil {
		t.Fatalf("Get v1: %v", err)
	}
	ci, _ := f.axes.Index("curiosity")
	ui, _ := f.axes.Index("uncertainty")
	if v1.Get(ci, ui) != 0 {
		t.Fatal("learning mutated the written version")
	}
}

func TestApplyRecordsLedgerRow(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Apply("user_message",
		map[string]float64{"confidence": 0.4},
		map[string]float64{"curiosity": 0.2},
		0.6, 0.15, "ledger test")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	row, err := f.updates.Get(res.LogID)
	if err != nil {
		t.Fatalf("Get row: %v", err)
	}
	if row.EventType != "user_message" || row.Reward != 0.6 {
		t.Fatalf("row wrong: %+v", row)
	}
	if row.PainBefore != 0.15 {
		t.Fatalf("pain_before lost: %v", row.PainBefore)
	}
	if row.PainAfter != nil || row.RolledBack {
		t.Fatal("fresh row must be pending")
	}
}

func TestProtectedAxesCannotBeCoupled(t *testing.T) {
	f := newFixture(t)

	// An untrusted update aiming straight at pain.
	_, err := f.engine.Apply("user_message",
		map[string]float64{"pain_psych": -0.9, "pain": -0.9, "energy": 0.9},
		map[string]float64{"curiosity": 1.0},
		1.0, 0.5, "attack")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	m, err := f.ops.Get("M_user", 2)
	if err != nil {
		t.Fatalf("Get v2: %v", err)
	}
	protected := f.axes.ProtectedSet()
	for key, v := range m.Entries {
		if key.Row == key.Col {
			if protected[key.Row] && v != 1.0 {
				t.Fatalf("protected diagonal %d must stay 1.0, got %v", key.Row, v)
			}
			continue
		}
		if protected[key.Row] || protected[key.Col] {
			t.Fatalf("off-diagonal protected entry survived: %+v = %v", key, v)
		}
	}
}

func TestTrustedEventTypesMayTouchProtected(t *testing.T) {
	f := newFixture(t)

	dim := f.axes.Count()
	if err := f.ops.Put(operator.NewIdentity("M_health", 1, dim)); err != nil {
		t.Fatalf("seed health operator: %v", err)
	}
	if err := f.bindings.Upsert(adapter.Binding{
		EventType: "health", EncoderName: "drives", MatrixName: "M_health", MatrixVersion: 1,
	}); err != nil {
		t.Fatalf("seed health binding: %v", err)
	}

	_, err := f.engine.Apply("health",
		map[string]float64{"fatigue": 0.5},
		map[string]float64{"stress": 0.5},
		1.0, 0.1, "trusted")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	m, err := f.ops.Get("M_health", 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	fi, _ := f.axes.Index("fatigue")
	si, _ := f.axes.Index("stress")
	if m.Get(fi, si) == 0 {
		t.Fatal("trusted event must be allowed to couple into protected axes")
	}
}

func TestOppositeRewardsCancel(t *testing.T) {
	f := newFixture(t)

	u := map[string]float64{"curiosity": 0.5}
	x := map[string]float64{"uncertainty": 0.4}

	r1, err := f.engine.Apply("user_message", u, x, 0.7, 0.1, "up")
	if err != nil {
		t.Fatalf("Apply up: %v", err)
	}
	r2, err := f.engine.Apply("user_message", u, x, -0.7, 0.1, "down")
	if err != nil {
		t.Fatalf("Apply down: %v", err)
	}

	before, err := f.ops.Get("M_user", r1.FromVersion)
	if err != nil {
		t.Fatalf("Get before: %v", err)
	}
	after, err := f.ops.Get("M_user", r2.ToVersion)
	if err != nil {
		t.Fatalf("Get after: %v", err)
	}

	ci, _ := f.axes.Index("curiosity")
	ui, _ := f.axes.Index("uncertainty")
	// L2 decay keeps this from being exactly zero; near-cancellation is
	// the invariant.
	if d := math.Abs(after.Get(ci, ui) - before.Get(ci, ui)); d > 1e-3 {
		t.Fatalf("opposite rewards should nearly cancel, residual %v", d)
	}
}

func TestTopKDropsSmallComponents(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.TopK = 1
	eng := NewEngine(f.ops, f.bindings, f.axes, f.updates, cfg, nil)

	_, err := eng.Apply("user_message",
		map[string]float64{"curiosity": 0.9, "boredom": 0.1},
		map[string]float64{"uncertainty": 0.8, "social_need": 0.1},
		1.0, 0.1, "topk")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	m, err := f.ops.Get("M_user", 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	bi, _ := f.axes.Index("boredom")
	si, _ := f.axes.Index("social_need")
	ci, _ := f.axes.Index("curiosity")
	ui, _ := f.axes.Index("uncertainty")
	if m.Get(ci, ui) == 0 {
		t.Fatal("dominant pair must be learned")
	}
	if m.Get(bi, si) != 0 || m.Get(bi, ui) != 0 || m.Get(ci, si) != 0 {
		t.Fatal("top-K must drop the small components")
	}
}

func TestPerEntryClamp(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Eta = 100 // force a huge step
	eng := NewEngine(f.ops, f.bindings, f.axes, f.updates, cfg, nil)

	_, err := eng.Apply("user_message",
		map[string]float64{"curiosity": 1.0},
		map[string]float64{"uncertainty": 1.0},
		1.0, 0.1, "clamp")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	m, err := f.ops.Get("M_user", 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for key, v := range m.Entries {
		if math.Abs(v) > cfg.MaxAbs+1e-9 {
			t.Fatalf("entry %+v exceeds clamp: %v", key, v)
		}
	}
}

func TestApplyUnknownBindingFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Apply("mystery", map[string]float64{"energy": 1}, map[string]float64{"stress": 1}, 1, 0, "x")
	if err == nil {
		t.Fatal("expected error for unbound event type")
	}
}
