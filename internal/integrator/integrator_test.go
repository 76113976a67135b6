package integrator

import (
	"database/sql"
	"math"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"organism/internal/adapter"
	"organism/internal/axis"
	"organism/internal/encoder"
	"organism/internal/operator"
	"organism/internal/state"
)

type fixture struct {
	axes *axis.Registry
	src  Sources
	dim  int
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

	dim := axes.Count()
	if err := ops.Put(operator.NewIdentity("M_drive", 1, dim)); err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	if err := bindings.Upsert(adapter.Binding{
		EventType: "drive", EncoderName: "drives", MatrixName: "M_drive", MatrixVersion: 1,
	}); err != nil {
		t.Fatalf("seed binding: %v", err)
	}

	return fixture{
		axes: axes,
		src:  Sources{Bindings: bindings, Encoders: encoder.NewRegistry(axes), Operators: ops},
		dim:  dim,
	}
}

func driveEvent(id string, drives map[string]any) state.Event {
	return state.Event{ID: id, Type: "drive", Payload: map[string]any{"drives": drives}}
}

func TestTickDecaysWithoutEvents(t *testing.T) {
	f := newFixture(t)
	vec := make(state.Vector, f.dim)
	vec[0] = 1.0

	next, audit := Tick(vec, nil, f.src, DefaultConfig())
	if math.Abs(next[0]-0.995) > 1e-12 {
		t.Fatalf("expected 0.995, got %v", next[0])
	}
	if vec[0] != 1.0 {
		t.Fatal("input vector must not be mutated")
	}
	if len(audit) == 0 {
		t.Fatal("expected audit entries")
	}
}

func TestTickAccumulatesEvent(t *testing.T) {
	f := newFixture(t)
	vec := make(state.Vector, f.dim)
	idx, _ := f.axes.Index("energy")
	vec[idx] = 0.5

	next, _ := Tick(vec, []state.Event{
		driveEvent("e1", map[string]any{"energy": 0.2}),
	}, f.src, DefaultConfig())

	want := 0.5*0.995 + 0.2
	if math.Abs(next[idx]-want) > 1e-12 {
		t.Fatalf("expected %v, got %v", want, next[idx])
	}
}

func TestTickClipsToBounds(t *testing.T) {
	f := newFixture(t)
	vec := make(state.Vector, f.dim)
	idxE, _ := f.axes.Index("energy")
	idxB, _ := f.axes.Index("boredom")
	vec[idxE] = 1.0
	vec[idxB] = 0.01

	next, _ := Tick(vec, []state.Event{
		driveEvent("e1", map[string]any{"energy": 5.0, "boredom": -5.0}),
	}, f.src, DefaultConfig())

	if next[idxE] != 1.0 {
		t.Fatalf("expected clip to 1.0, got %v", next[idxE])
	}
	if next[idxB] != 0.0 {
		t.Fatalf("expected clip to 0.0, got %v", next[idxB])
	}
	for i, v := range next {
		if v < 0 || v > 1 {
			t.Fatalf("component %d out of bounds: %v", i, v)
		}
	}
}

func TestTickSkipsUnboundEventWithAudit(t *testing.T) {
	f := newFixture(t)
	vec := make(state.Vector, f.dim)

	next, audit := Tick(vec, []state.Event{
		{ID: "e1", Type: "mystery", Payload: map[string]any{}},
	}, f.src, DefaultConfig())

	for i, v := range next {
		if v != 0 {
			t.Fatalf("unbound event changed state at %d: %v", i, v)
		}
	}
	found := false
	for _, a := range audit {
		if strings.Contains(a.Note, "skipped mystery") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a gap audit entry, got %+v", audit)
	}
}

func TestTickAppliesEventsInOrder(t *testing.T) {
	f := newFixture(t)
	vec := make(state.Vector, f.dim)
	idx, _ := f.axes.Index("energy")

	// +0.8 then -0.5: order matters only through the final clip, so use a
	// pair that saturates if misordered.
	next, _ := Tick(vec, []state.Event{
		driveEvent("e1", map[string]any{"energy": 0.8}),
		driveEvent("e2", map[string]any{"energy": -0.5}),
	}, f.src, DefaultConfig())

	// Events accumulate before the single clip.
	if math.Abs(next[idx]-0.3) > 1e-12 {
		t.Fatalf("expected 0.3, got %v", next[idx])
	}
}
