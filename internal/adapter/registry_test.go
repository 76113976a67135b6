package adapter

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func tempRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	r, err := NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestGetMissingBinding(t *testing.T) {
	r := tempRegistry(t)
	_, ok, err := r.Get("user_message")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected no binding")
	}
}

func TestUpsertAndGet(t *testing.T) {
	r := tempRegistry(t)
	b := Binding{EventType: "user_message", EncoderName: "freetext", MatrixName: "M_user", MatrixVersion: 1}
	if err := r.Upsert(b); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, ok, err := r.Get("user_message")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected binding")
	}
	if got != b {
		t.Fatalf("expected %+v, got %+v", b, got)
	}
}

func TestUpsertRepointsVersion(t *testing.T) {
	r := tempRegistry(t)
	b := Binding{EventType: "drive", EncoderName: "drives", MatrixName: "M_drive", MatrixVersion: 1}
	if err := r.Upsert(b); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	b.MatrixVersion = 7
	if err := r.Upsert(b); err != nil {
		t.Fatalf("Upsert repoint: %v", err)
	}

	got, _, err := r.Get("drive")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MatrixVersion != 7 {
		t.Fatalf("expected v7, got v%d", got.MatrixVersion)
	}
}

func TestAllOrdered(t *testing.T) {
	r := tempRegistry(t)
	for _, et := range []string{"web_evidence", "drive", "user_message"} {
		if err := r.Upsert(Binding{EventType: et, EncoderName: "e", MatrixName: "M", MatrixVersion: 1}); err != nil {
			t.Fatalf("Upsert %s: %v", et, err)
		}
	}
	all, err := r.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	if all[0].EventType != "drive" || all[2].EventType != "web_evidence" {
		t.Fatalf("wrong order: %+v", all)
	}
}
