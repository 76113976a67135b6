package operator

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestPutGetRoundtrip(t *testing.T) {
	s := tempStore(t)

	m := New("M_user", 1, 3, 3)
	m.Set(0, 1, 0.25)
	m.Set(2, 2, -1.5)
	m.ParentVersion = 0
	m.Meta = map[string]string{"note": "seed"}

	if err := s.Put(m); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get("M_user", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Rows != 3 || got.Cols != 3 {
		t.Fatalf("shape lost: %dx%d", got.Rows, got.Cols)
	}
	if got.Get(0, 1) != 0.25 || got.Get(2, 2) != -1.5 {
		t.Fatalf("entries lost: %v", got.Entries)
	}
	if got.Meta["note"] != "seed" {
		t.Fatalf("meta lost: %v", got.Meta)
	}
}

func TestGetMissingIsErrNotFound(t *testing.T) {
	s := tempStore(t)
	_, err := s.Get("nope", 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVersionsAreImmutableHistory(t *testing.T) {
	s := tempStore(t)

	v1 := NewIdentity("M", 1, 2)
	if err := s.Put(v1); err != nil {
		t.Fatalf("Put v1: %v", err)
	}

	v2 := v1.Clone()
	v2.Version = 2
	v2.ParentVersion = 1
	v2.Set(0, 1, 0.3)
	if err := s.Put(v2); err != nil {
		t.Fatalf("Put v2: %v", err)
	}

	// v1 must be unchanged by the v2 write.
	got1, err := s.Get("M", 1)
	if err != nil {
		t.Fatalf("Get v1: %v", err)
	}
	if got1.Get(0, 1) != 0 {
		t.Fatal("v1 was mutated by a later version")
	}

	got2, err := s.Get("M", 2)
	if err != nil {
		t.Fatalf("Get v2: %v", err)
	}
	if got2.ParentVersion != 1 {
		t.Fatalf("expected parent v1, got v%d", got2.ParentVersion)
	}
}

func TestPutSameVersionReplaces(t *testing.T) {
	s := tempStore(t)

	a := New("M", 1, 2, 2)
	a.Set(0, 0, 1.0)
	if err := s.Put(a); err != nil {
		t.Fatalf("Put: %v", err)
	}

	b := New("M", 1, 2, 2)
	b.Set(1, 1, 2.0)
	if err := s.Put(b); err != nil {
		t.Fatalf("Put replace: %v", err)
	}

	got, err := s.Get("M", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Get(0, 0) != 0 || got.Get(1, 1) != 2.0 {
		t.Fatalf("replace did not take: %v", got.Entries)
	}
}

func TestLatestVersion(t *testing.T) {
	s := tempStore(t)

	if v, err := s.LatestVersion("M"); err != nil || v != 0 {
		t.Fatalf("expected 0 for unknown, got %d err %v", v, err)
	}

	for _, v := range []int{1, 2, 5} {
		if err := s.Put(NewIdentity("M", v, 2)); err != nil {
			t.Fatalf("Put v%d: %v", v, err)
		}
	}
	v, err := s.LatestVersion("M")
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if v != 5 {
		t.Fatalf("expected 5, got %d", v)
	}
}

func TestList(t *testing.T) {
	s := tempStore(t)
	for _, v := range []int{1, 2, 3} {
		m := NewIdentity("M", v, 2)
		if v > 1 {
			m.ParentVersion = v - 1
		}
		if err := s.Put(m); err != nil {
			t.Fatalf("Put v%d: %v", v, err)
		}
	}

	infos, err := s.List("M")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(infos))
	}
	if infos[0].Version != 1 || infos[2].Version != 3 {
		t.Fatalf("wrong order: %+v", infos)
	}
	if infos[2].ParentVersion != 2 {
		t.Fatalf("lineage lost: %+v", infos[2])
	}
}
