package belief

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func tempDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAddAndRecent(t *testing.T) {
	s, err := NewStore(tempDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	id, err := s.Add("water is wet", "user", 0.9)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Fatal("expected an id")
	}

	bs, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(bs) != 1 {
		t.Fatalf("expected 1, got %d", len(bs))
	}
	if bs[0].Text != "water is wet" || bs[0].Source != "user" || bs[0].Confidence != 0.9 {
		t.Fatalf("belief wrong: %+v", bs[0])
	}
}

func TestDeleteBetween(t *testing.T) {
	s, err := NewStore(tempDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	before := time.Now().UTC().Add(-time.Minute)
	if _, err := s.Add("inside the window", "websense", 0.5); err != nil {
		t.Fatalf("Add: %v", err)
	}

	n, err := s.DeleteBetween(before, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("DeleteBetween: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}

	// An empty window deletes nothing.
	n, err = s.DeleteBetween(before.Add(-time.Hour), before.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteBetween: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 deleted, got %d", n)
	}
}

func TestTrustDefaultsToMiddle(t *testing.T) {
	s, err := NewTrustStore(tempDB(t))
	if err != nil {
		t.Fatalf("NewTrustStore: %v", err)
	}
	got, err := s.Get("unknown.example")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 0.5 {
		t.Fatalf("expected 0.5 default, got %v", got)
	}
}

func TestTrustSetPreservesPrevious(t *testing.T) {
	s, err := NewTrustStore(tempDB(t))
	if err != nil {
		t.Fatalf("NewTrustStore: %v", err)
	}

	if err := s.Set("example.com", 0.8); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("example.com", 0.2); err != nil {
		t.Fatalf("Set again: %v", err)
	}

	got, err := s.Get("example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 0.2 {
		t.Fatalf("expected 0.2, got %v", got)
	}

	// Reverting restores the 0.8 written before the second Set.
	n, err := s.RevertBetween(time.Now().UTC().Add(-time.Minute), time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("RevertBetween: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reverted, got %d", n)
	}
	got, err = s.Get("example.com")
	if err != nil {
		t.Fatalf("Get after revert: %v", err)
	}
	if got != 0.8 {
		t.Fatalf("expected 0.8 restored, got %v", got)
	}
}

func TestRevertIgnoresRowsOutsideWindow(t *testing.T) {
	s, err := NewTrustStore(tempDB(t))
	if err != nil {
		t.Fatalf("NewTrustStore: %v", err)
	}
	if err := s.Set("example.com", 0.9); err != nil {
		t.Fatalf("Set: %v", err)
	}

	past := time.Now().UTC().Add(-2 * time.Hour)
	n, err := s.RevertBetween(past, past.Add(time.Minute))
	if err != nil {
		t.Fatalf("RevertBetween: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 reverted, got %d", n)
	}
	got, _ := s.Get("example.com")
	if got != 0.9 {
		t.Fatalf("trust changed outside the window: %v", got)
	}
}
