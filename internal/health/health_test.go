package health

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

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

func TestErrRate(t *testing.T) {
	s := tempStore(t)

	for i := 0; i < 3; i++ {
		if err := s.Record(Entry{Component: "inference", OK: true, LatencyMS: 100}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := s.Record(Entry{Component: "inference", OK: false, LatencyMS: 5000, Error: "timeout"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	rate, err := s.ErrRate(time.Minute)
	if err != nil {
		t.Fatalf("ErrRate: %v", err)
	}
	if rate != 0.25 {
		t.Fatalf("expected 0.25, got %v", rate)
	}
}

func TestErrRateIdleIsZero(t *testing.T) {
	s := tempStore(t)
	rate, err := s.ErrRate(time.Minute)
	if err != nil {
		t.Fatalf("ErrRate: %v", err)
	}
	if rate != 0 {
		t.Fatalf("expected 0 when idle, got %v", rate)
	}
}

func TestErrRateWindowExcludesOld(t *testing.T) {
	s := tempStore(t)
	old := Entry{Component: "inference", OK: false, LatencyMS: 1, CreatedAt: time.Now().UTC().Add(-time.Hour)}
	if err := s.Record(old); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(Entry{Component: "inference", OK: true, LatencyMS: 1}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	rate, err := s.ErrRate(time.Minute)
	if err != nil {
		t.Fatalf("ErrRate: %v", err)
	}
	if rate != 0 {
		t.Fatalf("old failure leaked into the window: %v", rate)
	}
}

func TestP95Latency(t *testing.T) {
	s := tempStore(t)
	for i := 1; i <= 100; i++ {
		if err := s.Record(Entry{Component: "inference", OK: true, LatencyMS: float64(i)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	p95, err := s.P95Latency(time.Minute)
	if err != nil {
		t.Fatalf("P95Latency: %v", err)
	}
	if p95 != 95 {
		t.Fatalf("expected 95, got %v", p95)
	}
}

func TestP95LatencyIdleIsZero(t *testing.T) {
	s := tempStore(t)
	p95, err := s.P95Latency(time.Minute)
	if err != nil {
		t.Fatalf("P95Latency: %v", err)
	}
	if p95 != 0 {
		t.Fatalf("expected 0 when idle, got %v", p95)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := tempStore(t)
	for _, c := range []string{"a", "b", "c"} {
		if err := s.Record(Entry{Component: c, OK: true, LatencyMS: 1}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	entries, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 || entries[0].Component != "c" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}
