package store

import (
	"path/filepath"
	"testing"

	"github.com/fenwick-labs/cornermht/internal/scanner"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRunsMigrations(t *testing.T) {
	s := openTestStore(t)

	var tables []string
	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name NOT LIKE 'schema_migrations'`)
	if err != nil {
		t.Fatalf("querying tables: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scanning table name: %v", err)
		}
		tables = append(tables, name)
	}

	want := map[string]bool{"runs": true, "track_elements": true, "false_alarms": true}
	for _, name := range tables {
		delete(want, name)
	}
	if len(want) != 0 {
		t.Errorf("missing tables after migration: %v (got %v)", want, tables)
	}
}

func TestRecordRunInsertsRow(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordRun("run-1", "CONSTVEL"); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	var modelName string
	if err := s.db.QueryRow(`SELECT model_name FROM runs WHERE run_id = ?`, "run-1").Scan(&modelName); err != nil {
		t.Fatalf("querying run: %v", err)
	}
	if modelName != "CONSTVEL" {
		t.Errorf("model_name = %q, want %q", modelName, "CONSTVEL")
	}
}

func TestRecordTrackElementsInsertsOrderedRows(t *testing.T) {
	s := openTestStore(t)
	if err := s.RecordRun("run-1", "CONSTVEL"); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	elems := []scanner.ConfirmedElement{
		{TrackID: 7, Frame: 0, Kind: scanner.Measurement, RawX: 1, RawY: 2, SmoothX: 1.1, SmoothY: 2.1, LogLikelihood: -0.5, ModelName: "CONSTVEL"},
		{TrackID: 7, Frame: 1, Kind: scanner.Skip, RawX: 0, RawY: 0, SmoothX: 2.1, SmoothY: 3.1, LogLikelihood: -1.1, ModelName: "CONSTVEL"},
	}
	if err := s.RecordTrackElements("run-1", 7, elems); err != nil {
		t.Fatalf("RecordTrackElements: %v", err)
	}

	rows, err := s.db.Query(`SELECT seq, frame, kind FROM track_elements WHERE run_id = ? AND track_id = ? ORDER BY seq`, "run-1", 7)
	if err != nil {
		t.Fatalf("querying track elements: %v", err)
	}
	defer rows.Close()

	var got []struct {
		seq, frame int
		kind       string
	}
	for rows.Next() {
		var r struct {
			seq, frame int
			kind       string
		}
		if err := rows.Scan(&r.seq, &r.frame, &r.kind); err != nil {
			t.Fatalf("scanning row: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("inserted %d rows, want 2", len(got))
	}
	if got[0].kind != "M" || got[1].kind != "S" {
		t.Errorf("kinds = %q, %q, want M, S", got[0].kind, got[1].kind)
	}
}

func TestRecordFalseAlarmsAppendsAcrossCalls(t *testing.T) {
	s := openTestStore(t)
	if err := s.RecordRun("run-1", "CONSTVEL"); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	first := []scanner.FalseAlarm{{RawX: 1, RawY: 1, Frame: 0}}
	second := []scanner.FalseAlarm{{RawX: 2, RawY: 2, Frame: 1}, {RawX: 3, RawY: 3, Frame: 1}}
	if err := s.RecordFalseAlarms("run-1", first); err != nil {
		t.Fatalf("RecordFalseAlarms (first): %v", err)
	}
	if err := s.RecordFalseAlarms("run-1", second); err != nil {
		t.Fatalf("RecordFalseAlarms (second): %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM false_alarms WHERE run_id = ?`, "run-1").Scan(&count); err != nil {
		t.Fatalf("counting false alarms: %v", err)
	}
	if count != 3 {
		t.Fatalf("false alarm count = %d, want 3", count)
	}

	var maxSeq int
	if err := s.db.QueryRow(`SELECT MAX(seq) FROM false_alarms WHERE run_id = ?`, "run-1").Scan(&maxSeq); err != nil {
		t.Fatalf("querying max seq: %v", err)
	}
	if maxSeq != 2 {
		t.Errorf("max seq = %d, want 2 (sequences must not collide across calls)", maxSeq)
	}
}
