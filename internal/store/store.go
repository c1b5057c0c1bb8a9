// Package store is an optional durable sink for finalised tracker
// output: ConfirmedElement and FalseAlarm records, mirrored alongside
// the bit-exact flat file internal/trackio writes (spec.md §6). It is
// grounded on the teacher's internal/db package — the same embedded-
// migrations-over-sqlite idiom (golang-migrate/v4's iofs source driver
// and sqlite database driver, WAL pragmas applied once at open) — sized
// down to what a single-process batch tracker actually needs: no
// schema-drift detection or baselining, since this package always
// creates or migrates a fresh database rather than adopting a
// long-lived production one.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/fenwick-labs/cornermht/internal/scanner"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a thin wrapper over *sql.DB for the three record kinds a
// tracking run produces.
type Store struct {
	db *sql.DB
}

// Open creates or migrates the sqlite database at path and returns a
// ready-to-use Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("store: applying %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrateUp() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: sub-filesystem for migrations: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("store: iofs source driver: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("store: constructing migrator: %w", err)
	}
	// migrate's sqlite driver Close() closes the shared *sql.DB, which
	// Store also owns and closes separately, so m is left unclosed here
	// the same way the teacher's internal/db/migrate.go does.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrating up: %w", err)
	}
	log.Printf("store: migrations applied")
	return nil
}

// RecordRun inserts the run header row. Satisfies tracker.Sink.
func (s *Store) RecordRun(runID, modelName string) error {
	_, err := s.db.Exec(`INSERT INTO runs (run_id, started_at, model_name) VALUES (?, strftime('%s','now'), ?)`, runID, modelName)
	if err != nil {
		return fmt.Errorf("store: recording run %s: %w", runID, err)
	}
	return nil
}

// RecordTrackElements inserts one row per ConfirmedElement of a track.
// Satisfies tracker.Sink.
func (s *Store) RecordTrackElements(runID string, trackID int64, elems []scanner.ConfirmedElement) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: beginning track-element transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO track_elements
		(run_id, track_id, seq, frame, kind, raw_x, raw_y, smooth_x, smooth_y, log_lik, model_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: preparing track-element insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range elems {
		if _, err := stmt.Exec(runID, trackID, i, e.Frame, e.Kind.String(), e.RawX, e.RawY, e.SmoothX, e.SmoothY, e.LogLikelihood, e.ModelName); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: inserting track %d element %d: %w", trackID, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing track %d elements: %w", trackID, err)
	}
	return nil
}

// RecordFalseAlarms inserts one row per FalseAlarm. Satisfies
// tracker.Sink.
func (s *Store) RecordFalseAlarms(runID string, alarms []scanner.FalseAlarm) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: beginning false-alarm transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO false_alarms (run_id, seq, raw_x, raw_y, frame) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: preparing false-alarm insert: %w", err)
	}
	defer stmt.Close()

	var nextSeq int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), -1) + 1 FROM false_alarms WHERE run_id = ?`, runID).Scan(&nextSeq); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: reading next false-alarm sequence: %w", err)
	}

	for i, a := range alarms {
		if _, err := stmt.Exec(runID, nextSeq+i, a.RawX, a.RawY, a.Frame); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: inserting false alarm %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing false alarms: %w", err)
	}
	return nil
}
