// Package metrics persists per-iteration history from the reader package
// and renders it as HTML and PNG charts, the way the teacher's storage and
// monitor packages persist observations and expose debug dashboards.
package metrics

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/rtics/internal/rtics/reader"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a sqlite handle the way the teacher's own DB type does, so the
// package's query helpers can be added as methods without re-threading a
// *sql.DB through every call.
type DB struct {
	*sql.DB
}

// Open creates (or reuses) a sqlite database at path and brings its schema
// up to the latest migration.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("metrics: open %s: %w", path, err)
	}
	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// migrateUp runs every pending migration embedded in the binary.
func (db *DB) migrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m.Close() is never called here: the sqlite driver's Close() would
	// close the *sql.DB this type shares with every other query the
	// caller issues against db, which WithInstance does not own.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("metrics: migrate up: %w", err)
	}
	return nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("metrics: iofs source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("metrics: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("metrics: migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) { log.Printf("[metrics migrate] "+format, v...) }
func (l *migrateLogger) Verbose() bool                          { return false }

// IterationReport is one persisted reader.Progress record, widened with a
// wall-clock timestamp for charting.
type IterationReport struct {
	ID          int64
	SessionID   string
	LastPacket  uint64
	PacketsRead uint64
	Dropped     []int
	RecordedAt  time.Time
}

// Store adapts a DB to the reader.Sink interface so a Reader can persist
// its own iteration history without knowing anything about sqlite.
type Store struct {
	db *DB
}

// NewStore wraps db as a reader.Sink.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

var _ reader.Sink = (*Store)(nil)

// Record implements reader.Sink: it persists one iteration and its
// per-stream drop counts in a single transaction.
func (s *Store) Record(p reader.Progress) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("metrics: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO iterations (session_id, last_packet, packets_read) VALUES (?, ?, ?)`,
		p.SessionID.String(), p.LastPacket, p.PacketsRead,
	)
	if err != nil {
		return fmt.Errorf("metrics: insert iteration: %w", err)
	}
	iterID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("metrics: iteration id: %w", err)
	}

	for i, d := range p.Dropped {
		if _, err := tx.Exec(
			`INSERT INTO iteration_drops (iteration_id, stream_index, dropped) VALUES (?, ?, ?)`,
			iterID, i, d,
		); err != nil {
			return fmt.Errorf("metrics: insert drop row: %w", err)
		}
	}

	return tx.Commit()
}

// RecentIterations returns up to limit iterations in recording order
// (oldest first), each with its per-stream drop counts populated.
func (s *Store) RecentIterations(limit int) ([]IterationReport, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, last_packet, packets_read, recorded_at
		 FROM iterations ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: query iterations: %w", err)
	}
	defer rows.Close()

	var reports []IterationReport
	for rows.Next() {
		var r IterationReport
		if err := rows.Scan(&r.ID, &r.SessionID, &r.LastPacket, &r.PacketsRead, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("metrics: scan iteration: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range reports {
		drops, err := s.dropsFor(reports[i].ID)
		if err != nil {
			return nil, err
		}
		reports[i].Dropped = drops
	}

	// Flip from newest-first (cheap with an indexed LIMIT) to recording
	// order, which is what every chart below expects on its x-axis.
	for i, j := 0, len(reports)-1; i < j; i, j = i+1, j-1 {
		reports[i], reports[j] = reports[j], reports[i]
	}
	return reports, nil
}

func (s *Store) dropsFor(iterID int64) ([]int, error) {
	rows, err := s.db.Query(
		`SELECT stream_index, dropped FROM iteration_drops WHERE iteration_id = ? ORDER BY stream_index`, iterID,
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: query drops: %w", err)
	}
	defer rows.Close()

	var drops []int
	for rows.Next() {
		var idx, dropped int
		if err := rows.Scan(&idx, &dropped); err != nil {
			return nil, fmt.Errorf("metrics: scan drop row: %w", err)
		}
		for len(drops) <= idx {
			drops = append(drops, 0)
		}
		drops[idx] = dropped
	}
	return drops, rows.Err()
}
