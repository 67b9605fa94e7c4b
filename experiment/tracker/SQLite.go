package tracker

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scalars (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id  TEXT NOT NULL,
	step    INTEGER NOT NULL,
	name    TEXT NOT NULL,
	value   REAL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS scalars_run_name ON scalars(run_id, name);
`

// SQLite stores tracked scalars in a SQLite database, so that several
// runs can be kept and queried side by side. Each run is identified by
// a run ID.
type SQLite struct {
	db    *sql.DB
	runID string
}

// NewSQLite opens the SQLite database at path, creating it if needed,
// and registers a run. If runID is empty, a new random ID is used.
func NewSQLite(path, runID string) (*SQLite, error) {
	if runID == "" {
		runID = uuid.NewString()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("newSQLite: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("newSQLite: pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("newSQLite: pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("newSQLite: migrate: %w", err)
	}

	_, err = db.Exec(`INSERT OR IGNORE INTO runs (run_id, created_at)
		VALUES (?, ?)`, runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("newSQLite: insert run: %w", err)
	}
	return &SQLite{db: db, runID: runID}, nil
}

// RunID returns the ID of the run being tracked
func (s *SQLite) RunID() string {
	return s.runID
}

// Track inserts the scalars in a single transaction. NaN values are
// stored as NULL.
func (s *SQLite) Track(step int, scalars map[string]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("track: begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO scalars (run_id, step, name, value)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("track: prepare: %w", err)
	}
	defer stmt.Close()

	for k, v := range scalars {
		var value interface{} = v
		if math.IsNaN(v) {
			value = nil
		}
		if _, err := stmt.Exec(s.runID, step, k, value); err != nil {
			tx.Rollback()
			return fmt.Errorf("track: insert %v: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("track: commit: %w", err)
	}
	return nil
}

// Series returns every value logged under name in the tracked run.
// NULL values are returned as NaN.
func (s *SQLite) Series(name string) ([]Point, error) {
	rows, err := s.db.Query(`SELECT step, value FROM scalars
		WHERE run_id = ? AND name = ? ORDER BY id`, s.runID, name)
	if err != nil {
		return nil, fmt.Errorf("series: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		var value sql.NullFloat64
		if err := rows.Scan(&p.Step, &value); err != nil {
			return nil, fmt.Errorf("series: scan: %w", err)
		}
		p.Value = math.NaN()
		if value.Valid {
			p.Value = value.Float64
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Save closes the database
func (s *SQLite) Save() error {
	return s.db.Close()
}
