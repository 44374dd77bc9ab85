// Package runstore persists pipeline reports to SQLite. Every run,
// complete or partial, is written through so a crash never loses a
// finished report.
package runstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nexasales/nexasales/internal/segmentation"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	service_name TEXT NOT NULL DEFAULT '',
	mode         TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	report_json  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

type Store struct {
	db *sqlx.DB
}

func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init run store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save writes one report, replacing any earlier write for the same run.
func (s *Store) Save(rep segmentation.Report) error {
	blob, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", rep.RunID, err)
	}
	serviceName := ""
	if rep.Service != nil {
		serviceName = rep.Service.Name
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO runs (run_id, service_name, mode, created_at, report_json) VALUES (?, ?, ?, ?, ?)`,
		rep.RunID, serviceName, string(rep.Mode), rep.GeneratedAt.UTC().Format(time.RFC3339Nano), string(blob),
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", rep.RunID, err)
	}
	return nil
}

// Get loads one report by run id.
func (s *Store) Get(runID string) (segmentation.Report, error) {
	var blob string
	err := s.db.Get(&blob, `SELECT report_json FROM runs WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return segmentation.Report{}, ErrNotFound
	}
	if err != nil {
		return segmentation.Report{}, fmt.Errorf("load report %s: %w", runID, err)
	}
	var rep segmentation.Report
	if err := json.Unmarshal([]byte(blob), &rep); err != nil {
		return segmentation.Report{}, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return rep, nil
}

// RunSummary is one row of List.
type RunSummary struct {
	RunID       string    `db:"run_id"`
	ServiceName string    `db:"service_name"`
	Mode        string    `db:"mode"`
	CreatedAt   time.Time `db:"-"`

	CreatedAtRaw string `db:"created_at"`
}

// List returns the most recent runs, newest first.
func (s *Store) List(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []RunSummary
	err := s.db.Select(&rows, `SELECT run_id, service_name, mode, created_at FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for i := range rows {
		if ts, err := time.Parse(time.RFC3339Nano, rows[i].CreatedAtRaw); err == nil {
			rows[i].CreatedAt = ts
		}
	}
	return rows, nil
}
