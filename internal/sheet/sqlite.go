package sheet

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cases (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	device     TEXT NOT NULL DEFAULT '',
	package    TEXT NOT NULL DEFAULT '',
	steps      TEXT NOT NULL,
	expect     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS runs (
	case_id     TEXT NOT NULL,
	device      TEXT NOT NULL,
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	script      TEXT NOT NULL DEFAULT '',
	finished_at TEXT NOT NULL
);`

// SQLite stores cases and run history in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer at a time; concurrent device runners share the handle.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// PutCase inserts or replaces a case definition. Any recorded status is kept.
func (s *SQLite) PutCase(ctx context.Context, c Case) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cases (id, name, device, package, steps, expect)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name, device = excluded.device, package = excluded.package,
	steps = excluded.steps, expect = excluded.expect`,
		c.ID, c.Name, c.Device, c.Package, c.Steps, c.Expect)
	if err != nil {
		return fmt.Errorf("put case %s: %w", c.ID, err)
	}
	return nil
}

// ReadCases returns every case ordered by id.
func (s *SQLite) ReadCases(ctx context.Context) ([]Case, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, device, package, steps, expect, status, reason FROM cases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var cases []Case
	for rows.Next() {
		var c Case
		var status string
		if err := rows.Scan(&c.ID, &c.Name, &c.Device, &c.Package, &c.Steps, &c.Expect, &status, &c.Reason); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		c.Ref, c.Status = c.ID, Status(status)
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// WriteResult updates the case status and appends a run row.
func (s *SQLite) WriteResult(ctx context.Context, r Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	finished := r.Finished.UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `UPDATE cases SET status = ?, reason = ?, updated_at = ? WHERE id = ?`,
		string(r.Status), r.Reason, finished, r.CaseID)
	if err != nil {
		return fmt.Errorf("update case %s: %w", r.CaseID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("case %s not found", r.CaseID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (case_id, device, status, reason, duration_ms, script, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.CaseID, r.Device, string(r.Status), r.Reason, r.Duration.Milliseconds(), r.Script, finished); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return tx.Commit()
}

// Runs returns the recorded runs for a case, oldest first.
func (s *SQLite) Runs(ctx context.Context, caseID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device, status, reason, duration_ms, script, finished_at FROM runs WHERE case_id = ? ORDER BY rowid`, caseID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		r := Result{CaseID: caseID}
		var status, finished string
		var ms int64
		if err := rows.Scan(&r.Device, &status, &r.Reason, &ms, &r.Script, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status, r.Duration = Status(status), time.Duration(ms)*time.Millisecond
		r.Finished, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
