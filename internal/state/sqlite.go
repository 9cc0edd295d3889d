package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			suite_id TEXT NOT NULL,
			suite_version TEXT NOT NULL DEFAULT '',
			work_dir TEXT NOT NULL,
			start_ts TEXT NOT NULL,
			finish_ts TEXT NOT NULL DEFAULT '',
			passed INTEGER NOT NULL DEFAULT 0,
			pass_count INTEGER NOT NULL DEFAULT 0,
			fail_count INTEGER NOT NULL DEFAULT 0,
			skip_count INTEGER NOT NULL DEFAULT 0,
			earned INTEGER NOT NULL DEFAULT 0,
			possible INTEGER NOT NULL DEFAULT 0,
			inputs TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS check_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			check_id TEXT NOT NULL,
			status TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			required INTEGER NOT NULL DEFAULT 1,
			message TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_suite_dir ON runs(suite_id, work_dir, finish_ts);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	// Backfill history files written before runs.engine existed.
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE runs ADD COLUMN engine TEXT NOT NULL DEFAULT ''`); err != nil {
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "duplicate column name") {
			return fmt.Errorf("ensure schema alter runs.engine: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) StartRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("run id is required")
	}
	start := run.StartTS
	if start.IsZero() {
		start = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, suite_id, suite_version, work_dir, engine, inputs, start_ts) VALUES(?,?,?,?,?,?,?)`,
		run.RunID,
		run.SuiteID,
		run.SuiteVersion,
		run.WorkDir,
		run.Engine,
		run.Inputs,
		start.UTC().Format(timeLayout),
	)
	return err
}

func (s *SQLiteStore) RecordCheck(ctx context.Context, runID string, check CheckRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO check_results(run_id, check_id, status, kind, required, message, duration_ms) VALUES(?,?,?,?,?,?,?)`,
		runID,
		check.CheckID,
		check.Status,
		check.Kind,
		ifThen(check.Required, 1, 0),
		check.Message,
		max(0, check.DurationMS),
	)
	return err
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, out Outcome) error {
	finish := out.FinishTS
	if finish.IsZero() {
		finish = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finish_ts = ?,
			passed = ?,
			pass_count = ?,
			fail_count = ?,
			skip_count = ?,
			earned = ?,
			possible = ?,
			fingerprint = ?,
			engine = CASE WHEN ? <> '' THEN ? ELSE engine END
		WHERE run_id = ?
	`,
		finish.UTC().Format(timeLayout),
		ifThen(out.Passed, 1, 0),
		out.Pass,
		out.Fail,
		out.Skip,
		out.Earned,
		out.Possible,
		out.Fingerprint,
		out.Engine, out.Engine,
		runID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// LastRuns returns the newest runs first.
func (s *SQLiteStore) LastRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, suite_id, suite_version, work_dir, engine, start_ts, finish_ts,
			passed, pass_count, fail_count, skip_count, earned, possible, fingerprint
		FROM runs
		ORDER BY start_ts DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunSummary
	for rows.Next() {
		var (
			r        RunSummary
			startRaw string
			finRaw   string
			passed   int
		)
		if err := rows.Scan(&r.RunID, &r.SuiteID, &r.SuiteVersion, &r.WorkDir, &r.Engine, &startRaw, &finRaw,
			&passed, &r.Outcome.Pass, &r.Outcome.Fail, &r.Outcome.Skip, &r.Outcome.Earned, &r.Outcome.Possible, &r.Outcome.Fingerprint); err != nil {
			return nil, err
		}
		if t, err := time.Parse(timeLayout, startRaw); err == nil {
			r.StartTS = t
		}
		if t, err := time.Parse(timeLayout, finRaw); err == nil {
			r.FinishTS = t
			r.Finished = true
		}
		r.Outcome.Passed = passed == 1
		r.Outcome.Engine = r.Engine
		r.Outcome.FinishTS = r.FinishTS
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) RunChecks(ctx context.Context, runID string) ([]CheckRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT check_id, status, kind, required, message, duration_ms
		FROM check_results
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CheckRecord
	for rows.Next() {
		var (
			c        CheckRecord
			required int
		)
		if err := rows.Scan(&c.CheckID, &c.Status, &c.Kind, &required, &c.Message, &c.DurationMS); err != nil {
			return nil, err
		}
		c.Required = required == 1
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LastFingerprint returns the fingerprint of the newest finished run of
// suiteID over workDir.
func (s *SQLiteStore) LastFingerprint(ctx context.Context, suiteID, workDir string) (Fingerprint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, fingerprint, inputs
		FROM runs
		WHERE suite_id = ? AND work_dir = ? AND finish_ts <> ''
		ORDER BY finish_ts DESC, rowid DESC
		LIMIT 1
	`, suiteID, workDir)
	var fp Fingerprint
	if err := row.Scan(&fp.RunID, &fp.Result, &fp.Inputs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Fingerprint{}, false, nil
		}
		return Fingerprint{}, false, err
	}
	return fp, fp.Result != "", nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context) (Summary, error) {
	var out Summary
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as runs,
			COALESCE(SUM(passed),0) as passed,
			(SELECT COUNT(*) FROM check_results) as checks,
			COUNT(DISTINCT NULLIF(fingerprint, '')) as fingerprints
		FROM runs
	`)
	if err := row.Scan(&out.Runs, &out.Passed, &out.ChecksRecorded, &out.Fingerprints); err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func ifThen(cond bool, yes, no int) int {
	if cond {
		return yes
	}
	return no
}
