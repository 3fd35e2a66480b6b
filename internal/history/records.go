package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Run is one completed engine invocation.
type Run struct {
	ID          string
	Action      string
	Args        []string
	Env         string
	ExitCode    int
	Duration    time.Duration
	OutputBytes int
	StartedAt   time.Time
}

// Query is one warehouse submission.
type Query struct {
	ID         int64
	RunID      string
	JobID      string
	ProjectID  string
	SQL        string
	DryRun     bool
	TotalBytes int64
	RowCount   int
	Error      string
	CreatedAt  time.Time
}

// RecordRun inserts a run. Duplicate ids are silently ignored.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	args := run.Args
	if args == nil {
		args = []string{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	started := run.StartedAt
	if started.IsZero() {
		started = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, action, args, env, exit_code, duration_ms, output_bytes, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Action,
		string(argsJSON),
		run.Env,
		run.ExitCode,
		run.Duration.Milliseconds(),
		run.OutputBytes,
		formatTime(started),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordQuery inserts a query and returns its id. A non-empty RunID must
// name a recorded run.
func (s *Store) RecordQuery(ctx context.Context, q Query) (int64, error) {
	created := q.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	var runID sql.NullString
	if q.RunID != "" {
		runID = sql.NullString{String: q.RunID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queries
		(run_id, job_id, project_id, sql, dry_run, total_bytes, row_count, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		q.JobID,
		q.ProjectID,
		q.SQL,
		q.DryRun,
		q.TotalBytes,
		q.RowCount,
		q.Error,
		formatTime(created),
	)
	if err != nil {
		return 0, fmt.Errorf("record query: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record query: %w", err)
	}
	return id, nil
}

// Filter narrows ListRuns and ListQueries. The zero value matches
// everything.
type Filter struct {
	// Limit caps the number of entries; <= 0 means no limit.
	Limit int

	// Action matches runs by action. Ignored by ListQueries.
	Action string

	// RunID matches queries by the run that compiled them. Ignored by ListRuns.
	RunID string

	// Failed keeps runs with a non-zero exit code and queries with an error.
	Failed bool
}

var (
	runColumns   = []string{"id", "action", "args", "env", "exit_code", "duration_ms", "output_bytes", "started_at"}
	queryColumns = []string{"id", "run_id", "job_id", "project_id", "sql", "dry_run", "total_bytes", "row_count", "error", "created_at"}
)

// ListRuns returns the runs matching f, newest first.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListRuns(ctx context.Context, f Filter) ([]Run, error) {
	qb := sq.Select(runColumns...).From("runs").
		OrderBy("started_at DESC", "id COLLATE BINARY DESC")
	if f.Action != "" {
		qb = qb.Where(sq.Eq{"action": f.Action})
	}
	if f.Failed {
		qb = qb.Where(sq.NotEq{"exit_code": 0})
	}
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r          Run
			argsJSON   string
			durationMS int64
			started    string
		)
		if err := rows.Scan(&r.ID, &r.Action, &argsJSON, &r.Env, &r.ExitCode, &durationMS, &r.OutputBytes, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &r.Args); err != nil {
			return nil, fmt.Errorf("decode args of run %s: %w", r.ID, err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("decode start of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListQueries returns the queries matching f, newest first.
func (s *Store) ListQueries(ctx context.Context, f Filter) ([]Query, error) {
	qb := sq.Select(queryColumns...).From("queries").
		OrderBy("created_at DESC", "id DESC")
	if f.RunID != "" {
		qb = qb.Where(sq.Eq{"run_id": f.RunID})
	}
	if f.Failed {
		qb = qb.Where(sq.NotEq{"error": ""})
	}
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build queries query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query queries: %w", err)
	}
	defer rows.Close()

	queries := []Query{}
	for rows.Next() {
		var (
			q       Query
			runID   sql.NullString
			created string
		)
		if err := rows.Scan(&q.ID, &runID, &q.JobID, &q.ProjectID, &q.SQL, &q.DryRun, &q.TotalBytes, &q.RowCount, &q.Error, &created); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		q.RunID = runID.String
		if q.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("decode time of query %d: %w", q.ID, err)
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queries: %w", err)
	}
	return queries, nil
}

// timeLayout is fixed-width so stored stamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
