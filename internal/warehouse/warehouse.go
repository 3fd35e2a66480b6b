// Package warehouse submits SQL to the query service and collects results.
//
// The Executor never retries. A failed submission drops the cached project
// id so the next call resolves it again.
package warehouse

import (
	"context"
	"log/slog"

	"github.com/roach88/lakerun/internal/failure"
	"github.com/roach88/lakerun/internal/notice"
	"github.com/roach88/lakerun/internal/render"
)

// Request is one query submission. Legacy SQL is never used.
type Request struct {
	SQL    string
	DryRun bool
}

// Service submits query jobs.
type Service interface {
	Submit(ctx context.Context, projectID string, req Request) (Job, error)
}

// Job is a submitted query job.
type Job interface {
	ID() string

	// TotalBytesProcessed is the scanned-byte estimate (dry run) or
	// actual (real run).
	TotalBytesProcessed() int64

	// Rows reads the complete result set, following pagination.
	Rows(ctx context.Context) ([]render.Row, error)
}

// Result is the outcome of one query.
type Result struct {
	ProjectID  string
	JobID      string
	Rows       []render.Row
	TotalBytes int64
	DryRun     bool
}

// Executor runs SQL against a Service.
type Executor struct {
	Service  Service
	Projects *ProjectCache
	Notifier notice.Notifier
	Logger   *slog.Logger
}

// Run submits sql. The scanned-byte estimate is always reported as a
// notice. A dry run returns no rows.
//
// Failures come back as failure.RemoteFailure after the project cache
// has been invalidated; deciding whether to show them is the caller's job.
func (e *Executor) Run(ctx context.Context, sql string, dryRun bool) (*Result, error) {
	logger := e.logger()

	projectID, err := e.Projects.Get(ctx)
	if err != nil {
		return nil, err
	}

	job, err := e.Service.Submit(ctx, projectID, Request{SQL: sql, DryRun: dryRun})
	if err != nil {
		return nil, e.remoteFailure(ctx, "submit query", projectID, err)
	}

	res := &Result{ProjectID: projectID, JobID: job.ID(), TotalBytes: job.TotalBytesProcessed(), DryRun: dryRun}
	logger.Debug("query job submitted", "job_id", res.JobID, "project", projectID, "dry_run", dryRun, "bytes", res.TotalBytes)
	e.notifier().Info("Dry run: " + render.FormatBytes(res.TotalBytes))

	if dryRun {
		return res, nil
	}

	rows, err := job.Rows(ctx)
	if err != nil {
		return nil, e.remoteFailure(ctx, "read results", projectID, err)
	}
	res.Rows = rows
	logger.Debug("query results read", "job_id", res.JobID, "rows", len(rows))
	return res, nil
}

func (e *Executor) remoteFailure(ctx context.Context, op, projectID string, err error) error {
	e.logger().Warn("query failed; project id invalidated", "op", op, "project", projectID, "error", err)
	if ierr := e.Projects.Invalidate(ctx); ierr != nil {
		e.logger().Warn("project id invalidation failed", "error", ierr)
	}
	return failure.Wrap(failure.RemoteFailure, op, err)
}

func (e *Executor) notifier() notice.Notifier {
	if e.Notifier == nil {
		return notice.Discard
	}
	return e.Notifier
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
