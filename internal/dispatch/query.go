package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/lakerun/internal/failure"
	"github.com/roach88/lakerun/internal/history"
	"github.com/roach88/lakerun/internal/markers"
	"github.com/roach88/lakerun/internal/render"
	"github.com/roach88/lakerun/internal/target"
)

// Query runs a query target. A dry run only estimates scanned bytes.
//
//   - AdHocQuery: straight to the warehouse.
//   - CompiledJob: the engine compiles the job, the compiled SQL goes to
//     the warehouse.
//   - InteractiveJob: the engine compiles and runs the job itself and
//     prints results between markers.
func (a *App) Query(ctx context.Context, t target.Target, dryRun bool) error {
	if err := a.CheckWorkspace(); err != nil {
		return err
	}

	switch t.Kind {
	case target.AdHocQuery:
		if t.Job != "" {
			a.logger().Debug("query file of job runs as-is", "job", t.Job)
		}
		return a.runSQL(ctx, t.Query, dryRun, "")
	case target.CompiledJob:
		return a.compiledJob(ctx, t.Job, dryRun)
	case target.InteractiveJob:
		return a.interactiveJob(ctx, t.Job)
	default:
		return fmt.Errorf("%s is not a query", t)
	}
}

func (a *App) compiledJob(ctx context.Context, job string, dryRun bool) error {
	a.progress("Computing Job request ...")

	res, err := a.engine(ctx, []string{target.ActionTransform, "--name", job, "--compile"}, "INFO", nil)
	if err != nil {
		return err
	}

	sql, ok := markers.CompiledSQL(res.Output)
	if !ok {
		if res.ExitCode != 0 {
			return transformFailed(res.ExitCode, res.Output)
		}
		a.logger().Warn("compiled SQL markers not found; showing raw output", "job", job, "run_id", res.RunID)
		fmt.Fprint(a.out(), res.Output)
		return nil
	}

	a.progress("Computed Job request:")
	if dryRun {
		fmt.Fprintln(a.out(), strings.TrimSpace(sql))
	} else {
		fmt.Fprintln(a.log(), strings.TrimSpace(sql))
	}

	// A failed compile never reaches the warehouse.
	if res.ExitCode != 0 {
		return transformFailed(res.ExitCode, res.Output)
	}
	return a.runSQL(ctx, sql, dryRun, res.RunID)
}

func (a *App) interactiveJob(ctx context.Context, job string) error {
	a.progress("Computing Job request ...")

	args := []string{target.ActionTransform, "--name", job, "--interactive", string(a.mode())}
	res, err := a.engine(ctx, args, "INFO", nil)
	if err != nil {
		return err
	}

	if n, ok := markers.BytesProcessed(res.Output); ok {
		a.notifier().Info("Dry run: " + render.FormatBytes(n))
	}

	found := false
	if sql, ok := markers.CompiledSQL(res.Output); ok {
		found = true
		a.progress("Computed Job request:")
		fmt.Fprintln(a.log(), strings.TrimSpace(sql))
	}
	if results, ok := markers.InteractiveResults(res.Output); ok {
		found = true
		a.progress("Results:")
		fmt.Fprint(a.out(), strings.TrimLeft(results, "\n"))
	}

	if res.ExitCode != 0 {
		return transformFailed(res.ExitCode, res.Output)
	}
	if !found {
		a.logger().Warn("interactive markers not found; showing raw output", "job", job, "run_id", res.RunID)
		fmt.Fprint(a.out(), res.Output)
	}
	return nil
}

// runSQL submits sql and renders rows. runID links the query to the
// engine run that compiled it.
//
// Dry-run failures are logged and swallowed; speculative previews should
// not raise errors.
func (a *App) runSQL(ctx context.Context, sql string, dryRun bool, runID string) error {
	if a.Warehouse == nil {
		return failure.New(failure.NotFound, "query", "no warehouse configured")
	}

	q := history.Query{RunID: runID, SQL: sql, DryRun: dryRun}
	res, err := a.Warehouse.Run(ctx, sql, dryRun)
	if res != nil {
		q.ProjectID = res.ProjectID
		q.JobID = res.JobID
		q.TotalBytes = res.TotalBytes
		q.RowCount = len(res.Rows)
	}
	if err != nil {
		q.Error = err.Error()
	}
	a.recordQuery(ctx, q)

	if err != nil {
		if !failure.Is(err, failure.RemoteFailure) {
			return err
		}
		if dryRun {
			a.logger().Debug("dry run failed", "error", err)
			return nil
		}
		return &failure.Error{
			Code:    failure.RemoteFailure,
			Op:      "query",
			Message: "Failed to query BigQuery",
			Err:     remoteCause(err),
		}
	}

	if dryRun {
		return nil
	}

	a.progress("Results for job %s:", res.JobID)
	return render.Render(a.out(), res.Rows, a.mode())
}

func transformFailed(code int, output string) error {
	e := failure.Exited(target.ActionTransform, code, output)
	e.Message = "Transform failed"
	if output != "" {
		e.Message += "\n" + strings.TrimRight(output, "\n")
	}
	return e
}

// remoteCause strips the failure wrapper so the notice shows the
// service's own message.
func remoteCause(err error) error {
	var fe *failure.Error
	if errors.As(err, &fe) && fe.Err != nil {
		return fe.Err
	}
	return err
}
