package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/roach88/lakerun/internal/failure"
	"github.com/roach88/lakerun/internal/markers"
	"github.com/roach88/lakerun/internal/target"
)

// RunLog is the file under out/ that keeps the last validation output.
const RunLog = "run.log"

// DataGraph is the file under out/ written by Yml2gv.
const DataGraph = "datagraph.dot"

// Run executes a Maintenance target.
func (a *App) Run(ctx context.Context, t target.Target) error {
	if t.Kind != target.Maintenance {
		return fmt.Errorf("%s is not a maintenance action", t)
	}
	switch t.Action {
	case target.ActionValidate:
		return a.Validate(ctx)
	case target.ActionLoad:
		return a.Load(ctx)
	case target.ActionTransform:
		if len(t.Args) != 1 {
			return fmt.Errorf("transform takes exactly one job name, got %d", len(t.Args))
		}
		return a.RunJob(ctx, t.Args[0])
	case target.ActionYml2gv:
		return a.Yml2gv(ctx)
	case target.ActionYml2xls:
		return a.Yml2xls(ctx)
	case target.ActionXls2yml:
		if len(t.Args) != 1 {
			return fmt.Errorf("xls2yml takes exactly one file, got %d", len(t.Args))
		}
		return a.Xls2yml(ctx, t.Args[0])
	default:
		return fmt.Errorf("unknown action %q", t.Action)
	}
}

// RunJob runs a transformation job, streaming engine output to Log.
func (a *App) RunJob(ctx context.Context, job string) error {
	if err := a.CheckWorkspace(); err != nil {
		return err
	}

	res, err := a.engine(ctx, []string{target.ActionTransform, "--name", job}, "", a.log())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return transformFailed(res.ExitCode, "")
	}
	a.notifier().Info("Transform success")
	return nil
}

// Validate runs the engine's validation pass. Output is streamed to Log
// and copied to out/run.log; the extracted report goes to Out.
//
// Validation fails when the engine exits non-zero or when the report does
// not open with the "0 errors found" phrase.
func (a *App) Validate(ctx context.Context) error {
	if err := a.CheckWorkspace(); err != nil {
		return err
	}

	runLog, err := a.createOutFile(RunLog)
	if err != nil {
		return err
	}
	defer runLog.Close()

	res, err := a.engine(ctx, []string{target.ActionValidate}, "", io.MultiWriter(a.log(), runLog))
	if err != nil {
		return err
	}

	report := markers.Validation(res.Output)
	if report.Found {
		fmt.Fprint(a.out(), report.Body)
	} else {
		a.logger().Warn("validation markers not found; showing raw output", "run_id", res.RunID)
		fmt.Fprint(a.out(), res.Output)
	}

	if report.Failed || res.ExitCode != 0 {
		code := failure.Invalid
		if res.ExitCode != 0 {
			code = failure.NonZeroExit
		}
		return &failure.Error{
			Code:     code,
			Op:       target.ActionValidate,
			Path:     runLog.Name(),
			Message:  "Validation failed. See errors in log",
			ExitCode: res.ExitCode,
		}
	}
	a.notifier().Info("Validation succeeded")
	return nil
}

// Load runs the engine's load pass.
func (a *App) Load(ctx context.Context) error {
	if err := a.CheckWorkspace(); err != nil {
		return err
	}

	res, err := a.engine(ctx, []string{target.ActionLoad}, "", a.log())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		e := failure.Exited(target.ActionLoad, res.ExitCode, "")
		e.Message = fmt.Sprintf("Load failed %d", res.ExitCode)
		return e
	}
	a.notifier().Info(fmt.Sprintf("Load succeeded %d", res.ExitCode))
	return nil
}

// Yml2gv writes the data graph of the metadata to out/datagraph.dot.
func (a *App) Yml2gv(ctx context.Context) error {
	if err := a.CheckWorkspace(); err != nil {
		return err
	}
	if err := a.ensureOutDir(); err != nil {
		return err
	}

	a.progress("Generating Data Graph ...")
	dot := a.OutPath(DataGraph)
	res, err := a.engine(ctx, []string{target.ActionYml2gv, "--output", dot}, "INFO", a.log())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		e := failure.Exited(target.ActionYml2gv, res.ExitCode, "")
		e.Message = "Data Graph Generation failed"
		return e
	}
	a.notifier().Info("Success: " + dot)
	return nil
}

// Yml2xls exports the domain definitions as spreadsheets under out/.
func (a *App) Yml2xls(ctx context.Context) error {
	if err := a.CheckWorkspace(); err != nil {
		return err
	}
	if err := a.ensureOutDir(); err != nil {
		return err
	}

	a.progress("Generating Excel Files ...")
	outDir := filepath.Join(a.Root, OutDir)
	res, err := a.engine(ctx, []string{target.ActionYml2xls, "--xls", outDir}, "INFO", a.log())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		e := failure.Exited(target.ActionYml2xls, res.ExitCode, "")
		e.Message = "Excel Files could not be generated"
		return e
	}
	a.notifier().Info("XLS files located in " + outDir)
	return nil
}

// Xls2yml converts a spreadsheet into domain definitions under
// <metadata>/domains.
func (a *App) Xls2yml(ctx context.Context, file string) error {
	if err := a.CheckWorkspace(); err != nil {
		return err
	}
	if _, err := os.Stat(file); err != nil {
		return failure.Missing(target.ActionXls2yml, file)
	}
	if err := a.ensureOutDir(); err != nil {
		return err
	}

	a.progress("Generating Domain Files ...")
	args := []string{target.ActionXls2yml, "--files", file, "--encryption", "false"}
	res, err := a.engine(ctx, args, "INFO", a.log())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		e := failure.Exited(target.ActionXls2yml, res.ExitCode, "")
		e.Message = "YML Files could not be generated"
		return e
	}
	a.notifier().Info("YML files located in " + filepath.Join(a.MetadataDir(), "domains"))
	return nil
}

func (a *App) ensureOutDir() error {
	dir := filepath.Join(a.Root, OutDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

// createOutFile truncates or creates name under out/.
func (a *App) createOutFile(name string) (*os.File, error) {
	if err := a.ensureOutDir(); err != nil {
		return nil, err
	}
	f, err := os.Create(a.OutPath(name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", a.OutPath(name), err)
	}
	return f, nil
}
