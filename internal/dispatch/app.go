// Package dispatch runs user commands end to end: it launches the engine,
// scrapes marker spans out of its output, hands SQL to the warehouse and
// renders what comes back.
//
// All process-wide state (active environment, render mode, cached project
// id, output sinks) lives on App, which is passed to every pipeline.
//
// Output discipline: engine chatter and progress lines go to Log, results
// go to Out, short user-facing messages go to the Notifier. Pipelines
// report success through the Notifier and return failures as errors; the
// caller turns those into error notices.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/roach88/lakerun/internal/config"
	"github.com/roach88/lakerun/internal/envfile"
	"github.com/roach88/lakerun/internal/failure"
	"github.com/roach88/lakerun/internal/history"
	"github.com/roach88/lakerun/internal/jobdef"
	"github.com/roach88/lakerun/internal/notice"
	"github.com/roach88/lakerun/internal/process"
	"github.com/roach88/lakerun/internal/render"
	"github.com/roach88/lakerun/internal/warehouse"
)

// OutDir is the project-relative directory for generated files.
const OutDir = "out"

// Recorder stores run and query history.
type Recorder interface {
	RecordRun(ctx context.Context, run history.Run) error
	RecordQuery(ctx context.Context, q history.Query) (int64, error)
}

// App is the application context shared by every pipeline.
type App struct {
	// Root is the project root (COMET_ROOT).
	Root string

	Settings *config.Settings

	// Env is the active named environment; empty or "None" means base only.
	Env string

	Mode render.Mode

	// Out receives results: rows, compiled SQL, validation reports.
	Out io.Writer

	// Log receives engine output and progress lines.
	Log io.Writer

	Notifier notice.Notifier
	Logger   *slog.Logger

	Runner    process.Runner
	Warehouse *warehouse.Executor
	Projects  *warehouse.ProjectCache
	History   Recorder

	// GOOS selects the engine launcher; defaults to runtime.GOOS.
	GOOS string

	// Environ is the inherited environment; defaults to os.Environ.
	Environ func() []string
}

// MetadataDir returns the absolute metadata directory.
func (a *App) MetadataDir() string {
	return a.settings().MetadataPath(a.Root)
}

// OutPath returns the absolute path of name under the out directory.
func (a *App) OutPath(name string) string {
	return filepath.Join(a.Root, OutDir, name)
}

// CheckWorkspace fails with NotFound unless the metadata directory exists.
func (a *App) CheckWorkspace() error {
	dir := a.MetadataDir()
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return failure.Missing("open workspace", dir)
	}
	return nil
}

// ResolveEnv merges the base env file with the active overlay.
func (a *App) ResolveEnv() (*envfile.Map, error) {
	return envfile.Resolve(a.MetadataDir(), a.envName())
}

// JobEngine resolves the declared engine of a job file against the
// active environment.
func (a *App) JobEngine(path string) (jobdef.Engine, error) {
	env, err := a.ResolveEnv()
	if err != nil {
		return jobdef.Engine{}, err
	}
	engine, err := jobdef.ResolveEngine(path, env)
	if err != nil {
		return jobdef.Engine{}, err
	}
	a.logger().Debug("job engine resolved", "path", path, "engine", engine.String(), "resolved", engine.Resolved)
	return engine, nil
}

// engine runs one engine action to completion and records it.
// logLevel overrides the configured level when set. sink may be nil, in
// which case output is only buffered.
func (a *App) engine(ctx context.Context, args []string, logLevel string, sink io.Writer) (*process.Result, error) {
	logger := a.logger()
	settings := a.settings()

	command, err := process.EngineCommand(settings.StarlakeBin, a.goos())
	if err != nil {
		return nil, err
	}

	if logLevel == "" {
		logLevel = settings.LogLevel
	}
	vars := process.EngineVars{
		Root:           a.Root,
		MetadataDir:    a.MetadataDir(),
		Env:            a.envName(),
		SparkDir:       settings.SparkDir,
		StarlakeBin:    settings.StarlakeBin,
		LogLevel:       logLevel,
		ProjectID:      a.currentProject(ctx),
		TempBucket:     settings.TemporaryGCSBucket,
		SubstituteVars: settings.Substitute(),
	}
	spec := process.Spec{
		Command: command,
		Args:    args,
		Env:     process.BuildEnv(a.environ(), vars.Map()),
		Dir:     a.Root,
	}

	logger.Info("starting engine", "action", args[0], "args", args[1:], "env", vars.Env)
	started := time.Now()
	res, err := a.Runner.Run(ctx, spec, sink)
	if err != nil {
		logger.Error("engine failed to start", "action", args[0], "error", err)
		return nil, err
	}
	logger.Info("engine finished", "run_id", res.RunID, "action", args[0], "exit_code", res.ExitCode)

	a.recordRun(ctx, history.Run{
		ID:          res.RunID,
		Action:      args[0],
		Args:        args,
		Env:         vars.Env,
		ExitCode:    res.ExitCode,
		Duration:    res.Duration,
		OutputBytes: len(res.Output),
		StartedAt:   started,
	})
	return res, nil
}

// currentProject is the cached project id, without resolving a missing one.
func (a *App) currentProject(ctx context.Context) string {
	if a.Projects != nil {
		id, err := a.Projects.Peek(ctx)
		if err != nil {
			a.logger().Warn("reading cached project id", "error", err)
		}
		if id != "" {
			return id
		}
	}
	return a.settings().ProjectID
}

func (a *App) recordRun(ctx context.Context, run history.Run) {
	if a.History == nil || run.ID == "" {
		return
	}
	if err := a.History.RecordRun(ctx, run); err != nil {
		a.logger().Warn("recording run", "run_id", run.ID, "error", err)
	}
}

func (a *App) recordQuery(ctx context.Context, q history.Query) {
	if a.History == nil {
		return
	}
	if _, err := a.History.RecordQuery(ctx, q); err != nil {
		a.logger().Warn("recording query", "job_id", q.JobID, "error", err)
	}
}

// progress writes a status line to Log.
func (a *App) progress(format string, args ...any) {
	fmt.Fprintf(a.log(), format+"\n", args...)
}

func (a *App) settings() *config.Settings {
	if a.Settings == nil {
		a.Settings = config.Default()
	}
	return a.Settings
}

func (a *App) envName() string {
	if a.Env == "" {
		return envfile.NoOverlay
	}
	return a.Env
}

func (a *App) mode() render.Mode {
	if a.Mode == "" {
		return render.DefaultMode
	}
	return a.Mode
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return io.Discard
	}
	return a.Out
}

func (a *App) log() io.Writer {
	if a.Log == nil {
		return io.Discard
	}
	return a.Log
}

func (a *App) notifier() notice.Notifier {
	if a.Notifier == nil {
		return notice.Discard
	}
	return a.Notifier
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *App) goos() string {
	if a.GOOS == "" {
		return runtime.GOOS
	}
	return a.GOOS
}

func (a *App) environ() []string {
	if a.Environ == nil {
		return os.Environ()
	}
	return a.Environ()
}
