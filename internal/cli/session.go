package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/lakerun/internal/config"
	"github.com/roach88/lakerun/internal/dispatch"
	"github.com/roach88/lakerun/internal/envfile"
	"github.com/roach88/lakerun/internal/failure"
	"github.com/roach88/lakerun/internal/history"
	"github.com/roach88/lakerun/internal/notice"
	"github.com/roach88/lakerun/internal/process"
	"github.com/roach88/lakerun/internal/render"
	"github.com/roach88/lakerun/internal/warehouse"
	"github.com/roach88/lakerun/internal/warehouse/bigquery"
)

// EnvStateKey is the state entry holding the environment chosen with 'env use'.
const EnvStateKey = "env"

// session is everything one command invocation needs.
type session struct {
	opts      *RootOptions
	app       *dispatch.App
	store     *history.Store
	formatter *OutputFormatter
	notifier  notice.Notifier
	closers   []func() error
}

// withSession opens a session for the workspace, runs fn and reports its
// error as a notice (text formats) or a JSON error response.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	notifier := notice.NewWriter(opts.errWriter(cmd))

	s, err := openSession(ctx, cmd, opts, formatter, notifier)
	if err != nil {
		return report(formatter, notifier, err)
	}
	defer s.close()

	if err := fn(ctx, s); err != nil {
		return report(formatter, notifier, err)
	}
	return nil
}

func openSession(ctx context.Context, cmd *cobra.Command, opts *RootOptions, formatter *OutputFormatter, notifier notice.Notifier) (*session, error) {
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}

	root, err := filepath.Abs(opts.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	settings, err := config.Load(root, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.HistoryDB != "" {
		settings.HistoryDB = opts.HistoryDB
	}
	if opts.Project != "" {
		settings.ProjectID = opts.Project
	}

	mode, err := render.ParseMode(opts.Format)
	if err != nil {
		return nil, err
	}

	app := &dispatch.App{
		Root:     root,
		Settings: settings,
		Mode:     mode,
		Out:      cmd.OutOrStdout(),
		Log:      opts.errWriter(cmd),
		Notifier: notifier,
		Logger:   logger,
		Environ:  opts.Environ,
	}
	if err := app.CheckWorkspace(); err != nil {
		return nil, err
	}

	s := &session{opts: opts, app: app, formatter: formatter, notifier: notifier}

	dbPath := settings.HistoryPath(root)
	logger.Debug("opening history", "path", dbPath)
	store, err := history.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	s.store = store
	s.closers = append(s.closers, store.Close)
	app.History = store

	app.Env, err = s.activeEnv(ctx)
	if err != nil {
		s.close()
		return nil, err
	}

	app.Projects = s.projectCache(settings.ProjectID)

	app.Runner = opts.Runner
	if app.Runner == nil {
		app.Runner = process.NewDispatcher(logger)
	}

	service := opts.Service
	if service == nil {
		bq := bigquery.New()
		s.closers = append(s.closers, bq.Close)
		service = bq
	}
	app.Warehouse = &warehouse.Executor{
		Service:  service,
		Projects: app.Projects,
		Notifier: notifier,
		Logger:   logger,
	}

	logger.Debug("session ready", "root", root, "env", app.Env, "format", mode)
	return s, nil
}

// activeEnv picks the environment: the --env flag, then the one saved
// with 'env use', then the settings file.
func (s *session) activeEnv(ctx context.Context) (string, error) {
	if s.opts.Env != "" {
		return s.opts.Env, nil
	}
	saved, ok, err := s.store.GetState(ctx, EnvStateKey)
	if err != nil {
		return "", fmt.Errorf("reading saved environment: %w", err)
	}
	if ok && saved != "" {
		return saved, nil
	}
	return s.app.Settings.Env, nil
}

// projectCache builds the project cache. An explicit --project is used for
// this invocation only and never persisted.
func (s *session) projectCache(configured string) *warehouse.ProjectCache {
	if s.opts.Project != "" {
		id := s.opts.Project
		return warehouse.NewProjectCache(nil, func(context.Context) (string, error) { return id, nil })
	}

	detect := s.opts.DetectProject
	if detect == nil {
		detect = func(ctx context.Context) (string, error) { return bigquery.DetectProject(ctx) }
	}
	return warehouse.NewProjectCache(s.store, func(ctx context.Context) (string, error) {
		if configured != "" {
			return configured, nil
		}
		return detect(ctx)
	})
}

// listEnvs returns the environments available in the workspace.
func (s *session) listEnvs() ([]string, error) {
	return envfile.ListEnvs(s.app.MetadataDir())
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.app.Logger.Warn("closing session", "error", err)
		}
	}
	s.closers = nil
}

// report shows err to the user once and returns it as an ExitError.
func report(formatter *OutputFormatter, notifier notice.Notifier, err error) error {
	code, errCode := classifyError(err)
	msg := failure.Summary(err)

	if formatter.Format == string(render.ModeJSON) {
		if ferr := formatter.Error(errCode, msg, detailsOf(err)); ferr != nil {
			notifier.Error(msg)
		}
	} else {
		notifier.Error(msg)
	}

	exitErr := WrapExitError(code, msg, err)
	exitErr.reported = true
	return exitErr
}
