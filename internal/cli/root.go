package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/lakerun/internal/process"
	"github.com/roach88/lakerun/internal/render"
	"github.com/roach88/lakerun/internal/warehouse"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ProjectRoot string
	ConfigPath  string
	Env         string
	Format      string // "table" | "csv" | "json"
	Project     string
	HistoryDB   string
	Verbose     bool

	// Runner overrides the engine process runner (for testing).
	// If nil, a process.Dispatcher is used.
	Runner process.Runner

	// Service overrides the warehouse service (for testing).
	// If nil, a BigQuery service using default credentials is used.
	Service warehouse.Service

	// DetectProject overrides project detection from default credentials
	// (for testing).
	DetectProject warehouse.ProjectResolver

	// Environ overrides the environment inherited by the engine (for testing).
	Environ func() []string

	logger *slog.Logger
	stderr *process.LockedWriter
}

// errWriter is the stderr stream shared by the logger, engine output and
// notices, so their lines never interleave mid-write.
func (o *RootOptions) errWriter(cmd *cobra.Command) *process.LockedWriter {
	if o.stderr == nil {
		o.stderr = process.NewLockedWriter(cmd.ErrOrStderr())
	}
	return o.stderr
}

// NewRootCommand creates the root command for the lakerun CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lakerun",
		Short: "lakerun - run Starlake jobs and warehouse queries",
		Long: `Run Starlake transformation jobs and BigQuery queries from a project workspace.

Queries and job previews print results to stdout. Engine output and progress
lines go to stderr, followed by short info/error notices.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := render.ParseMode(opts.Format); err != nil {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, render.ValidModes))
			}

			logLevel := slog.LevelInfo
			if opts.Verbose {
				logLevel = slog.LevelDebug
			}
			handler := slog.NewTextHandler(opts.errWriter(cmd), &slog.HandlerOptions{
				Level: logLevel,
			})
			opts.logger = slog.New(handler)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ProjectRoot, "project-root", "C", ".", "project root directory")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "settings file (default <project-root>/.lakerun.yml)")
	cmd.PersistentFlags().StringVarP(&opts.Env, "env", "e", "", "environment overlay (default: the one selected with 'env use')")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", string(render.DefaultMode), "output format (table|csv|json)")
	cmd.PersistentFlags().StringVar(&opts.Project, "project", "", "warehouse project id")
	cmd.PersistentFlags().StringVar(&opts.HistoryDB, "history-db", "", "path to the history database")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewDryRunCommand(opts))
	cmd.AddCommand(NewJobCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewYml2gvCommand(opts))
	cmd.AddCommand(NewYml2xlsCommand(opts))
	cmd.AddCommand(NewXls2ymlCommand(opts))
	cmd.AddCommand(NewEnvCommand(opts))
	cmd.AddCommand(NewProjectCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors already reported by a command are not printed again.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, newRootCommand(&RootOptions{}), args, stdout, stderr)
}

func execute(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.reported {
			fmt.Fprintf(stderr, "error: %s\n", exitErr.Message)
		}
		return exitErr.Code
	}

	// Flag and argument errors from cobra.
	fmt.Fprintf(stderr, "error: %v\n", err)
	fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
	return ExitCommandError
}
