package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/lakerun/internal/target"
)

// NewJobCommand creates the job command group.
func NewJobCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Run, preview and inspect transformation jobs",
	}

	cmd.AddCommand(newJobRunCommand(rootOpts))
	cmd.AddCommand(newJobPreviewCommand(rootOpts))
	cmd.AddCommand(newJobEngineCommand(rootOpts))

	return cmd
}

func newJobRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job|file>",
		Short: "Run a transformation job",
		Long: `Run a transformation job through the engine, streaming its output.

The job is named directly or by one of its files; "kpi.comet.yml",
"kpi.sql" and "kpi.step2.sql" all name the job "kpi".

Example:
  lakerun job run kpi
  lakerun job run metadata/jobs/kpi.comet.yml --env prod`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return s.app.Run(ctx, target.NewMaintenance(target.ActionTransform, target.JobName(args[0])))
			})
		},
	}
}

func newJobPreviewCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <job|file>",
		Short: "Print a job's compiled SQL and estimate its cost",
		Long: `Compile a job without running it, print the compiled SQL and submit it
as a warehouse dry run.

Example:
  lakerun job preview kpi`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return s.app.Query(ctx, target.NewCompiled(target.JobName(args[0])), true)
			})
		},
	}
}

// engineInfo is the output of 'job engine'.
type engineInfo struct {
	Job      string `json:"job"`
	Engine   string `json:"engine"`
	Variable string `json:"variable,omitempty"`
	Resolved bool   `json:"resolved"`
}

func (e engineInfo) String() string {
	return e.Engine
}

func newJobEngineCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "engine <file>",
		Short: "Show the engine a job runs on",
		Long: `Resolve the transform.engine of a job file against the active environment.
Prints None when the engine is a placeholder with no matching variable.

Example:
  lakerun job engine metadata/jobs/kpi.comet.yml --env dev`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				path, err := filepath.Abs(args[0])
				if err != nil {
					return fmt.Errorf("resolving %s: %w", args[0], err)
				}
				engine, err := s.app.JobEngine(path)
				if err != nil {
					return err
				}
				return s.formatter.Success(engineInfo{
					Job:      target.JobName(path),
					Engine:   engine.String(),
					Variable: engine.Variable,
					Resolved: engine.Resolved,
				})
			})
		},
	}
}
