package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/lakerun/internal/target"
)

// QueryOptions holds flags for the query and dry-run commands.
type QueryOptions struct {
	*RootOptions
	Selection string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <file>",
		Short: "Run a query file or a job's query",
		Long: `Run the SQL in a file, or the part of it given with --selection.

Files outside the jobs directory are sent to the warehouse as-is. A .sql file
in jobs with a matching .comet.yml runs through the engine when it contains
${...} or {{...}} placeholders. A .comet.yml file compiles the job and runs
the compiled SQL.

Example:
  lakerun query queries/top_customers.sql
  lakerun query metadata/jobs/kpi.comet.yml --format csv
  lakerun query metadata/jobs/kpi.sql --selection "SELECT * FROM sales"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0], false)
		},
	}

	cmd.Flags().StringVarP(&opts.Selection, "selection", "s", "", "query text to run instead of the whole file")

	return cmd
}

// NewDryRunCommand creates the dry-run command.
func NewDryRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dry-run <file>",
		Short: "Estimate the bytes a query would scan",
		Long: `Submit the query as a warehouse dry run and report the bytes it would scan.
No rows are read. Dry-run failures are logged, not reported.

Example:
  lakerun dry-run queries/top_customers.sql`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0], true)
		},
	}

	cmd.Flags().StringVarP(&opts.Selection, "selection", "s", "", "query text to estimate instead of the whole file")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions, file string, dryRun bool) error {
	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		path, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", file, err)
		}

		t, err := target.Classify(path, opts.Selection, s.app.Root)
		if err != nil {
			return err
		}
		s.app.Logger.Debug("target classified", "path", path, "kind", t.Kind.String(), "job", t.Job, "dry_run", dryRun)

		return s.app.Query(ctx, t, dryRun)
	})
}
