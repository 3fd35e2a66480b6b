package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lakerun/internal/history"
	"github.com/roach88/lakerun/internal/render"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit   int
	Queries bool
	Action  string
	Failed  bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded engine runs and warehouse queries",
		Long: `List the engine runs (or, with --queries, the warehouse queries) recorded in
the history database, newest first.

Example:
  lakerun history --limit 5
  lakerun history --action transform --failed
  lakerun history --queries --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				filter := history.Filter{Limit: opts.Limit, Action: opts.Action, Failed: opts.Failed}

				var rows []render.Row
				if opts.Queries {
					queries, err := s.store.ListQueries(ctx, filter)
					if err != nil {
						return err
					}
					rows = queryRows(queries)
				} else {
					runs, err := s.store.ListRuns(ctx, filter)
					if err != nil {
						return err
					}
					rows = runRows(runs)
				}

				if len(rows) == 0 {
					s.notifier.Info("No history recorded")
					return nil
				}
				return render.Render(s.app.Out, rows, s.app.Mode)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of entries (0 for all)")
	cmd.Flags().BoolVar(&opts.Queries, "queries", false, "list warehouse queries instead of engine runs")
	cmd.Flags().StringVar(&opts.Action, "action", "", "only runs of this engine action (transform, validate, ...)")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only failed runs or queries")

	return cmd
}

func runRows(runs []history.Run) []render.Row {
	rows := make([]render.Row, len(runs))
	for i, r := range runs {
		rows[i] = render.Row{
			{Name: "id", Value: r.ID},
			{Name: "started_at", Value: r.StartedAt.Local().Format(time.DateTime)},
			{Name: "action", Value: r.Action},
			{Name: "args", Value: argsTail(r.Args)},
			{Name: "env", Value: r.Env},
			{Name: "exit_code", Value: r.ExitCode},
			{Name: "duration", Value: r.Duration.Round(time.Millisecond).String()},
			{Name: "output", Value: render.FormatBytes(int64(r.OutputBytes))},
		}
	}
	return rows
}

func queryRows(queries []history.Query) []render.Row {
	rows := make([]render.Row, len(queries))
	for i, q := range queries {
		rows[i] = render.Row{
			{Name: "id", Value: q.ID},
			{Name: "created_at", Value: q.CreatedAt.Local().Format(time.DateTime)},
			{Name: "run_id", Value: q.RunID},
			{Name: "project", Value: q.ProjectID},
			{Name: "job_id", Value: q.JobID},
			{Name: "dry_run", Value: q.DryRun},
			{Name: "bytes", Value: render.FormatBytes(q.TotalBytes)},
			{Name: "rows", Value: q.RowCount},
			{Name: "sql", Value: firstLine(q.SQL)},
			{Name: "error", Value: q.Error},
		}
	}
	return rows
}

// argsTail drops the action from a run's argument list.
func argsTail(args []string) string {
	if len(args) < 2 {
		return ""
	}
	return strings.Join(args[1:], " ")
}

// firstLine returns the first non-blank line of sql, marked when more follow.
func firstLine(sql string) string {
	sql = strings.TrimSpace(sql)
	line, rest, more := strings.Cut(sql, "\n")
	line = strings.TrimSpace(line)
	if more && strings.TrimSpace(rest) != "" {
		line += " ..."
	}
	return line
}
