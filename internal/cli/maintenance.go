package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/lakerun/internal/target"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return newMaintenanceCommand(rootOpts, target.ActionValidate,
		"Validate the project metadata",
		`Run the engine's validation pass. Engine output is also kept in out/run.log;
the validation report is printed to stdout.

Example:
  lakerun validate --env dev`)
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return newMaintenanceCommand(rootOpts, target.ActionLoad,
		"Load pending files into the warehouse",
		`Run the engine's load pass over the files waiting in the landing area.

Example:
  lakerun load`)
}

// NewYml2gvCommand creates the yml2gv command.
func NewYml2gvCommand(rootOpts *RootOptions) *cobra.Command {
	return newMaintenanceCommand(rootOpts, target.ActionYml2gv,
		"Generate the data graph of the domains",
		`Write a Graphviz description of the domains to out/datagraph.dot.

Example:
  lakerun yml2gv`)
}

// NewYml2xlsCommand creates the yml2xls command.
func NewYml2xlsCommand(rootOpts *RootOptions) *cobra.Command {
	return newMaintenanceCommand(rootOpts, target.ActionYml2xls,
		"Export domain definitions as spreadsheets",
		`Write one spreadsheet per domain into out/.

Example:
  lakerun yml2xls`)
}

func newMaintenanceCommand(opts *RootOptions, action, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return s.app.Run(ctx, target.NewMaintenance(action))
			})
		},
	}
}

// NewXls2ymlCommand creates the xls2yml command.
func NewXls2ymlCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "xls2yml <file>",
		Short: "Generate domain definitions from a spreadsheet",
		Long: `Convert a domain spreadsheet into YAML definitions under <metadata>/domains.

Example:
  lakerun xls2yml sales.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				path, err := filepath.Abs(args[0])
				if err != nil {
					return fmt.Errorf("resolving %s: %w", args[0], err)
				}
				return s.app.Run(ctx, target.NewMaintenance(target.ActionXls2yml, path))
			})
		},
	}
}
