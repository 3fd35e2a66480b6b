package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lakerun/internal/envfile"
	"github.com/roach88/lakerun/internal/failure"
)

// NewEnvCommand creates the env command group.
func NewEnvCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "List and select environment overlays",
		Long: `Environments are the env.<name>.comet.yml overlays in the metadata directory.
The selected environment is passed to the engine as COMET_ENV and used to
resolve job variables. None selects the base env.comet.yml only.`,
	}

	cmd.AddCommand(newEnvListCommand(rootOpts))
	cmd.AddCommand(newEnvUseCommand(rootOpts))

	return cmd
}

// envList is the output of 'env list'.
type envList struct {
	Envs   []string `json:"envs"`
	Active string   `json:"active"`
}

func (l envList) String() string {
	var b strings.Builder
	for i, name := range l.Envs {
		if i > 0 {
			b.WriteByte('\n')
		}
		if name == l.Active {
			b.WriteString("* ")
		} else {
			b.WriteString("  ")
		}
		b.WriteString(name)
	}
	return b.String()
}

func newEnvListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the environments, marking the active one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				envs, err := s.listEnvs()
				if err != nil {
					return err
				}
				active := s.app.Env
				if envfile.IsNoOverlay(active) {
					active = envfile.NoOverlay
				}
				return s.formatter.Success(envList{Envs: envs, Active: active})
			})
		},
	}
}

func newEnvUseCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Select the environment for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				name := args[0]
				if envfile.IsNoOverlay(name) {
					name = envfile.NoOverlay
				} else {
					envs, err := s.listEnvs()
					if err != nil {
						return err
					}
					if !contains(envs, name) {
						return &failure.Error{
							Code:    failure.NotFound,
							Op:      "use env",
							Path:    envfile.OverlayPath(s.app.MetadataDir(), name),
							Message: fmt.Sprintf("unknown environment %q", name),
						}
					}
				}

				if err := s.store.SetState(ctx, EnvStateKey, name); err != nil {
					return fmt.Errorf("saving environment: %w", err)
				}
				s.notifier.Info("Environment set to " + name)
				return nil
			})
		},
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
