package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewProjectCommand creates the project command group.
func NewProjectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Show or change the cached warehouse project",
		Long: `Queries run against the cached warehouse project. When none is cached the
project_id setting is used, then the project of the default credentials.
A failed query clears the cache.`,
	}

	cmd.AddCommand(newProjectShowCommand(rootOpts))
	cmd.AddCommand(newProjectSetCommand(rootOpts))
	cmd.AddCommand(newProjectClearCommand(rootOpts))

	return cmd
}

// projectInfo is the output of 'project show'.
type projectInfo struct {
	ProjectID string `json:"project_id"`
}

func (p projectInfo) String() string {
	if p.ProjectID == "" {
		return "(none)"
	}
	return p.ProjectID
}

func newProjectShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cached project id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				id, err := s.app.Projects.Peek(ctx)
				if err != nil {
					return fmt.Errorf("reading project id: %w", err)
				}
				if id == "" {
					id = s.app.Settings.ProjectID
				}
				return s.formatter.Success(projectInfo{ProjectID: id})
			})
		},
	}
}

func newProjectSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <id>",
		Short: "Cache a project id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				id := strings.TrimSpace(args[0])
				if id == "" {
					return NewExitError(ExitCommandError, "project id must not be empty")
				}
				if err := s.app.Projects.Set(ctx, id); err != nil {
					return fmt.Errorf("saving project id: %w", err)
				}
				s.notifier.Info("Project set to " + id)
				return nil
			})
		},
	}
}

func newProjectClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the cached project id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				if err := s.app.Projects.Invalidate(ctx); err != nil {
					return fmt.Errorf("clearing project id: %w", err)
				}
				s.notifier.Info("Project cleared")
				return nil
			})
		},
	}
}
