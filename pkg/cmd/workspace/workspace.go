package workspace

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/ebref/internal/config"
	"github.com/Paintersrp/ebref/internal/state"
	"github.com/Paintersrp/ebref/pkg/shared/styles"
)

func NewCmdWorkspace(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces",
	}

	cmd.AddCommand(
		newCmdWorkspaceList(s),
		newCmdWorkspaceSwitch(s),
		newCmdWorkspaceAdd(s),
		newCmdWorkspaceRemove(s),
	)

	return cmd
}

func newCmdWorkspaceList(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured workspaces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := s.Config.WorkspaceNames()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No workspaces configured")
				return nil
			}

			for _, name := range names {
				ws := s.Config.Workspaces[name]
				line := fmt.Sprintf("  %s %s", name, styles.Muted.Render(ws.VaultDir))
				if name == s.Config.CurrentWorkspace {
					line = fmt.Sprintf("%s %s %s", styles.Accent.Render("*"), styles.Label.Render(name), styles.Muted.Render(ws.VaultDir))
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			return nil
		},
	}
}

func newCmdWorkspaceSwitch(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch [name]",
		Short: "Switch the active workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(args[0])
			if target == "" {
				return fmt.Errorf("workspace name cannot be empty")
			}

			if err := s.Config.SwitchWorkspace(target); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Switched to workspace %q\n", target)
			return nil
		},
	}
	return cmd
}

func newCmdWorkspaceAdd(s *state.State) *cobra.Command {
	var name string
	var vault string
	var makeCurrent bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new workspace",
		Long: heredoc.Doc(`
			Adds a workspace that copies the link and storage settings of the
			active one. Reading positions of the new workspace are kept in their
			own state file.
		`),
		Example: "ebref workspace add --name library --vault ~/Library --current",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("workspace name is required")
			}
			vault = strings.TrimSpace(vault)
			if vault == "" {
				return fmt.Errorf("vault path is required")
			}
			abs, err := filepath.Abs(vault)
			if err != nil {
				return err
			}

			ws := cloneWorkspaceSettings(s.Workspace, name)
			ws.VaultDir = abs

			if err := s.Config.AddWorkspace(name, ws, makeCurrent); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added workspace %q\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name of the new workspace")
	cmd.Flags().StringVar(&vault, "vault", "", "Path to the workspace vault")
	cmd.Flags().BoolVar(&makeCurrent, "current", false, "Switch to the new workspace after creation")

	return cmd
}

func newCmdWorkspaceRemove(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove [name]",
		Short: "Remove an existing workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("workspace name cannot be empty")
			}

			if err := s.Config.RemoveWorkspace(name); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed workspace %q\n", name)
			return nil
		},
	}

	return cmd
}

// cloneWorkspaceSettings copies src without its vault. The state location is
// derived from name so workspaces never share reading positions.
func cloneWorkspaceSettings(src *config.Workspace, name string) *config.Workspace {
	if src == nil {
		return &config.Workspace{Storage: config.StorageConfig{Path: stateFileName(name)}}
	}

	clone := &config.Workspace{
		LinkStyle:      src.LinkStyle,
		DeepLinkScheme: src.DeepLinkScheme,
		ExcerptDir:     src.ExcerptDir,
		Search: config.SearchConfig{
			IgnoredFolders: append([]string(nil), src.Search.IgnoredFolders...),
			DocumentExts:   append([]string(nil), src.Search.DocumentExts...),
		},
		Storage: src.Storage,
		Logging: src.Logging,
	}
	clone.Storage.Path = stateFileName(name)
	if clone.Storage.S3.Key != "" {
		clone.Storage.S3.Key = path.Join(path.Dir(clone.Storage.S3.Key), stateFileName(name))
	}
	return clone
}

func stateFileName(name string) string {
	return "state-" + name + ".json"
}
