/*
Copyright © 2024 Ryan Painter paintersrp@gmail.com

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package initialize

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/ebref/internal/config"
	"github.com/Paintersrp/ebref/internal/pathutil"
)

// NewCmdInit works before a vault is configured, so it takes the home
// directory instead of a loaded state.
func NewCmdInit(home string) *cobra.Command {
	var vault string
	var create bool

	cmd := &cobra.Command{
		Use:     "initialize [vault]",
		Aliases: []string{"i", "init"},
		Short:   "Point ebref at a vault.",
		Long: heredoc.Doc(`
			Sets the vault directory of the active workspace and writes the
			config to ~/.ebref/cfg.yaml.
		`),
		Example: "ebref init ~/Documents/Vault",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				vault = args[0]
			}
			return run(cmd, home, vault, create)
		},
	}

	cmd.Flags().StringVarP(&vault, "vault", "v", "", "Vault directory")
	cmd.Flags().BoolVar(&create, "create", false, "Create the vault directory if it is missing")

	return cmd
}

func run(cmd *cobra.Command, home, vault string, create bool) error {
	vault = strings.TrimSpace(vault)
	if vault == "" {
		return fmt.Errorf("a vault directory is required")
	}
	vault = pathutil.ExpandHome(vault, home)

	info, err := os.Stat(vault)
	switch {
	case os.IsNotExist(err) && create:
		if err := os.MkdirAll(vault, 0o755); err != nil {
			return fmt.Errorf("failed to create vault: %w", err)
		}
	case err != nil:
		return fmt.Errorf("vault %s is not accessible: %w", vault, err)
	case !info.IsDir():
		return fmt.Errorf("vault %s is not a directory", vault)
	}

	if err := config.EnsureConfigExists(home); err != nil {
		var initErr *config.ConfigInitError
		if !errors.As(err, &initErr) {
			return err
		}
	}

	cfg, err := config.Load(home)
	if err != nil {
		return err
	}
	if err := cfg.SetVault(vault); err != nil {
		return err
	}

	ws := cfg.MustWorkspace()
	fmt.Fprintf(cmd.OutOrStdout(), "Workspace %q now uses %s\n", cfg.CurrentWorkspace, ws.VaultDir)
	return nil
}
