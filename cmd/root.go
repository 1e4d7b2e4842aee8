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
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Paintersrp/ebref/internal/config"
	"github.com/Paintersrp/ebref/internal/constants"
	"github.com/Paintersrp/ebref/internal/state"
	"github.com/Paintersrp/ebref/pkg/cmd/root"
)

func Execute() {
	home, err := state.GetHomeDir()
	cobra.CheckErr(err)

	s, err := state.NewState(workspaceOverride(os.Args[1:]))
	if err != nil {
		var initErr *config.ConfigInitError
		if !errors.As(err, &initErr) {
			cobra.CheckErr(err)
		}
		if execErr := root.NewCmdSetup(home, initErr).Execute(); execErr != nil {
			os.Exit(1)
		}
		return
	}

	rootCmd, err := root.NewCmdRoot(s)
	if err != nil {
		_ = s.Close()
		cobra.CheckErr(err)
	}

	execErr := rootCmd.Execute()
	if closeErr := s.Close(); closeErr != nil {
		fmt.Fprintln(os.Stderr, "Error:", closeErr)
		execErr = errors.Join(execErr, closeErr)
	}
	if execErr != nil {
		os.Exit(1)
	}
}

// workspaceOverride reads --workspace ahead of cobra, since the state has to
// be built before the command tree exists.
func workspaceOverride(args []string) string {
	fs := pflag.NewFlagSet("ebref", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	name := fs.StringP("workspace", "w", os.Getenv(constants.EnvPrefix+"_WORKSPACE"), "")
	_ = fs.Parse(args)
	return *name
}
