package settings

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/ebref/internal/state"
	"github.com/Paintersrp/ebref/internal/storage"
	tuisettings "github.com/Paintersrp/ebref/internal/tui/settings"
	"github.com/Paintersrp/ebref/pkg/shared/styles"
)

// linkStyleKey is stored in the workspace config rather than the state file.
const linkStyleKey = "linkStyle"

var linkStyles = []string{"wiki", "markdown", "deeplink"}

type field struct {
	get     func(storage.Settings) string
	set     func(*storage.Settings, string) error
	choices []string
}

var fields = map[string]field{
	"highlightsEnabled": {
		get: func(s storage.Settings) string { return strconv.FormatBool(s.HighlightsEnabled) },
		set: func(s *storage.Settings, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			s.HighlightsEnabled = b
			return nil
		},
		choices: []string{"true", "false"},
	},
	"highlightColor": {
		get: func(s storage.Settings) string { return s.HighlightColor },
		set: func(s *storage.Settings, v string) error {
			if !validColor(v) {
				return fmt.Errorf("%q is not a hex colour", v)
			}
			s.HighlightColor = v
			return nil
		},
	},
	"maxHighlights":      intField(func(s *storage.Settings) *int { return &s.MaxHighlights }),
	"backlinkLimit":      intField(func(s *storage.Settings) *int { return &s.BacklinkLimit }),
	"labelMaxLength":     intField(func(s *storage.Settings) *int { return &s.LabelMaxLength }),
	"progressDebounceMs": intField(func(s *storage.Settings) *int { return &s.ProgressDebounceMs }),
	"refreshDebounceMs":  intField(func(s *storage.Settings) *int { return &s.RefreshDebounceMs }),
}

func intField(ptr func(*storage.Settings) *int) field {
	return field{
		get: func(s storage.Settings) string { return strconv.Itoa(*ptr(&s)) },
		set: func(s *storage.Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			if n <= 0 {
				return fmt.Errorf("value must be positive, got %d", n)
			}
			*ptr(s) = n
			return nil
		},
	}
}

func validColor(v string) bool {
	hex, ok := strings.CutPrefix(v, "#")
	if !ok || (len(hex) != 3 && len(hex) != 6) {
		return false
	}
	_, err := strconv.ParseUint(hex, 16, 32)
	return err == nil
}

// Swapped in tests.
var (
	runEditor   = tuisettings.Run
	interactive = func(cmd *cobra.Command) bool {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			return false
		}
		if cmd.OutOrStdout() != os.Stdout {
			return false
		}
		return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	}
)

func NewCmdSettings(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "settings",
		Aliases: []string{"s"},
		Short:   "Show reader settings.",
		Long: heredoc.Doc(`
			Reader settings are saved with the reading positions of the active
			workspace. linkStyle is saved in the workspace config.

			On a terminal the settings open in an editor; otherwise, or with
			--no-color, they are printed.
		`),
		Example: heredoc.Doc(`
			ebref settings
			ebref settings set maxHighlights 40
			ebref settings set linkStyle markdown
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := s.Progress(cmd.Context())
			if err != nil {
				return err
			}
			linkStyle := ""
			if s.Workspace != nil {
				linkStyle = s.Workspace.LinkStyle
			}
			if interactive(cmd) {
				ctx := cmd.Context()
				return runEditor(entries(store.Settings(), linkStyle), func(key, value string) error {
					return applySetting(ctx, s, key, value)
				})
			}
			writeSettings(cmd.OutOrStdout(), store.Settings(), linkStyle)
			return nil
		},
	}

	cmd.AddCommand(newCmdSet(s), newCmdReset(s))
	return cmd
}

func sortedKeys() []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// entries lists the editable settings in display order.
func entries(settings storage.Settings, linkStyle string) []tuisettings.Entry {
	out := make([]tuisettings.Entry, 0, len(fields)+1)
	for _, key := range sortedKeys() {
		f := fields[key]
		out = append(out, tuisettings.Entry{Key: key, Value: f.get(settings), Choices: f.choices})
	}
	return append(out, tuisettings.Entry{Key: linkStyleKey, Value: linkStyle, Choices: linkStyles})
}

func writeSettings(w io.Writer, settings storage.Settings, linkStyle string) {
	for _, key := range sortedKeys() {
		fmt.Fprintf(w, "%s %s\n", styles.Label.Render(key+":"), fields[key].get(settings))
	}
	if linkStyle != "" {
		fmt.Fprintf(w, "%s %s\n", styles.Label.Render(linkStyleKey+":"), linkStyle)
	}
}

func newCmdSet(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Change a reader setting.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applySetting(cmd.Context(), s, args[0], args[1])
		},
	}
}

// applySetting validates value and persists it under key.
func applySetting(ctx context.Context, s *state.State, key, value string) error {
	value = strings.TrimSpace(value)
	if key == linkStyleKey {
		return s.Config.ChangeLinkStyle(value)
	}

	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	store, err := s.Progress(ctx)
	if err != nil {
		return err
	}

	next := store.Settings()
	if err := f.set(&next, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	store.UpdateSettings(func(cur *storage.Settings) {
		*cur = next
	})
	return store.Flush(ctx)
}

func newCmdReset(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the default reader settings.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := s.Progress(cmd.Context())
			if err != nil {
				return err
			}
			store.UpdateSettings(func(cur *storage.Settings) {
				*cur = storage.DefaultSettings()
			})
			return store.Flush(cmd.Context())
		},
	}
}
