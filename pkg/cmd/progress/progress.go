package progress

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/maruel/natural"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/ebref/internal/pathutil"
	"github.com/Paintersrp/ebref/internal/progress"
	"github.com/Paintersrp/ebref/internal/state"
	"github.com/Paintersrp/ebref/internal/storage"
	"github.com/Paintersrp/ebref/pkg/shared/styles"
)

func NewCmdProgress(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "progress",
		Aliases: []string{"p"},
		Short:   "Inspect and maintain saved reading positions.",
		Long: heredoc.Doc(`
			Reading positions are keyed by the vault relative path of each
			document. Use rename after moving documents outside a running
			'ebref watch' so positions follow them.
		`),
	}

	cmd.AddCommand(
		newCmdGet(s),
		newCmdSet(s),
		newCmdList(s),
		newCmdRename(s),
		newCmdDelete(s),
	)

	return cmd
}

func newCmdGet(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:   "get [document]",
		Short: "Print the saved position of a document.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.Progress(cmd.Context())
			if err != nil {
				return err
			}
			rec, ok := store.Record(args[0])
			if !ok {
				return fmt.Errorf("no saved position for %q", pathutil.NormalizeKey(args[0]))
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.Position.String())
			return nil
		},
	}
}

func newCmdSet(s *state.State) *cobra.Command {
	var number bool

	cmd := &cobra.Command{
		Use:     "set [document] [position]",
		Short:   "Save a position for a document.",
		Example: "ebref progress set books/Novel.epub 'epubcfi(/6/4!/4/2/1:0)'",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos := storage.StringPosition(args[1])
			if number {
				n, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("invalid numeric position %q: %w", args[1], err)
				}
				pos = storage.NumberPosition(n)
			}

			store, err := s.Progress(cmd.Context())
			if err != nil {
				return err
			}
			store.Set(args[0], pos)
			return store.Flush(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&number, "number", false, "Store the position as a number, e.g. a page")
	return cmd
}

func newCmdList(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every document with a saved position.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := s.Progress(cmd.Context())
			if err != nil {
				return err
			}
			writeList(cmd.OutOrStdout(), store)
			return nil
		},
	}
}

func writeList(w io.Writer, store *progress.Store) {
	keys := store.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No saved positions"))
		return
	}
	sort.Sort(natural.StringSlice(keys))

	for _, key := range keys {
		rec, ok := store.Record(key)
		if !ok {
			continue
		}
		updated := ""
		if rec.UpdatedAt > 0 {
			updated = time.UnixMilli(rec.UpdatedAt).Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s %s %s\n",
			styles.Label.Render(key),
			rec.Position.String(),
			styles.Muted.Render(updated),
		)
	}
}

func newCmdRename(s *state.State) *cobra.Command {
	var dir bool

	cmd := &cobra.Command{
		Use:   "rename [old] [new]",
		Short: "Move saved positions to a new path.",
		Long: heredoc.Doc(`
			Moves the position saved for old to new. With --dir every position
			below the old folder moves below the new one. A position already
			saved at the destination is kept and the moved one is dropped.
		`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.Progress(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dir {
				moved := store.RenameTree(args[0], args[1])
				fmt.Fprintf(out, "Moved %d position(s)\n", moved)
			} else if store.Rename(args[0], args[1]) {
				fmt.Fprintln(out, "Moved 1 position")
			} else {
				return fmt.Errorf("no saved position for %q", pathutil.NormalizeKey(args[0]))
			}
			return store.Flush(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&dir, "dir", "d", false, "Rename a folder")
	return cmd
}

func newCmdDelete(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:     "delete [document]",
		Aliases: []string{"rm"},
		Short:   "Forget the saved position of a document.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.Progress(cmd.Context())
			if err != nil {
				return err
			}
			if !store.Delete(args[0]) {
				return fmt.Errorf("no saved position for %q", pathutil.NormalizeKey(args[0]))
			}
			return store.Flush(cmd.Context())
		},
	}
}
