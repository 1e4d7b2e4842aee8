package backlinks

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/ebref/internal/backlinks"
	"github.com/Paintersrp/ebref/internal/state"
	cmdpkg "github.com/Paintersrp/ebref/pkg/cmd"
	"github.com/Paintersrp/ebref/pkg/shared/styles"
)

func NewCmdBacklinks(s *state.State) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "backlinks [document]",
		Aliases: []string{"bl"},
		Short:   "List the notes that reference ranges of a document.",
		Long: heredoc.Doc(`
			Scans the vault link index for notes that link into the document with a
			range reference and lists one highlight per distinct range.
		`),
		Example: "ebref backlinks books/Novel.epub --limit 50",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, key, err := cmdpkg.ResolveDocument(s, args[0])
			if err != nil {
				return err
			}

			idx, err := s.Index.NoteIndex()
			if err != nil {
				return fmt.Errorf("failed to build link index: %w", err)
			}

			if limit <= 0 {
				limit = backlinksLimit(cmd, s)
			}
			descs := backlinks.NewResolver(s.Logger).Resolve(key, idx, limit)
			sortDescriptors(descs)

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), descs)
			}
			color := cmdpkg.ReaderSettings(cmd.Context(), s).HighlightColor
			writeTable(cmd.OutOrStdout(), key, descs, styles.Highlight(color))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of highlights to resolve")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print descriptors as JSON")

	return cmd
}

// backlinksLimit reads the persisted limit, falling back to the default.
func backlinksLimit(cmd *cobra.Command, s *state.State) int {
	store, err := s.Progress(cmd.Context())
	if err != nil {
		return backlinks.DefaultLimit
	}
	return store.Settings().BacklinkLimit
}

func sortDescriptors(descs []backlinks.Descriptor) {
	sort.SliceStable(descs, func(i, j int) bool {
		if descs[i].SourceNote != descs[j].SourceNote {
			return descs[i].SourceNote < descs[j].SourceNote
		}
		return descs[i].Range < descs[j].Range
	})
}

type descriptorJSON struct {
	Range      string `json:"range"`
	SourceNote string `json:"sourceNote"`
	Label      string `json:"label"`
}

func writeJSON(w io.Writer, descs []backlinks.Descriptor) error {
	out := make([]descriptorJSON, 0, len(descs))
	for _, d := range descs {
		out = append(out, descriptorJSON{Range: d.Range, SourceNote: d.SourceNote, Label: d.Label})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeTable(w io.Writer, document string, descs []backlinks.Descriptor, highlight lipgloss.Style) {
	fmt.Fprintln(w, styles.Title.Render(document))
	if len(descs) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No backlinks found"))
		return
	}

	current := ""
	for _, d := range descs {
		if d.SourceNote != current {
			current = d.SourceNote
			fmt.Fprintln(w, styles.Accent.Render(current))
		}
		label := d.Label
		if label == "" {
			label = "(no label)"
		}
		fmt.Fprintf(w, "  %s %s\n", highlight.Render(label), styles.Muted.Render(d.Range))
	}
	fmt.Fprintln(w, styles.Status.Render(fmt.Sprintf("%d highlight(s)", len(descs))))
}
