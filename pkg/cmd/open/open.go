package open

import (
	"context"
	"fmt"
	"io"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Paintersrp/ebref/internal/backlinks"
	"github.com/Paintersrp/ebref/internal/fzf"
	"github.com/Paintersrp/ebref/internal/progress"
	"github.com/Paintersrp/ebref/internal/reader"
	"github.com/Paintersrp/ebref/internal/state"
	"github.com/Paintersrp/ebref/internal/surface/headless"
	cmdpkg "github.com/Paintersrp/ebref/pkg/cmd"
	"github.com/Paintersrp/ebref/pkg/shared/flags"
	"github.com/Paintersrp/ebref/pkg/shared/styles"
)

type options struct {
	jump     string
	link     string
	activate string
}

func NewCmdOpen(s *state.State) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "open [document]",
		Aliases: []string{"o"},
		Short:   "Open a document and show where reading resumes.",
		Long: heredoc.Doc(`
			Opens an EPUB from the vault, applies a highlight for every note that
			references one of its ranges and lands on the saved reading position.

			With --jump or --link the session lands on the given range instead and
			the saved position is updated. Without a document a fuzzy finder lists
			the documents of the vault.
		`),
		Example: heredoc.Doc(`
			ebref open
			ebref open books/Novel.epub
			ebref open Novel.epub --jump 'epubcfi(/6/4!/4/2/1:0)'
			ebref open Novel.epub --link '[[books/Novel.epub#rangeref=TOKEN|Call me Ishmael]]'
			ebref open Novel.epub --paste
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			document := ""
			if len(args) == 1 {
				document = args[0]
			} else {
				noColor, _ := cmd.Flags().GetBool("no-color")
				picked, err := pickDocument(cmd.Context(), s, noColor)
				if err != nil {
					return err
				}
				document = picked
			}

			if opts.link == "" {
				pasted, ok, err := flags.HandlePaste(cmd)
				if err != nil {
					return err
				}
				if ok {
					opts.link = pasted
				}
			}
			return run(cmd.Context(), cmd.OutOrStdout(), s, document, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.jump, "jump", "j", "", "Range to land on")
	cmd.Flags().StringVarP(&opts.link, "link", "l", "", "Link text whose range to land on")
	cmd.Flags().StringVar(&opts.activate, "activate", "", "Activate the highlight at this range")
	flags.AddPaste(cmd)

	return cmd
}

func run(ctx context.Context, out io.Writer, s *state.State, arg string, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.jump != "" && opts.link != "" {
		return fmt.Errorf("--jump and --link cannot be combined")
	}

	abs, key, err := cmdpkg.ResolveDocument(s, arg)
	if err != nil {
		return err
	}

	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	surface, err := headless.Open(abs, log)
	if err != nil {
		return err
	}

	store, err := s.Progress(ctx)
	if err != nil {
		return err
	}

	cfg := reader.ConfigFromSettings(key, store.Settings())
	cfg.OnActivate = func(d backlinks.Descriptor) {
		fmt.Fprintf(out, "%s %s\n", styles.Accent.Render("Referenced by"), d.SourceNote)
	}

	session := reader.NewSession(surface, s.Index, store, cfg, log)
	defer session.Close()

	surface.OnRelocated(session.Relocated)
	surface.OnRendered(session.ContentRendered)

	switch {
	case opts.jump != "":
		session.RequestJump(opts.jump)
	case opts.link != "":
		if err := session.RequestLink(opts.link); err != nil {
			return err
		}
	}

	if err := session.Start(ctx); err != nil {
		return err
	}

	writeSummary(out, surface, session, styles.Highlight(store.Settings().HighlightColor))

	if opts.activate != "" && !surface.Activate(opts.activate) {
		return fmt.Errorf("no highlight at %s", opts.activate)
	}

	return store.Flush(ctx)
}

func pickDocument(ctx context.Context, s *state.State, plain bool) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := s.Progress(ctx)
	if err != nil {
		return "", err
	}
	docs, err := candidates(s, store)
	if err != nil {
		return "", err
	}

	finder := fzf.NewFuzzyFinder("Select a document to open")
	finder.Plain = plain
	doc, err := finder.Run(docs, "")
	if err != nil {
		return "", err
	}
	return doc.Key, nil
}

// candidates lists every indexed document with its references and saved
// position.
func candidates(s *state.State, store *progress.Store) ([]fzf.Document, error) {
	idx, err := s.Index.AcquireSnapshot()
	if err != nil {
		return nil, err
	}
	notes, err := s.Index.NoteIndex()
	if err != nil {
		return nil, err
	}

	resolver := backlinks.NewResolver(s.Logger)
	limit := store.Settings().BacklinkLimit

	keys := idx.Documents()
	docs := make([]fzf.Document, 0, len(keys))
	for _, key := range keys {
		doc := fzf.Document{Key: key, Backlinks: resolver.Resolve(key, notes, limit)}
		if pos, ok := store.Get(key); ok {
			doc.Position = pos.String()
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func writeSummary(out io.Writer, surface *headless.Surface, session *reader.Session, highlight lipgloss.Style) {
	title := surface.Book().Title
	if title == "" {
		title = session.Document()
	}
	fmt.Fprintln(out, styles.Title.Render(title))

	position := surface.Position()
	if position == "" {
		position = styles.Muted.Render("start of book")
	}
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("Position:"), position)

	active := make(map[string]bool)
	for _, rng := range session.Active() {
		active[rng] = true
	}

	highlights := session.Highlights()
	fmt.Fprintf(out, "%s %d\n", styles.Label.Render("Highlights:"), len(active))
	for _, d := range highlights {
		if !active[d.Range] {
			continue
		}
		fmt.Fprintf(out, "  %s %s\n", highlight.Render(d.Label), styles.Muted.Render(d.SourceNote))
	}
}
