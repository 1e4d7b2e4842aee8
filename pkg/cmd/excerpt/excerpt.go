package excerpt

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/ebref/internal/config"
	"github.com/Paintersrp/ebref/internal/note"
	"github.com/Paintersrp/ebref/internal/pathutil"
	"github.com/Paintersrp/ebref/internal/state"
	cmdpkg "github.com/Paintersrp/ebref/pkg/cmd"
	"github.com/Paintersrp/ebref/pkg/shared/flags"
	"github.com/Paintersrp/ebref/pkg/shared/styles"
	"github.com/Paintersrp/ebref/utils"
)

const (
	defaultTemplate = "excerpt"
	appendTemplate  = "reference"
)

type options struct {
	text     string
	title    string
	tags     string
	comment  string
	appendTo string
	template string
	style    string
	preview  bool
}

// now is replaced in tests.
var now = time.Now

func NewCmdExcerpt(s *state.State) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "excerpt [document] [cfi]",
		Aliases: []string{"x"},
		Short:   "Quote a range of a document into a note.",
		Long: heredoc.Doc(`
			Creates a note in the excerpt folder that quotes the selected text and
			links back to the range it came from. With --append the quote and link
			are added to the end of an existing note instead.

			Templates are read from ~/.ebref/templates before the built in
			'excerpt' and 'reference' templates.
		`),
		Example: heredoc.Doc(`
			ebref excerpt books/Novel.epub 'epubcfi(/6/4!/4/2,/1:0,/1:15)' --text "Call me Ishmael." --tags "whales fiction"
			ebref excerpt Novel.epub 'epubcfi(/6/4!/4/2,/1:0,/1:15)' --paste --append reading-log.md
		`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.text == "" {
				pasted, ok, err := flags.HandlePaste(cmd)
				if err != nil {
					return fmt.Errorf("failed to read clipboard: %w", err)
				}
				if ok {
					opts.text = pasted
				}
			}
			return run(cmd, s, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.text, "text", "t", "", "Selected text to quote")
	cmd.Flags().StringVar(&opts.title, "title", "", "Note title, defaults to the start of the quote")
	cmd.Flags().StringVar(&opts.tags, "tags", "", "Tags for the note, separated by spaces")
	cmd.Flags().StringVarP(&opts.comment, "comment", "m", "", "Text to add below the quote")
	cmd.Flags().StringVarP(&opts.appendTo, "append", "a", "", "Append to an existing note instead")
	cmd.Flags().StringVar(&opts.template, "template", "", "Template to render (default 'excerpt', or 'reference' with --append)")
	cmd.Flags().StringVar(&opts.style, "style", "", "Link style: wiki, markdown or deeplink")
	cmd.Flags().BoolVarP(&opts.preview, "preview", "p", false, "Print the rendered note")
	flags.AddPaste(cmd)
	flags.AddCopy(cmd)

	return cmd
}

func run(cmd *cobra.Command, s *state.State, document, rng string, opts options) error {
	tags, err := utils.ValidateInput(opts.tags)
	if err != nil {
		return err
	}

	_, key, err := cmdpkg.ResolveDocument(s, document)
	if err != nil {
		return err
	}

	excerpt := note.Excerpt{
		Document: key,
		Range:    strings.TrimSpace(rng),
		Quote:    strings.TrimSpace(opts.text),
		Title:    opts.title,
		Comment:  opts.comment,
		Tags:     tags,
		LabelMax: cmdpkg.ReaderSettings(cmd.Context(), s).LabelMaxLength,
	}
	if err := excerpt.Validate(); err != nil {
		return err
	}

	style, err := linkStyle(s.Workspace, opts.style)
	if err != nil {
		return err
	}

	tmpl := opts.template
	if tmpl == "" {
		tmpl = defaultTemplate
		if opts.appendTo != "" {
			tmpl = appendTemplate
		}
	}

	data := excerpt.Data(style, now(), s.Templater)

	var path string
	if opts.appendTo != "" {
		path, err = cmdpkg.ResolveVaultPath(s, opts.appendTo)
		if err != nil {
			return err
		}
		if err := note.Append(path, tmpl, s.Templater, data); err != nil {
			return err
		}
	} else {
		n := note.NewExcerptNote(s.Vault, s.Workspace.ExcerptDir, excerpt.DisplayTitle())
		if err := n.Unique(); err != nil {
			return err
		}
		path, err = n.Create(tmpl, s.Templater, data)
		if err != nil {
			return err
		}
	}

	rel, err := pathutil.VaultRelative(s.Vault, path)
	if err != nil {
		return err
	}
	if s.Index != nil {
		s.Index.QueueUpdate(rel)
	}

	out := cmd.OutOrStdout()
	verb := "Created"
	if opts.appendTo != "" {
		verb = "Updated"
	}
	fmt.Fprintf(out, "%s %s\n", styles.Status.Render(verb), rel)

	if copied, err := flags.HandleCopy(cmd, data.Link); err != nil {
		return fmt.Errorf("failed to copy link: %w", err)
	} else if copied {
		fmt.Fprintln(cmd.ErrOrStderr(), "Link copied to clipboard")
	}

	if opts.preview {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		noColor, _ := cmd.Flags().GetBool("no-color")
		_, plain := os.LookupEnv("NO_COLOR")
		rendered, err := utils.RenderMarkdown(string(content), 0, plain || noColor)
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
	}

	return nil
}

func linkStyle(ws *config.Workspace, override string) (note.LinkStyle, error) {
	style := note.LinkStyle{Style: "wiki", Scheme: "obsidian"}
	if ws != nil {
		style = note.LinkStyle{Style: ws.LinkStyle, Scheme: ws.DeepLinkScheme, Vault: ws.VaultName}
	}
	if override = strings.ToLower(strings.TrimSpace(override)); override != "" {
		style.Style = override
	}
	if style.Style == "" {
		style.Style = "wiki"
	}
	if err := config.ValidateLinkStyle(style.Style); err != nil {
		return note.LinkStyle{}, err
	}
	return style, nil
}
