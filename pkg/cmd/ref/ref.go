package ref

import (
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/ebref/internal/cfi"
	"github.com/Paintersrp/ebref/internal/config"
	"github.com/Paintersrp/ebref/internal/pathutil"
	"github.com/Paintersrp/ebref/internal/rangeref"
	"github.com/Paintersrp/ebref/internal/state"
	cmdpkg "github.com/Paintersrp/ebref/pkg/cmd"
	"github.com/Paintersrp/ebref/pkg/shared/flags"
)

func NewCmdRef(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ref",
		Short: "Encode, decode and build range references.",
		Long: heredoc.Doc(`
			Range references point a note at a range of a document. The range is
			stored as a URL-safe token in the link fragment:

			  [[books/Novel.epub#rangeref=TOKEN|label]]
		`),
	}

	cmd.AddCommand(
		newCmdEncode(),
		newCmdDecode(),
		newCmdParse(),
		newCmdLink(s),
	)

	return cmd
}

func newCmdEncode() *cobra.Command {
	return &cobra.Command{
		Use:     "encode [cfi]",
		Short:   "Encode a range into a token.",
		Example: "ebref ref encode 'epubcfi(/6/4!/4/2,/1:0,/3:12)'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), rangeref.Encode(args[0]))
			return nil
		},
	}
}

func newCmdDecode() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [token]",
		Short: "Decode a token back into its range.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := rangeref.Decode(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rng)
			return nil
		},
	}
}

func newCmdParse() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [link]",
		Short: "Show the document and range a link refers to.",
		Long: heredoc.Doc(`
			Accepts a wikilink, a markdown link target, a path with a rangeref
			fragment or a deep link URI.
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			target := rangeref.Classify(args[0])
			ref, ok := rangeref.Parse(args[0])
			if !ok {
				return fmt.Errorf("%q is not a range reference (%s)", args[0], target.Kind)
			}

			fmt.Fprintf(out, "kind:     %s\n", target.Kind)
			fmt.Fprintf(out, "document: %s\n", ref.Path)
			fmt.Fprintf(out, "token:    %s\n", ref.Token)

			rng, err := rangeref.Decode(ref.Token)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "range:    %s\n", rng)
			if anchor, ok := cfi.StartAnchor(rng); ok {
				fmt.Fprintf(out, "start:    %s\n", anchor)
			}
			return nil
		},
	}
}

func newCmdLink(s *state.State) *cobra.Command {
	var label string
	var style string

	cmd := &cobra.Command{
		Use:   "link [document] [cfi]",
		Short: "Build a cross reference link to a range.",
		Long: heredoc.Doc(`
			Builds a link in the workspace link style (wiki, markdown or deeplink).
			The label is sanitized and shortened to the labelMaxLength setting.
		`),
		Example: heredoc.Doc(`
			ebref ref link books/Novel.epub 'epubcfi(/6/4!/4/2,/1:0,/3:12)' --label "Call me Ishmael"
			ebref ref link Novel.epub 'epubcfi(/6/4!/4/2,/1:0,/3:12)' --style markdown --copy
		`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			labelMax := cmdpkg.ReaderSettings(cmd.Context(), s).LabelMaxLength
			text, err := buildLink(s, args[0], args[1], label, style, labelMax)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), text)
			if copied, err := flags.HandleCopy(cmd, text); err != nil {
				return fmt.Errorf("failed to copy link: %w", err)
			} else if copied {
				fmt.Fprintln(cmd.ErrOrStderr(), "Link copied to clipboard")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "Link label, usually the selected text")
	cmd.Flags().StringVar(&style, "style", "", "Link style: wiki, markdown or deeplink")
	flags.AddCopy(cmd)

	return cmd
}

func buildLink(s *state.State, document, rng, label, style string, labelMax int) (string, error) {
	if _, ok := cfi.Split(rng); !ok {
		return "", fmt.Errorf("%q is not a CFI", rng)
	}

	key := pathutil.NormalizeKey(document)
	if s != nil && s.Config != nil {
		if _, resolved, err := cmdpkg.ResolveDocument(s, document); err == nil {
			key = resolved
		}
	}
	if key == "" {
		return "", fmt.Errorf("document is required")
	}

	scheme, vault := "obsidian", ""
	if s != nil && s.Workspace != nil {
		if style == "" {
			style = s.Workspace.LinkStyle
		}
		scheme = s.Workspace.DeepLinkScheme
		vault = s.Workspace.VaultName
	}
	style = strings.ToLower(strings.TrimSpace(style))
	if style == "" {
		style = "wiki"
	}
	if err := config.ValidateLinkStyle(style); err != nil {
		return "", err
	}

	return rangeref.NewLinkLimit(key, rng, label, labelMax).Format(style, scheme, vault), nil
}
