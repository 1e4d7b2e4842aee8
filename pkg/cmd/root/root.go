package root

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/ebref/internal/constants"
	"github.com/Paintersrp/ebref/internal/state"
	"github.com/Paintersrp/ebref/pkg/cmd/backlinks"
	"github.com/Paintersrp/ebref/pkg/cmd/excerpt"
	"github.com/Paintersrp/ebref/pkg/cmd/initialize"
	"github.com/Paintersrp/ebref/pkg/cmd/open"
	"github.com/Paintersrp/ebref/pkg/cmd/progress"
	"github.com/Paintersrp/ebref/pkg/cmd/ref"
	"github.com/Paintersrp/ebref/pkg/cmd/settings"
	"github.com/Paintersrp/ebref/pkg/cmd/watch"
	"github.com/Paintersrp/ebref/pkg/cmd/workspace"
	"github.com/Paintersrp/ebref/pkg/shared/styles"
)

var (
	workspaceName string
	noColor       bool
)

func newBaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ebref",
		Short: "Cross reference ebook ranges from your markdown notes.",
		Long: heredoc.Doc(`
			ebref links notes in a markdown vault to exact ranges of the EPUBs
			stored next to them. Every note that references a range becomes a
			highlight when the book is opened, and reading positions follow
			documents when they move.

			  ebref excerpt books/Novel.epub 'epubcfi(/6/4!/4/2,/1:0,/1:15)' --paste
			  ebref backlinks books/Novel.epub
			  ebref open books/Novel.epub
		`),
		Version:       constants.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			styles.Configure(noColor)
		},
	}

	cmd.PersistentFlags().StringVarP(&workspaceName, "workspace", "w", "", "Workspace to use for this command")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")

	return cmd
}

func NewCmdRoot(s *state.State) (*cobra.Command, error) {
	if s == nil {
		return nil, fmt.Errorf("state is not initialized")
	}

	cmd := newBaseCmd()
	cmd.AddCommand(
		initialize.NewCmdInit(s.Home),
		ref.NewCmdRef(s),
		backlinks.NewCmdBacklinks(s),
		excerpt.NewCmdExcerpt(s),
		open.NewCmdOpen(s),
		progress.NewCmdProgress(s),
		watch.NewCmdWatch(s),
		settings.NewCmdSettings(s),
		workspace.NewCmdWorkspace(s),
	)

	return cmd, nil
}

// NewCmdSetup is the root used before a vault is configured. Only init runs;
// anything else reports cause.
func NewCmdSetup(home string, cause error) *cobra.Command {
	cmd := newBaseCmd()
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return fmt.Errorf("%w\nRun 'ebref init <vault>' to get started", cause)
	}
	cmd.Args = cobra.ArbitraryArgs
	cmd.AddCommand(initialize.NewCmdInit(home))
	return cmd
}
