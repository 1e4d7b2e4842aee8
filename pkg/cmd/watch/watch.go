package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/Paintersrp/ebref/internal/state"
	"github.com/Paintersrp/ebref/pkg/shared/styles"
)

func NewCmdWatch(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Aliases: []string{"w"},
		Short:   "Keep the link index and reading positions in sync with the vault.",
		Long: heredoc.Doc(`
			Watches the vault until interrupted. Edited notes are re-indexed, and
			when a document or folder is moved its saved reading positions move
			with it.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, s)
		},
	}
}

func run(ctx context.Context, cmd *cobra.Command, s *state.State) error {
	if _, err := s.Index.AcquireSnapshot(); err != nil {
		return fmt.Errorf("failed to build link index: %w", err)
	}

	w, err := s.WatchVault(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styles.Status.Render("Watching"), s.Vault)

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	store, storeErr := s.Progress(context.WithoutCancel(ctx))
	if storeErr != nil {
		return multierr.Append(err, storeErr)
	}
	return multierr.Append(err, store.Flush(context.WithoutCancel(ctx)))
}
