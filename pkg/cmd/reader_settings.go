package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/Paintersrp/ebref/internal/state"
	"github.com/Paintersrp/ebref/internal/storage"
)

// ReaderSettings returns the persisted reader settings of the active
// workspace, or the defaults when the state cannot be loaded.
func ReaderSettings(ctx context.Context, s *state.State) storage.Settings {
	if s == nil || s.Workspace == nil {
		return storage.DefaultSettings()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := s.Progress(ctx)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Debug("using default reader settings", zap.Error(err))
		}
		return storage.DefaultSettings()
	}
	return store.Settings()
}
