package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Paintersrp/ebref/internal/backlinks"
	"github.com/Paintersrp/ebref/internal/config"
	"github.com/Paintersrp/ebref/internal/constants"
	"github.com/Paintersrp/ebref/internal/logging"
	"github.com/Paintersrp/ebref/internal/pathutil"
	"github.com/Paintersrp/ebref/internal/progress"
	"github.com/Paintersrp/ebref/internal/rangeref"
	"github.com/Paintersrp/ebref/internal/search"
	indexsvc "github.com/Paintersrp/ebref/internal/services/index"
	"github.com/Paintersrp/ebref/internal/storage"
	"github.com/Paintersrp/ebref/internal/templater"
)

type State struct {
	Config        *config.Config
	Workspace     *config.Workspace
	WorkspaceName string
	Templater     *templater.Templater
	Logger        *zap.Logger
	Home          string
	Vault         string
	Index         IndexService
	Watcher       *VaultWatcher

	closeLog func() error

	mu       sync.Mutex
	progress *progress.Store
}

// IndexService exposes the shared link index snapshots produced by the
// workspace index manager.
type IndexService interface {
	AcquireSnapshot() (*search.Index, error)
	NoteIndex() (backlinks.NoteIndex, error)
	QueueUpdate(string)
	Invalidate()
	Stats() indexsvc.Stats
	Close() error
}

func NewState(workspaceOverride string) (*State, error) {
	home, err := GetHomeDir()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadConfig(home)
	if err != nil {
		return nil, err
	}

	return newStateFromConfig(home, cfg, workspaceOverride)
}

func newStateFromConfig(home string, cfg *config.Config, workspaceOverride string) (*State, error) {
	if workspaceOverride != "" {
		if err := cfg.ActivateWorkspace(workspaceOverride); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyOverrides(envOverrides()); err != nil {
		return nil, err
	}

	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logging.New(ws.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	log = log.With(zap.String("workspace", cfg.CurrentWorkspace))

	t, err := templater.NewTemplater(home)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to create templater: %w", err)
	}

	indexService := indexsvc.NewService(ws.VaultDir, searchConfig(ws))

	return &State{
		Config:        cfg,
		Workspace:     ws,
		WorkspaceName: cfg.CurrentWorkspace,
		Templater:     t,
		Logger:        log,
		Home:          home,
		Vault:         ws.VaultDir,
		Index:         indexService,
		closeLog:      closeLog,
	}, nil
}

func searchConfig(ws *config.Workspace) search.Config {
	return search.Config{
		IgnoredFolders: append([]string(nil), ws.Search.IgnoredFolders...),
		DocumentExts:   append([]string(nil), ws.Search.DocumentExts...),
	}
}

func GetHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory. err: %s", err)
	}

	return home, nil
}

func LoadConfig(home string) (*config.Config, error) {
	viper.AddConfigPath(home + constants.ConfigDir)
	viper.SetConfigName(constants.ConfigFile)
	viper.SetConfigType(constants.ConfigFileType)
	_ = viper.ReadInConfig()

	err := config.EnsureConfigExists(home)
	if err != nil {
		return nil, err
	}

	return config.Load(home)
}

// envOverrides reads EBREF_* variables, e.g. EBREF_VAULTDIR or
// EBREF_STORAGE_BACKEND.
func envOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// StateBackend builds the configured persistence backend.
func (s *State) StateBackend(ctx context.Context) (storage.Backend, error) {
	st := s.Workspace.Storage
	switch st.Backend {
	case config.BackendS3:
		return storage.NewS3Backend(ctx, storage.S3Config{
			Bucket:          st.S3.Bucket,
			Key:             st.S3.Key,
			Region:          st.S3.Region,
			Endpoint:        st.S3.Endpoint,
			AccessKeyID:     st.S3.AccessKeyID,
			SecretAccessKey: st.S3.SecretAccessKey,
		})
	default:
		return storage.NewFileBackend(s.Workspace.StatePath(s.Home)), nil
	}
}

// Progress opens the progress store on first use.
func (s *State) Progress(ctx context.Context) (*progress.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress != nil {
		return s.progress, nil
	}

	backend, err := s.StateBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to configure state backend: %w", err)
	}

	store, err := progress.Open(ctx, backend,
		progress.WithLogger(s.logger()),
		progress.WithNotice(func(err error) {
			s.logger().Error("Reading positions could not be saved", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load reading state: %w", err)
	}
	s.progress = store
	return store, nil
}

// WatchVault starts a watcher that keeps the index current and migrates
// reading positions when documents move.
func (s *State) WatchVault(ctx context.Context) (*VaultWatcher, error) {
	if s.Watcher != nil {
		return s.Watcher, nil
	}

	store, err := s.Progress(ctx)
	if err != nil {
		return nil, err
	}

	exts := s.Workspace.Search.DocumentExts
	if len(exts) == 0 {
		exts = []string{rangeref.DocumentExt}
	}

	watcher, err := NewVaultWatcher(s.Vault, exts, s.logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create vault watcher: %w", err)
	}

	index := s.Index
	log := s.logger()
	watcher.OnChange(func(rel string) {
		index.QueueUpdate(rel)
	})
	watcher.OnRename(func(oldRel, newRel string, isDir bool) {
		if isDir {
			moved := store.RenameTree(pathutil.NormalizeKey(oldRel), pathutil.NormalizeKey(newRel))
			log.Info("folder moved", zap.String("from", oldRel), zap.String("to", newRel), zap.Int("positions", moved))
			index.Invalidate()
			return
		}

		if isDocument(newRel, exts) {
			if store.Rename(oldRel, newRel) {
				log.Info("document moved", zap.String("from", oldRel), zap.String("to", newRel))
			}
		}
		index.QueueUpdate(oldRel)
		index.QueueUpdate(newRel)
	})

	s.Watcher = watcher
	return watcher, nil
}

func isDocument(rel string, exts []string) bool {
	ext := path.Ext(rel)
	for _, candidate := range exts {
		if strings.EqualFold(ext, candidate) {
			return true
		}
	}
	return false
}

func (s *State) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Close releases resources associated with the state: the vault watcher,
// the shared index service, pending progress writes and the log file.
func (s *State) Close() error {
	if s == nil {
		return nil
	}

	var err error
	if s.Watcher != nil {
		err = multierr.Append(err, s.Watcher.Close())
		s.Watcher = nil
	}
	if s.Index != nil {
		if closeErr := s.Index.Close(); closeErr != nil && !errors.Is(closeErr, indexsvc.ErrClosed) {
			err = multierr.Append(err, closeErr)
		}
		s.Index = nil
	}

	s.mu.Lock()
	store := s.progress
	s.progress = nil
	s.mu.Unlock()
	if store != nil && store.Pending() {
		err = multierr.Append(err, store.Flush(context.Background()))
	}
	if store != nil {
		err = multierr.Append(err, store.Close())
	}

	if s.Logger != nil {
		_ = s.Logger.Sync()
	}
	if s.closeLog != nil {
		err = multierr.Append(err, s.closeLog())
		s.closeLog = nil
	}

	return err
}
