package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/ebref/internal/logging"
)

type SearchConfig struct {
	IgnoredFolders []string `yaml:"ignored_folders" json:"ignored_folders"`
	DocumentExts   []string `yaml:"document_exts"   json:"document_exts"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"            json:"bucket"`
	Key             string `yaml:"key"               json:"key"`
	Region          string `yaml:"region"            json:"region"`
	Endpoint        string `yaml:"endpoint"          json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"     json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
}

type StorageConfig struct {
	// Backend is "file" or "s3".
	Backend string   `yaml:"backend" json:"backend"`
	Path    string   `yaml:"path"    json:"path"`
	S3      S3Config `yaml:"s3"      json:"s3"`
}

type Workspace struct {
	VaultDir       string         `yaml:"vaultdir"        json:"vault_dir"`
	VaultName      string         `yaml:"vault_name"      json:"vault_name"`
	LinkStyle      string         `yaml:"link_style"      json:"link_style"`
	DeepLinkScheme string         `yaml:"deeplink_scheme" json:"deeplink_scheme"`
	ExcerptDir     string         `yaml:"excerpt_dir"     json:"excerpt_dir"`
	Search         SearchConfig   `yaml:"search"          json:"search"`
	Storage        StorageConfig  `yaml:"storage"         json:"storage"`
	Logging        logging.Config `yaml:"logging"         json:"logging"`
}

type Config struct {
	Workspaces       map[string]*Workspace `yaml:"workspaces"         json:"workspaces"`
	CurrentWorkspace string                `yaml:"current_workspace" json:"current_workspace"`

	active *Workspace `yaml:"-"`
	home   string     `yaml:"-"`
}

const (
	defaultWorkspaceName = "default"
	defaultLinkStyle     = "wiki"
	defaultScheme        = "obsidian"
	defaultExcerptDir    = "excerpts"
	defaultStateFile     = "state.json"
)

const (
	BackendFile = "file"
	BackendS3   = "s3"
)

var ValidLinkStyles = map[string]bool{
	"wiki":     true,
	"markdown": true,
	"deeplink": true,
}

func ValidateLinkStyle(style string) error {
	if _, valid := ValidLinkStyles[style]; valid {
		return nil
	}

	return fmt.Errorf(
		"invalid link style: %q. Please choose from 'wiki', 'markdown', or 'deeplink'",
		style,
	)
}

// legacyConfig is the flat single-vault layout written before workspaces.
type legacyConfig struct {
	VaultDir       string         `yaml:"vaultdir"`
	LinkStyle      string         `yaml:"link_style"`
	DeepLinkScheme string         `yaml:"deeplink_scheme"`
	ExcerptDir     string         `yaml:"excerpt_dir"`
	Search         SearchConfig   `yaml:"search"`
	Storage        StorageConfig  `yaml:"storage"`
	Logging        logging.Config `yaml:"logging"`
}

func newWorkspace() *Workspace {
	return &Workspace{
		LinkStyle:      defaultLinkStyle,
		DeepLinkScheme: defaultScheme,
		ExcerptDir:     defaultExcerptDir,
		Storage:        StorageConfig{Backend: BackendFile},
		Logging:        logging.Config{Level: logging.LevelNormal},
	}
}

func (ws *Workspace) ensureDefaults() {
	ws.LinkStyle = strings.ToLower(strings.TrimSpace(ws.LinkStyle))
	if ws.LinkStyle == "" {
		ws.LinkStyle = defaultLinkStyle
	}
	if ws.DeepLinkScheme == "" {
		ws.DeepLinkScheme = defaultScheme
	}
	if strings.TrimSpace(ws.ExcerptDir) == "" {
		ws.ExcerptDir = defaultExcerptDir
	}
	if ws.Storage.Backend == "" {
		ws.Storage.Backend = BackendFile
	}
	if ws.VaultName == "" && ws.VaultDir != "" {
		ws.VaultName = filepath.Base(filepath.Clean(ws.VaultDir))
	}
}

// Validate reports settings that cannot be used.
func (ws *Workspace) Validate() error {
	if err := ValidateLinkStyle(ws.LinkStyle); err != nil {
		return err
	}
	switch ws.Storage.Backend {
	case BackendFile:
	case BackendS3:
		if ws.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage backend %q requires a bucket", BackendS3)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", ws.Storage.Backend)
	}
	return ws.Logging.Validate()
}

// StatePath is the local state file, relative paths resolved against home.
func (ws *Workspace) StatePath(home string) string {
	p := strings.TrimSpace(ws.Storage.Path)
	if p == "" {
		return filepath.Join(filepath.Dir(GetConfigPath(home)), defaultStateFile)
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	if !filepath.IsAbs(p) {
		return filepath.Join(filepath.Dir(GetConfigPath(home)), p)
	}
	return p
}

func Load(home string) (*Config, error) {
	path := GetConfigPath(home)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if len(strings.TrimSpace(string(data))) == 0 {
		cfg.Workspaces = map[string]*Workspace{
			defaultWorkspaceName: newWorkspace(),
		}
		cfg.CurrentWorkspace = defaultWorkspaceName
	} else {
		raw := make(map[string]interface{})
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}

		if _, ok := raw["workspaces"]; ok {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else {
			var legacy legacyConfig
			if err := yaml.Unmarshal(data, &legacy); err != nil {
				return nil, err
			}
			cfg = migrateLegacyConfig(&legacy)
		}
	}
	cfg.home = home

	if err := cfg.ensureInitialized(); err != nil {
		return nil, err
	}

	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return nil, err
	}

	if err := ws.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func migrateLegacyConfig(legacy *legacyConfig) *Config {
	ws := newWorkspace()
	ws.VaultDir = legacy.VaultDir
	if legacy.LinkStyle != "" {
		ws.LinkStyle = legacy.LinkStyle
	}
	if legacy.DeepLinkScheme != "" {
		ws.DeepLinkScheme = legacy.DeepLinkScheme
	}
	if legacy.ExcerptDir != "" {
		ws.ExcerptDir = legacy.ExcerptDir
	}
	ws.Search = legacy.Search
	if legacy.Storage.Backend != "" || legacy.Storage.Path != "" {
		ws.Storage = legacy.Storage
	}
	if legacy.Logging != (logging.Config{}) {
		ws.Logging = legacy.Logging
	}
	ws.ensureDefaults()

	return &Config{
		Workspaces: map[string]*Workspace{
			defaultWorkspaceName: ws,
		},
		CurrentWorkspace: defaultWorkspaceName,
		active:           ws,
	}
}

func (cfg *Config) ensureInitialized() error {
	if cfg.Workspaces == nil {
		cfg.Workspaces = make(map[string]*Workspace)
	}

	if cfg.CurrentWorkspace == "" {
		if len(cfg.Workspaces) == 0 {
			cfg.Workspaces[defaultWorkspaceName] = newWorkspace()
			cfg.CurrentWorkspace = defaultWorkspaceName
		} else {
			cfg.CurrentWorkspace = cfg.WorkspaceNames()[0]
		}
	}

	return cfg.setActiveWorkspace(cfg.CurrentWorkspace)
}

func (cfg *Config) setActiveWorkspace(name string) error {
	if name == "" {
		return fmt.Errorf("workspace name cannot be empty")
	}
	ws, ok := cfg.Workspaces[name]
	if !ok {
		return fmt.Errorf("workspace %q does not exist", name)
	}
	if ws == nil {
		ws = newWorkspace()
		cfg.Workspaces[name] = ws
	}

	ws.ensureDefaults()
	cfg.CurrentWorkspace = name
	cfg.active = ws

	cfg.syncViperWithActiveWorkspace()

	return nil
}

func (cfg *Config) syncViperWithActiveWorkspace() {
	if cfg.active == nil {
		return
	}

	syncWorkspaceWithViper(cfg.active)
}

func syncWorkspaceWithViper(ws *Workspace) {
	viper.Set("vaultdir", ws.VaultDir)
	viper.Set("vault_name", ws.VaultName)
	viper.Set("link_style", ws.LinkStyle)
	viper.Set("deeplink_scheme", ws.DeepLinkScheme)
	viper.Set("excerpt_dir", ws.ExcerptDir)
	viper.Set("storage.backend", ws.Storage.Backend)
	viper.Set("logging.level", ws.Logging.Level)
	if ws.Search.IgnoredFolders == nil {
		viper.Set("search.ignored_folders", []string{})
	} else {
		viper.Set("search.ignored_folders", append([]string(nil), ws.Search.IgnoredFolders...))
	}
}

// ApplyOverrides copies values set through EBREF_* environment variables or
// bound flags onto the active workspace. Overrides are not saved.
func (cfg *Config) ApplyOverrides(v *viper.Viper) error {
	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return err
	}

	override := func(key string, dst *string) {
		if v.IsSet(key) {
			if val := strings.TrimSpace(v.GetString(key)); val != "" {
				*dst = val
			}
		}
	}
	override("vaultdir", &ws.VaultDir)
	override("vault_name", &ws.VaultName)
	override("link_style", &ws.LinkStyle)
	override("deeplink_scheme", &ws.DeepLinkScheme)
	override("excerpt_dir", &ws.ExcerptDir)
	override("storage.backend", &ws.Storage.Backend)
	override("storage.path", &ws.Storage.Path)
	override("storage.s3.bucket", &ws.Storage.S3.Bucket)
	override("storage.s3.region", &ws.Storage.S3.Region)
	override("storage.s3.endpoint", &ws.Storage.S3.Endpoint)
	override("logging.level", &ws.Logging.Level)

	ws.ensureDefaults()
	cfg.syncViperWithActiveWorkspace()
	return ws.Validate()
}

func (cfg *Config) ActiveWorkspace() (*Workspace, error) {
	if cfg.active != nil {
		return cfg.active, nil
	}

	if cfg.CurrentWorkspace == "" {
		return nil, fmt.Errorf("no workspace is currently selected")
	}

	if err := cfg.setActiveWorkspace(cfg.CurrentWorkspace); err != nil {
		return nil, err
	}

	return cfg.active, nil
}

func (cfg *Config) MustWorkspace() *Workspace {
	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		panic(err)
	}
	return ws
}

func (cfg *Config) WorkspaceNames() []string {
	names := make([]string, 0, len(cfg.Workspaces))
	for name := range cfg.Workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (cfg *Config) SwitchWorkspace(name string) error {
	if err := cfg.setActiveWorkspace(name); err != nil {
		return err
	}
	return cfg.Save()
}

func (cfg *Config) ActivateWorkspace(name string) error {
	return cfg.setActiveWorkspace(name)
}

func (cfg *Config) AddWorkspace(name string, ws *Workspace, makeCurrent bool) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("workspace name cannot be empty")
	}

	if cfg.Workspaces == nil {
		cfg.Workspaces = make(map[string]*Workspace)
	}

	if _, exists := cfg.Workspaces[trimmed]; exists {
		return fmt.Errorf("workspace %q already exists", trimmed)
	}

	if ws == nil {
		ws = newWorkspace()
	}
	ws.ensureDefaults()
	if err := ws.Validate(); err != nil {
		return err
	}
	cfg.Workspaces[trimmed] = ws

	if cfg.CurrentWorkspace == "" || makeCurrent {
		if err := cfg.setActiveWorkspace(trimmed); err != nil {
			return err
		}
	}

	return cfg.Save()
}

func (cfg *Config) RemoveWorkspace(name string) error {
	if len(cfg.Workspaces) <= 1 {
		return fmt.Errorf("cannot remove the last workspace")
	}

	if _, exists := cfg.Workspaces[name]; !exists {
		return fmt.Errorf("workspace %q does not exist", name)
	}

	delete(cfg.Workspaces, name)

	if cfg.CurrentWorkspace == name {
		cfg.active = nil
		cfg.CurrentWorkspace = ""
		if err := cfg.ensureInitialized(); err != nil {
			return err
		}
	}

	return cfg.Save()
}

func (cfg *Config) GetConfigPath() string {
	if cfg.home != "" {
		return GetConfigPath(cfg.home)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return GetConfigPath(homeDir)
}

func (cfg *Config) ChangeLinkStyle(style string) error {
	style = strings.ToLower(strings.TrimSpace(style))
	if err := ValidateLinkStyle(style); err != nil {
		return err
	}

	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return err
	}

	ws.LinkStyle = style
	return cfg.Save()
}

func (cfg *Config) SetVault(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return err
	}

	ws.VaultDir = abs
	ws.VaultName = ""
	ws.ensureDefaults()
	return cfg.Save()
}

func (cfg *Config) Save() error {
	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return err
	}

	if err := ws.Validate(); err != nil {
		return err
	}

	cfg.syncViperWithActiveWorkspace()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	configPath := cfg.GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0o644)
}
