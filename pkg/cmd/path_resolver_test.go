package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Paintersrp/ebref/internal/config"
	"github.com/Paintersrp/ebref/internal/search"
	indexsvc "github.com/Paintersrp/ebref/internal/services/index"
	"github.com/Paintersrp/ebref/internal/state"
)

func newTestState(t *testing.T, vaultDir string) *state.State {
	t.Helper()
	cfg := &config.Config{
		Workspaces:       map[string]*config.Workspace{"default": {VaultDir: vaultDir}},
		CurrentWorkspace: "default",
	}
	svc := indexsvc.NewService(vaultDir, search.Config{})
	t.Cleanup(func() { _ = svc.Close() })
	return &state.State{
		Config:    cfg,
		Workspace: cfg.MustWorkspace(),
		Vault:     vaultDir,
		Index:     svc,
	}
}

func TestResolveVaultPath(t *testing.T) {
	vaultDir := t.TempDir()
	st := newTestState(t, vaultDir)

	tests := map[string]struct {
		input   string
		want    string
		wantErr bool
	}{
		"absolute inside vault": {
			input: filepath.Join(vaultDir, "note.md"),
			want:  filepath.Join(vaultDir, "note.md"),
		},
		"relative inside vault": {
			input: "books/Novel.epub",
			want:  filepath.Join(vaultDir, "books", "Novel.epub"),
		},
		"backslash separators": {
			input: `books\Novel.epub`,
			want:  filepath.Join(vaultDir, "books", "Novel.epub"),
		},
		"escape attempt": {
			input:   "../evil.md",
			wantErr: true,
		},
		"absolute outside vault": {
			input:   filepath.Join(filepath.Dir(vaultDir), "other.epub"),
			wantErr: true,
		},
		"empty": {
			input:   " ",
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ResolveVaultPath(st, tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got path %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestResolveDocumentFallsBackToIndex(t *testing.T) {
	vaultDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(vaultDir, "books"), 0o755); err != nil {
		t.Fatalf("failed to create books dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(vaultDir, "books", "Novel.epub"), []byte("epub"), 0o644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
	st := newTestState(t, vaultDir)

	abs, key, err := ResolveDocument(st, "Novel.epub")
	if err != nil {
		t.Fatalf("ResolveDocument returned error: %v", err)
	}
	if key != "books/Novel.epub" {
		t.Fatalf("expected books/Novel.epub, got %q", key)
	}
	if abs != filepath.Join(vaultDir, "books", "Novel.epub") {
		t.Fatalf("unexpected absolute path %q", abs)
	}

	if _, _, err := ResolveDocument(st, "Missing.epub"); err == nil {
		t.Fatalf("expected unknown document to fail")
	}
}
