package backlinks

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/Paintersrp/ebref/internal/config"
	"github.com/Paintersrp/ebref/internal/rangeref"
	"github.com/Paintersrp/ebref/internal/search"
	indexsvc "github.com/Paintersrp/ebref/internal/services/index"
	"github.com/Paintersrp/ebref/internal/state"
	"github.com/Paintersrp/ebref/pkg/shared/styles"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

func newState(t *testing.T) (*state.State, string) {
	t.Helper()
	home := t.TempDir()
	vault := filepath.Join(home, "vault")
	cfg := &config.Config{
		Workspaces:       map[string]*config.Workspace{"default": {VaultDir: vault}},
		CurrentWorkspace: "default",
	}
	svc := indexsvc.NewService(vault, search.Config{})
	s := &state.State{
		Config:    cfg,
		Workspace: cfg.MustWorkspace(),
		Home:      home,
		Vault:     vault,
		Index:     svc,
		Logger:    zaptest.NewLogger(t),
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, vault
}

func TestBacklinksListsHighlights(t *testing.T) {
	styles.Configure(true)
	s, vault := newState(t)

	first := "epubcfi(/6/4!/4/2,/1:0,/1:9)"
	second := "epubcfi(/6/6!/4/2,/1:0,/1:4)"
	writeFile(t, vault, "books/Novel.epub", "epub")
	writeFile(t, vault, "notes/a.md", "See [[books/Novel.epub#rangeref="+rangeref.Encode(first)+"|Opening line]].\n")
	writeFile(t, vault, "notes/b.md", "[Later](<../books/Novel.epub#rangeref="+rangeref.Encode(second)+">) and again [[Novel.epub#rangeref="+rangeref.Encode(first)+"]]\n")
	writeFile(t, vault, "notes/c.md", "Unrelated [[Other.epub#rangeref="+rangeref.Encode(first)+"]]\n")

	cmd := NewCmdBacklinks(s)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"Novel.epub", "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("backlinks returned error: %v", err)
	}

	var got []descriptorJSON
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode output %q: %v", out.String(), err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two distinct ranges, got %+v", got)
	}
	if got[0].SourceNote != "notes/a.md" || got[0].Range != first || got[0].Label != "Opening line" {
		t.Fatalf("unexpected first descriptor %+v", got[0])
	}
	if got[1].SourceNote != "notes/b.md" || got[1].Range != second {
		t.Fatalf("unexpected second descriptor %+v", got[1])
	}
}

func TestBacklinksTableOutput(t *testing.T) {
	styles.Configure(true)
	s, vault := newState(t)
	writeFile(t, vault, "Novel.epub", "epub")
	writeFile(t, vault, "note.md", "nothing here\n")

	cmd := NewCmdBacklinks(s)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"Novel.epub"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("backlinks returned error: %v", err)
	}
	if !strings.Contains(out.String(), "No backlinks found") {
		t.Fatalf("expected empty notice, got:\n%s", out.String())
	}
}
