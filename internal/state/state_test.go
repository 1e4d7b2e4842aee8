package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/ebref/internal/config"
	"github.com/Paintersrp/ebref/internal/storage"
)

func TestRenameTrackerPairsWithinWindow(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)
	tr := renameTracker{window: RenameWindow}

	tr.renamed("books/Novel.epub", false, base)
	from, ok := tr.created("archive/Novel.epub", false, base.Add(100*time.Millisecond))
	if !ok || from.rel != "books/Novel.epub" {
		t.Fatalf("expected rename to pair, got %+v %v", from, ok)
	}
	if _, waiting := tr.next(); waiting {
		t.Fatalf("expected no pending renames after pairing")
	}

	tr.renamed("books/Other.epub", false, base)
	if _, ok := tr.created("books/Later.epub", false, base.Add(RenameWindow+time.Millisecond)); ok {
		t.Fatalf("expected create outside the window to stay unpaired")
	}
	gone := tr.expire(base.Add(RenameWindow))
	if len(gone) != 1 || gone[0].rel != "books/Other.epub" {
		t.Fatalf("expected stale rename to expire, got %+v", gone)
	}
}

func TestRenameTrackerPrefersSameBaseName(t *testing.T) {
	t.Parallel()

	base := time.Now()
	tr := renameTracker{window: RenameWindow}
	tr.renamed("a/first.md", false, base)
	tr.renamed("a/second.md", false, base.Add(time.Millisecond))
	tr.renamed("a/sub", true, base.Add(2*time.Millisecond))

	from, ok := tr.created("b/second.md", false, base.Add(10*time.Millisecond))
	if !ok || from.rel != "a/second.md" {
		t.Fatalf("expected base name match, got %+v", from)
	}

	if from, ok := tr.created("b/renamed.md", false, base.Add(15*time.Millisecond)); ok {
		t.Fatalf("expected a new name in another folder to stay unpaired, got %+v", from)
	}

	from, ok = tr.created("a/renamed.md", false, base.Add(20*time.Millisecond))
	if !ok || from.rel != "a/first.md" {
		t.Fatalf("expected in-folder rename to pair, got %+v", from)
	}

	from, ok = tr.created("b/sub", true, base.Add(30*time.Millisecond))
	if !ok || !from.isDir || from.rel != "a/sub" {
		t.Fatalf("expected directory rename, got %+v", from)
	}

	deadline, waiting := tr.next()
	if waiting {
		t.Fatalf("expected tracker to be empty, next %v", deadline)
	}
}

func TestRenameTrackerIgnoresUnrelatedCreate(t *testing.T) {
	t.Parallel()

	base := time.Now()
	tr := renameTracker{window: RenameWindow}

	// Book.epub leaves the vault while an unrelated document is dropped in.
	tr.renamed("books/Book.epub", false, base)
	if from, ok := tr.created("inbox/Other.epub", false, base.Add(50*time.Millisecond)); ok {
		t.Fatalf("expected unrelated create not to inherit %+v", from)
	}

	from, ok := tr.created("books/Book (2).epub", false, base.Add(60*time.Millisecond))
	if !ok || from.rel != "books/Book.epub" {
		t.Fatalf("expected rename within the folder to pair, got %+v %v", from, ok)
	}
}

func TestIsDocument(t *testing.T) {
	t.Parallel()

	exts := []string{".epub"}
	if !isDocument("books/Novel.EPUB", exts) {
		t.Fatalf("expected extension match to ignore case")
	}
	if isDocument("notes/novel.md", exts) {
		t.Fatalf("expected notes not to be documents")
	}
}

func writeTestConfig(t *testing.T, home, vault string) *config.Config {
	t.Helper()
	configPath := config.GetConfigPath(home)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	data, err := yaml.Marshal(map[string]any{
		"vaultdir": vault,
		"logging":  map[string]any{"level": "none"},
	})
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := config.Load(home)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func TestStateProgressPersistsOnClose(t *testing.T) {
	home := t.TempDir()
	vault := filepath.Join(home, "vault")
	if err := os.MkdirAll(vault, 0o755); err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}

	cfg := writeTestConfig(t, home, vault)
	t.Setenv("EBREF_LINK_STYLE", "markdown")

	s, err := newStateFromConfig(home, cfg, "")
	if err != nil {
		t.Fatalf("newStateFromConfig returned error: %v", err)
	}
	if s.Workspace.LinkStyle != "markdown" {
		t.Fatalf("expected environment override, got %q", s.Workspace.LinkStyle)
	}

	ctx := context.Background()
	store, err := s.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress returned error: %v", err)
	}
	again, err := s.Progress(ctx)
	if err != nil || again != store {
		t.Fatalf("expected progress store to be reused")
	}
	store.Set("books/Novel.epub", storage.StringPosition("epubcfi(/6/4!/4/2/1:0)"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(s.Workspace.StatePath(home))
	if err != nil {
		t.Fatalf("expected state file after close: %v", err)
	}
	doc, err := storage.Decode(data)
	if err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if rec, ok := doc.Progress["books/Novel.epub"]; !ok || rec.Position.String() != "epubcfi(/6/4!/4/2/1:0)" {
		t.Fatalf("unexpected persisted progress %+v", doc.Progress)
	}
}

func TestStateRejectsUnknownWorkspace(t *testing.T) {
	home := t.TempDir()
	cfg := writeTestConfig(t, home, filepath.Join(home, "vault"))

	if _, err := newStateFromConfig(home, cfg, "missing"); err == nil {
		t.Fatalf("expected unknown workspace to fail")
	}
}

func TestVaultWatcherReportsMoves(t *testing.T) {
	vault := t.TempDir()
	for _, dir := range []string{"books", "archive"} {
		if err := os.MkdirAll(filepath.Join(vault, dir), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}
	src := filepath.Join(vault, "books", "Novel.epub")
	if err := os.WriteFile(src, []byte("epub"), 0o644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	w, err := NewVaultWatcher(vault, []string{".epub"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewVaultWatcher returned error: %v", err)
	}
	defer w.Close()

	type move struct {
		from, to string
		isDir    bool
	}
	moves := make(chan move, 4)
	w.OnRename(func(oldRel, newRel string, isDir bool) {
		moves <- move{oldRel, newRel, isDir}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	if err := os.Rename(src, filepath.Join(vault, "archive", "Novel.epub")); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	select {
	case m := <-moves:
		if m.from != "books/Novel.epub" || m.to != "archive/Novel.epub" || m.isDir {
			t.Fatalf("unexpected move %+v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for move")
	}

	if err := os.Rename(filepath.Join(vault, "archive"), filepath.Join(vault, "shelf")); err != nil {
		t.Fatalf("directory rename failed: %v", err)
	}

	select {
	case m := <-moves:
		if m.from != "archive" || m.to != "shelf" || !m.isDir {
			t.Fatalf("unexpected directory move %+v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for directory move")
	}
}
