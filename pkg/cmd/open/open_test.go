package open

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	fixzip "github.com/hidez8891/zip"
	"go.uber.org/zap/zaptest"

	"github.com/Paintersrp/ebref/internal/config"
	"github.com/Paintersrp/ebref/internal/rangeref"
	"github.com/Paintersrp/ebref/internal/search"
	indexsvc "github.com/Paintersrp/ebref/internal/services/index"
	"github.com/Paintersrp/ebref/internal/state"
	"github.com/Paintersrp/ebref/internal/storage"
	"github.com/Paintersrp/ebref/pkg/shared/styles"
)

const (
	opening = "epubcfi(/6/2!/4/2,/1:0,/1:3)"
	later   = "epubcfi(/6/4!/4/2/1:0)"
)

func writeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

func writeEPUB(t *testing.T, vault, rel string) {
	t.Helper()
	var buf bytes.Buffer
	zw := fixzip.NewWriter(&buf)
	entries := []struct{ name, body string }{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`},
		{"content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Moby Dick</dc:title></metadata>
  <manifest>
    <item id="c1" href="c1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="c2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="c1"/><itemref idref="c2"/></spine>
</package>`},
		{"c1.xhtml", "<html><body><p>Call me Ishmael.</p></body></html>"},
		{"c2.xhtml", "<html><body><p>Loomings</p></body></html>"},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("create entry %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("write entry %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	writeFile(t, vault, rel, buf.Bytes())
}

func newState(t *testing.T) (*state.State, string) {
	t.Helper()
	home := t.TempDir()
	vault := filepath.Join(home, "vault")
	cfg := &config.Config{
		Workspaces:       map[string]*config.Workspace{"default": {VaultDir: vault}},
		CurrentWorkspace: "default",
	}
	s := &state.State{
		Config:    cfg,
		Workspace: cfg.MustWorkspace(),
		Home:      home,
		Vault:     vault,
		Index:     indexsvc.NewService(vault, search.Config{}),
		Logger:    zaptest.NewLogger(t),
	}
	t.Cleanup(func() { _ = s.Close() })

	writeEPUB(t, vault, "books/Moby Dick.epub")
	link := "[[books/Moby Dick.epub#rangeref=" + rangeref.Encode(opening) + "|Call me Ishmael]]"
	writeFile(t, vault, "notes/whales.md", []byte("First line: "+link+"\n"))
	return s, vault
}

func TestOpenAppliesHighlightsAndJumps(t *testing.T) {
	styles.Configure(true)
	s, _ := newState(t)

	var out bytes.Buffer
	err := run(context.Background(), &out, s, "Moby Dick.epub", options{jump: later, activate: opening})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	for _, want := range []string{
		"Moby Dick",
		"Position: " + later,
		"Highlights: 1",
		"Call me Ishmael notes/whales.md",
		"Referenced by notes/whales.md",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, out.String())
		}
	}

	data, err := os.ReadFile(s.Workspace.StatePath(s.Home))
	if err != nil {
		t.Fatalf("expected state to be written: %v", err)
	}
	doc, err := storage.Decode(data)
	if err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if rec := doc.Progress["books/Moby Dick.epub"]; rec.Position.String() != later {
		t.Fatalf("expected landing position to be saved, got %+v", doc.Progress)
	}
}

func TestOpenRestoresSavedPosition(t *testing.T) {
	styles.Configure(true)
	s, _ := newState(t)

	store, err := s.Progress(context.Background())
	if err != nil {
		t.Fatalf("Progress returned error: %v", err)
	}
	store.Set("books/Moby Dick.epub", storage.StringPosition(later))

	var out bytes.Buffer
	if err := run(context.Background(), &out, s, "books/Moby Dick.epub", options{}); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Position: "+later) {
		t.Fatalf("expected saved position to be restored:\n%s", out.String())
	}
}

func TestOpenFollowsLinkText(t *testing.T) {
	styles.Configure(true)
	s, _ := newState(t)

	link := "[[books/Moby Dick.epub#rangeref=" + rangeref.Encode(opening) + "|Call me Ishmael]]"
	var out bytes.Buffer
	if err := run(context.Background(), &out, s, "Moby Dick.epub", options{link: link}); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Position: "+opening) {
		t.Fatalf("expected link range to be displayed:\n%s", out.String())
	}

	other := "[[books/Other.epub#rangeref=" + rangeref.Encode(opening) + "]]"
	if err := run(context.Background(), &out, s, "Moby Dick.epub", options{link: other}); err == nil {
		t.Fatalf("expected link to another document to fail")
	}
	if err := run(context.Background(), &out, s, "Moby Dick.epub", options{jump: later, link: link}); err == nil {
		t.Fatalf("expected --jump and --link to conflict")
	}
}

func TestCandidatesCarryReferencesAndPosition(t *testing.T) {
	s, vault := newState(t)
	writeEPUB(t, vault, "books/Unread.epub")

	store, err := s.Progress(context.Background())
	if err != nil {
		t.Fatalf("Progress returned error: %v", err)
	}
	store.Set("books/Moby Dick.epub", storage.StringPosition(later))

	docs, err := candidates(s, store)
	if err != nil {
		t.Fatalf("candidates returned error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected two documents, got %+v", docs)
	}
	if docs[0].Key != "books/Moby Dick.epub" || docs[0].Position != later || len(docs[0].Backlinks) != 1 {
		t.Fatalf("unexpected first candidate %+v", docs[0])
	}
	if docs[1].Key != "books/Unread.epub" || docs[1].Position != "" || len(docs[1].Backlinks) != 0 {
		t.Fatalf("unexpected second candidate %+v", docs[1])
	}
}
