package fzf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/Paintersrp/ebref/internal/backlinks"
	"github.com/Paintersrp/ebref/utils"
)

// ErrNoSelection is returned when the finder is closed without a choice.
var ErrNoSelection = errors.New("no document selected")

// Document is one selectable entry.
type Document struct {
	Key       string
	Position  string
	Backlinks []backlinks.Descriptor
}

// FuzzyFinder picks a document from the vault.
type FuzzyFinder struct {
	Header string
	Plain  bool
}

// find is swapped out in tests.
var find = fuzzyfinder.Find

func NewFuzzyFinder(header string) *FuzzyFinder {
	return &FuzzyFinder{Header: header}
}

// Run shows docs and returns the chosen one. query pre-fills the prompt.
func (f *FuzzyFinder) Run(docs []Document, query string) (Document, error) {
	if len(docs) == 0 {
		return Document{}, fmt.Errorf("%w: the vault has no documents", ErrNoSelection)
	}

	options := []fuzzyfinder.Option{
		fuzzyfinder.WithPreviewWindow(func(i, w, _ int) string {
			if i < 0 || i >= len(docs) {
				return ""
			}
			return f.renderPreview(docs[i], w)
		}),
	}
	if query != "" {
		options = append(options, fuzzyfinder.WithQuery(query))
	}
	if f.Header != "" {
		options = append(options, fuzzyfinder.WithHeader(f.Header))
	}

	idx, err := find(docs, func(i int) string {
		return Label(docs[i])
	}, options...)
	if errors.Is(err, fuzzyfinder.ErrAbort) {
		return Document{}, ErrNoSelection
	}
	if err != nil {
		return Document{}, fmt.Errorf("error selecting document: %w", err)
	}
	if idx < 0 || idx >= len(docs) {
		return Document{}, ErrNoSelection
	}
	return docs[idx], nil
}

// Label is the finder line for doc.
func Label(doc Document) string {
	switch n := len(doc.Backlinks); n {
	case 0:
		return fmt.Sprintf("%s [No references]", doc.Key)
	case 1:
		return fmt.Sprintf("%s [1 reference]", doc.Key)
	default:
		return fmt.Sprintf("%s [%d references]", doc.Key, n)
	}
}

// Preview is the markdown shown next to the list.
func Preview(doc Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Key)
	if doc.Position != "" {
		fmt.Fprintf(&b, "Resumes at `%s`\n\n", doc.Position)
	}
	if len(doc.Backlinks) == 0 {
		b.WriteString("No notes reference this document yet.\n")
		return b.String()
	}
	b.WriteString("## Referenced by\n\n")
	for _, d := range doc.Backlinks {
		fmt.Fprintf(&b, "- **%s** %s\n", d.Label, d.SourceNote)
	}
	return b.String()
}

func (f *FuzzyFinder) renderPreview(doc Document, width int) string {
	rendered, err := utils.RenderMarkdown(Preview(doc), width-4, f.Plain)
	if err != nil {
		return "Error rendering preview"
	}
	return rendered
}
