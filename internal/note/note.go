// Package note creates vault notes that quote a range of a document.
package note

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/Paintersrp/ebref/internal/cfi"
	"github.com/Paintersrp/ebref/internal/pathutil"
	"github.com/Paintersrp/ebref/internal/rangeref"
	"github.com/Paintersrp/ebref/internal/templater"
)

var (
	// ErrEmptyRange is returned for excerpts without a range.
	ErrEmptyRange = errors.New("excerpt range is empty")
	// ErrInvalidRange is returned for ranges that are not CFIs.
	ErrInvalidRange = errors.New("excerpt range is not a CFI")
)

// LinkStyle selects how the cross reference is written into the note.
type LinkStyle struct {
	Style  string
	Scheme string
	Vault  string
}

// Excerpt is a selection of a document to be quoted in a note.
type Excerpt struct {
	Document string
	Range    string
	Quote    string
	Title    string
	Comment  string
	Tags     []string
	// LabelMax caps the link label. Zero means the default cap.
	LabelMax int
}

// Validate checks that the excerpt names a document and a CFI.
func (e Excerpt) Validate() error {
	if strings.TrimSpace(e.Document) == "" {
		return errors.New("excerpt document is empty")
	}
	if strings.TrimSpace(e.Range) == "" {
		return ErrEmptyRange
	}
	if _, ok := cfi.Split(e.Range); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidRange, e.Range)
	}
	return nil
}

// Link builds the cross reference for the excerpt. The quote doubles as the
// label.
func (e Excerpt) Link() rangeref.Link {
	label := e.Quote
	if strings.TrimSpace(label) == "" {
		label = e.Title
	}
	return rangeref.NewLinkLimit(pathutil.NormalizeKey(e.Document), e.Range, label, e.LabelMax)
}

// DisplayTitle is the note title: the given title, else the start of the quote,
// else the document name.
func (e Excerpt) DisplayTitle() string {
	if title := strings.TrimSpace(e.Title); title != "" {
		return title
	}
	if label := rangeref.SanitizeLabel(e.Quote); label != "" {
		return strings.TrimSuffix(label, "...")
	}
	base := filepath.Base(e.Document)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Data renders the excerpt into template data.
func (e Excerpt) Data(style LinkStyle, now time.Time, t *templater.Templater) templater.TemplateData {
	return templater.TemplateData{
		Title:    e.DisplayTitle(),
		Date:     t.GenerateDate(now),
		Document: pathutil.NormalizeKey(e.Document),
		Link:     e.Link().Format(style.Style, style.Scheme, style.Vault),
		Quote:    e.Quote,
		Content:  e.Comment,
		Tags:     e.Tags,
	}
}

// ExcerptNote is a note file inside the vault.
type ExcerptNote struct {
	VaultDir string
	SubDir   string
	Filename string
}

// NewExcerptNote names the note after the slug of title.
func NewExcerptNote(vaultDir, subDir, title string) *ExcerptNote {
	name := slug.Make(title)
	if name == "" {
		name = "excerpt"
	}
	return &ExcerptNote{
		VaultDir: vaultDir,
		SubDir:   subDir,
		Filename: name,
	}
}

// GetFilepath returns the file path of the note.
func (note *ExcerptNote) GetFilepath() string {
	return filepath.Join(note.VaultDir, note.SubDir, note.Filename+".md")
}

// RelPath is the vault relative path of the note.
func (note *ExcerptNote) RelPath() string {
	return pathutil.NormalizeKey(filepath.ToSlash(filepath.Join(note.SubDir, note.Filename+".md")))
}

// EnsurePath creates the necessary directory structure for the note file.
func (note *ExcerptNote) EnsurePath() (string, error) {
	dir := filepath.Join(note.VaultDir, note.SubDir)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}
	return note.GetFilepath(), nil
}

// FileExists checks if the note file already exists.
func (note *ExcerptNote) FileExists() (bool, string, error) {
	noteFilePath := note.GetFilepath()
	_, err := os.Stat(noteFilePath)

	if err == nil {
		return true, noteFilePath, nil
	}

	if os.IsNotExist(err) {
		return false, noteFilePath, nil
	}

	return false, noteFilePath, err
}

// Unique appends a numeric suffix until the file name is free.
func (note *ExcerptNote) Unique() error {
	base := note.Filename
	for i := 2; ; i++ {
		exists, _, err := note.FileExists()
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		note.Filename = fmt.Sprintf("%s-%d", base, i)
	}
}

// Create renders the named template into a new note file. On failure the
// file and any directories created for it are removed.
func (note *ExcerptNote) Create(
	tmplName string,
	t *templater.Templater,
	data templater.TemplateData,
) (string, error) {
	path, err := note.EnsurePath()
	if err != nil {
		return "", err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}

	cleanup := func() {
		file.Close()
		removeCreatedArtifacts(path, note.VaultDir)
	}

	output, err := t.Execute(tmplName, data)
	if err != nil {
		cleanup()
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	if _, err := file.WriteString(output); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to write to file: %w", err)
	}

	if err := file.Close(); err != nil {
		removeCreatedArtifacts(path, note.VaultDir)
		return "", err
	}

	return path, nil
}

// Append renders the named template at the end of an existing note.
func Append(path, tmplName string, t *templater.Templater, data templater.TemplateData) error {
	output, err := t.Execute(tmplName, data)
	if err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	existing, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	prefix := "\n"
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		prefix = "\n\n"
	}
	if len(existing) == 0 {
		prefix = ""
	}

	if _, err := file.WriteString(prefix + output); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func removeCreatedArtifacts(filePath, vaultDir string) {
	if filePath == "" {
		return
	}

	_ = os.Remove(filePath)

	vault := filepath.Clean(vaultDir)
	dir := filepath.Dir(filePath)

	for {
		if dir == vault {
			break
		}

		rel, err := filepath.Rel(vault, dir)
		if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
			break
		}

		if err := os.Remove(dir); err != nil {
			break
		}

		dir = filepath.Dir(dir)
	}
}
