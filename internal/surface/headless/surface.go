// Package headless is a rendering surface for terminals. It reads an EPUB's
// spine and accepts any structurally valid CFI that addresses a spine item,
// which is enough to drive highlights, jumps and progress without a layout
// engine.
package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/beevik/etree"
	fixzip "github.com/hidez8891/zip"
	"go.uber.org/zap"

	"github.com/Paintersrp/ebref/internal/cfi"
)

var (
	// ErrRejected is returned for identifiers the surface cannot place.
	ErrRejected = errors.New("range rejected by surface")
	// ErrNoAnnotation is returned when removing an unknown annotation.
	ErrNoAnnotation = errors.New("no such annotation")
	// ErrDuplicateAnnotation is returned when a range is already annotated.
	ErrDuplicateAnnotation = errors.New("range already annotated")
)

const containerPath = "META-INF/container.xml"

// Book is the parsed package information of an EPUB.
type Book struct {
	Title string
	// Spine holds archive paths of the reading order items.
	Spine []string
}

// Surface is an in-memory renderer over a parsed Book.
type Surface struct {
	mu          sync.Mutex
	book        Book
	position    string
	annotations map[string]func()
	relocated   func(string)
	rendered    func()
	log         *zap.Logger
}

// Open parses the EPUB at path and returns a surface positioned at its start.
func Open(name string, log *zap.Logger) (*Surface, error) {
	book, err := ReadBook(name)
	if err != nil {
		return nil, err
	}
	return New(book, log), nil
}

// New returns a surface over an already parsed book.
func New(book Book, log *zap.Logger) *Surface {
	if log == nil {
		log = zap.NewNop()
	}
	return &Surface{
		book:        book,
		annotations: make(map[string]func()),
		log:         log,
	}
}

// ReadBook reads the container and package documents of an EPUB.
func ReadBook(name string) (Book, error) {
	r, err := fixzip.OpenReader(name)
	if err != nil {
		return Book{}, fmt.Errorf("open epub %s: %w", name, err)
	}
	defer r.Close()

	files := make(map[string]*fixzip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}

	container, err := readXML(files, containerPath)
	if err != nil {
		return Book{}, err
	}

	rootfile := container.FindElement("//rootfile[@full-path]")
	if rootfile == nil {
		return Book{}, fmt.Errorf("epub %s: container has no rootfile", name)
	}
	opfPath := rootfile.SelectAttrValue("full-path", "")

	opf, err := readXML(files, opfPath)
	if err != nil {
		return Book{}, err
	}

	return parsePackage(opf, path.Dir(opfPath))
}

func parsePackage(opf *etree.Document, base string) (Book, error) {
	pkg := opf.SelectElement("package")
	if pkg == nil {
		return Book{}, errors.New("package document has no <package> element")
	}

	var book Book
	if metadata := pkg.SelectElement("metadata"); metadata != nil {
		for _, child := range metadata.ChildElements() {
			if child.Tag == "title" {
				book.Title = child.Text()
				break
			}
		}
	}

	hrefs := make(map[string]string)
	if manifest := pkg.SelectElement("manifest"); manifest != nil {
		for _, item := range manifest.SelectElements("item") {
			id := item.SelectAttrValue("id", "")
			href := item.SelectAttrValue("href", "")
			if id != "" && href != "" {
				hrefs[id] = href
			}
		}
	}

	spine := pkg.SelectElement("spine")
	if spine == nil {
		return Book{}, errors.New("package document has no <spine> element")
	}
	for _, ref := range spine.SelectElements("itemref") {
		href, ok := hrefs[ref.SelectAttrValue("idref", "")]
		if !ok {
			continue
		}
		if base != "." {
			href = path.Join(base, href)
		}
		book.Spine = append(book.Spine, href)
	}

	return book, nil
}

func readXML(files map[string]*fixzip.File, name string) (*etree.Document, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("epub entry %s missing", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return doc, nil
}

// Book returns the parsed package information.
func (s *Surface) Book() Book {
	return s.book
}

// OnRelocated registers the callback fired after every successful display.
func (s *Surface) OnRelocated(fn func(position string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relocated = fn
}

// OnRendered registers the callback fired when a spine item is laid out.
func (s *Surface) OnRendered(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendered = fn
}

// Ready reports whether content can be displayed. Parsing happens in Open, so
// the surface is ready unless ctx is already done.
func (s *Surface) Ready(ctx context.Context) error {
	return ctx.Err()
}

// Display moves the surface to rng.
func (s *Surface) Display(ctx context.Context, rng string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.validate(rng); err != nil {
		return err
	}

	s.mu.Lock()
	s.position = rng
	relocated := s.relocated
	rendered := s.rendered
	s.mu.Unlock()

	s.log.Debug("displayed", zap.String("range", rng))
	if rendered != nil {
		rendered()
	}
	if relocated != nil {
		relocated(rng)
	}
	return nil
}

// Position returns the last displayed identifier.
func (s *Surface) Position() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// AddAnnotation implements highlight.Surface.
func (s *Surface) AddAnnotation(rng string, onActivate func()) error {
	if err := s.validate(rng); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.annotations[rng]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAnnotation, rng)
	}
	s.annotations[rng] = onActivate
	return nil
}

// RemoveAnnotation implements highlight.Surface.
func (s *Surface) RemoveAnnotation(rng string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.annotations[rng]; !exists {
		return fmt.Errorf("%w: %s", ErrNoAnnotation, rng)
	}
	delete(s.annotations, rng)
	return nil
}

// Annotations lists the annotated ranges in sorted order.
func (s *Surface) Annotations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.annotations))
	for rng := range s.annotations {
		out = append(out, rng)
	}
	sort.Strings(out)
	return out
}

// Activate simulates a click on the annotation at rng.
func (s *Surface) Activate(rng string) bool {
	s.mu.Lock()
	fn, ok := s.annotations[rng]
	s.mu.Unlock()

	if !ok {
		return false
	}
	if fn != nil {
		fn()
	}
	return true
}

func (s *Surface) validate(rng string) error {
	if _, ok := cfi.Split(rng); !ok {
		return fmt.Errorf("%w: malformed identifier %q", ErrRejected, rng)
	}
	idx, ok := cfi.SpineIndex(rng)
	if !ok || idx >= len(s.book.Spine) {
		return fmt.Errorf("%w: %q is outside the spine", ErrRejected, rng)
	}
	return nil
}
