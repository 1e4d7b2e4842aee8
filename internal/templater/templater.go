// Package templater renders the note templates used for excerpts.
package templater

import (
	"bytes"
	"embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/Paintersrp/ebref/internal/constants"
)

//go:embed templates
var embeddedTemplates embed.FS

// ErrTemplateNotFound is returned by Execute for unknown template names.
var ErrTemplateNotFound = errors.New("template not found")

type SingleTemplate struct {
	FilePath string
	Content  string
}

type TemplateMap map[string]SingleTemplate

// Templater manages a collection of templates.
type Templater struct {
	templates TemplateMap
}

// TemplateData is passed to templates during rendering.
type TemplateData struct {
	Title    string
	Date     string
	Document string
	Link     string
	Quote    string
	Content  string
	Tags     []string
}

// QuoteLines splits the quoted selection into lines for block quoting.
func (d TemplateData) QuoteLines() []string {
	quote := strings.TrimSpace(strings.ReplaceAll(d.Quote, "\r\n", "\n"))
	if quote == "" {
		return nil
	}
	return strings.Split(quote, "\n")
}

// NewTemplater loads the embedded templates. Templates in the user template
// directory under home take precedence over embedded ones with the same name.
func NewTemplater(home string) (*Templater, error) {
	tmplMap := make(TemplateMap)

	if home != "" {
		userTemplateDir := filepath.Join(home, constants.ConfigDir, "templates")
		if _, err := os.Stat(userTemplateDir); err == nil {
			if err := tmplMap.loadTemplates(userTemplateDir); err != nil {
				return nil, err
			}
		}
	}

	if err := tmplMap.loadEmbeddedTemplates(embeddedTemplates); err != nil {
		return nil, err
	}

	return &Templater{templates: tmplMap}, nil
}

// Names lists the available templates.
func (t *Templater) Names() []string {
	names := make([]string, 0, len(t.templates))
	for name := range t.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute finds the template by name and renders it with data.
func (t *Templater) Execute(templateName string, data any) (string, error) {
	tmplData, ok := t.templates[templateName]
	if !ok {
		return "", ErrTemplateNotFound
	}

	tmpl, err := template.New(templateName).Parse(tmplData.Content)
	if err != nil {
		return "", err
	}

	var renderedTemplate bytes.Buffer
	if err := tmpl.Execute(&renderedTemplate, data); err != nil {
		return "", err
	}

	return renderedTemplate.String(), nil
}

// GenerateDate returns the timestamp written into new notes.
func (t *Templater) GenerateDate(now time.Time) string {
	return now.Format("2006-01-02 15:04")
}

func (m TemplateMap) loadEmbeddedTemplates(embeddedFS embed.FS) error {
	return fs.WalkDir(
		embeddedFS,
		"templates",
		func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if !d.IsDir() {
				name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
				if _, exists := m[name]; !exists {
					data, err := fs.ReadFile(embeddedFS, path)
					if err != nil {
						return err
					}

					m[name] = SingleTemplate{
						FilePath: path,
						Content:  string(data),
					}
				}
			}

			return nil
		},
	)
}

func (m TemplateMap) loadTemplates(dirPath string) error {
	return filepath.Walk(
		dirPath,
		func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			if !info.IsDir() && filepath.Ext(path) == ".tmpl" {
				name := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))

				if _, exists := m[name]; !exists {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					m[name] = SingleTemplate{
						FilePath: path,
						Content:  string(data),
					}
				}
			}
			return nil
		},
	)
}
