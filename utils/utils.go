package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

const defaultWrapWidth = 80

var validInput = regexp.MustCompile(`^[a-zA-Z0-9-_/]+$`)

func AppendIfNotExists(slice []string, value string) []string {
	for _, v := range slice {
		if v == value {
			return slice
		}
	}
	return append(slice, value)
}

// ValidateInput splits space separated tags, dropping duplicates.
func ValidateInput(input string) ([]string, error) {
	var items []string
	for _, item := range strings.Fields(input) {
		item = strings.TrimPrefix(item, "#")
		if !validInput.MatchString(item) {
			return nil, fmt.Errorf(
				"invalid input '%s': Input must only contain alphanumeric characters, hyphens, underscores and slashes",
				item,
			)
		}
		items = AppendIfNotExists(items, item)
	}
	return items, nil
}

// RenderMarkdown renders note content for the terminal. Colour is dropped
// when plain is set.
func RenderMarkdown(content string, width int, plain bool) (string, error) {
	if width <= 0 {
		width = defaultWrapWidth
	}

	opts := []glamour.TermRendererOption{
		glamour.WithWordWrap(width),
		glamour.WithColorProfile(termenv.ANSI256),
		glamour.WithStandardStyle("dracula"),
	}
	if plain {
		opts = []glamour.TermRendererOption{
			glamour.WithWordWrap(width),
			glamour.WithColorProfile(termenv.Ascii),
			glamour.WithStandardStyle("notty"),
		}
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	return r.Render(content)
}
