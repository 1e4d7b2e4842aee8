// Package cfi performs the few structural operations needed on EPUB canonical
// fragment identifiers. Everything else about a CFI is left to the renderer.
package cfi

import (
	"strconv"
	"strings"
)

const (
	prefix = "epubcfi("
	suffix = ")"
)

// Parts is a CFI split at its top-level commas. Start and End are empty for
// point identifiers.
type Parts struct {
	Parent string
	Start  string
	End    string
}

// IsRange reports whether the identifier has decomposable start and end points.
func (p Parts) IsRange() bool {
	return p.Start != "" && p.End != ""
}

// Split parses "epubcfi(P,S,E)" or "epubcfi(P)". Commas escaped with '^' or
// inside [...] assertions are not separators.
func Split(id string) (Parts, bool) {
	body, ok := unwrap(id)
	if !ok || body == "" {
		return Parts{}, false
	}

	fields := splitTopLevel(body)
	switch len(fields) {
	case 1:
		return Parts{Parent: fields[0]}, true
	case 3:
		if fields[0] == "" || fields[1] == "" || fields[2] == "" {
			return Parts{}, false
		}
		return Parts{Parent: fields[0], Start: fields[1], End: fields[2]}, true
	default:
		return Parts{}, false
	}
}

// StartAnchor returns the point identifier for the start of a range. ok is
// false when id is not a range.
func StartAnchor(id string) (string, bool) {
	parts, ok := Split(id)
	if !ok || !parts.IsRange() {
		return "", false
	}
	return prefix + parts.Parent + parts.Start + suffix, true
}

// SpineIndex returns the zero-based spine item addressed by the identifier's
// second step ("/6/N" addresses item N/2-1).
func SpineIndex(id string) (int, bool) {
	parts, ok := Split(id)
	if !ok {
		return 0, false
	}

	steps := strings.SplitN(parts.Parent, "!", 2)[0]
	segments := strings.Split(strings.TrimPrefix(steps, "/"), "/")
	if len(segments) < 2 {
		return 0, false
	}

	n, err := strconv.Atoi(stripAssertion(segments[1]))
	if err != nil || n < 2 || n%2 != 0 {
		return 0, false
	}
	return n/2 - 1, true
}

func unwrap(id string) (string, bool) {
	trimmed := strings.TrimSpace(id)
	if !strings.HasPrefix(trimmed, prefix) || !strings.HasSuffix(trimmed, suffix) {
		return "", false
	}
	return trimmed[len(prefix) : len(trimmed)-len(suffix)], true
}

func splitTopLevel(body string) []string {
	var (
		fields []string
		depth  int
		start  int
	)
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '^':
			i++
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				fields = append(fields, body[start:i])
				start = i + 1
			}
		}
	}
	return append(fields, body[start:])
}

func stripAssertion(step string) string {
	if i := strings.IndexByte(step, '['); i >= 0 {
		return step[:i]
	}
	return step
}
