package rangeref

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// MaxLabelLength caps sanitized labels, ellipsis included.
const MaxLabelLength = 60

const ellipsis = "..."

// Link is a cross reference from a note to a range of a document.
type Link struct {
	Document string
	Token    string
	Label    string
}

// NewLink encodes rng and sanitizes label for embedding in note text.
func NewLink(document, rng, label string) Link {
	return NewLinkLimit(document, rng, label, MaxLabelLength)
}

// NewLinkLimit is NewLink with the label capped at max runes. A non-positive
// max means MaxLabelLength.
func NewLinkLimit(document, rng, label string, max int) Link {
	return Link{
		Document: document,
		Token:    Encode(rng),
		Label:    LimitLabel(label, max),
	}
}

// Target returns the bare link target, e.g. "Books/Novel.epub#rangeref=abc".
func (l Link) Target() string {
	return l.Document + "#" + FragmentKey + l.Token
}

// Wiki renders the link as a wikilink.
func (l Link) Wiki() string {
	if l.Label == "" {
		return "[[" + l.Target() + "]]"
	}
	return "[[" + l.Target() + "|" + l.Label + "]]"
}

// Markdown renders the link as an inline Markdown link. The destination is
// wrapped in angle brackets so paths containing spaces survive.
func (l Link) Markdown() string {
	label := l.Label
	if label == "" {
		label = l.Document
	}
	return fmt.Sprintf("[%s](<%s>)", label, l.Target())
}

// DeepLink renders the link as a URI with the document in the file parameter.
func (l Link) DeepLink(scheme, vault string) string {
	q := url.Values{}
	if vault != "" {
		q.Set("vault", vault)
	}
	q.Set("file", l.Document)
	return fmt.Sprintf("%s://open?%s#%s%s", scheme, q.Encode(), FragmentKey, l.Token)
}

// Format renders the link in the named style: "wiki", "markdown" or "deeplink".
// Unknown styles fall back to wiki.
func (l Link) Format(style, scheme, vault string) string {
	switch strings.ToLower(style) {
	case "markdown", "md":
		return l.Markdown()
	case "deeplink", "uri":
		return l.DeepLink(scheme, vault)
	default:
		return l.Wiki()
	}
}

// SanitizeLabel strips link syntax characters and newlines, collapses
// whitespace and caps the result at MaxLabelLength runes.
func SanitizeLabel(label string) string {
	return LimitLabel(label, MaxLabelLength)
}

// LimitLabel sanitizes label like SanitizeLabel and caps it at max runes,
// ellipsis included. A non-positive max means MaxLabelLength.
func LimitLabel(label string, max int) string {
	if max <= 0 {
		max = MaxLabelLength
	}

	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '|', '[', ']':
			return -1
		case '\n', '\r':
			return ' '
		}
		return r
	}, label)

	collapsed := strings.Join(strings.Fields(stripped), " ")
	if utf8.RuneCountInString(collapsed) <= max {
		return collapsed
	}

	runes := []rune(collapsed)
	if max <= len(ellipsis) {
		return string(runes[:max])
	}
	cut := strings.TrimSpace(string(runes[:max-len(ellipsis)]))
	return cut + ellipsis
}
