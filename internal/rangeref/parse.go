package rangeref

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/Paintersrp/ebref/internal/pathutil"
)

// DocumentExt is the extension of documents that carry range references.
const DocumentExt = ".epub"

// Kind tags the shape of a raw link target.
type Kind int

const (
	// KindOther is link text that is not a range reference.
	KindOther Kind = iota
	// KindPath is "path#rangeref=TOKEN".
	KindPath
	// KindDeepLink is a URI carrying the document in its file query parameter.
	KindDeepLink
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindDeepLink:
		return "deeplink"
	default:
		return "other"
	}
}

// Target is a raw link target tagged with its shape.
type Target struct {
	Kind Kind
	Text string
}

// Ref is the parsed form of a range reference.
type Ref struct {
	Path  string
	Token string
}

// tokenPattern matches the key only at the start of the text or after a
// separator, so keys such as "norangeref=" are not mistaken for it.
var tokenPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_-])rangeref=([A-Za-z0-9_-]+)`)

// Classify tags raw link text. Wikilink decoration ("[[", "]]", "|label" and a
// leading "!") is removed first.
func Classify(raw string) Target {
	text := stripWikiDecoration(raw)
	if text == "" {
		return Target{Kind: KindOther, Text: text}
	}

	if strings.Contains(text, "://") {
		if u, err := url.Parse(text); err == nil && u.Scheme != "" && u.Query().Get("file") != "" {
			return Target{Kind: KindDeepLink, Text: text}
		}
		return Target{Kind: KindOther, Text: text}
	}

	if strings.Contains(text, "#") {
		return Target{Kind: KindPath, Text: text}
	}

	return Target{Kind: KindOther, Text: text}
}

// Parse extracts the document path and token from raw link text. It never fails;
// text that is not a range reference yields ok == false.
func Parse(raw string) (Ref, bool) {
	return parseTarget(Classify(raw))
}

// DocumentPath returns the document path a deep link points at, or the text
// itself for every other shape. The fragment is preserved.
func (t Target) DocumentPath() string {
	if t.Kind != KindDeepLink {
		return t.Text
	}
	unwrapped, ok := unwrapDeepLink(t.Text)
	if !ok {
		return t.Text
	}
	return unwrapped
}

// Tokens returns every token embedded in text, in order of appearance.
func Tokens(text string) []string {
	matches := tokenPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, m[1])
	}
	return tokens
}

func parseTarget(t Target) (Ref, bool) {
	switch t.Kind {
	case KindDeepLink:
		unwrapped, ok := unwrapDeepLink(t.Text)
		if !ok {
			return Ref{}, false
		}
		return parsePath(unwrapped)
	case KindPath:
		return parsePath(t.Text)
	default:
		return Ref{}, false
	}
}

func parsePath(text string) (Ref, bool) {
	hash := strings.Index(text, "#")
	if hash < 0 {
		return Ref{}, false
	}

	p := text[:hash]
	if !strings.HasSuffix(strings.ToLower(p), DocumentExt) {
		return Ref{}, false
	}

	m := tokenPattern.FindStringSubmatch(text[hash+1:])
	if m == nil {
		return Ref{}, false
	}

	normalized := pathutil.NormalizeKey(p)
	if normalized == "" {
		return Ref{}, false
	}

	return Ref{Path: normalized, Token: m[1]}, true
}

func unwrapDeepLink(text string) (string, bool) {
	u, err := url.Parse(text)
	if err != nil {
		return "", false
	}

	file := u.Query().Get("file")
	if file == "" {
		return "", false
	}
	if u.Fragment == "" {
		return file, true
	}
	return file + "#" + u.Fragment, true
}

func stripWikiDecoration(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "!")
	if strings.HasPrefix(text, "[[") && strings.HasSuffix(text, "]]") {
		text = text[2 : len(text)-2]
		if pipe := strings.Index(text, "|"); pipe >= 0 {
			text = text[:pipe]
		}
	}
	if strings.HasPrefix(text, "<") && strings.HasSuffix(text, ">") {
		text = text[1 : len(text)-1]
	}
	return strings.TrimSpace(text)
}
