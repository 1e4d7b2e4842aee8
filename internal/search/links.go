package search

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type rawLink struct {
	Original string
	Target   string
	Label    string
}

var (
	wikiLinkRe = regexp.MustCompile(`(!?)\[\[([^\]\n]+?)\]\]`)
	markdown   = goldmark.New()
)

// extractLinks returns the wikilinks, embeds, and markdown links of a note
// body in document order per kind.
func extractLinks(body []byte) []rawLink {
	var links []rawLink

	for _, match := range wikiLinkRe.FindAllSubmatch(body, -1) {
		inner := string(match[2])
		target, label, _ := strings.Cut(inner, "|")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		links = append(links, rawLink{
			Original: string(match[0]),
			Target:   target,
			Label:    strings.TrimSpace(label),
		})
	}

	doc := markdown.Parser().Parse(text.NewReader(body))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		var dest, label string
		switch node := n.(type) {
		case *ast.Link:
			dest = string(node.Destination)
			label = string(node.Text(body))
		case *ast.Image:
			dest = string(node.Destination)
			label = string(node.Text(body))
		case *ast.AutoLink:
			dest = string(node.URL(body))
		default:
			return ast.WalkContinue, nil
		}

		dest = strings.TrimSpace(dest)
		if dest == "" {
			return ast.WalkSkipChildren, nil
		}
		links = append(links, rawLink{
			Original: "[" + label + "](<" + dest + ">)",
			Target:   dest,
			Label:    strings.TrimSpace(label),
		})
		return ast.WalkSkipChildren, nil
	})

	return links
}
