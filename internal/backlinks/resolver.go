// Package backlinks turns the vault-wide note link index into the set of
// highlights that reference one document.
package backlinks

import (
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/Paintersrp/ebref/internal/cache"
	"github.com/Paintersrp/ebref/internal/rangeref"
)

// DefaultLimit bounds a single resolve pass.
const DefaultLimit = 200

const decodeCacheSize = 1024

// Link is one entry of a note's structured link list.
type Link struct {
	OriginalText   string
	DisplayLabel   string
	ResolvedTarget string
}

// NoteIndex is the read-only view of the vault link index the resolver needs.
// Paths are normalized and vault-relative.
type NoteIndex interface {
	// Notes lists every indexed note in iteration order.
	Notes() []string
	// ResolvedTargets lists the files a note links to.
	ResolvedTargets(note string) []string
	// Links returns the note's structured links and embeds.
	Links(note string) []Link
}

// Descriptor is a renderer-ready highlight: a range, the note that references it
// and the label to show.
type Descriptor struct {
	Range      string
	SourceNote string
	Label      string
}

// Resolver resolves backlinks, memoizing token decodes across passes.
type Resolver struct {
	decoded *cache.LRUCache[string, string]
	log     *zap.Logger
}

// NewResolver constructs a resolver. A nil logger disables logging.
func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		decoded: cache.NewLRUCache[string, string](decodeCacheSize),
		log:     log,
	}
}

// Resolve returns at most limit descriptors for document. A limit of zero or
// less uses DefaultLimit. Ordering follows the index's note order and is not
// meaningful to callers.
func (r *Resolver) Resolve(document string, idx NoteIndex, limit int) []Descriptor {
	if idx == nil || document == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	candidates := r.candidates(document, idx)
	if len(candidates) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	out := make([]Descriptor, 0)

	for _, note := range candidates {
		for _, link := range idx.Links(note) {
			// Same-name documents in other folders resolve elsewhere.
			if link.ResolvedTarget != document {
				continue
			}

			for _, token := range rangeref.Tokens(link.OriginalText) {
				if _, dup := seen[token]; dup {
					continue
				}

				rng, ok := r.decode(token)
				if !ok {
					r.log.Debug("dropping malformed reference",
						zap.String("note", note), zap.String("token", token))
					continue
				}

				seen[token] = struct{}{}
				out = append(out, Descriptor{
					Range:      rng,
					SourceNote: note,
					Label:      labelFor(link, note),
				})
				if len(out) >= limit {
					return out
				}
			}
		}
	}

	return out
}

func (r *Resolver) candidates(document string, idx NoteIndex) []string {
	var out []string
	for _, note := range idx.Notes() {
		for _, target := range idx.ResolvedTargets(note) {
			if target == document {
				out = append(out, note)
				break
			}
		}
	}
	return out
}

func (r *Resolver) decode(token string) (string, bool) {
	if rng, hit := r.decoded.Get(token); hit {
		return rng, true
	}
	rng, err := rangeref.Decode(token)
	if err != nil {
		return "", false
	}
	r.decoded.Put(token, rng)
	return rng, true
}

func labelFor(link Link, note string) string {
	if label := strings.TrimSpace(link.DisplayLabel); label != "" {
		return label
	}
	base := path.Base(note)
	return strings.TrimSuffix(base, path.Ext(base))
}
