package search

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/ebref/internal/backlinks"
	"github.com/Paintersrp/ebref/internal/pathutil"
	"github.com/Paintersrp/ebref/internal/rangeref"
)

type document struct {
	Path        string
	Tags        []string
	FrontMatter map[string][]string
	Links       []rawLink
}

// Index stores the link graph of the notes in a vault along with the set of
// documents those notes may point at. All keys are vault-relative paths in
// pathutil.NormalizeKey form.
type Index struct {
	root  string
	cfg   Config
	docs  map[string]document
	files map[string]struct{}
	// aliases maps lowercase identifiers (relative paths, basenames, and
	// stemmed names) to their canonical key.
	aliases  map[string]string
	resolved map[string][]backlinks.Link
	targets  map[string][]string
	order    []string
}

var _ backlinks.NoteIndex = (*Index)(nil)

// NewIndex constructs an empty index rooted at the provided directory.
func NewIndex(root string, cfg Config) *Index {
	if len(cfg.DocumentExts) == 0 {
		cfg.DocumentExts = []string{rangeref.DocumentExt}
	}
	return &Index{
		root:     filepath.Clean(root),
		cfg:      cfg,
		docs:     make(map[string]document),
		files:    make(map[string]struct{}),
		aliases:  make(map[string]string),
		resolved: make(map[string][]backlinks.Link),
		targets:  make(map[string][]string),
	}
}

// Build replaces the index contents using the provided note and document paths.
func (idx *Index) Build(paths []string) error {
	idx.docs = make(map[string]document, len(paths))
	idx.files = make(map[string]struct{})
	for _, p := range paths {
		key := idx.normalize(p)
		if key == "" || idx.shouldIgnore(key) {
			continue
		}

		switch {
		case isNote(key):
			doc, err := idx.loadDocument(key)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return fmt.Errorf("search: indexing %s: %w", key, err)
			}
			idx.docs[key] = doc
		case idx.isDocument(key):
			idx.files[key] = struct{}{}
		}
	}
	idx.refreshMetadata()
	return nil
}

// Update refreshes the indexed representation of the provided path.
//
// The method gracefully handles files that have been removed and ignores
// paths that fall under configured ignore rules.
func (idx *Index) Update(p string) error {
	if idx == nil {
		return nil
	}

	key := idx.normalize(p)
	if key == "" {
		return nil
	}

	if idx.shouldIgnore(key) {
		return idx.Remove(key)
	}

	switch {
	case isNote(key):
		doc, err := idx.loadDocument(key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return idx.Remove(key)
			}
			return fmt.Errorf("search: indexing %s: %w", key, err)
		}
		idx.docs[key] = doc
	case idx.isDocument(key):
		if _, err := os.Stat(idx.absolute(key)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return idx.Remove(key)
			}
			return fmt.Errorf("search: stat %s: %w", key, err)
		}
		idx.files[key] = struct{}{}
	default:
		return nil
	}

	idx.refreshMetadata()
	return nil
}

// Remove deletes the provided path from the index if present. Removing a
// folder drops everything below it.
func (idx *Index) Remove(p string) error {
	if idx == nil {
		return nil
	}

	key := idx.normalize(p)
	if key == "" {
		return nil
	}

	changed := false
	for existing := range idx.docs {
		if existing == key || hasPrefix(existing, key) {
			delete(idx.docs, existing)
			changed = true
		}
	}
	for existing := range idx.files {
		if existing == key || hasPrefix(existing, key) {
			delete(idx.files, existing)
			changed = true
		}
	}

	if changed {
		idx.refreshMetadata()
	}
	return nil
}

// Clone returns an independent copy of the index. Loaded documents are
// immutable, so only the lookup tables are copied.
func (idx *Index) Clone() *Index {
	if idx == nil {
		return nil
	}

	clone := NewIndex(idx.root, idx.cfg)
	for k, v := range idx.docs {
		clone.docs[k] = v
	}
	for k := range idx.files {
		clone.files[k] = struct{}{}
	}
	for k, v := range idx.aliases {
		clone.aliases[k] = v
	}
	for k, v := range idx.resolved {
		clone.resolved[k] = v
	}
	for k, v := range idx.targets {
		clone.targets[k] = v
	}
	clone.order = append([]string(nil), idx.order...)
	return clone
}

// Notes lists indexed notes in sorted order.
func (idx *Index) Notes() []string {
	return append([]string(nil), idx.order...)
}

// ResolvedTargets lists the notes and documents a note links to.
func (idx *Index) ResolvedTargets(note string) []string {
	return idx.targets[note]
}

// Links returns the note's structured links with resolved targets.
func (idx *Index) Links(note string) []backlinks.Link {
	return idx.resolved[note]
}

// Documents lists the known document files in sorted order.
func (idx *Index) Documents() []string {
	out := make([]string, 0, len(idx.files))
	for key := range idx.files {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// HasDocument reports whether key is a known document.
func (idx *Index) HasDocument(key string) bool {
	_, ok := idx.files[pathutil.NormalizeKey(key)]
	return ok
}

// ResolveDocument maps a loosely written document reference (base name, stem,
// different case) to its canonical key.
func (idx *Index) ResolveDocument(ref string) (string, bool) {
	resolved := idx.resolveAlias(pathutil.NormalizeKey(ref))
	if resolved == "" {
		return "", false
	}
	if _, ok := idx.files[resolved]; !ok {
		return "", false
	}
	return resolved, true
}

// Metadata returns shallow copies of the metadata for indexed notes.
func (idx *Index) Metadata() []Metadata {
	out := make([]Metadata, 0, len(idx.docs))
	for _, key := range idx.order {
		doc := idx.docs[key]
		out = append(out, Metadata{
			Path:        doc.Path,
			Tags:        append([]string(nil), doc.Tags...),
			FrontMatter: cloneMetadata(doc.FrontMatter),
			LinkCount:   len(doc.Links),
		})
	}
	return out
}

func (idx *Index) refreshMetadata() {
	idx.aliases = idx.buildAliases()
	idx.computeRelationships()
}

func (idx *Index) normalize(p string) string {
	cleaned := filepath.Clean(p)
	if cleaned == "." || cleaned == "" {
		return ""
	}
	if filepath.IsAbs(cleaned) {
		rel, err := pathutil.VaultRelative(idx.root, cleaned)
		if err != nil || strings.HasPrefix(rel, "..") {
			return ""
		}
		cleaned = rel
	}
	return pathutil.NormalizeKey(cleaned)
}

func (idx *Index) absolute(key string) string {
	return filepath.Join(idx.root, filepath.FromSlash(key))
}

func (idx *Index) isDocument(key string) bool {
	ext := path.Ext(key)
	for _, want := range idx.cfg.DocumentExts {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func isNote(key string) bool {
	return strings.EqualFold(path.Ext(key), ".md")
}

func hasPrefix(key, dir string) bool {
	_, ok := pathutil.HasPathPrefix(key, dir)
	return ok
}

func (idx *Index) computeRelationships() {
	order := make([]string, 0, len(idx.docs))
	resolved := make(map[string][]backlinks.Link, len(idx.docs))
	targets := make(map[string][]string, len(idx.docs))

	for key, doc := range idx.docs {
		order = append(order, key)

		links := make([]backlinks.Link, 0, len(doc.Links))
		set := make(map[string]struct{})
		for _, raw := range doc.Links {
			target := idx.resolveLink(key, raw.Target)
			links = append(links, backlinks.Link{
				OriginalText:   raw.Original,
				DisplayLabel:   raw.Label,
				ResolvedTarget: target,
			})
			if target != "" && target != key {
				set[target] = struct{}{}
			}
		}
		resolved[key] = links
		if len(set) > 0 {
			targets[key] = setToSortedSlice(set)
		}
	}

	sort.Strings(order)
	idx.order = order
	idx.resolved = resolved
	idx.targets = targets
}

func (idx *Index) buildAliases() map[string]string {
	aliases := make(map[string]string, (len(idx.docs)+len(idx.files))*3)
	for key := range idx.docs {
		addAlias(aliases, key, key)
		addAlias(aliases, path.Base(key), key)
	}
	for key := range idx.files {
		addAlias(aliases, key, key)
		addAlias(aliases, path.Base(key), key)
	}
	return aliases
}

func addAlias(aliases map[string]string, candidate, key string) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return
	}
	normalized := strings.ToLower(candidate)
	if _, taken := aliases[normalized]; !taken || normalized == strings.ToLower(key) {
		aliases[normalized] = key
	}

	if ext := path.Ext(normalized); ext != "" {
		stem := strings.TrimSuffix(normalized, ext)
		if _, taken := aliases[stem]; stem != "" && !taken {
			aliases[stem] = key
		}
	}
}

func (idx *Index) resolveAlias(p string) string {
	if len(idx.aliases) == 0 {
		return ""
	}
	normalized := strings.ToLower(p)
	if normalized == "" {
		return ""
	}
	if resolved, ok := idx.aliases[normalized]; ok {
		return resolved
	}
	if ext := path.Ext(normalized); ext != "" {
		stem := strings.TrimSuffix(normalized, ext)
		if resolved, ok := idx.aliases[stem]; ok {
			return resolved
		}
	}
	return ""
}

func (idx *Index) resolveLink(sourcePath, link string) string {
	if len(idx.aliases) == 0 {
		return ""
	}

	cleaned := strings.TrimSpace(rangeref.Classify(link).DocumentPath())
	if cleaned == "" {
		return ""
	}

	if hash := strings.Index(cleaned, "#"); hash >= 0 {
		cleaned = cleaned[:hash]
	}

	lowered := strings.ToLower(cleaned)
	if strings.Contains(lowered, "://") || strings.HasPrefix(lowered, "mailto:") {
		return ""
	}

	if unescaped, err := url.PathUnescape(cleaned); err == nil {
		cleaned = unescaped
	}

	cleaned = pathutil.NormalizeKey(cleaned)
	if cleaned == "" {
		return ""
	}

	if resolved := idx.resolveAlias(cleaned); resolved != "" {
		return resolved
	}

	if relative := resolveRelativeLink(sourcePath, cleaned); relative != "" {
		if resolved := idx.resolveAlias(relative); resolved != "" {
			return resolved
		}
	}
	return ""
}

func resolveRelativeLink(sourcePath, link string) string {
	if sourcePath == "" || link == "" {
		return ""
	}
	joined := pathutil.NormalizeKey(path.Join(path.Dir(sourcePath), link))
	if strings.HasPrefix(joined, "..") {
		return ""
	}
	return joined
}

func (idx *Index) shouldIgnore(key string) bool {
	for _, segment := range strings.Split(key, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
		for _, ignored := range idx.cfg.IgnoredFolders {
			if ignored == "" {
				continue
			}
			if strings.EqualFold(segment, ignored) {
				return true
			}
		}
	}
	return false
}

func (idx *Index) loadDocument(key string) (document, error) {
	data, err := os.ReadFile(idx.absolute(key))
	if err != nil {
		return document{}, err
	}

	fm, body := splitFrontMatter(data)
	parsed, tags, err := parseFrontMatter(fm)
	if err != nil {
		return document{}, fmt.Errorf("parse front matter: %w", err)
	}

	return document{
		Path:        key,
		Tags:        tags,
		FrontMatter: parsed,
		Links:       extractLinks(body),
	}, nil
}

func setToSortedSlice(values map[string]struct{}) []string {
	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func cloneMetadata(values map[string][]string) map[string][]string {
	if len(values) == 0 {
		return nil
	}

	cloned := make(map[string][]string, len(values))
	for key, vals := range values {
		cloned[key] = append([]string(nil), vals...)
	}
	return cloned
}

var frontMatterRe = regexp.MustCompile(`(?ms)^---\s*\n(.*?)\n---\s*\n?`)

func splitFrontMatter(data []byte) ([]byte, []byte) {
	loc := frontMatterRe.FindSubmatchIndex(data)
	if len(loc) < 4 || loc[0] != 0 {
		return nil, data
	}
	return data[loc[2]:loc[3]], data[loc[1]:]
}

func parseFrontMatter(fm []byte) (map[string][]string, []string, error) {
	result := make(map[string][]string)
	var tags []string
	if len(fm) == 0 {
		return result, tags, nil
	}

	var data yaml.Node
	if err := yaml.Unmarshal(fm, &data); err != nil {
		return nil, nil, err
	}

	if data.Kind != yaml.DocumentNode || len(data.Content) == 0 {
		return result, tags, nil
	}

	mapping := data.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return result, tags, nil
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		values := flattenYAMLValue(mapping.Content[i+1])
		result[key] = values
		if key == "tags" {
			tags = values
		}
	}

	return result, tags, nil
}

func flattenYAMLValue(node *yaml.Node) []string {
	switch node.Kind {
	case yaml.SequenceNode:
		vals := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			vals = append(vals, child.Value)
		}
		return vals
	case yaml.ScalarNode:
		return []string{node.Value}
	default:
		return nil
	}
}
