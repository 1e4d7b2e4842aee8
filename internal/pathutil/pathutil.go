package pathutil

import (
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath converts Windows-style separators to the current platform's separator
// and cleans the resulting path.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}

	// Replace Windows separators and collapse redundant separators/segments.
	replaced := strings.ReplaceAll(p, "\\", "/")
	return filepath.Clean(filepath.FromSlash(replaced))
}

// NormalizeKey returns the canonical, vault-relative form of a document path used
// as a lookup key. Separator style, trailing slashes, redundant segments and
// Unicode composition all collapse to the same key.
func NormalizeKey(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return ""
	}

	replaced := strings.ReplaceAll(trimmed, "\\", "/")
	cleaned := path.Clean(replaced)
	cleaned = strings.TrimPrefix(cleaned, "./")
	cleaned = strings.Trim(cleaned, "/")
	if cleaned == "." {
		return ""
	}

	return norm.NFC.String(cleaned)
}

// HasPathPrefix reports whether key lives below the normalized prefix directory.
// The returned suffix is the remainder after "prefix/".
func HasPathPrefix(key, prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	withSlash := prefix + "/"
	if !strings.HasPrefix(key, withSlash) {
		return "", false
	}
	return strings.TrimPrefix(key, withSlash), true
}

// VaultRelative returns the path to target relative to the provided vault directory.
// The returned path always uses forward slashes to simplify downstream processing
// and ensure platform agnosticism.
func VaultRelative(vaultDir, target string) (string, error) {
	base := NormalizePath(vaultDir)
	cleanedTarget := NormalizePath(target)

	rel, err := filepath.Rel(base, cleanedTarget)
	if err != nil {
		return "", err
	}

	return filepath.ToSlash(rel), nil
}

// ExpandHome replaces a leading "~" with home and makes the result absolute.
func ExpandHome(p, home string) string {
	switch {
	case p == "~":
		p = home
	case strings.HasPrefix(p, "~/"), strings.HasPrefix(p, `~\`):
		p = filepath.Join(home, p[2:])
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
