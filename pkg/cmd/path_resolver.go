package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Paintersrp/ebref/internal/pathutil"
	"github.com/Paintersrp/ebref/internal/state"
)

// ResolveVaultPath maps arg, absolute or relative to the vault, to an absolute
// path inside the vault.
func ResolveVaultPath(s *state.State, arg string) (string, error) {
	if s == nil || s.Config == nil {
		return "", fmt.Errorf("state configuration is not initialized")
	}
	vaultDir := filepath.Clean(s.Config.MustWorkspace().VaultDir)
	if vaultDir == "" || vaultDir == "." {
		return "", fmt.Errorf("vault directory is not configured")
	}
	if strings.TrimSpace(arg) == "" {
		return "", fmt.Errorf("a path argument is required")
	}

	var resolved string
	if filepath.IsAbs(arg) {
		resolved = filepath.Clean(arg)
	} else {
		resolved = filepath.Join(vaultDir, filepath.FromSlash(strings.ReplaceAll(arg, "\\", "/")))
	}

	if err := ensureWithinVault(vaultDir, resolved); err != nil {
		return "", err
	}

	return resolved, nil
}

// ResolveDocument returns the absolute path and the normalized vault key of a
// document. Names that do not exist on disk are looked up in the link index,
// so "Novel.epub" finds "books/Novel.epub".
func ResolveDocument(s *state.State, arg string) (string, string, error) {
	resolved, err := ResolveVaultPath(s, arg)
	if err != nil {
		return "", "", err
	}

	if _, statErr := os.Stat(resolved); statErr != nil {
		if s.Index == nil {
			return "", "", statErr
		}
		snapshot, idxErr := s.Index.AcquireSnapshot()
		if idxErr != nil {
			return "", "", fmt.Errorf("document %q not found: %w", arg, idxErr)
		}
		key, ok := snapshot.ResolveDocument(arg)
		if !ok {
			return "", "", fmt.Errorf("document %q not found in vault", arg)
		}
		resolved = filepath.Join(filepath.Clean(s.Vault), filepath.FromSlash(key))
	}

	rel, err := pathutil.VaultRelative(s.Vault, resolved)
	if err != nil {
		return "", "", err
	}
	return resolved, pathutil.NormalizeKey(rel), nil
}

func ensureWithinVault(vaultDir, resolved string) error {
	rel, err := filepath.Rel(vaultDir, resolved)
	if err != nil {
		return fmt.Errorf("failed to resolve path %q relative to vault %q: %w", resolved, vaultDir, err)
	}

	if rel == "." {
		return nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q is outside the vault %q", resolved, vaultDir)
	}

	return nil
}
