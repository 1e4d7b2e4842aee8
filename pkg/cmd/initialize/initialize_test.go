package initialize

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Paintersrp/ebref/internal/config"
)

func execute(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	cmd := NewCmdInit(home)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitWritesVault(t *testing.T) {
	home := t.TempDir()

	if err := config.EnsureConfigExists(home); err == nil {
		t.Fatalf("expected a fresh config to need initialising")
	}

	out, err := execute(t, home, "~/Vault", "--create")
	if err != nil {
		t.Fatalf("init returned error: %v", err)
	}
	vault := filepath.Join(home, "Vault")
	if !strings.Contains(out, vault) {
		t.Fatalf("unexpected output %q", out)
	}

	if err := config.EnsureConfigExists(home); err != nil {
		t.Fatalf("expected config to be complete, got %v", err)
	}
	cfg, err := config.Load(home)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	ws := cfg.MustWorkspace()
	if ws.VaultDir != vault || ws.VaultName != "Vault" {
		t.Fatalf("unexpected workspace %+v", ws)
	}
}

func TestInitRequiresExistingVault(t *testing.T) {
	home := t.TempDir()

	if _, err := execute(t, home); err == nil {
		t.Fatalf("expected missing vault argument to fail")
	}
	if _, err := execute(t, home, "--vault", filepath.Join(home, "missing")); err == nil {
		t.Fatalf("expected missing vault directory to fail without --create")
	}
}
