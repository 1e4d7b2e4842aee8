package cmd

import "testing"

func TestWorkspaceOverride(t *testing.T) {
	t.Setenv("EBREF_WORKSPACE", "")

	tests := map[string]struct {
		args []string
		env  string
		want string
	}{
		"long flag":         {args: []string{"open", "--workspace", "library", "Novel.epub"}, want: "library"},
		"short flag":        {args: []string{"-w=library", "backlinks", "-n", "5"}, want: "library"},
		"unknown flags":     {args: []string{"progress", "set", "--number", "a.pdf", "3", "-w", "books"}, want: "books"},
		"environment":       {args: []string{"open", "Novel.epub"}, env: "library", want: "library"},
		"flag beats env":    {args: []string{"-w", "books"}, env: "library", want: "books"},
		"no workspace flag": {args: []string{"ref", "encode", "x"}, want: ""},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("EBREF_WORKSPACE", tc.env)
			if got := workspaceOverride(tc.args); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
