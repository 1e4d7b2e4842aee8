package flags

import (
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

var readClipboard = clipboard.ReadAll

func AddPaste(cmd *cobra.Command) {
	cmd.Flags().
		Bool("paste", false, "Read the input text from the clipboard.")
}

// HandlePaste returns the clipboard contents when --paste is set.
func HandlePaste(cmd *cobra.Command) (string, bool, error) {
	paste, err := cmd.Flags().GetBool("paste")
	if err != nil || !paste {
		return "", false, err
	}

	content, err := readClipboard()
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(content), true, nil
}
