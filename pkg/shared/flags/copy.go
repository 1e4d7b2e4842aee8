package flags

import (
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

var writeClipboard = clipboard.WriteAll

func AddCopy(cmd *cobra.Command) {
	cmd.Flags().BoolP("copy", "c", false, "Copy the result to the clipboard")
}

// HandleCopy copies text when --copy is set and reports whether it did.
func HandleCopy(cmd *cobra.Command, text string) (bool, error) {
	copyFlag, err := cmd.Flags().GetBool("copy")
	if err != nil || !copyFlag {
		return false, err
	}
	if err := writeClipboard(text); err != nil {
		return false, err
	}
	return true, nil
}
