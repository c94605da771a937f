package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

func newKeyCmd() *cobra.Command {
	var modifiers string

	keyCmd := &cobra.Command{
		Use:   "key <key>",
		Short: "Press a keyboard key, e.g. Enter, Escape, Tab, a",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, cleanup, err := newBrowser(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var mods []string
			if modifiers != "" {
				mods = strings.Split(modifiers, ",")
			}
			return printActionResult(b.PressKey(ctx, args[0], mods))
		},
	}

	keyCmd.Flags().StringVar(&modifiers, "modifiers", "", "comma-separated modifiers: ctrl,alt,shift,meta")
	return keyCmd
}
