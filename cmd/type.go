package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newTypeCmd() *cobra.Command {
	var noClear bool

	typeCmd := &cobra.Command{
		Use:   "type <index> <text>",
		Short: "Type text into an actionable element by its state index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer: %w", err)
			}

			ctx := cmd.Context()
			b, cleanup, err := newBrowser(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := b.GetState(ctx, false); err != nil {
				return err
			}
			return printActionResult(b.Type(ctx, index, args[1], !noClear))
		},
	}

	typeCmd.Flags().BoolVar(&noClear, "no-clear", false, "do not clear existing text before typing")
	return typeCmd
}
