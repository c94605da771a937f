package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSelectCmd() *cobra.Command {
	var by string

	selectCmd := &cobra.Command{
		Use:   "select <index> <value>",
		Short: "Select an option in a dropdown element by its state index",
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
			return printActionResult(b.Select(ctx, index, args[1], by))
		},
	}

	selectCmd.Flags().StringVar(&by, "by", "value", "match strategy: value, text, or index")
	return selectCmd
}
