package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newClickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "click <index>",
		Short: "Click an actionable element by its state index",
		Args:  cobra.ExactArgs(1),
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
			return printActionResult(b.Click(ctx, index))
		},
	}
}
