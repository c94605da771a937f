package cmd

import (
	"github.com/spf13/cobra"
)

func newScrollCmd() *cobra.Command {
	var direction string
	var amount int

	scrollCmd := &cobra.Command{
		Use:   "scroll",
		Short: "Scroll the page",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, cleanup, err := newBrowser(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			return printActionResult(b.Scroll(ctx, direction, amount))
		},
	}

	scrollCmd.Flags().StringVar(&direction, "direction", "down", "scroll direction: up, down, left, or right")
	scrollCmd.Flags().IntVar(&amount, "amount", 500, "pixels to scroll")
	return scrollCmd
}
