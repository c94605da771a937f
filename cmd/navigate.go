package cmd

import (
	"github.com/spf13/cobra"
)

func newNavigateCmd() *cobra.Command {
	var noWait bool

	navigateCmd := &cobra.Command{
		Use:   "navigate <url>",
		Short: "Navigate to a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, cleanup, err := newBrowser(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			return printActionResult(b.Navigate(ctx, args[0], !noWait))
		},
	}

	navigateCmd.Flags().BoolVar(&noWait, "no-wait", false, "do not wait for the load event")
	return navigateCmd
}
