package cmd

import (
	"github.com/spf13/cobra"
)

func newScreenshotCmd() *cobra.Command {
	var fullPage bool

	screenshotCmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Capture a screenshot of the current page and print its file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, cleanup, err := newBrowser(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			return printActionResult(b.Screenshot(ctx, fullPage))
		},
	}

	screenshotCmd.Flags().BoolVar(&fullPage, "full-page", false, "capture the full scrollable page rather than just the viewport")
	return screenshotCmd
}
