package cmd

import (
	"github.com/spf13/cobra"
)

func newBackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "back",
		Short: "Navigate back in browser history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, cleanup, err := newBrowser(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return printActionResult(b.GoBack(ctx))
		},
	}
}

func newForwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forward",
		Short: "Navigate forward in browser history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, cleanup, err := newBrowser(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return printActionResult(b.GoForward(ctx))
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Reload the current page",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, cleanup, err := newBrowser(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return printActionResult(b.Refresh(ctx))
		},
	}
}
