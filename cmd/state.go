package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	var includeScreenshot bool

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Collect and print the current browser state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, cleanup, err := newBrowser(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			state, err := b.GetState(ctx, includeScreenshot)
			if err != nil {
				return err
			}

			fmt.Printf("URL: %s\n", state.URL)
			fmt.Printf("Title: %s\n", state.Title)
			fmt.Printf("Viewport: %dx%d\n", state.ViewportWidth, state.ViewportHeight)
			fmt.Printf("Elements: %d\n", state.ElementCount())
			if includeScreenshot && len(state.ScreenshotBytes) > 0 {
				fmt.Printf("Screenshot: %d bytes captured\n", len(state.ScreenshotBytes))
			}
			fmt.Println()
			fmt.Println("=== Actionable Elements ===")
			fmt.Println(state.DOMText)
			return nil
		},
	}

	stateCmd.Flags().BoolVar(&includeScreenshot, "screenshot", false, "capture a screenshot along with the state")
	return stateCmd
}
