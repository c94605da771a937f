// Command browseragent is the CLI front door over internal/facade.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cdpscope/browseragent/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	os.Exit(cmd.ExitCodeFor(ctx, err))
}
