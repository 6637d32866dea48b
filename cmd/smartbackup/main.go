package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alphagoones/smartbackup/cmd/smartbackup/commands"
)

func main() {
	// A first interrupt cancels the run gracefully, a second one kills the
	// process the default way.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := commands.Execute(ctx)
	stop()
	os.Exit(code)
}
