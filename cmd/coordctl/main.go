// Command coordctl drives the coordination primitives from the shell.
//
// Every flag can also be set through a COORD_ prefixed environment variable
// (COORD_ENDPOINTS, COORD_LOCK_EXPIRY, ...) or a .env file in the working
// directory.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
