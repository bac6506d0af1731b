// Command redrec creates and queries indexed records in a key-value store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/redrec/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
