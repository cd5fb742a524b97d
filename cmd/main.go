package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oriser/tramper/cmd/run"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run.Run(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error running tramper: %v", err)
		os.Exit(1)
	}
}
