package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"session-trace/internal/cli"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cli.NewRootCmd(version).ExecuteContext(ctx)
}
