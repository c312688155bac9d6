package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/typeguard/typedsets/internal/cli"
)

var version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, finishing datasets in progress", "signal", sig)
		cancel()
	}()

	code := cli.Execute(ctx, version, os.Args[1:])

	signal.Stop(sigChan)
	cancel()
	os.Exit(code)
}
