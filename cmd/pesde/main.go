package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	firstSignal := false

	go func() {
		for sig := range sigChan {
			if !firstSignal {
				slog.Warn("received signal, initiating graceful shutdown", "signal", sig)
				firstSignal = true
				cancel()
			} else {
				slog.Warn("received second signal, forcing exit", "signal", sig)
				os.Exit(130)
			}
		}
	}()

	if err := executeContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
