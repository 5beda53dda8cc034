// Command fundwatch-mcp exposes the fundwatch server's MCP tools to clients
// that launch MCP servers over stdio.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobmcallan/fundwatch/internal/common"
)

const defaultServerURL = "http://localhost:4280"

func main() {
	serverURL := os.Getenv("FUNDWATCH_SERVER_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	level := os.Getenv("FUNDWATCH_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	// stdout carries the protocol.
	logger := common.NewLoggerWithOutput(level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := Connect(ctx, serverURL, logger)
	if err != nil {
		logger.Error().Err(err).Str("server", serverURL).Msg("Failed to reach fundwatch server")
		os.Exit(1)
	}
	defer b.Close()

	if err := b.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Stdio bridge stopped")
		os.Exit(1)
	}
}
