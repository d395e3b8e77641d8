package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	mcpadapter "github.com/kirillkom/product-search-assistant/internal/adapters/mcp"
	"github.com/kirillkom/product-search-assistant/internal/bootstrap"
	"github.com/kirillkom/product-search-assistant/internal/config"
	"github.com/kirillkom/product-search-assistant/internal/observability/logging"
)

// Logs go to stderr: stdout carries the MCP protocol.
func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		slog.Warn("dotenv_load_failed", "error", envErr)
	}

	app := bootstrap.NewMCP(cfg)
	defer app.Close()

	if err := app.Assistant.Initialize(context.Background()); err != nil {
		slog.Warn("assistant_warmup_failed", "error", err)
	}

	if err := mcpadapter.NewServer(app.Assistant).ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
