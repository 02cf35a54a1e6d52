// Package main provides the chat API and MCP server entry point.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bull/civic-assistant/internal/app"
	"github.com/bull/civic-assistant/internal/config"
	"github.com/bull/civic-assistant/internal/httpapi"
	mcpserver "github.com/bull/civic-assistant/internal/mcp"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	assistant, err := app.NewAssistant(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize assistant: %v", err)
	}
	defer assistant.Close()

	if _, err := assistant.Status(ctx); err != nil {
		logger.Warn("index not available yet, chat will report it until ingestion runs", "error", err)
	}

	server := mcpserver.NewServer(&mcpserver.Config{Assistant: assistant})

	if cfg.Server.Mode == "stdio" {
		// Stdout belongs to the MCP protocol in this mode; logs go to stderr.
		logger.Info("Starting Civic Assistant MCP server (stdio mode)")
		if err := server.Run(ctx); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	handler := httpapi.NewHandler(httpapi.Config{
		Answerer:       assistant,
		Status:         assistant,
		MCP:            mcpserver.NewHTTPHandler(server, nil),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	addr := "0.0.0.0:" + cfg.Server.Port
	logger.Info("endpoints", "chat", "/api/chat", "health", "/health", "mcp", "/mcp")
	if err := httpapi.Serve(ctx, addr, handler, logger); err != nil {
		logger.Error("HTTP server error", "error", err)
		os.Exit(1)
	}
}
