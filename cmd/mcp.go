package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jagadeesh52423/mongo-mcp/internal/config"
	"github.com/jagadeesh52423/mongo-mcp/internal/guard"
	"github.com/jagadeesh52423/mongo-mcp/internal/mcp"
	"github.com/jagadeesh52423/mongo-mcp/internal/metadata"
	"github.com/jagadeesh52423/mongo-mcp/internal/pipeline"
	"github.com/jagadeesh52423/mongo-mcp/internal/pool"
	"github.com/jagadeesh52423/mongo-mcp/internal/sandbox"
	"github.com/jagadeesh52423/mongo-mcp/internal/security"
)

// runMCP initializes and starts the MCP server on stdio transport.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	slog.Info("starting MCP server", "version", Version)

	connPool := pool.New(pool.Config{
		MaxSize:       cfg.Pool.MaxSize,
		IdleTimeout:   cfg.Pool.IdleTimeout,
		SweepInterval: cfg.Pool.SweepInterval,
	}, logger)

	executor, err := pipeline.New(pipeline.Config{
		Pool:      connPool,
		Validator: security.NewValidator(logger),
		Evaluator: sandbox.New(logger),
		Guard: guard.New(guard.Config{
			MaxBytes:  cfg.Guard.MaxResponseBytes,
			WarnBytes: cfg.Guard.WarnResponseBytes,
			MaxItems:  cfg.Guard.MaxItems,
		}, logger),
		Logger: logger,
		Security: security.Options{
			AllowWrites: cfg.Exec.AllowWrites,
			AllowAdmin:  cfg.Exec.AllowAdmin,
		},
		DefaultDatabase:   cfg.DefaultDatabase,
		DefaultTimeout:    cfg.Exec.Timeout,
		DefaultMaxResults: cfg.Exec.MaxResults,
	})
	if err != nil {
		return fmt.Errorf("initializing executor: %w", err)
	}
	defer func() {
		if closeErr := executor.Shutdown(context.Background()); closeErr != nil {
			slog.Warn("shutdown error", "error", closeErr)
		}
	}()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Name:      "mongo-mcp",
		Version:   Version,
		Executor:  executor,
		Inspector: metadata.New(connPool, logger),
		App:       cfg,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	slog.Info("MCP server ready", "name", "mongo-mcp", "version", Version, "transport", "stdio")

	if err := mcpServer.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	slog.Info("MCP server shut down gracefully")
	return nil
}
