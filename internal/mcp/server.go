// Package mcp exposes the execution pipeline and metadata inspector as
// Model Context Protocol tools over the official go-sdk.
//
// Tool failures the agent can correct (rejected commands, malformed
// syntax, unknown profiles) come back as IsError tool results with the
// stable error code in the text, so the model can read the code and adjust.
// System faults propagate as protocol errors.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jagadeesh52423/mongo-mcp/internal/config"
	"github.com/jagadeesh52423/mongo-mcp/internal/log"
	"github.com/jagadeesh52423/mongo-mcp/internal/metadata"
	"github.com/jagadeesh52423/mongo-mcp/internal/pipeline"
)

// Server wraps the MCP SDK server and the execution core.
type Server struct {
	mcpServer *mcp.Server
	executor  *pipeline.Executor
	inspector *metadata.Inspector
	cfg       *config.Config
	logger    log.Logger
}

// Config holds MCP server construction parameters.
type Config struct {
	Name    string
	Version string

	Executor  *pipeline.Executor
	Inspector *metadata.Inspector
	App       *config.Config
	Logger    log.Logger
}

// NewServer creates an MCP server and registers all tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Executor == nil || cfg.Inspector == nil || cfg.App == nil {
		return nil, fmt.Errorf("executor, inspector, and app config are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		executor:  cfg.Executor,
		inspector: cfg.Inspector,
		cfg:       cfg.App,
		logger:    cfg.Logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	s.logger.Debug("MCP tools registered", "server", cfg.Name)

	return s, nil
}

// Run starts the MCP server on the given transport.
// This is a blocking call that handles all MCP protocol communication.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// errorResult builds an agent-correctable error result.
func errorResult(err error) *mcp.CallToolResult {
	text := err.Error()
	if perr, ok := err.(*pipeline.Error); ok {
		text = fmt.Sprintf("Error [%s]: %s", perr.Code, perr.Message)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

// textResult builds a plain success result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
