// Package cmd provides CLI commands for mongo-mcp.
//
// Commands:
//   - mcp: Model Context Protocol server on stdio transport
//   - version: Build and configuration information
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the mongo-mcp CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "mcp":
		return runMCP()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("mongo-mcp - Safe MongoDB command execution for AI agents")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mongo-mcp mcp          Start MCP server (for Claude Desktop/Cursor)")
	fmt.Println("  mongo-mcp --version    Show version information")
	fmt.Println("  mongo-mcp --help       Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  MONGO_MCP_URI                 Default MongoDB connection URI")
	fmt.Println("  MONGO_MCP_DATABASE            Default database name")
	fmt.Println("  MONGO_MCP_ALLOW_WRITES        Allow mutating commands (default: false)")
	fmt.Println("  MONGO_MCP_ALLOW_ADMIN         Allow administrative commands (default: false)")
	fmt.Println("  MONGO_MCP_MAX_RESPONSE_BYTES  Response size ceiling in bytes")
	fmt.Println("  DEBUG                         Optional: Enable debug logging")
	fmt.Println()
	fmt.Println("Configuration file: ~/.mongo-mcp/config.yaml")
}
