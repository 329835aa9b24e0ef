package cmd

import (
	"fmt"
	"os"

	"github.com/jagadeesh52423/mongo-mcp/internal/config"
	"github.com/jagadeesh52423/mongo-mcp/internal/security"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// runVersion displays build and configuration information.
func runVersion() {
	fmt.Printf("mongo-mcp %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Configuration: unavailable (%v)\n", err)
		return
	}

	fmt.Println("Configuration:")
	if cfg.URI != "" {
		fmt.Printf("  URI: %s\n", security.MaskURI(cfg.URI))
	} else {
		fmt.Println("  URI: Not set")
	}
	fmt.Printf("  Database: %s\n", cfg.DefaultDatabase)
	fmt.Printf("  Profiles: %d\n", len(cfg.Connections))
	fmt.Printf("  Allow writes: %t\n", cfg.Exec.AllowWrites)
	fmt.Printf("  Allow admin: %t\n", cfg.Exec.AllowAdmin)
	fmt.Printf("  Pool size: %d\n", cfg.Pool.MaxSize)
	fmt.Printf("  Response limit: %d bytes\n", cfg.Guard.MaxResponseBytes)

	if cfg.URI == "" && os.Getenv("MONGO_MCP_URI") == "" {
		fmt.Println()
		fmt.Println("Hint: Set MONGO_MCP_URI or add a uri entry to ~/.mongo-mcp/config.yaml")
	}
}
