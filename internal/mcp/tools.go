package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jagadeesh52423/mongo-mcp/internal/pipeline"
)

// registerTools registers all tools to the MCP server.
// Tools: runCommand, listCollections, listIndexes, collectionStats,
// sampleSchema
func (s *Server) registerTools() error {
	runCommandSchema, err := jsonschema.For[RunCommandInput](nil)
	if err != nil {
		return fmt.Errorf("schema for runCommand: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "runCommand",
		Description: "Execute a MongoDB shell-style command (db.collection.find(...), aggregate, etc.). Commands are screened for safety; results are limited and size-bounded. Mutating and admin operations are blocked unless the server was configured to allow them.",
		InputSchema: runCommandSchema,
	}, s.RunCommand)

	listCollectionsSchema, err := jsonschema.For[ListCollectionsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for listCollections: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "listCollections",
		Description: "List collection names in a database, optionally narrowed by a filter document.",
		InputSchema: listCollectionsSchema,
	}, s.ListCollections)

	listIndexesSchema, err := jsonschema.For[ListIndexesInput](nil)
	if err != nil {
		return fmt.Errorf("schema for listIndexes: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "listIndexes",
		Description: "List the index specifications of a collection.",
		InputSchema: listIndexesSchema,
	}, s.ListIndexes)

	collectionStatsSchema, err := jsonschema.For[CollectionStatsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for collectionStats: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "collectionStats",
		Description: "Get storage statistics for a collection (size, document count, index sizes).",
		InputSchema: collectionStatsSchema,
	}, s.CollectionStats)

	sampleSchemaSchema, err := jsonschema.For[SampleSchemaInput](nil)
	if err != nil {
		return fmt.Errorf("schema for sampleSchema: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sampleSchema",
		Description: "Infer a collection's schema by sampling documents: field paths, observed types, and occurrence counts.",
		InputSchema: sampleSchemaSchema,
	}, s.SampleSchema)

	return nil
}

// RunCommandInput defines the input schema for the runCommand tool.
type RunCommandInput struct {
	Command    string `json:"command" jsonschema:"The shell-style command to execute, e.g. db.users.find({status: 'active'})"`
	Target     string `json:"target,omitempty" jsonschema:"Connection profile name or mongodb:// URI; the configured default is used when omitted"`
	Database   string `json:"database,omitempty" jsonschema:"Database name; the configured default is used when omitted"`
	TimeoutMs  int    `json:"timeoutMs,omitempty" jsonschema:"Evaluation timeout in milliseconds (default 30000)"`
	MaxResults int    `json:"maxResults,omitempty" jsonschema:"Result limit injected into bare cursor commands (default 100); pass -1 to disable"`
	Explain    bool   `json:"explain,omitempty" jsonschema:"Mark the call as a query-plan inspection; include an explain() clause in the command to receive the plan"`
}

// RunCommand handles the runCommand MCP tool call.
func (s *Server) RunCommand(ctx context.Context, req *mcp.CallToolRequest, input RunCommandInput) (*mcp.CallToolResult, any, error) {
	uri, err := s.cfg.ResolveTarget(input.Target)
	if err != nil {
		return errorResult(err), nil, nil
	}

	resp, err := s.executor.Execute(ctx, pipeline.Request{
		Command:    input.Command,
		Target:     uri,
		Database:   input.Database,
		Timeout:    time.Duration(input.TimeoutMs) * time.Millisecond,
		MaxResults: input.MaxResults,
		Explain:    input.Explain,
	})
	if err != nil {
		return errorResult(err), nil, nil
	}

	text := resp.Content
	if resp.WasTruncated {
		text += fmt.Sprintf(
			"\n\n[truncated: returned %d of %d items; full result was %d bytes, returned %d]",
			resp.ReturnedItems, resp.TotalItems, resp.OriginalSize, resp.FinalSize)
	}
	return textResult(text), nil, nil
}

// ListCollectionsInput defines the input schema for the listCollections tool.
type ListCollectionsInput struct {
	Target   string         `json:"target,omitempty" jsonschema:"Connection profile name or mongodb:// URI"`
	Database string         `json:"database,omitempty" jsonschema:"Database name"`
	Filter   map[string]any `json:"filter,omitempty" jsonschema:"Optional listing filter document"`
}

// ListCollections handles the listCollections MCP tool call.
func (s *Server) ListCollections(ctx context.Context, req *mcp.CallToolRequest, input ListCollectionsInput) (*mcp.CallToolResult, any, error) {
	uri, err := s.cfg.ResolveTarget(input.Target)
	if err != nil {
		return errorResult(err), nil, nil
	}

	names, err := s.inspector.ListCollections(ctx, uri, s.database(input.Database), input.Filter)
	if err != nil {
		return errorResult(err), nil, nil
	}

	return jsonResult(map[string]any{"collections": names, "count": len(names)})
}

// ListIndexesInput defines the input schema for the listIndexes tool.
type ListIndexesInput struct {
	Target     string `json:"target,omitempty" jsonschema:"Connection profile name or mongodb:// URI"`
	Database   string `json:"database,omitempty" jsonschema:"Database name"`
	Collection string `json:"collection" jsonschema:"Collection name"`
}

// ListIndexes handles the listIndexes MCP tool call.
func (s *Server) ListIndexes(ctx context.Context, req *mcp.CallToolRequest, input ListIndexesInput) (*mcp.CallToolResult, any, error) {
	uri, err := s.cfg.ResolveTarget(input.Target)
	if err != nil {
		return errorResult(err), nil, nil
	}

	indexes, err := s.inspector.ListIndexes(ctx, uri, s.database(input.Database), input.Collection)
	if err != nil {
		return errorResult(err), nil, nil
	}

	return jsonResult(map[string]any{"indexes": indexes, "count": len(indexes)})
}

// CollectionStatsInput defines the input schema for the collectionStats tool.
type CollectionStatsInput struct {
	Target     string `json:"target,omitempty" jsonschema:"Connection profile name or mongodb:// URI"`
	Database   string `json:"database,omitempty" jsonschema:"Database name"`
	Collection string `json:"collection" jsonschema:"Collection name"`
}

// CollectionStats handles the collectionStats MCP tool call.
func (s *Server) CollectionStats(ctx context.Context, req *mcp.CallToolRequest, input CollectionStatsInput) (*mcp.CallToolResult, any, error) {
	uri, err := s.cfg.ResolveTarget(input.Target)
	if err != nil {
		return errorResult(err), nil, nil
	}

	stats, err := s.inspector.CollectionStats(ctx, uri, s.database(input.Database), input.Collection)
	if err != nil {
		return errorResult(err), nil, nil
	}

	return jsonResult(stats)
}

// SampleSchemaInput defines the input schema for the sampleSchema tool.
type SampleSchemaInput struct {
	Target     string `json:"target,omitempty" jsonschema:"Connection profile name or mongodb:// URI"`
	Database   string `json:"database,omitempty" jsonschema:"Database name"`
	Collection string `json:"collection" jsonschema:"Collection name"`
	SampleSize int    `json:"sampleSize,omitempty" jsonschema:"Number of documents to sample (default 100)"`
}

// SampleSchema handles the sampleSchema MCP tool call.
func (s *Server) SampleSchema(ctx context.Context, req *mcp.CallToolRequest, input SampleSchemaInput) (*mcp.CallToolResult, any, error) {
	uri, err := s.cfg.ResolveTarget(input.Target)
	if err != nil {
		return errorResult(err), nil, nil
	}

	schema, sampled, err := s.inspector.SampleSchema(ctx, uri, s.database(input.Database), input.Collection, input.SampleSize)
	if err != nil {
		return errorResult(err), nil, nil
	}

	return jsonResult(map[string]any{"schema": schema, "sampledDocuments": sampled})
}

// database applies the configured default database.
func (s *Server) database(name string) string {
	if name != "" {
		return name
	}
	return s.cfg.DefaultDatabase
}

// jsonResult serializes v as an indented JSON tool result.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("serializing result: %w", err)
	}
	return textResult(string(data)), nil, nil
}
