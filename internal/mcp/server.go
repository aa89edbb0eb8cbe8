package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/service"
)

// Service is the part of the CRUD service exposed to agents.
type Service interface {
	Read(ctx context.Context, req service.ReadRequest) (service.Result, error)
	Update(ctx context.Context, req service.UpdateRequest) (service.Result, error)
	Insert(ctx context.Context, req service.InsertRequest) (service.Result, error)
	Delete(ctx context.Context, req service.DeleteRequest) (service.Result, error)
	Search(ctx context.Context, req service.SearchRequest) service.SearchResult
	Predict(column, value string) domain.Prediction
	Info() service.Info
	History(limit int) ([]domain.Operation, error)
}

// Server is the MCP server for the sheet locator.
// It exposes tools, resources, and prompts so AI agents can work with the
// datasets by column name alone.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates and configures a new MCP server with all tools and resources.
func New(svc Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"sheetlocator-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerCrudTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }
