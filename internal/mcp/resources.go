package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	infoURI    = "sheetlocator://info"
	historyURI = "sheetlocator://history"
)

func (s *Server) registerResources() {
	// ── sheetlocator://info ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		infoURI,
		"Loaded Datasets",
		mcp.WithMIMEType("application/json"),
	), s.handleInfoResource)

	// ── sheetlocator://history ─────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		historyURI,
		"Recent Operations",
		mcp.WithMIMEType("application/json"),
	), s.handleHistoryResource)
}

func (s *Server) handleInfoResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(infoURI, s.svc.Info())
}

func (s *Server) handleHistoryResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	ops, err := s.svc.History(0)
	if err != nil {
		return nil, err
	}
	return jsonContents(historyURI, ops)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
