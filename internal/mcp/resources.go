package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	catalogURI    = "spe://catalog"
	panelTypesURI = "spe://panel-types"
	documentURI   = "spe://document/active"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		catalogURI,
		"Document Catalog",
		mcp.WithResourceDescription("Every document known locally"),
		mcp.WithMIMEType("application/json"),
	), s.handleCatalogResource)

	s.mcp.AddResource(mcp.NewResource(
		panelTypesURI,
		"Panel Types",
		mcp.WithMIMEType("application/json"),
	), s.handlePanelTypesResource)

	s.mcp.AddResource(mcp.NewResource(
		documentURI,
		"Active Document",
		mcp.WithResourceDescription("The open document and its panels"),
		mcp.WithMIMEType("application/json"),
	), s.handleDocumentResource)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
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

func (s *Server) handleCatalogResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(catalogURI, s.state.Catalog())
}

func (s *Server) handlePanelTypesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(panelTypesURI, s.state.PanelTypes())
}

func (s *Server) handleDocumentResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(documentURI, viewDocument(s.state))
}
