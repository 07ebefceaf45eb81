package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"spe/internal/logging"
	"spe/internal/panel"
	"spe/internal/secret"
	"spe/internal/service"
)

// Server is the MCP tool server over the state handler. It is the
// collaborator surface: everything a page editor UI would call is a tool.
type Server struct {
	mcp     *server.MCPServer
	state   *service.StateHandler
	secrets secret.SecretStore
	log     *logging.Logger
}

// Deps holds everything the server is built from.
type Deps struct {
	State   *service.StateHandler
	Secrets secret.SecretStore // nil disables "remember"
	Logger  *logging.Logger
	Version string
}

// New creates and configures a server with all tools, resources and prompts.
func New(deps Deps) *Server {
	s := &Server{
		state:   deps.State,
		secrets: deps.Secrets,
		log:     deps.Logger,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s.mcp = server.NewMCPServer(
		"spe-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDocumentTools()
	s.registerPanelTools()
	s.registerSessionTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCP exposes the underlying server, mainly for tests.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Serve runs the stdio transport until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.log.Info("starting mcp stdio server")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
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

// requireString returns a non-empty string argument.
func requireString(req mcp.CallToolRequest, key string) (string, error) {
	v := req.GetString(key, "")
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// panelFor looks up a live panel of the active document and checks its type.
func panelFor[T panel.Panel](s *Server, req mcp.CallToolRequest, typeName string) (T, error) {
	var zero T
	id, err := requireString(req, "panelId")
	if err != nil {
		return zero, err
	}
	p, err := s.state.Panel(id)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("panel %s is a %s panel, not %s", id, p.Type(), typeName)
	}
	return typed, nil
}

func boolPtr(b bool) *bool { return &b }
