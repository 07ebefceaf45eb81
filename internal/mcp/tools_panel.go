package mcpserver

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"spe/internal/plugins"
)

// actionColumns maps column names accepted by set_action_cell to indexes.
var actionColumns = map[string]int{
	"done":        plugins.ColDone,
	"description": plugins.ColDescription,
	"responsible": plugins.ColResponsible,
	"date":        plugins.ColDate,
}

// maxPictureFile bounds set_picture_file reads.
const maxPictureFile = 32 << 20

func (s *Server) registerPanelTools() {
	// ── list_panel_types ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_panel_types",
		mcp.WithDescription("List the panel types that can be added to a document"),
	), s.handleListPanelTypes)

	// ── add_panel ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_panel",
		mcp.WithDescription("Append a new empty panel to the active document"),
		mcp.WithString("type", mcp.Description("Panel type name, see list_panel_types"), mcp.Required()),
		mcp.WithString("text", mcp.Description("Initial content for a Text panel (optional)")),
	), s.handleAddPanel)

	// ── remove_panel ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("remove_panel",
		mcp.WithDescription("Remove a panel from the active document"),
		mcp.WithString("panelId", mcp.Description("Panel ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRemovePanel)

	// ── move_panel ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_panel",
		mcp.WithDescription("Move a panel one place up or down. Moving past either end is a no-op."),
		mcp.WithString("panelId", mcp.Description("Panel ID"), mcp.Required()),
		mcp.WithString("direction",
			mcp.Description("up or down"),
			mcp.Required(),
			mcp.Enum("up", "down"),
		),
	), s.handleMovePanel)

	// ── set_text ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_text",
		mcp.WithDescription("Replace the Markdown content of a Text panel"),
		mcp.WithString("panelId", mcp.Description("Panel ID"), mcp.Required()),
		mcp.WithString("text", mcp.Description("New content"), mcp.Required()),
	), s.handleSetText)

	// ── add_action_row ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_action_row",
		mcp.WithDescription("Append a row to an Action table, optionally filling it"),
		mcp.WithString("panelId", mcp.Description("Panel ID"), mcp.Required()),
		mcp.WithString("description", mcp.Description("What has to be done (optional)")),
		mcp.WithString("responsible", mcp.Description("Who does it (optional)")),
		mcp.WithString("date", mcp.Description("Due date (optional)")),
	), s.handleAddActionRow)

	// ── set_action_cell ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_action_cell",
		mcp.WithDescription("Write one cell of an Action table"),
		mcp.WithString("panelId", mcp.Description("Panel ID"), mcp.Required()),
		mcp.WithNumber("row", mcp.Description("Zero-based row index"), mcp.Required()),
		mcp.WithString("column",
			mcp.Description("Column name"),
			mcp.Required(),
			mcp.Enum("done", "description", "responsible", "date"),
		),
		mcp.WithString("value", mcp.Description("Cell value; true/false for done"), mcp.Required()),
	), s.handleSetActionCell)

	// ── remove_action_row ──────────────────────────────
	s.mcp.AddTool(mcp.NewTool("remove_action_row",
		mcp.WithDescription("Remove a row from an Action table"),
		mcp.WithString("panelId", mcp.Description("Panel ID"), mcp.Required()),
		mcp.WithNumber("row", mcp.Description("Zero-based row index"), mcp.Required()),
	), s.handleRemoveActionRow)

	// ── set_picture_link ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_picture_link",
		mcp.WithDescription("Point a Picture panel at a web image. It is fetched on the next save."),
		mcp.WithString("panelId", mcp.Description("Panel ID"), mcp.Required()),
		mcp.WithString("url", mcp.Description("Image URL"), mcp.Required()),
	), s.handleSetPictureLink)

	// ── set_picture_file ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_picture_file",
		mcp.WithDescription("Load a Picture panel's image from a local file"),
		mcp.WithString("panelId", mcp.Description("Panel ID"), mcp.Required()),
		mcp.WithString("path", mcp.Description("Path of the image file"), mcp.Required()),
	), s.handleSetPictureFile)
}

func (s *Server) handleListPanelTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.state.PanelTypes())
}

func (s *Server) handleAddPanel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeName, err := requireString(req, "type")
	if err != nil {
		return nil, err
	}
	p, err := s.state.AddPanel(typeName)
	if err != nil {
		return nil, fmt.Errorf("add panel: %w", err)
	}
	if text := req.GetString("text", ""); text != "" {
		if t, ok := p.(*plugins.Text); ok {
			t.SetText(text)
		}
	}
	return jsonResult(summarizePanel(p))
}

func (s *Server) handleRemovePanel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req, "panelId")
	if err != nil {
		return nil, err
	}
	if err := s.state.RemovePanel(ctx, id); err != nil {
		return nil, fmt.Errorf("remove panel: %w", err)
	}
	return textResult(fmt.Sprintf("Removed panel %s", id)), nil
}

func (s *Server) handleMovePanel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req, "panelId")
	if err != nil {
		return nil, err
	}
	switch dir := strings.ToLower(req.GetString("direction", "")); dir {
	case "up":
		err = s.state.MoveUp(id)
	case "down":
		err = s.state.MoveDown(id)
	default:
		return nil, fmt.Errorf("direction must be up or down, got %q", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("move panel: %w", err)
	}
	return jsonResult(viewDocument(s.state).Panels)
}

func (s *Server) handleSetText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := panelFor[*plugins.Text](s, req, plugins.TypeText)
	if err != nil {
		return nil, err
	}
	t.SetText(req.GetString("text", ""))
	return jsonResult(summarizePanel(t))
}

func (s *Server) handleAddActionRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := panelFor[*plugins.Action](s, req, plugins.TypeAction)
	if err != nil {
		return nil, err
	}
	row := a.AddRow()
	cells := map[int]string{
		plugins.ColDescription: req.GetString("description", ""),
		plugins.ColResponsible: req.GetString("responsible", ""),
		plugins.ColDate:        req.GetString("date", ""),
	}
	for col, v := range cells {
		if v == "" {
			continue
		}
		if err := a.SetCell(row, col, v); err != nil {
			return nil, fmt.Errorf("fill row %d: %w", row, err)
		}
	}
	return jsonResult(summarizePanel(a))
}

func (s *Server) handleSetActionCell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := panelFor[*plugins.Action](s, req, plugins.TypeAction)
	if err != nil {
		return nil, err
	}
	col, ok := actionColumns[strings.ToLower(req.GetString("column", ""))]
	if !ok {
		return nil, fmt.Errorf("column must be one of done, description, responsible, date")
	}
	row := req.GetInt("row", -1)
	if err := a.SetCell(row, col, req.GetString("value", "")); err != nil {
		return nil, fmt.Errorf("set cell: %w", err)
	}
	return jsonResult(summarizePanel(a))
}

func (s *Server) handleRemoveActionRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := panelFor[*plugins.Action](s, req, plugins.TypeAction)
	if err != nil {
		return nil, err
	}
	if err := a.RemoveRow(req.GetInt("row", -1)); err != nil {
		return nil, fmt.Errorf("remove row: %w", err)
	}
	return jsonResult(summarizePanel(a))
}

func (s *Server) handleSetPictureLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := panelFor[*plugins.Picture](s, req, plugins.TypePicture)
	if err != nil {
		return nil, err
	}
	url, err := requireString(req, "url")
	if err != nil {
		return nil, err
	}
	p.SetLink(url)
	return jsonResult(summarizePanel(p))
}

func (s *Server) handleSetPictureFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := panelFor[*plugins.Picture](s, req, plugins.TypePicture)
	if err != nil {
		return nil, err
	}
	path, err := requireString(req, "path")
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("picture file: %w", err)
	}
	if info.Size() > maxPictureFile {
		return nil, fmt.Errorf("picture file is %d bytes, limit is %d", info.Size(), maxPictureFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("picture file: %w", err)
	}
	p.SetImage(data, "")
	return jsonResult(summarizePanel(p))
}
