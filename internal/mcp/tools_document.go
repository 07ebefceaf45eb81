package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDocumentTools() {
	// ── list_documents ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List every document in the local catalog"),
	), s.handleListDocuments)

	// ── new_document ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("new_document",
		mcp.WithDescription("Discard the active document and start an empty, unsaved one"),
		mcp.WithString("name", mcp.Description("Name for the new document (optional)")),
	), s.handleNewDocument)

	// ── open_document ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Load a document from the catalog and make it active"),
		mcp.WithString("documentId", mcp.Description("ID of the document"), mcp.Required()),
	), s.handleOpenDocument)

	// ── show_document ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("show_document",
		mcp.WithDescription("Show the active document: descriptor, dirty flag and every panel in order"),
	), s.handleShowDocument)

	// ── save_document ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Save the active document locally, and remotely when logged in"),
		mcp.WithString("name", mcp.Description("Rename before saving (optional, required if the document has no name)")),
	), s.handleSaveDocument)

	// ── save_document_as ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("save_document_as",
		mcp.WithDescription("Save the active document as a new catalog entry. Fails if the name is taken; use save_over to replace an existing entry."),
		mcp.WithString("name", mcp.Description("Unique name for the copy"), mcp.Required()),
	), s.handleSaveDocumentAs)

	// ── save_over ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("save_over",
		mcp.WithDescription("🛑 DESTRUCTIVE: Replace an existing document with the active one, keeping its id and name"),
		mcp.WithString("documentId", mcp.Description("ID of the document to overwrite"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleSaveOver)

	// ── delete_document ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_document",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a document from the catalog and the store"),
		mcp.WithString("documentId", mcp.Description("ID of the document to delete"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteDocument)

	// ── purge_document ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("purge_document",
		mcp.WithDescription("Remove every panel from the active document without touching the catalog"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handlePurgeDocument)
}

func (s *Server) handleListDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.state.Catalog())
}

func (s *Server) handleNewDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.state.NewDocument(ctx); err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}
	if name := req.GetString("name", ""); name != "" {
		s.state.SetName(name)
	}
	return jsonResult(viewDocument(s.state))
}

func (s *Server) handleOpenDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req, "documentId")
	if err != nil {
		return nil, err
	}
	if err := s.state.Open(ctx, id); err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return jsonResult(viewDocument(s.state))
}

func (s *Server) handleShowDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(viewDocument(s.state))
}

func (s *Server) handleSaveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if name := req.GetString("name", ""); name != "" {
		s.state.SetName(name)
	}
	desc, err := s.state.Save(ctx)
	if err != nil {
		if desc.ID != "" {
			// Saved locally, remote push failed.
			return textResult(fmt.Sprintf("Saved %s locally; remote push failed: %v", desc.ID, err)), nil
		}
		return nil, fmt.Errorf("save document: %w", err)
	}
	return jsonResult(desc)
}

func (s *Server) handleSaveDocumentAs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, err
	}
	desc, err := s.state.SaveAs(ctx, name)
	if err != nil {
		if desc.ID != "" {
			return textResult(fmt.Sprintf("Saved %s locally; remote push failed: %v", desc.ID, err)), nil
		}
		return nil, fmt.Errorf("save document as: %w", err)
	}
	return jsonResult(desc)
}

func (s *Server) handleSaveOver(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req, "documentId")
	if err != nil {
		return nil, err
	}
	desc, err := s.state.SaveOver(ctx, id)
	if err != nil {
		if desc.ID != "" {
			return textResult(fmt.Sprintf("Saved %s locally; remote push failed: %v", desc.ID, err)), nil
		}
		return nil, fmt.Errorf("save over: %w", err)
	}
	return jsonResult(desc)
}

func (s *Server) handleDeleteDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req, "documentId")
	if err != nil {
		return nil, err
	}
	if err := s.state.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}
	return textResult(fmt.Sprintf("Deleted document %s", id)), nil
}

func (s *Server) handlePurgeDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.state.Purge(ctx); err != nil {
		return nil, fmt.Errorf("purge document: %w", err)
	}
	return textResult("Removed every panel from the active document"), nil
}
