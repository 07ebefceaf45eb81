package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("draft_document",
		mcp.WithPromptDescription("Draft a new document from a topic using text, picture and action panels"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("What the document is about"),
			mcp.RequiredArgument(),
		),
	), s.handleDraftPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("meeting_minutes",
		mcp.WithPromptDescription("Record meeting minutes with an action table"),
		mcp.WithArgument("meeting",
			mcp.ArgumentDescription("Name of the meeting"),
			mcp.RequiredArgument(),
		),
	), s.handleMinutesPrompt)
}

func (s *Server) handleDraftPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := req.Params.Arguments["topic"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Draft a document about: %s", topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Draft a document about "%s". Follow these steps:

1. Call new_document with a short name for the document.
2. Add a Text panel (add_panel type=Text) with a Markdown title and an introduction.
3. Add further Text panels for each section. Keep one section per panel.
4. If a picture helps, add a Picture panel and use set_picture_link.
5. Finish with an Action panel listing follow-ups (add_action_row).
6. Review the result with show_document, reorder with move_panel, then save_document.`, topic),
				},
			},
		},
	}, nil
}

func (s *Server) handleMinutesPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	meeting := req.Params.Arguments["meeting"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Minutes for %s", meeting),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Record the minutes of "%s":

1. new_document named after the meeting and today's date.
2. A Text panel with attendees and agenda.
3. A Text panel per agenda item with the discussion summary.
4. One Action panel; add a row per decision with description, responsible and date.
5. save_document. If a document with that name exists, ask before using save_over.`, meeting),
				},
			},
		},
	}, nil
}
