package mcpserver

import (
	"spe/internal/domain"
	"spe/internal/panel"
	"spe/internal/plugins"
	"spe/internal/service"
)

// panelSummary is the JSON view of one live panel.
type panelSummary struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	Link     string              `json:"link,omitempty"`
	HasImage bool                `json:"hasImage,omitempty"`
	Header   []string            `json:"header,omitempty"`
	Rows     []plugins.ActionRow `json:"rows,omitempty"`
}

func summarizePanel(p panel.Panel) panelSummary {
	sum := panelSummary{ID: p.ID(), Type: p.Type()}
	switch v := p.(type) {
	case *plugins.Text:
		sum.Text = v.Text()
	case *plugins.Picture:
		sum.Link = v.Link()
		_, sum.HasImage = v.Image()
	case *plugins.Action:
		h := v.Header()
		sum.Header = h[:]
		sum.Rows = v.Rows()
	}
	return sum
}

// documentView is what show_document returns.
type documentView struct {
	Descriptor    domain.Descriptor `json:"descriptor"`
	Dirty         bool              `json:"dirty"`
	Authenticated bool              `json:"authenticated"`
	Panels        []panelSummary    `json:"panels"`
}

func viewDocument(h *service.StateHandler) documentView {
	panels := h.Panels()
	out := documentView{
		Descriptor:    h.Opened(),
		Dirty:         h.Dirty(),
		Authenticated: h.Authenticated(),
		Panels:        make([]panelSummary, 0, len(panels)),
	}
	for _, p := range panels {
		out.Panels = append(out.Panels, summarizePanel(p))
	}
	return out
}
