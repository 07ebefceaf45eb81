package plugins

import (
	"context"
	"encoding/json"
	"sync"

	"spe/internal/domain"
	"spe/internal/panel"
)

// ─────────────────────────────────────────────────────────────
// Text panel: a markdown-formatted text field
// ─────────────────────────────────────────────────────────────

const TypeText = "Text"

// Text holds raw markdown. Rendering is left to the UI.
type Text struct {
	*panel.Base

	mu   sync.RWMutex
	text string
}

type textData struct {
	Text *string `json:"text"`
}

// NewText creates an empty text panel.
func NewText(id string) *Text {
	return &Text{Base: panel.NewBase(id, TypeText)}
}

// Text returns the current markdown source.
func (t *Text) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.text
}

// SetText replaces the markdown source and notifies listeners when it changed.
func (t *Text) SetText(s string) {
	t.mu.Lock()
	if t.text == s {
		t.mu.Unlock()
		return
	}
	t.text = s
	t.mu.Unlock()
	t.Notify()
}

func (t *Text) Serialize(_ context.Context, _ panel.Env) (domain.PanelRecord, error) {
	s := t.Text()
	data, err := json.Marshal(textData{Text: &s})
	if err != nil {
		return domain.PanelRecord{}, err
	}
	return t.Record(string(data)), nil
}

func (t *Text) Delete(_ context.Context) error {
	t.Notify()
	return nil
}

func deserializeText(_ context.Context, rec domain.PanelRecord, _ panel.Env) (panel.Panel, error) {
	var payload textData
	if err := json.Unmarshal([]byte(rec.Data), &payload); err != nil {
		return nil, domain.Corruptedf("text panel %s: %v", rec.ID, err)
	}
	if payload.Text == nil {
		return nil, domain.Corruptedf("text panel %s: missing text", rec.ID)
	}
	t := NewText(rec.ID)
	t.text = *payload.Text
	return t, nil
}
