package panel

import (
	"context"
	"sync"

	"spe/internal/domain"
)

// Listener is invoked with the panel id whenever the panel content changes.
type Listener func(panelID string)

// Fetcher downloads an external resource such as an image link.
type Fetcher func(ctx context.Context, url string) (domain.Blob, error)

// Env carries the collaborators a panel may need while serializing or
// resolving resources. Remote is nil when there is no authenticated session.
type Env struct {
	Blobs  domain.BlobCache
	Remote domain.BlobRemote
	Fetch  Fetcher
	// Document is the id of the document being saved or opened. Payloads
	// are stored under it so documents never share them.
	Document string
}

// Panel is the contract every panel kind implements.
type Panel interface {
	// ID returns the panel id, unique within a document.
	ID() string
	// Type returns the registry type name persisted in records.
	Type() string
	// Serialize encodes the panel content. It may push binary payloads into
	// env.Blobs and, when env.Remote is set, to the remote store.
	Serialize(ctx context.Context, env Env) (domain.PanelRecord, error)
	// Delete releases resources owned by the panel and notifies listeners.
	Delete(ctx context.Context) error
	// Subscribe registers a change listener.
	Subscribe(l Listener)
}

// Base implements identity and change notification for concrete panels.
type Base struct {
	id       string
	typeName string

	mu        sync.Mutex
	listeners []Listener
}

// NewBase returns a Base for the given id and type name.
func NewBase(id, typeName string) *Base {
	return &Base{id: id, typeName: typeName}
}

func (b *Base) ID() string   { return b.id }
func (b *Base) Type() string { return b.typeName }

// Subscribe adds l to the listeners. Nil listeners are ignored.
func (b *Base) Subscribe(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// Notify calls every listener. Listeners run outside the lock so they may
// call back into the panel.
func (b *Base) Notify() {
	b.mu.Lock()
	ls := make([]Listener, len(b.listeners))
	copy(ls, b.listeners)
	b.mu.Unlock()
	for _, l := range ls {
		l(b.id)
	}
}

// Record builds a record for this panel with the given data payload.
func (b *Base) Record(data string) domain.PanelRecord {
	return domain.PanelRecord{PanelType: b.typeName, ID: b.id, Data: data}
}
