package panel

import (
	"context"
	"fmt"
	"sync"

	"spe/internal/domain"
	"spe/internal/idgen"
)

// ─────────────────────────────────────────────────────────────
// Panel Registry: the extension seam for new panel kinds
// ─────────────────────────────────────────────────────────────

// Descriptor registers one panel kind.
type Descriptor struct {
	// TypeName is unique in the registry and is the only identifier persisted
	// in a record.
	TypeName    string
	Description string
	// Construct returns a fresh, empty panel.
	Construct func(id string) Panel
	// Deserialize rebuilds a panel from its record, resolving resources
	// through env. It returns a fully initialised panel or an error.
	Deserialize func(ctx context.Context, rec domain.PanelRecord, env Env) (Panel, error)
	// Blobs lists the payloads a record points at. Optional; kinds without
	// binary payloads leave it nil.
	Blobs func(rec domain.PanelRecord) ([]BlobRef, error)
}

// BlobRef locates one payload of a record: its local cache key and the id
// it is stored under remotely.
type BlobRef struct {
	Key      string
	RemoteID string
}

// Info is the registry surface the UI needs to offer "add panel" actions.
type Info struct {
	TypeName    string `json:"typeName"`
	Description string `json:"description"`
}

// Registry maps panel type names to their descriptors, keeping registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	kinds map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Descriptor)}
}

// Register adds a panel kind. Panics on duplicate or incomplete registration.
func (r *Registry) Register(d Descriptor) {
	if d.TypeName == "" || d.Construct == nil || d.Deserialize == nil {
		panic(fmt.Sprintf("panel registry: incomplete descriptor %q", d.TypeName))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[d.TypeName]; exists {
		panic(fmt.Sprintf("panel registry: duplicate registration for panel type %q", d.TypeName))
	}
	r.kinds[d.TypeName] = d
	r.order = append(r.order, d.TypeName)
}

// Lookup returns the descriptor for typeName.
func (r *Registry) Lookup(typeName string) (Descriptor, error) {
	r.mu.RLock()
	d, ok := r.kinds[typeName]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, domain.NotFoundf("panel type %q not registered, maybe extension not loaded?", typeName)
	}
	return d, nil
}

// New constructs a fresh panel of typeName with a newly minted id.
func (r *Registry) New(typeName string) (Panel, error) {
	d, err := r.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return d.Construct(idgen.New()), nil
}

// Deserialize rebuilds a panel from rec. Unknown types are a hard error.
func (r *Registry) Deserialize(ctx context.Context, rec domain.PanelRecord, env Env) (Panel, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	d, err := r.Lookup(rec.PanelType)
	if err != nil {
		return nil, err
	}
	p, err := d.Deserialize(ctx, rec, env)
	if err != nil {
		return nil, fmt.Errorf("deserialize %s panel %s: %w", rec.PanelType, rec.ID, err)
	}
	return p, nil
}

// BlobRefs collects the payload references of records. Unknown types are a
// hard error, like in Deserialize.
func (r *Registry) BlobRefs(records []domain.PanelRecord) ([]BlobRef, error) {
	var refs []BlobRef
	for _, rec := range records {
		d, err := r.Lookup(rec.PanelType)
		if err != nil {
			return nil, err
		}
		if d.Blobs == nil {
			continue
		}
		found, err := d.Blobs(rec)
		if err != nil {
			return nil, fmt.Errorf("blobs of %s panel %s: %w", rec.PanelType, rec.ID, err)
		}
		refs = append(refs, found...)
	}
	return refs, nil
}

// List returns every registered kind in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Info{TypeName: name, Description: r.kinds[name].Description})
	}
	return out
}
