package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"spe/internal/domain"
	"spe/internal/idgen"
	"spe/internal/panel"
)

// ─────────────────────────────────────────────────────────────
// Document lifecycle: open, save, save as, delete, purge
// ─────────────────────────────────────────────────────────────

// NewDocument discards the active document and starts an unsaved one.
func (h *StateHandler) NewDocument(ctx context.Context) error {
	fresh := h.newDocument()
	h.mu.Lock()
	old := h.doc
	h.doc = fresh
	h.opened = domain.Descriptor{}
	h.mu.Unlock()
	h.dirty.Store(false)

	if err := old.Reset(ctx); err != nil {
		h.log.Warn("tearing down previous document", "error", err)
	}
	h.emitter.Emit(ctx, EventDocumentOpened, domain.Descriptor{})
	return nil
}

// Purge removes every panel of the active document. The catalog and the
// opened descriptor are left alone.
func (h *StateHandler) Purge(ctx context.Context) error {
	return h.active().Reset(ctx)
}

// Open rebuilds the document id from the store and makes it active. On any
// failure the active document is left untouched.
func (h *StateHandler) Open(ctx context.Context, id string) (err error) {
	ctx, span := h.startSpan(ctx, "Open", attribute.String("document.id", id))
	defer func() { endSpan(span, err) }()

	h.mu.RLock()
	desc, ok := h.catalog.Find(id)
	h.mu.RUnlock()
	if !ok {
		return domain.NotFoundf("document %s", id)
	}

	unlock := h.locks.Lock(id)
	records, err := h.readBody(ctx, id)
	unlock()
	if err != nil {
		return err
	}

	fresh := h.newDocument()
	env := h.env()
	env.Document = id
	for _, rec := range records {
		p, err := h.registry.Deserialize(ctx, rec, env)
		if err != nil {
			if rerr := fresh.Reset(ctx); rerr != nil {
				h.log.Warn("tearing down partial document", "id", id, "error", rerr)
			}
			return fmt.Errorf("open %s: %w", id, err)
		}
		fresh.Append(p)
	}

	h.mu.Lock()
	old := h.doc
	h.doc = fresh
	h.opened = desc
	h.mu.Unlock()
	h.dirty.Store(false)

	if err := old.Reset(ctx); err != nil {
		h.log.Warn("tearing down previous document", "error", err)
	}
	h.log.Info("document opened", "id", id, "name", desc.Name, "panels", len(records))
	h.emitter.Emit(ctx, EventDocumentOpened, desc)
	return nil
}

func (h *StateHandler) readBody(ctx context.Context, id string) ([]domain.PanelRecord, error) {
	raw, err := h.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Corruptedf("document %s: body missing", id)
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", id, err)
	}
	var records []domain.PanelRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, domain.Corruptedf("document %s: %v", id, err)
	}
	return records, nil
}

// Save persists the active document under its current id, minting one if the
// document was never saved. The document must have a name.
func (h *StateHandler) Save(ctx context.Context) (domain.Descriptor, error) {
	h.mu.RLock()
	desc := h.opened.Clone()
	doc := h.doc
	h.mu.RUnlock()

	if strings.TrimSpace(desc.Name) == "" {
		return domain.Descriptor{}, domain.Preconditionf("document has no name, use save as")
	}
	if desc.ID == "" {
		desc.ID = idgen.New()
	}
	return h.save(ctx, desc, doc)
}

// SaveAs stores the active document as a new entry called name. A name used
// by another entry is refused; SaveOver replaces an entry explicitly.
func (h *StateHandler) SaveAs(ctx context.Context, name string) (domain.Descriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Descriptor{}, domain.Preconditionf("document name is empty")
	}

	h.mu.RLock()
	existing, taken := h.catalog.FindByName(name)
	openedID := h.opened.ID
	doc := h.doc
	h.mu.RUnlock()
	if taken && existing.ID != openedID {
		return domain.Descriptor{}, domain.Preconditionf("a document named %q already exists (%s), use save over", name, existing.ID)
	}
	return h.save(ctx, domain.Descriptor{ID: idgen.New(), Name: name}, doc)
}

// SaveOver replaces the catalog entry targetID with the active document,
// keeping that entry's id and name.
func (h *StateHandler) SaveOver(ctx context.Context, targetID string) (domain.Descriptor, error) {
	h.mu.RLock()
	target, ok := h.catalog.Find(targetID)
	doc := h.doc
	h.mu.RUnlock()
	if !ok {
		return domain.Descriptor{}, domain.NotFoundf("document %s", targetID)
	}
	return h.save(ctx, domain.Descriptor{ID: target.ID, Name: target.Name, Timestamp: target.Timestamp}, doc)
}

// save serialises doc under desc.ID, writes catalog and body, and pushes both
// when a session is open. A failed push is returned after the local write
// succeeded.
func (h *StateHandler) save(ctx context.Context, desc domain.Descriptor, doc *panel.Document) (_ domain.Descriptor, err error) {
	ctx, span := h.startSpan(ctx, "Save", attribute.String("document.id", desc.ID))
	start := time.Now()
	panels := 0
	defer func() {
		h.metrics.RecordSave(ctx, desc.ID, panels, time.Since(start), err)
		endSpan(span, err)
	}()

	unlock := h.locks.Lock(desc.ID)
	defer unlock()

	env := h.env()
	env.Document = desc.ID
	records, err := doc.SerializeAll(ctx, env)
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("serialize %s: %w", desc.ID, err)
	}
	if records == nil {
		records = []domain.PanelRecord{}
	}
	panels = len(records)
	body, err := json.Marshal(records)
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("encode %s: %w", desc.ID, err)
	}

	desc.PanelTypes = domain.PanelTypes(records)
	desc.Timestamp = max(h.now().UnixMilli(), desc.Timestamp)
	if !desc.Saveable() {
		return domain.Descriptor{}, domain.Preconditionf("document %s is not in a saveable condition", desc.ID)
	}

	cat, err := h.mutateCatalog(ctx, func(c domain.Catalog) (domain.Catalog, bool) {
		if prev, ok := c.Find(desc.ID); ok && prev.Timestamp > desc.Timestamp {
			desc.Timestamp = prev.Timestamp
		}
		return c.Upsert(desc), true
	}, domain.Entry{Key: desc.ID, Value: string(body)})
	if err != nil {
		return domain.Descriptor{}, err
	}

	h.mu.Lock()
	if h.doc == doc {
		h.opened = desc.Clone()
	}
	h.mu.Unlock()
	if h.active() == doc {
		h.dirty.Store(false)
	}
	h.log.Info("document saved", "id", desc.ID, "name", desc.Name, "panels", panels)
	h.emitter.Emit(ctx, EventDocumentSaved, desc)

	if env.Remote != nil {
		if err := h.remote.SaveDocument(ctx, desc.ID, records); err != nil {
			return desc, fmt.Errorf("saved locally, push of %s failed: %w", desc.ID, h.remoteErr(ctx, err))
		}
		if err := h.remote.SetOverview(ctx, cat); err != nil {
			return desc, fmt.Errorf("saved locally, overview push failed: %w", h.remoteErr(ctx, err))
		}
	}
	return desc, nil
}

// Delete removes document id from the catalog and the store. When a session is
// open the overview is pushed so the remote does not bring it back. If id is
// the active document it stays open as an unsaved document.
func (h *StateHandler) Delete(ctx context.Context, id string) (err error) {
	ctx, span := h.startSpan(ctx, "Delete", attribute.String("document.id", id))
	defer func() { endSpan(span, err) }()

	unlock := h.locks.Lock(id)
	defer unlock()

	h.mu.RLock()
	_, ok := h.catalog.Find(id)
	h.mu.RUnlock()
	if !ok {
		return domain.NotFoundf("document %s", id)
	}

	refs := h.bodyBlobs(ctx, id)
	cat, err := h.mutateCatalog(ctx, func(c domain.Catalog) (domain.Catalog, bool) {
		c, _ = c.Remove(id)
		return c, true
	})
	if err != nil {
		return err
	}
	if err := h.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete body %s: %w", id, err)
	}
	for _, ref := range refs {
		if err := h.blobs.DeleteBlob(ctx, ref.Key); err != nil && !errors.Is(err, domain.ErrNotFound) {
			h.log.Warn("dropping cached blob", "id", id, "key", ref.Key, "error", err)
		}
	}

	h.mu.Lock()
	if h.opened.ID == id {
		h.opened.ID = ""
		h.opened.Timestamp = 0
	}
	h.mu.Unlock()
	h.log.Info("document deleted", "id", id)
	h.emitter.Emit(ctx, EventDocumentDeleted, id)

	if h.Authenticated() {
		if err := h.remote.SetOverview(ctx, cat); err != nil {
			return fmt.Errorf("deleted locally, overview push failed: %w", h.remoteErr(ctx, err))
		}
	}
	return nil
}

// bodyBlobs lists the payloads the stored body of id points at. An unreadable
// body has none worth releasing.
func (h *StateHandler) bodyBlobs(ctx context.Context, id string) []panel.BlobRef {
	records, err := h.readBody(ctx, id)
	if err != nil {
		h.log.Warn("reading body before delete", "id", id, "error", err)
		return nil
	}
	refs, err := h.registry.BlobRefs(records)
	if err != nil {
		h.log.Warn("listing blobs before delete", "id", id, "error", err)
		return nil
	}
	return refs
}
