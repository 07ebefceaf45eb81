package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"spe/internal/domain"
	"spe/internal/logging"
	"spe/internal/panel"
)

// ─────────────────────────────────────────────────────────────
// State Handler: catalog, open document and their persistence
// ─────────────────────────────────────────────────────────────

// Deps are the collaborators of a StateHandler. Store, Blobs and Registry
// are required; everything else has a usable zero value.
type Deps struct {
	Store    domain.Store
	Blobs    domain.BlobCache
	Remote   domain.Remote // nil runs local-only
	Registry *panel.Registry
	Fetch    panel.Fetcher

	Emitter EventEmitter
	Metrics Metrics
	Logger  *logging.Logger
	Now     func() time.Time

	// MaxParallel bounds reconciliation fan-out.
	MaxParallel int
}

// StateHandler owns the catalog, the opened descriptor and the live document.
// It is safe for concurrent use.
type StateHandler struct {
	store       domain.Store
	blobs       domain.BlobCache
	remote      domain.Remote
	registry    *panel.Registry
	fetch       panel.Fetcher
	emitter     EventEmitter
	metrics     Metrics
	log         *logging.Logger
	now         func() time.Time
	maxParallel int
	tracer      trace.Tracer

	mu      sync.RWMutex
	catalog domain.Catalog
	opened  domain.Descriptor
	doc     *panel.Document

	// catalogMu serialises read-modify-persist cycles of the catalog.
	catalogMu sync.Mutex
	locks     keyedLock

	authed atomic.Bool
	dirty  atomic.Bool
}

// NewStateHandler wires a handler. Call LoadCatalog before use.
func NewStateHandler(d Deps) *StateHandler {
	h := &StateHandler{
		store:       d.Store,
		blobs:       d.Blobs,
		remote:      d.Remote,
		registry:    d.Registry,
		fetch:       d.Fetch,
		emitter:     d.Emitter,
		metrics:     d.Metrics,
		log:         d.Logger,
		now:         d.Now,
		maxParallel: d.MaxParallel,
		tracer:      otel.Tracer("spe/service"),
		catalog:     domain.Catalog{},
	}
	if h.emitter == nil {
		h.emitter = noopEmitter{}
	}
	if h.metrics == nil {
		h.metrics = NopMetrics{}
	}
	if h.log == nil {
		h.log = logging.Discard()
	}
	h.log = h.log.With("component", "state")
	if h.now == nil {
		h.now = time.Now
	}
	if h.maxParallel < 1 {
		h.maxParallel = 4
	}
	h.doc = h.newDocument()
	return h
}

// newDocument returns an empty document whose changes mark the handler dirty
// while it is the active one.
func (h *StateHandler) newDocument() *panel.Document {
	d := panel.NewDocument()
	d.OnChange(func() {
		h.mu.RLock()
		active := h.doc == d
		id := h.opened.ID
		h.mu.RUnlock()
		if !active {
			return
		}
		h.dirty.Store(true)
		h.emitter.Emit(context.Background(), EventDocumentChanged, id)
	})
	return d
}

func (h *StateHandler) active() *panel.Document {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doc
}

// env builds the panel environment. Remote is only set with a live session.
func (h *StateHandler) env() panel.Env {
	env := panel.Env{Blobs: h.blobs, Fetch: h.fetch}
	if h.remote != nil && h.authed.Load() {
		env.Remote = h.remote
	}
	return env
}

func (h *StateHandler) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return h.tracer.Start(ctx, "StateHandler."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ── Catalog ────────────────────────────────────────────────

// LoadCatalog reads the catalog from the store. A missing catalog is empty;
// an unparsable one is replaced by an empty catalog on disk.
func (h *StateHandler) LoadCatalog(ctx context.Context) error {
	h.catalogMu.Lock()
	defer h.catalogMu.Unlock()

	cat, err := h.readCatalog(ctx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.catalog = cat
	h.mu.Unlock()
	return nil
}

// ReloadCatalog re-reads the catalog and notifies observers. Used when
// another writer touched the store.
func (h *StateHandler) ReloadCatalog(ctx context.Context) error {
	if err := h.LoadCatalog(ctx); err != nil {
		return err
	}
	h.emitter.Emit(ctx, EventCatalogChanged, h.Catalog())
	return nil
}

func (h *StateHandler) readCatalog(ctx context.Context) (domain.Catalog, error) {
	raw, err := h.store.Get(ctx, domain.CatalogKey)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Catalog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var cat domain.Catalog
	if err := json.Unmarshal([]byte(raw), &cat); err != nil || cat == nil {
		h.log.Warn("catalog unreadable, resetting to empty", "error", err)
		if err := h.store.Set(ctx, domain.CatalogKey, "[]"); err != nil {
			return nil, fmt.Errorf("reset catalog: %w", err)
		}
		return domain.Catalog{}, nil
	}
	return cat, nil
}

// mutateCatalog applies fn to a copy of the catalog, persists the result
// together with extra entries (catalog first), and only then commits it.
// When fn reports false nothing is written and the current catalog is returned.
func (h *StateHandler) mutateCatalog(ctx context.Context, fn func(domain.Catalog) (domain.Catalog, bool), extra ...domain.Entry) (domain.Catalog, error) {
	h.catalogMu.Lock()
	defer h.catalogMu.Unlock()

	h.mu.RLock()
	next, write := fn(h.catalog.Clone())
	h.mu.RUnlock()
	if !write {
		return h.Catalog(), nil
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	entries := append([]domain.Entry{{Key: domain.CatalogKey, Value: string(raw)}}, extra...)
	if err := h.store.SetMany(ctx, entries...); err != nil {
		return nil, fmt.Errorf("persist catalog: %w", err)
	}

	h.mu.Lock()
	h.catalog = next
	h.mu.Unlock()
	return next.Clone(), nil
}

// Catalog returns a copy of the catalog.
func (h *StateHandler) Catalog() domain.Catalog {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.catalog.Clone()
}

// Opened returns a copy of the active document's descriptor. An unsaved
// document has an empty ID.
func (h *StateHandler) Opened() domain.Descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.opened.Clone()
}

// Dirty reports whether the active document changed since it was opened or saved.
func (h *StateHandler) Dirty() bool {
	return h.dirty.Load()
}

// SetName renames the active document. The new name is persisted on the next save.
func (h *StateHandler) SetName(name string) {
	h.mu.Lock()
	h.opened.Name = name
	h.mu.Unlock()
	h.dirty.Store(true)
}

// ── Panels ─────────────────────────────────────────────────

// PanelTypes lists the registered panel kinds in registration order.
func (h *StateHandler) PanelTypes() []panel.Info {
	return h.registry.List()
}

// AddPanel appends a fresh panel of typeName to the active document.
func (h *StateHandler) AddPanel(typeName string) (panel.Panel, error) {
	p, err := h.registry.New(typeName)
	if err != nil {
		return nil, err
	}
	h.active().Append(p)
	return p, nil
}

// RemovePanel deletes the panel with id from the active document.
func (h *StateHandler) RemovePanel(ctx context.Context, id string) error {
	return h.active().Remove(ctx, id)
}

// MoveUp moves the panel one place towards the top.
func (h *StateHandler) MoveUp(id string) error {
	return h.active().MoveUp(id)
}

// MoveDown moves the panel one place towards the bottom.
func (h *StateHandler) MoveDown(id string) error {
	return h.active().MoveDown(id)
}

// Panel returns the live panel with id.
func (h *StateHandler) Panel(id string) (panel.Panel, error) {
	return h.active().Get(id)
}

// Panels returns the live panels in display order.
func (h *StateHandler) Panels() []panel.Panel {
	return h.active().Panels()
}

// ── Session ────────────────────────────────────────────────

// Authenticated reports whether remote calls are currently made.
func (h *StateHandler) Authenticated() bool {
	return h.remote != nil && h.authed.Load()
}

// Login authenticates against the remote and reconciles on success. A failed
// reconciliation is returned but leaves the session open.
func (h *StateHandler) Login(ctx context.Context, creds domain.Credentials) (Report, error) {
	if h.remote == nil {
		return Report{}, domain.Preconditionf("no remote configured")
	}
	if err := h.remote.Authenticate(ctx, creds); err != nil {
		h.setAuthed(ctx, false)
		return Report{}, fmt.Errorf("login: %w", err)
	}
	h.log.Info("logged in", "email", creds.Email)
	h.setAuthed(ctx, true)

	report, err := h.Reconcile(ctx)
	if err != nil {
		return report, fmt.Errorf("reconcile after login: %w", err)
	}
	return report, nil
}

// Register creates a remote account, then logs in with it.
func (h *StateHandler) Register(ctx context.Context, creds domain.Credentials) (Report, error) {
	if h.remote == nil {
		return Report{}, domain.Preconditionf("no remote configured")
	}
	if err := h.remote.Register(ctx, creds); err != nil {
		return Report{}, fmt.Errorf("register: %w", err)
	}
	h.log.Info("registered", "email", creds.Email)
	return h.Login(ctx, creds)
}

// CheckSession asks the remote whether the current session is still valid.
func (h *StateHandler) CheckSession(ctx context.Context) bool {
	if h.remote == nil {
		return false
	}
	ok := h.remote.CheckSession(ctx)
	h.setAuthed(ctx, ok)
	return ok
}

// Logout stops remote calls. The remote session itself is left to expire.
func (h *StateHandler) Logout(ctx context.Context) {
	h.setAuthed(ctx, false)
}

// remoteErr closes the session when the remote rejected it, so later calls
// stay local instead of failing one by one.
func (h *StateHandler) remoteErr(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrNotAuthenticated) && h.authed.Load() {
		h.log.Warn("remote session rejected, continuing offline", "error", err)
		h.setAuthed(ctx, false)
	}
	return err
}

func (h *StateHandler) setAuthed(ctx context.Context, v bool) {
	if h.authed.Swap(v) != v {
		h.emitter.Emit(ctx, EventSessionChanged, v)
	}
}
