package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"spe/internal/domain"
	"spe/internal/plugins"
	"spe/internal/service"
	"spe/internal/storage"
)

// fakeRemote is an in-memory stand-in for the document server.
type fakeRemote struct {
	mu       sync.Mutex
	password string
	session  bool

	overview []domain.Descriptor
	docs     map[string][]domain.PanelRecord
	blobs    map[string]domain.Blob

	overviewErr error
	loadErr     map[string]error
	// expired makes document and blob calls fail as if the session lapsed.
	expired bool
	// onSave runs before a body is stored, outside the fake's lock.
	onSave func(id string)

	saved          []string
	overviewPushes int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		password: "secret",
		docs:     map[string][]domain.PanelRecord{},
		blobs:    map[string]domain.Blob{},
		loadErr:  map[string]error{},
	}
}

func (f *fakeRemote) Authenticate(_ context.Context, c domain.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Password != f.password {
		return errors.New("bad credentials")
	}
	f.session = true
	return nil
}

func (f *fakeRemote) Register(_ context.Context, c domain.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.password = c.Password
	return nil
}

func (f *fakeRemote) CheckSession(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeRemote) GetOverview(context.Context) ([]domain.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overviewErr != nil {
		return nil, f.overviewErr
	}
	return domain.Catalog(f.overview).Clone(), nil
}

func (f *fakeRemote) SetOverview(_ context.Context, d []domain.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overview = domain.Catalog(d).Clone()
	f.overviewPushes++
	return nil
}

func (f *fakeRemote) LoadDocument(_ context.Context, id string) ([]domain.PanelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadErr[id]; err != nil {
		return nil, err
	}
	recs, ok := f.docs[id]
	if !ok {
		return nil, domain.NotFoundf("remote document %s", id)
	}
	return append([]domain.PanelRecord(nil), recs...), nil
}

func (f *fakeRemote) SaveDocument(_ context.Context, id string, recs []domain.PanelRecord) error {
	if f.onSave != nil {
		f.onSave(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired {
		f.session = false
		return fmt.Errorf("save %s: %w", id, domain.ErrNotAuthenticated)
	}
	f.docs[id] = append([]domain.PanelRecord(nil), recs...)
	f.saved = append(f.saved, id)
	return nil
}

func (f *fakeRemote) UploadBlob(_ context.Context, id string, b domain.Blob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired {
		f.session = false
		return fmt.Errorf("upload %s: %w", id, domain.ErrNotAuthenticated)
	}
	f.blobs[id] = b
	return nil
}

func (f *fakeRemote) DownloadBlob(_ context.Context, id string) (domain.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[id]
	if !ok {
		return domain.Blob{}, domain.NotFoundf("remote blob %s", id)
	}
	return b, nil
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	ms int64
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

func (c *clock) Set(ms int64) {
	c.mu.Lock()
	c.ms = ms
	c.mu.Unlock()
}

type fixture struct {
	store   *storage.Memory
	remote  *fakeRemote
	emitter *service.MockEmitter
	clock   *clock
	h       *service.StateHandler
}

// newFixture builds a handler over a memory store. remote may be nil.
func newFixture(t *testing.T, store *storage.Memory, remote *fakeRemote, opts ...func(*service.Deps)) *fixture {
	t.Helper()
	if store == nil {
		store = storage.NewMemory()
	}
	f := &fixture{store: store, remote: remote, emitter: &service.MockEmitter{}, clock: &clock{ms: 1_000}}
	deps := service.Deps{
		Store:    store,
		Blobs:    store,
		Registry: plugins.NewRegistry(),
		Emitter:  f.emitter,
		Now:      f.clock.Now,
	}
	if remote != nil {
		deps.Remote = remote
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.h = service.NewStateHandler(deps)
	if err := f.h.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	return f
}

func (f *fixture) login(t *testing.T) service.Report {
	t.Helper()
	report, err := f.h.Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "secret"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return report
}

// seed stores a catalog entry and body directly, bypassing the handler.
func seed(t *testing.T, store *storage.Memory, descs []domain.Descriptor, bodies map[string]string) {
	t.Helper()
	ctx := context.Background()
	raw := "["
	for i, d := range descs {
		if i > 0 {
			raw += ","
		}
		raw += mustJSON(t, d)
	}
	raw += "]"
	if err := store.Set(ctx, domain.CatalogKey, raw); err != nil {
		t.Fatal(err)
	}
	for id, body := range bodies {
		if err := store.Set(ctx, id, body); err != nil {
			t.Fatal(err)
		}
	}
}

func textBody(id, text string) string {
	return `[{"panelType":"Text","id":"` + id + `","data":"{\"text\":\"` + text + `\"}"}]`
}

func panelIDs(h *service.StateHandler) []string {
	var ids []string
	for _, p := range h.Panels() {
		ids = append(ids, p.ID())
	}
	return ids
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// blobCount returns how many payloads the remote holds.
func (f *fakeRemote) blobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}
