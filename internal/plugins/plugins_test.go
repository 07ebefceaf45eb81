package plugins_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"spe/internal/domain"
	"spe/internal/panel"
	"spe/internal/plugins"
	"spe/internal/storage"
)

// fakeBlobRemote records uploads and serves downloads from the same map.
type fakeBlobRemote struct {
	mu      sync.Mutex
	blobs   map[string]domain.Blob
	uploads int
	fail    bool
}

func newFakeBlobRemote() *fakeBlobRemote {
	return &fakeBlobRemote{blobs: map[string]domain.Blob{}}
}

func (f *fakeBlobRemote) UploadBlob(_ context.Context, id string, b domain.Blob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("remote down")
	}
	f.uploads++
	f.blobs[id] = b
	return nil
}

func (f *fakeBlobRemote) DownloadBlob(_ context.Context, id string) (domain.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return domain.Blob{}, errors.New("remote down")
	}
	b, ok := f.blobs[id]
	if !ok {
		return domain.Blob{}, domain.NotFoundf("remote blob %s", id)
	}
	return b, nil
}

func roundTrip(t *testing.T, p panel.Panel, env panel.Env) panel.Panel {
	t.Helper()
	ctx := context.Background()
	rec, err := p.Serialize(ctx, env)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if rec.ID != p.ID() || rec.PanelType != p.Type() {
		t.Fatalf("record = %+v, want id %s type %s", rec, p.ID(), p.Type())
	}
	got, err := plugins.NewRegistry().Deserialize(ctx, rec, env)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	return got
}

func TestRegistry_BuiltinOrder(t *testing.T) {
	infos := plugins.NewRegistry().List()
	want := []string{plugins.TypeText, plugins.TypePicture, plugins.TypeAction}
	if len(infos) != len(want) {
		t.Fatalf("List() = %v, want %v", infos, want)
	}
	for i, name := range want {
		if infos[i].TypeName != name || infos[i].Description == "" {
			t.Errorf("List()[%d] = %+v, want %s with description", i, infos[i], name)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Text
// ─────────────────────────────────────────────────────────────

func TestText_RoundTrip(t *testing.T) {
	p := plugins.NewText("t1")
	p.SetText("# Title\n\n- item")

	got := roundTrip(t, p, panel.Env{}).(*plugins.Text)
	if got.Text() != p.Text() {
		t.Errorf("Text() = %q, want %q", got.Text(), p.Text())
	}
}

func TestText_NotifiesOnlyOnChange(t *testing.T) {
	p := plugins.NewText("t1")
	calls := 0
	p.Subscribe(func(string) { calls++ })
	p.SetText("a")
	p.SetText("a")
	p.SetText("b")
	if calls != 2 {
		t.Errorf("listener calls = %d, want 2", calls)
	}
}

func TestText_CorruptedRecords(t *testing.T) {
	reg := plugins.NewRegistry()
	for _, data := range []string{`not json`, `{}`, `{"txt":"x"}`} {
		_, err := reg.Deserialize(context.Background(), domain.PanelRecord{PanelType: "Text", ID: "t", Data: data}, panel.Env{})
		if !errors.Is(err, domain.ErrCorrupted) {
			t.Errorf("data %q: error = %v, want ErrCorrupted", data, err)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Action
// ─────────────────────────────────────────────────────────────

func TestAction_EditAndRoundTrip(t *testing.T) {
	a := plugins.NewAction("a1")
	r0 := a.AddRow()
	r1 := a.AddRow()
	if err := a.SetCell(r0, plugins.ColDescription, "Ship it"); err != nil {
		t.Fatalf("SetCell() error = %v", err)
	}
	if err := a.SetCell(r0, plugins.ColResponsible, "Sam"); err != nil {
		t.Fatalf("SetCell() error = %v", err)
	}
	if err := a.SetCell(r0, plugins.ColDone, "true"); err != nil {
		t.Fatalf("SetCell(done) error = %v", err)
	}
	if err := a.SetCell(r1, plugins.ColDate, "2026-01-01"); err != nil {
		t.Fatalf("SetCell(date) error = %v", err)
	}

	got := roundTrip(t, a, panel.Env{}).(*plugins.Action)
	rows := got.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %v, want 2", rows)
	}
	want0 := plugins.ActionRow{Done: true, Description: "Ship it", Responsible: "Sam"}
	if rows[0] != want0 {
		t.Errorf("row 0 = %+v, want %+v", rows[0], want0)
	}
	if rows[1].Date != "2026-01-01" {
		t.Errorf("row 1 date = %q", rows[1].Date)
	}
	if got.Header() != plugins.DefaultHeader {
		t.Errorf("Header() = %v, want default", got.Header())
	}
}

func TestAction_Errors(t *testing.T) {
	a := plugins.NewAction("a1")
	if err := a.SetDone(0, true); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SetDone on empty table error = %v, want ErrNotFound", err)
	}
	row := a.AddRow()
	if err := a.SetCell(row, 9, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SetCell bad column error = %v, want ErrNotFound", err)
	}
	if err := a.SetCell(row, plugins.ColDone, "maybe"); !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Errorf("SetCell bad bool error = %v, want ErrPreconditionFailed", err)
	}
	if err := a.RemoveRow(row); err != nil {
		t.Fatalf("RemoveRow() error = %v", err)
	}
	if n := len(a.Rows()); n != 0 {
		t.Errorf("rows after remove = %d, want 0", n)
	}
}

func TestAction_MissingRowsIsCorrupted(t *testing.T) {
	_, err := plugins.NewRegistry().Deserialize(context.Background(),
		domain.PanelRecord{PanelType: "Action", ID: "a", Data: `{"header":["","a","b","c"]}`}, panel.Env{})
	if !errors.Is(err, domain.ErrCorrupted) {
		t.Errorf("error = %v, want ErrCorrupted", err)
	}
}

// ─────────────────────────────────────────────────────────────
// Picture
// ─────────────────────────────────────────────────────────────

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")

func TestPicture_SerializeCachesAndUploads(t *testing.T) {
	cache := storage.NewMemory()
	remote := newFakeBlobRemote()
	p := plugins.NewPicture("p1")
	p.SetImage(pngBytes, "")

	if _, err := p.Serialize(context.Background(), panel.Env{Blobs: cache, Remote: remote}); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	got, err := cache.GetBlob(context.Background(), plugins.BlobKey("", "p1"))
	if err != nil {
		t.Fatalf("blob not cached: %v", err)
	}
	if got.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want sniffed image/png", got.ContentType)
	}
	if remote.uploads != 1 {
		t.Errorf("uploads = %d, want 1", remote.uploads)
	}
}

func TestPicture_RoundTripFromCache(t *testing.T) {
	env := panel.Env{Blobs: storage.NewMemory()}
	p := plugins.NewPicture("p1")
	p.SetImage(pngBytes, "image/png")

	got := roundTrip(t, p, env).(*plugins.Picture)
	img, ok := got.Image()
	if !ok || !bytes.Equal(img.Data, pngBytes) {
		t.Errorf("Image() = %v, %v; want payload", img, ok)
	}
}

func TestPicture_ResolvesFromRemoteAndCaches(t *testing.T) {
	ctx := context.Background()
	writer := storage.NewMemory()
	remote := newFakeBlobRemote()

	p := plugins.NewPicture("p1")
	p.SetImage(pngBytes, "image/png")
	rec, err := p.Serialize(ctx, panel.Env{Blobs: writer, Remote: remote})
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	// A second client with an empty cache.
	reader := storage.NewMemory()
	got, err := plugins.NewRegistry().Deserialize(ctx, rec, panel.Env{Blobs: reader, Remote: remote})
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if img, ok := got.(*plugins.Picture).Image(); !ok || !bytes.Equal(img.Data, pngBytes) {
		t.Errorf("Image() after remote resolve = %v, %v", img, ok)
	}
	if _, err := reader.GetBlob(ctx, plugins.BlobKey("", "p1")); err != nil {
		t.Errorf("downloaded blob not cached: %v", err)
	}
}

func TestPicture_Unresolvable(t *testing.T) {
	rec := domain.PanelRecord{PanelType: "Picture", ID: "p1", Data: `{"key":"image/p1"}`}
	reg := plugins.NewRegistry()

	t.Run("no session", func(t *testing.T) {
		_, err := reg.Deserialize(context.Background(), rec, panel.Env{Blobs: storage.NewMemory()})
		if !errors.Is(err, domain.ErrUnresolvable) {
			t.Errorf("error = %v, want ErrUnresolvable", err)
		}
	})
	t.Run("remote fails", func(t *testing.T) {
		remote := newFakeBlobRemote()
		remote.fail = true
		_, err := reg.Deserialize(context.Background(), rec, panel.Env{Blobs: storage.NewMemory(), Remote: remote})
		if !errors.Is(err, domain.ErrUnresolvable) {
			t.Errorf("error = %v, want ErrUnresolvable", err)
		}
	})
}

func TestPicture_EmptyKeyIsEmptyPicture(t *testing.T) {
	got, err := plugins.NewRegistry().Deserialize(context.Background(),
		domain.PanelRecord{PanelType: "Picture", ID: "p1", Data: `{"key":""}`}, panel.Env{})
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if _, ok := got.(*plugins.Picture).Image(); ok {
		t.Error("empty picture has a payload")
	}
}

func TestPicture_MissingKeyIsCorrupted(t *testing.T) {
	_, err := plugins.NewRegistry().Deserialize(context.Background(),
		domain.PanelRecord{PanelType: "Picture", ID: "p1", Data: `{"link":"x"}`}, panel.Env{})
	if !errors.Is(err, domain.ErrCorrupted) {
		t.Errorf("error = %v, want ErrCorrupted", err)
	}
}

func TestPicture_LinkFetchedOnSerialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cat.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	cache := storage.NewMemory()
	env := panel.Env{Blobs: cache, Fetch: plugins.HTTPFetcher(srv.Client())}

	p := plugins.NewPicture("p1")
	p.SetLink(srv.URL + "/cat.png")
	got := roundTrip(t, p, env).(*plugins.Picture)
	if got.Link() != srv.URL+"/cat.png" {
		t.Errorf("Link() = %q", got.Link())
	}
	if img, ok := got.Image(); !ok || img.ContentType != "image/png" {
		t.Errorf("Image() = %+v, %v", img, ok)
	}

	bad := plugins.NewPicture("p2")
	bad.SetLink(srv.URL + "/missing.png")
	if _, err := bad.Serialize(context.Background(), env); !errors.Is(err, domain.ErrUnresolvable) {
		t.Errorf("Serialize(bad link) error = %v, want ErrUnresolvable", err)
	}
}

func TestPicture_DeleteDropsPayloadOnly(t *testing.T) {
	ctx := context.Background()
	cache := storage.NewMemory()
	p := plugins.NewPicture("p1")
	p.SetImage(pngBytes, "image/png")
	if _, err := p.Serialize(ctx, panel.Env{Blobs: cache}); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if err := p.Delete(ctx); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := p.Image(); ok {
		t.Error("payload still held after Delete")
	}
	if _, err := cache.GetBlob(ctx, plugins.BlobKey("", "p1")); err != nil {
		t.Errorf("cached blob removed by Delete: %v", err)
	}
}

func TestPicture_PayloadScopedByDocument(t *testing.T) {
	ctx := context.Background()
	cache := storage.NewMemory()
	remote := newFakeBlobRemote()
	reg := plugins.NewRegistry()

	p := plugins.NewPicture("p1")
	p.SetImage([]byte("first"), "image/png")
	recA, err := p.Serialize(ctx, panel.Env{Blobs: cache, Remote: remote, Document: "docA"})
	if err != nil {
		t.Fatalf("Serialize(docA) error = %v", err)
	}
	p.SetImage([]byte("second"), "image/png")
	if _, err := p.Serialize(ctx, panel.Env{Blobs: cache, Remote: remote, Document: "docB"}); err != nil {
		t.Fatalf("Serialize(docB) error = %v", err)
	}

	got, err := reg.Deserialize(ctx, recA, panel.Env{Blobs: cache})
	if err != nil {
		t.Fatalf("Deserialize(docA) error = %v", err)
	}
	if img, _ := got.(*plugins.Picture).Image(); string(img.Data) != "first" {
		t.Errorf("docA payload = %q, want first", img.Data)
	}
	if _, ok := remote.blobs[plugins.BlobID("docA", "p1")]; !ok {
		t.Errorf("remote blobs = %v, want one under %s", remote.blobs, plugins.BlobID("docA", "p1"))
	}

	// An empty cache resolves through the remote id stored in the record.
	got, err = reg.Deserialize(ctx, recA, panel.Env{Blobs: storage.NewMemory(), Remote: remote})
	if err != nil {
		t.Fatalf("Deserialize(remote) error = %v", err)
	}
	if img, _ := got.(*plugins.Picture).Image(); string(img.Data) != "first" {
		t.Errorf("remote payload = %q, want first", img.Data)
	}
}

func TestRegistry_BlobRefs(t *testing.T) {
	records := []domain.PanelRecord{
		{PanelType: "Text", ID: "t1", Data: `{"text":"x"}`},
		{PanelType: "Picture", ID: "p1", Data: `{"key":""}`},
		{PanelType: "Picture", ID: "p2", Data: `{"key":"image/d.p2","blob":"d.p2"}`},
		{PanelType: "Picture", ID: "p3", Data: `{"key":"image/p3"}`},
	}
	refs, err := plugins.NewRegistry().BlobRefs(records)
	if err != nil {
		t.Fatalf("BlobRefs() error = %v", err)
	}
	want := []panel.BlobRef{
		{Key: "image/d.p2", RemoteID: "d.p2"},
		{Key: "image/p3", RemoteID: "p3"},
	}
	if len(refs) != len(want) || refs[0] != want[0] || refs[1] != want[1] {
		t.Errorf("BlobRefs() = %+v, want %+v", refs, want)
	}

	_, err = plugins.NewRegistry().BlobRefs([]domain.PanelRecord{{PanelType: "Chart", ID: "c", Data: "{}"}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("BlobRefs(unknown) error = %v, want ErrNotFound", err)
	}
}
