package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"spe/internal/config"
	"spe/internal/domain"
	"spe/internal/secret"
)

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: "memory"},
		Remote:  config.RemoteConfig{Timeout: 5},
		Sync:    config.SyncConfig{MaxParallel: 2},
		Logging: config.LoggingConfig{Level: "debug", Format: "text"},
	}
}

// remoteServer serves one document and accepts every write.
func remoteServer(t *testing.T) *httptest.Server {
	t.Helper()
	overview := []domain.Descriptor{{ID: "remote-doc", Name: "From server", Timestamp: 1000, PanelTypes: []string{"Text"}}}
	body := []domain.PanelRecord{{PanelType: "Text", ID: "p1", Data: `{"text":"hello"}`}}

	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		var creds domain.Credentials
		json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/toc", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(overview)
	})
	r.Post("/toc", func(w http.ResponseWriter, r *http.Request) {})
	r.Post("/load", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(body)
	})
	r.Post("/save", func(w http.ResponseWriter, r *http.Request) {})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_MemoryBackend(t *testing.T) {
	var logs bytes.Buffer
	a, err := New(context.Background(), testConfig(), Options{Version: "test", LogOutput: &logs, Secrets: secret.NewMemoryStore()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if got := len(a.State().Catalog()); got != 0 {
		t.Errorf("catalog has %d entries, want 0", got)
	}
	if a.State().Authenticated() {
		t.Error("authenticated without a remote")
	}
	if !bytes.Contains(logs.Bytes(), []byte("storage ready")) {
		t.Errorf("missing startup log:\n%s", logs.String())
	}
}

func TestNew_BadStorageFails(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "floppy"
	if _, err := New(context.Background(), cfg, Options{LogOutput: &bytes.Buffer{}}); err == nil {
		t.Fatal("New() with unknown driver succeeded")
	}
}

func TestRun_WithoutMCPStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), testConfig(), Options{LogOutput: &bytes.Buffer{}, Secrets: secret.NewMemoryStore()})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, nil, nil) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRestoreSession(t *testing.T) {
	srv := remoteServer(t)
	cfg := testConfig()
	cfg.Remote.BaseURL = srv.URL
	cfg.Remote.Email = "a@b.c"
	cfg.Remote.Remember = true

	secrets := secret.NewMemoryStore()
	if err := secret.Remember(secrets, "a@b.c", "pw"); err != nil {
		t.Fatal(err)
	}
	a, err := New(context.Background(), cfg, Options{LogOutput: &bytes.Buffer{}, Secrets: secrets})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	a.restoreSession(context.Background())

	if !a.State().Authenticated() {
		t.Fatal("session was not restored")
	}
	desc, ok := a.State().Catalog().Find("remote-doc")
	if !ok || desc.Name != "From server" {
		t.Fatalf("remote document not adopted, catalog = %+v", a.State().Catalog())
	}
	if err := a.State().Open(context.Background(), "remote-doc"); err != nil {
		t.Fatalf("Open(remote-doc) error = %v", err)
	}
	if n := len(a.State().Panels()); n != 1 {
		t.Errorf("opened %d panels, want 1", n)
	}
}

func TestRestoreSession_WrongPasswordStaysLocal(t *testing.T) {
	srv := remoteServer(t)
	cfg := testConfig()
	cfg.Remote.BaseURL = srv.URL
	cfg.Remote.Email = "a@b.c"
	cfg.Remote.Remember = true

	secrets := secret.NewMemoryStore()
	secret.Remember(secrets, "a@b.c", "stale")
	a, err := New(context.Background(), cfg, Options{LogOutput: &bytes.Buffer{}, Secrets: secrets})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	a.restoreSession(context.Background())
	if a.State().Authenticated() {
		t.Error("authenticated with a stale password")
	}
}
