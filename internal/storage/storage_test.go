package storage_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"spe/internal/domain"
	"spe/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Shared contract checks, run against every in-process backend
// ─────────────────────────────────────────────────────────────

type backend interface {
	domain.Store
	domain.BlobCache
}

func checkStore(t *testing.T, s domain.Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "a", "2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if v, err := s.Get(ctx, "a"); err != nil || v != "2" {
		t.Fatalf("Get(a) = %q, %v; want 2", v, err)
	}

	err := s.SetMany(ctx,
		domain.Entry{Key: "doc-1", Value: `[{"panelType":"Text","id":"x","data":{"text":"hi"}}]`},
		domain.Entry{Key: domain.CatalogKey, Value: `[]`},
	)
	if err != nil {
		t.Fatalf("SetMany() error = %v", err)
	}
	if v, _ := s.Get(ctx, domain.CatalogKey); v != "[]" {
		t.Errorf("catalog = %q, want []", v)
	}
	if v, _ := s.Get(ctx, "doc-1"); v == "" {
		t.Error("doc-1 body missing after SetMany")
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "never-there"); err != nil {
		t.Errorf("Delete(absent) error = %v, want nil", err)
	}
}

func checkBlobs(t *testing.T, c domain.BlobCache) {
	t.Helper()
	ctx := context.Background()

	if _, err := c.GetBlob(ctx, "image/none"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetBlob(missing) error = %v, want ErrNotFound", err)
	}
	want := domain.Blob{Data: []byte{0x89, 'P', 'N', 'G', 1, 2, 3}, ContentType: "image/png"}
	if err := c.PutBlob(ctx, "image/p1", want); err != nil {
		t.Fatalf("PutBlob() error = %v", err)
	}
	got, err := c.GetBlob(ctx, "image/p1")
	if err != nil {
		t.Fatalf("GetBlob() error = %v", err)
	}
	if !bytes.Equal(got.Data, want.Data) || got.ContentType != want.ContentType {
		t.Errorf("GetBlob() = %+v, want %+v", got, want)
	}
	if err := c.DeleteBlob(ctx, "image/p1"); err != nil {
		t.Fatalf("DeleteBlob() error = %v", err)
	}
	if _, err := c.GetBlob(ctx, "image/p1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetBlob after delete error = %v, want ErrNotFound", err)
	}
	if err := c.DeleteBlob(ctx, "image/p1"); err != nil {
		t.Errorf("DeleteBlob(absent) error = %v, want nil", err)
	}
}

func TestMemory(t *testing.T) {
	m := storage.NewMemory()
	defer m.Close()
	var _ backend = m

	t.Run("store", func(t *testing.T) { checkStore(t, m) })
	t.Run("blobs", func(t *testing.T) { checkBlobs(t, m) })
}

func TestMemory_Keys(t *testing.T) {
	m := storage.NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "b", "")
	_ = m.Set(ctx, "a", "")
	keys := m.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}
}

func TestMemory_BlobIsCopied(t *testing.T) {
	m := storage.NewMemory()
	ctx := context.Background()
	data := []byte("abc")
	_ = m.PutBlob(ctx, "k", domain.Blob{Data: data})
	data[0] = 'x'
	got, _ := m.GetBlob(ctx, "k")
	if string(got.Data) != "abc" {
		t.Errorf("stored blob aliased caller slice: %q", got.Data)
	}
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "spe.db")
	s, err := storage.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()
	var _ backend = s

	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
	t.Run("store", func(t *testing.T) { checkStore(t, s) })
	t.Run("blobs", func(t *testing.T) { checkBlobs(t, s) })
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spe.db")
	ctx := context.Background()

	s, err := storage.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := s.Set(ctx, domain.CatalogKey, `[{"id":"x"}]`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	s.Close()

	s, err = storage.OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if v, err := s.Get(ctx, domain.CatalogKey); err != nil || v != `[{"id":"x"}]` {
		t.Errorf("Get after reopen = %q, %v", v, err)
	}
}

func TestBlobDir(t *testing.T) {
	d, err := storage.NewBlobDir(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("NewBlobDir() error = %v", err)
	}
	checkBlobs(t, d)
}

func TestBlobDir_SniffsWithoutContentType(t *testing.T) {
	d, err := storage.NewBlobDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobDir() error = %v", err)
	}
	ctx := context.Background()
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")
	if err := d.PutBlob(ctx, "image/x", domain.Blob{Data: png}); err != nil {
		t.Fatalf("PutBlob() error = %v", err)
	}
	got, err := d.GetBlob(ctx, "image/x")
	if err != nil {
		t.Fatalf("GetBlob() error = %v", err)
	}
	if got.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", got.ContentType)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("sqlite default driver", func(t *testing.T) {
		b, err := storage.Open(ctx, storage.Options{Path: filepath.Join(dir, "a.db")})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer b.Close()
		if b.WatchPath == "" {
			t.Error("WatchPath empty for sqlite backend")
		}
	})

	t.Run("memory with blob dir", func(t *testing.T) {
		b, err := storage.Open(ctx, storage.Options{Driver: "memory", BlobDir: filepath.Join(dir, "blobs")})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer b.Close()
		if _, ok := b.Blobs.(*storage.BlobDir); !ok {
			t.Errorf("Blobs = %T, want *storage.BlobDir", b.Blobs)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := storage.Open(ctx, storage.Options{Driver: "redis"})
		if !errors.Is(err, storage.ErrUnsupportedDriver) {
			t.Errorf("Open() error = %v, want ErrUnsupportedDriver", err)
		}
	})
}

func TestDSNBuilders(t *testing.T) {
	if got := storage.PostgresDSN("db", 0, "u", "p", "spe", ""); got != "host=db port=5432 user=u password=p dbname=spe sslmode=disable" {
		t.Errorf("PostgresDSN() = %q", got)
	}
	if got := storage.MySQLDSN("db", 0, "u", "p", "spe"); got != "u:p@tcp(db:3306)/spe?charset=utf8mb4" {
		t.Errorf("MySQLDSN() = %q", got)
	}
}
