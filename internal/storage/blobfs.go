package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"spe/internal/domain"
)

const contentTypeExt = ".ctype"

// BlobDir is a BlobCache that keeps each blob as a file under a directory.
// Keys are path-escaped, so "image/abc" lands in "image%2Fabc".
type BlobDir struct {
	dir string
}

// NewBlobDir creates dir if needed and returns a cache rooted there.
func NewBlobDir(dir string) (*BlobDir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &BlobDir{dir: dir}, nil
}

// Dir returns the root directory.
func (b *BlobDir) Dir() string { return b.dir }

func (b *BlobDir) path(key string) string {
	return filepath.Join(b.dir, url.PathEscape(key))
}

func (b *BlobDir) GetBlob(_ context.Context, key string) (domain.Blob, error) {
	p := b.path(key)
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Blob{}, domain.NotFoundf("blob %q", key)
	}
	if err != nil {
		return domain.Blob{}, fmt.Errorf("read blob %q: %w", key, err)
	}
	ct, err := os.ReadFile(p + contentTypeExt)
	if err != nil {
		ct = []byte(http.DetectContentType(data))
	}
	return domain.Blob{Data: data, ContentType: string(ct)}, nil
}

// PutBlob writes through a temp file and renames it into place.
func (b *BlobDir) PutBlob(_ context.Context, key string, blob domain.Blob) error {
	p := b.path(key)
	if err := writeFileAtomic(p, blob.Data); err != nil {
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	if blob.ContentType != "" {
		if err := writeFileAtomic(p+contentTypeExt, []byte(blob.ContentType)); err != nil {
			return fmt.Errorf("write blob %q: %w", key, err)
		}
	} else {
		_ = os.Remove(p + contentTypeExt)
	}
	return nil
}

func (b *BlobDir) DeleteBlob(_ context.Context, key string) error {
	p := b.path(key)
	for _, f := range []string{p, p + contentTypeExt} {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete blob %q: %w", key, err)
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
