package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"spe/internal/domain"
)

// Options selects and parameterizes a backend.
type Options struct {
	Driver   string // memory, sqlite, postgres, mysql, mongo
	Path     string // sqlite file
	DSN      string // postgres/mysql DSN or mongo URI
	Database string // mongo database name
	BlobDir  string // optional; blobs go to files instead of the database
}

// Backend bundles the key-value store and blob cache chosen by Options.
type Backend struct {
	Store domain.Store
	Blobs domain.BlobCache

	// WatchPath is the file an external writer would touch, when there is one.
	WatchPath string

	closers []func() error
}

// Close releases every underlying connection.
func (b *Backend) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open builds the backend described by opts.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	b := &Backend{}
	switch opts.Driver {
	case "", "sqlite":
		s, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		b.Store, b.Blobs, b.WatchPath = s, s, s.Path()
		b.closers = append(b.closers, s.Close)
	case "postgres", "mysql":
		s, err := OpenSQL(ctx, opts.Driver, opts.DSN)
		if err != nil {
			return nil, err
		}
		b.Store, b.Blobs = s, s
		b.closers = append(b.closers, s.Close)
	case "mongo", "mongodb":
		m, err := OpenMongo(ctx, opts.DSN, opts.Database)
		if err != nil {
			return nil, err
		}
		b.Store, b.Blobs = m, m
		b.closers = append(b.closers, m.Close)
	case "memory":
		m := NewMemory()
		b.Store, b.Blobs = m, m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}

	if opts.BlobDir != "" {
		dir, err := NewBlobDir(filepath.Clean(opts.BlobDir))
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Blobs = dir
	}
	return b, nil
}
