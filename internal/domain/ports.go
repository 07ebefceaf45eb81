package domain

import "context"

// Entry is a single key/value write.
type Entry struct {
	Key   string
	Value string
}

// Store is the local key-value persistence port. Get returns ErrNotFound for
// missing keys. SetMany writes every entry atomically where the backend can,
// and in the given order otherwise.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, entries ...Entry) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// BlobCache maps synthetic keys to binary payloads. Get returns ErrNotFound
// for missing keys.
type BlobCache interface {
	GetBlob(ctx context.Context, key string) (Blob, error)
	PutBlob(ctx context.Context, key string, blob Blob) error
	DeleteBlob(ctx context.Context, key string) error
}

// Credentials identify an account on the remote service.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// BlobRemote is the blob half of the remote contract, the only part panels need.
type BlobRemote interface {
	UploadBlob(ctx context.Context, id string, blob Blob) error
	DownloadBlob(ctx context.Context, id string) (Blob, error)
}

// Remote is the contract the state handler depends on to reach the server.
type Remote interface {
	BlobRemote
	Authenticate(ctx context.Context, creds Credentials) error
	Register(ctx context.Context, creds Credentials) error
	CheckSession(ctx context.Context) bool
	GetOverview(ctx context.Context) ([]Descriptor, error)
	SetOverview(ctx context.Context, descriptors []Descriptor) error
	LoadDocument(ctx context.Context, id string) ([]PanelRecord, error)
	SaveDocument(ctx context.Context, id string, records []PanelRecord) error
}
