package storage

import (
	"context"
	"sync"

	"spe/internal/domain"
)

// Memory is an in-process Store and BlobCache. Nothing survives Close.
type Memory struct {
	mu    sync.RWMutex
	kv    map[string]string
	blobs map[string]domain.Blob
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{kv: make(map[string]string), blobs: make(map[string]domain.Blob)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	if !ok {
		return "", domain.NotFoundf("key %q", key)
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.kv[key] = value
	m.mu.Unlock()
	return nil
}

// SetMany applies every entry under one lock, so readers never see half of it.
func (m *Memory) SetMany(_ context.Context, entries ...domain.Entry) error {
	m.mu.Lock()
	for _, e := range entries {
		m.kv[e.Key] = e.Value
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.kv, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetBlob(_ context.Context, key string) (domain.Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return domain.Blob{}, domain.NotFoundf("blob %q", key)
	}
	return domain.Blob{Data: append([]byte(nil), b.Data...), ContentType: b.ContentType}, nil
}

func (m *Memory) PutBlob(_ context.Context, key string, blob domain.Blob) error {
	m.mu.Lock()
	m.blobs[key] = domain.Blob{Data: append([]byte(nil), blob.Data...), ContentType: blob.ContentType}
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteBlob(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

// Keys lists every stored key. Intended for diagnostics and tests.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.kv))
	for k := range m.kv {
		out = append(out, k)
	}
	return out
}

func (m *Memory) Close() error { return nil }
