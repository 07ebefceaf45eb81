package service

import (
	"context"
	"sync"

	"spe/internal/logging"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples the state handler from its observers
// ─────────────────────────────────────────────────────────────

// Events emitted by the state handler.
const (
	EventCatalogChanged  = "catalog:changed"
	EventDocumentOpened  = "document:opened"
	EventDocumentSaved   = "document:saved"
	EventDocumentDeleted = "document:deleted"
	EventDocumentChanged = "document:changed"
	EventSessionChanged  = "session:changed"
	EventSyncCompleted   = "sync:completed"
	EventSyncFailed      = "sync:failed"
)

// EventEmitter receives state-handler notifications. The app wires log and
// MQTT sinks; tests use MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
	m.mu.Unlock()
}

// Count returns how many times event was emitted.
func (m *MockEmitter) Count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// LogEmitter writes every event to the logger at debug level.
type LogEmitter struct {
	Log *logging.Logger
}

func (l LogEmitter) Emit(_ context.Context, event string, data any) {
	l.Log.Debug("event", "event", event, "data", data)
}

// MultiEmitter fans an event out to several emitters in order.
type MultiEmitter []EventEmitter

func (m MultiEmitter) Emit(ctx context.Context, event string, data any) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event, data)
		}
	}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, string, any) {}
