package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"spe/internal/logging"
)

// ─────────────────────────────────────────────────────────────
// CatalogWatcher: reload the catalog when another process writes
// ─────────────────────────────────────────────────────────────

const watchDebounce = 500 * time.Millisecond

// CatalogReloader is the part of StateHandler the watcher drives.
type CatalogReloader interface {
	ReloadCatalog(ctx context.Context) error
}

// CatalogWatcher watches the local store file (and its SQLite -wal/-shm
// companions) and reloads the catalog after writes settle.
type CatalogWatcher struct {
	target   CatalogReloader
	log      *logging.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCatalogWatcher creates a stopped watcher.
func NewCatalogWatcher(target CatalogReloader, log *logging.Logger) *CatalogWatcher {
	if log == nil {
		log = logging.Discard()
	}
	return &CatalogWatcher{target: target, log: log.With("component", "watcher"), debounce: watchDebounce}
}

// SetDebounce overrides the quiet period before a reload.
func (w *CatalogWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start watches path. Its directory is watched so that files replaced by
// rename are still seen.
func (w *CatalogWatcher) Start(ctx context.Context, path string) error {
	w.Stop()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("catalog watcher: bad path %q: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("catalog watcher: watch %q: %w", filepath.Dir(absPath), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.mu.Lock()
	w.watcher, w.cancel, w.done = watcher, cancel, done
	w.mu.Unlock()

	go w.loop(watchCtx, watcher, absPath, done)
	w.log.Info("watching catalog", "path", absPath)
	return nil
}

func (w *CatalogWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, absPath string, done chan struct{}) {
	defer close(done)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name, _ := filepath.Abs(event.Name)
			if !strings.HasPrefix(name, absPath) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := w.target.ReloadCatalog(ctx); err != nil {
					w.log.Warn("catalog reload failed", "error", err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

// Stop ends watching. Safe to call repeatedly.
func (w *CatalogWatcher) Stop() {
	w.mu.Lock()
	cancel, watcher, done := w.cancel, w.watcher, w.done
	w.cancel, w.watcher, w.done = nil, nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		watcher.Close()
	}
	if done != nil {
		<-done
	}
}
