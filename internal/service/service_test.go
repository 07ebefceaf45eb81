package service_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spe/internal/service"
)

// ─────────────────────────────────────────────────────────────
// RunningJobsGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("job-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("job-1") {
		t.Fatal("expected second TryLock for same job to fail")
	}
	if !g.TryLock("job-2") {
		t.Fatal("expected TryLock for different job to succeed")
	}
	g.Unlock("job-1")
	g.Unlock("job-2")

	if !g.TryLock("job-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("job-1")
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("job-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("job-a")
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// Emitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)

	if len(m.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(m.Events))
	}
	if m.Events[0].Event != "test:event" {
		t.Errorf("expected 'test:event', got %q", m.Events[0].Event)
	}
}

func TestMultiEmitter_FansOut(t *testing.T) {
	a, b := &service.MockEmitter{}, &service.MockEmitter{}
	m := service.MultiEmitter{a, nil, b}
	m.Emit(context.Background(), service.EventDocumentSaved, "x")
	if a.Count(service.EventDocumentSaved) != 1 || b.Count(service.EventDocumentSaved) != 1 {
		t.Errorf("fan-out counts = %d, %d", a.Count(service.EventDocumentSaved), b.Count(service.EventDocumentSaved))
	}
}

// ─────────────────────────────────────────────────────────────
// SyncScheduler tests
// ─────────────────────────────────────────────────────────────

type stubReconciler struct {
	authed  bool
	calls   atomic.Int32
	release chan struct{}
}

func (s *stubReconciler) Authenticated() bool { return s.authed }

func (s *stubReconciler) Reconcile(context.Context) (service.Report, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	return service.Report{}, nil
}

func TestSyncScheduler_SkipsWithoutSession(t *testing.T) {
	r := &stubReconciler{}
	s := service.NewSyncScheduler(r, nil)
	if s.RunOnce(context.Background()) {
		t.Error("RunOnce() ran without a session")
	}
	if r.calls.Load() != 0 {
		t.Errorf("Reconcile calls = %d, want 0", r.calls.Load())
	}
}

func TestSyncScheduler_SkipsOverlappingRuns(t *testing.T) {
	r := &stubReconciler{authed: true, release: make(chan struct{})}
	s := service.NewSyncScheduler(r, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunOnce(ctx)
	}()
	for r.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if s.RunOnce(ctx) {
		t.Error("second RunOnce() ran while the first was active")
	}
	close(r.release)
	wg.Wait()

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	s.WaitRunning(waitCtx)
	if r.calls.Load() != 1 {
		t.Errorf("Reconcile calls = %d, want 1", r.calls.Load())
	}
}

func TestSyncScheduler_StartStop(t *testing.T) {
	s := service.NewSyncScheduler(&stubReconciler{}, nil)
	ctx := context.Background()
	if err := s.Start(ctx, "not a cron"); err == nil {
		t.Error("Start(bad expr) error = nil")
	}
	if err := s.Start(ctx, "*/5 * * * *"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx, ""); err != nil {
		t.Errorf("Start(empty) error = %v", err)
	}
	s.Stop()
	s.Stop()
}

// ─────────────────────────────────────────────────────────────
// CatalogWatcher tests
// ─────────────────────────────────────────────────────────────

type countingReloader struct{ n atomic.Int32 }

func (c *countingReloader) ReloadCatalog(context.Context) error {
	c.n.Add(1)
	return nil
}

func TestCatalogWatcher_ReloadsAfterWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spe.db")
	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	r := &countingReloader{}
	w := service.NewCatalogWatcher(r, nil)
	w.SetDebounce(20 * time.Millisecond)
	if err := w.Start(context.Background(), path); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	// Unrelated files in the same directory are ignored.
	_ = os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644)
	for i := range 3 {
		_ = os.WriteFile(path+"-wal", []byte{byte(i)}, 0644)
	}

	deadline := time.Now().Add(3 * time.Second)
	for r.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.n.Load() == 0 {
		t.Fatal("catalog was not reloaded after writes")
	}
}

func TestCatalogWatcher_StopIdempotent(t *testing.T) {
	w := service.NewCatalogWatcher(&countingReloader{}, nil)
	w.Stop()
	if err := w.Start(context.Background(), filepath.Join(t.TempDir(), "x.db")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Stop()
	w.Stop()
}
