package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"spe/internal/logging"
)

// ─────────────────────────────────────────────────────────────
// SyncScheduler: periodic reconciliation on a cron expression
// ─────────────────────────────────────────────────────────────

const reconcileJob = "reconcile"

// Reconciler is the part of StateHandler the scheduler drives.
type Reconciler interface {
	Authenticated() bool
	Reconcile(ctx context.Context) (Report, error)
}

// SyncScheduler runs Reconcile on a schedule. A tick that fires while the
// previous run is still going is skipped.
type SyncScheduler struct {
	target Reconciler
	log    *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running runningJobsGuard
}

// NewSyncScheduler creates a stopped scheduler.
func NewSyncScheduler(target Reconciler, log *logging.Logger) *SyncScheduler {
	if log == nil {
		log = logging.Discard()
	}
	return &SyncScheduler{target: target, log: log.With("component", "sync")}
}

// Start (re)schedules reconciliation with a standard five-field cron
// expression. An empty expression only stops the current schedule.
func (s *SyncScheduler) Start(ctx context.Context, expr string) error {
	s.Stop()
	if expr == "" {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(expr, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("sync schedule %q: %w", expr, err)
	}
	c.Start()

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	s.log.Info("sync scheduled", "schedule", expr)
	return nil
}

// RunOnce reconciles now unless there is no session or a run is in progress.
// It reports whether a run happened.
func (s *SyncScheduler) RunOnce(ctx context.Context) bool {
	if !s.target.Authenticated() {
		s.log.Debug("sync skipped, not logged in")
		return false
	}
	if !s.running.TryLock(reconcileJob) {
		s.log.Debug("sync skipped, previous run still active")
		return false
	}
	defer s.running.Unlock(reconcileJob)

	if _, err := s.target.Reconcile(ctx); err != nil {
		s.log.Warn("scheduled sync failed", "error", err)
	}
	return true
}

// WaitRunning blocks until an in-flight run finishes or ctx is cancelled.
func (s *SyncScheduler) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

// Stop removes the schedule. Safe to call repeatedly.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}
