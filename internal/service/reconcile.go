package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"spe/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Reconciliation: last-writer-wins merge with the remote overview
// ─────────────────────────────────────────────────────────────

// Report summarises one reconciliation run.
type Report struct {
	RunID     string            `json:"runId"`
	Adopted   []string          `json:"adopted,omitempty"`   // remote-only, now local
	Preloaded []string          `json:"preloaded,omitempty"` // remote newer, local overwritten
	Pushed    []string          `json:"pushed,omitempty"`    // local newer or equal, sent to remote
	Failed    map[string]string `json:"failed,omitempty"`    // id -> error
}

type syncAction int

const (
	actionAdopt syncAction = iota
	actionPreload
	actionPush
)

type syncItem struct {
	action syncAction
	remote domain.Descriptor // adopt, preload
	local  domain.Descriptor // push
}

// plan classifies every descriptor. Ties go to the local copy.
func plan(local, remote domain.Catalog) []syncItem {
	var items []syncItem
	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		l, ok := local.Find(r.ID)
		switch {
		case !ok:
			items = append(items, syncItem{action: actionAdopt, remote: r})
		case r.Timestamp > l.Timestamp:
			items = append(items, syncItem{action: actionPreload, remote: r})
		default:
			items = append(items, syncItem{action: actionPush, local: l})
		}
	}
	// Local-only documents were never uploaded.
	for _, l := range local {
		if !seen[l.ID] {
			items = append(items, syncItem{action: actionPush, local: l})
		}
	}
	return items
}

// Reconcile merges the local catalog with the remote overview. A failure to
// fetch the overview leaves all state untouched. Per-document failures are
// collected in the report and joined into the returned error; the run is
// safe to repeat.
func (h *StateHandler) Reconcile(ctx context.Context) (report Report, err error) {
	report.RunID = uuid.NewString()
	ctx, span := h.startSpan(ctx, "Reconcile", attribute.String("sync.run_id", report.RunID))
	start := time.Now()
	log := h.log.With("run", report.RunID)
	defer func() {
		h.metrics.RecordReconcile(ctx, report, time.Since(start), err)
		if err != nil {
			log.Warn("reconciliation finished with errors", "error", err)
			h.emitter.Emit(ctx, EventSyncFailed, report)
		} else {
			h.emitter.Emit(ctx, EventSyncCompleted, report)
		}
		endSpan(span, err)
	}()

	if !h.Authenticated() {
		return report, domain.ErrNotAuthenticated
	}

	overview, err := h.remote.GetOverview(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch overview: %w", h.remoteErr(ctx, err))
	}
	items := plan(h.Catalog(), overview)
	log.Info("reconciling", "remote", len(overview), "items", len(items))

	var (
		mu       sync.Mutex
		errs     []error
		fallback []domain.Descriptor // remote entries we failed to take over
	)
	record := func(it syncItem, err error) {
		mu.Lock()
		defer mu.Unlock()
		id := it.local.ID
		if it.action != actionPush {
			id = it.remote.ID
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[id] = err.Error()
			if it.action != actionPush {
				fallback = append(fallback, it.remote)
			}
			return
		}
		switch it.action {
		case actionAdopt:
			report.Adopted = append(report.Adopted, id)
		case actionPreload:
			report.Preloaded = append(report.Preloaded, id)
		case actionPush:
			report.Pushed = append(report.Pushed, id)
		}
	}

	var g errgroup.Group
	g.SetLimit(h.maxParallel)
	for _, it := range items {
		g.Go(func() error {
			if it.action == actionPush {
				record(it, h.push(ctx, it.local))
			} else {
				record(h.preload(ctx, it))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Adopted)
	sort.Strings(report.Preloaded)
	sort.Strings(report.Pushed)

	// Never let a failed take-over downgrade or drop the remote entry, nor
	// let it hide a newer local save.
	merged := h.Catalog()
	for _, r := range fallback {
		if l, ok := merged.Find(r.ID); ok && l.Timestamp >= r.Timestamp {
			continue
		}
		merged = merged.Upsert(r)
	}
	if err := h.remote.SetOverview(ctx, merged); err != nil {
		errs = append(errs, fmt.Errorf("push overview: %w", h.remoteErr(ctx, err)))
	}

	if len(report.Adopted)+len(report.Preloaded) > 0 {
		h.emitter.Emit(ctx, EventCatalogChanged, h.Catalog())
	}
	log.Info("reconciled",
		"adopted", len(report.Adopted),
		"preloaded", len(report.Preloaded),
		"pushed", len(report.Pushed),
		"failed", len(report.Failed),
	)
	return report, errors.Join(errs...)
}

// preload downloads the remote body of the item and stores it with the remote
// descriptor. It is a save carrying the remote timestamp. If a local save
// caught up since planning, the local copy is pushed instead and the
// returned item says so.
func (h *StateHandler) preload(ctx context.Context, it syncItem) (syncItem, error) {
	remote := it.remote
	unlock := h.locks.Lock(remote.ID)
	defer unlock()

	if local, ok := h.Catalog().Find(remote.ID); ok && local.Timestamp >= remote.Timestamp {
		return h.supersede(ctx, it, local)
	}

	records, err := h.remote.LoadDocument(ctx, remote.ID)
	if err != nil {
		return it, fmt.Errorf("load remote body: %w", h.remoteErr(ctx, err))
	}
	if records == nil {
		records = []domain.PanelRecord{}
	}
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return it, err
		}
	}
	body, err := json.Marshal(records)
	if err != nil {
		return it, err
	}
	if remote.PanelTypes == nil {
		remote.PanelTypes = domain.PanelTypes(records)
	}

	var kept *domain.Descriptor
	_, err = h.mutateCatalog(ctx, func(c domain.Catalog) (domain.Catalog, bool) {
		if prev, ok := c.Find(remote.ID); ok && prev.Timestamp >= remote.Timestamp {
			kept = &prev
			return c, false
		}
		return c.Upsert(remote), true
	}, domain.Entry{Key: remote.ID, Value: string(body)})
	if err != nil {
		return it, fmt.Errorf("store body: %w", err)
	}
	if kept != nil {
		return h.supersede(ctx, it, *kept)
	}
	return it, nil
}

// supersede turns it into a push of local. The caller holds the id lock.
func (h *StateHandler) supersede(ctx context.Context, it syncItem, local domain.Descriptor) (syncItem, error) {
	h.log.Debug("local copy is newer than planned, pushing instead",
		"id", local.ID, "local", local.Timestamp, "remote", it.remote.Timestamp)
	it.action = actionPush
	it.local = local
	return it, h.pushLocked(ctx, local.ID)
}

// push sends the locally stored body of doc to the remote.
func (h *StateHandler) push(ctx context.Context, local domain.Descriptor) error {
	unlock := h.locks.Lock(local.ID)
	defer unlock()
	return h.pushLocked(ctx, local.ID)
}

// pushLocked uploads the cached payloads the body of id points at, then the
// body itself. Payloads missing from the cache were never fetched from the
// remote and are left alone.
func (h *StateHandler) pushLocked(ctx context.Context, id string) error {
	records, err := h.readBody(ctx, id)
	if err != nil {
		return err
	}
	if err := h.uploadBlobs(ctx, records); err != nil {
		return err
	}
	if err := h.remote.SaveDocument(ctx, id, records); err != nil {
		return fmt.Errorf("push body: %w", h.remoteErr(ctx, err))
	}
	return nil
}

func (h *StateHandler) uploadBlobs(ctx context.Context, records []domain.PanelRecord) error {
	refs, err := h.registry.BlobRefs(records)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		blob, err := h.blobs.GetBlob(ctx, ref.Key)
		if errors.Is(err, domain.ErrNotFound) {
			h.log.Debug("blob not cached, assuming remote copy", "key", ref.Key)
			continue
		}
		if err != nil {
			return fmt.Errorf("read blob %s: %w", ref.Key, err)
		}
		if err := h.remote.UploadBlob(ctx, ref.RemoteID, blob); err != nil {
			return fmt.Errorf("upload blob %s: %w", ref.Key, h.remoteErr(ctx, err))
		}
	}
	return nil
}
