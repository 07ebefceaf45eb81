package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"spe/internal/domain"
)

// Document is the ordered collection of live panels of the open document.
// Order is display order and round-trips through SerializeAll.
type Document struct {
	mu       sync.Mutex
	panels   []Panel
	onChange []func()

	// at most one serialization in flight
	serializeMu sync.Mutex
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

// OnChange registers fn to run after any panel mutation or structural change.
func (d *Document) OnChange(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.onChange = append(d.onChange, fn)
	d.mu.Unlock()
}

func (d *Document) changed() {
	d.mu.Lock()
	fns := make([]func(), len(d.onChange))
	copy(fns, d.onChange)
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Append adds p at the end of the document.
func (d *Document) Append(p Panel) {
	d.mu.Lock()
	d.panels = append(d.panels, p)
	d.mu.Unlock()
	p.Subscribe(func(string) { d.changed() })
	d.changed()
}

// Get returns the panel with the given id.
func (d *Document) Get(id string) (Panel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.indexLocked(id); i >= 0 {
		return d.panels[i], nil
	}
	return nil, domain.NotFoundf("panel %s", id)
}

// Panels returns a snapshot of the panels in order.
func (d *Document) Panels() []Panel {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Panel, len(d.panels))
	copy(out, d.panels)
	return out
}

// Len returns the number of panels.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.panels)
}

// Remove deletes the panel with the given id and drops it from the document.
func (d *Document) Remove(ctx context.Context, id string) error {
	d.mu.Lock()
	i := d.indexLocked(id)
	if i < 0 {
		d.mu.Unlock()
		return domain.NotFoundf("element with id %s does not exist", id)
	}
	p := d.panels[i]
	d.panels = append(d.panels[:i:i], d.panels[i+1:]...)
	d.mu.Unlock()

	err := p.Delete(ctx)
	d.changed()
	if err != nil {
		return fmt.Errorf("delete panel %s: %w", id, err)
	}
	return nil
}

// MoveUp swaps the panel with its predecessor. No-op for the first panel.
func (d *Document) MoveUp(id string) error {
	return d.move(id, -1)
}

// MoveDown swaps the panel with its successor. No-op for the last panel.
func (d *Document) MoveDown(id string) error {
	return d.move(id, +1)
}

func (d *Document) move(id string, delta int) error {
	d.mu.Lock()
	i := d.indexLocked(id)
	if i < 0 {
		d.mu.Unlock()
		return domain.NotFoundf("panel %s", id)
	}
	j := i + delta
	if j < 0 || j >= len(d.panels) {
		d.mu.Unlock()
		return nil
	}
	d.panels[i], d.panels[j] = d.panels[j], d.panels[i]
	d.mu.Unlock()
	d.changed()
	return nil
}

// SerializeAll encodes every panel in order. Concurrent calls are serialized.
func (d *Document) SerializeAll(ctx context.Context, env Env) ([]domain.PanelRecord, error) {
	d.serializeMu.Lock()
	defer d.serializeMu.Unlock()

	panels := d.Panels()
	records := make([]domain.PanelRecord, 0, len(panels))
	for i, p := range panels {
		rec, err := p.Serialize(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("serialize panel %d (%s %s): %w", i, p.Type(), p.ID(), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Reset deletes every panel, then clears the document.
func (d *Document) Reset(ctx context.Context) error {
	d.mu.Lock()
	panels := d.panels
	d.panels = nil
	d.mu.Unlock()

	var errs []error
	for _, p := range panels {
		if err := p.Delete(ctx); err != nil {
			errs = append(errs, fmt.Errorf("delete panel %s: %w", p.ID(), err))
		}
	}
	if len(panels) > 0 {
		d.changed()
	}
	return errors.Join(errs...)
}

func (d *Document) indexLocked(id string) int {
	for i, p := range d.panels {
		if p.ID() == id {
			return i
		}
	}
	return -1
}
