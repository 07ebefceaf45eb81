package plugins

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"spe/internal/domain"
	"spe/internal/panel"
)

// ─────────────────────────────────────────────────────────────
// Action panel: a table organising actions
// ─────────────────────────────────────────────────────────────

const TypeAction = "Action"

// Action table columns.
const (
	ColDone = iota
	ColDescription
	ColResponsible
	ColDate
	numColumns
)

// DefaultHeader is the header row of a fresh action table.
var DefaultHeader = [numColumns]string{"", "Description", "Responsible", "Date"}

// ActionRow is one line of the table.
type ActionRow struct {
	Done        bool   `json:"done"`
	Description string `json:"description"`
	Responsible string `json:"responsible"`
	Date        string `json:"date"`
}

// Action is a table of actions with a done checkbox per row.
type Action struct {
	*panel.Base

	mu     sync.RWMutex
	header [numColumns]string
	rows   []ActionRow
}

type actionData struct {
	Header [numColumns]string `json:"header"`
	Rows   *[]ActionRow       `json:"rows"`
}

// NewAction creates an action table with the default header and no rows.
func NewAction(id string) *Action {
	return &Action{Base: panel.NewBase(id, TypeAction), header: DefaultHeader}
}

// Header returns the column titles.
func (a *Action) Header() [numColumns]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.header
}

// Rows returns a copy of the table rows.
func (a *Action) Rows() []ActionRow {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]ActionRow(nil), a.rows...)
}

// AddRow appends an empty row and returns its index.
func (a *Action) AddRow() int {
	a.mu.Lock()
	a.rows = append(a.rows, ActionRow{})
	n := len(a.rows) - 1
	a.mu.Unlock()
	a.Notify()
	return n
}

// RemoveRow drops the row at index row.
func (a *Action) RemoveRow(row int) error {
	a.mu.Lock()
	if row < 0 || row >= len(a.rows) {
		a.mu.Unlock()
		return domain.NotFoundf("action row %d", row)
	}
	a.rows = append(a.rows[:row:row], a.rows[row+1:]...)
	a.mu.Unlock()
	a.Notify()
	return nil
}

// SetDone ticks or clears the checkbox of row.
func (a *Action) SetDone(row int, done bool) error {
	return a.update(row, func(r *ActionRow) error {
		r.Done = done
		return nil
	})
}

// SetCell writes value into column col of row. The done column accepts
// strconv.ParseBool input.
func (a *Action) SetCell(row, col int, value string) error {
	return a.update(row, func(r *ActionRow) error {
		switch col {
		case ColDone:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return domain.Preconditionf("done column expects a boolean, got %q", value)
			}
			r.Done = b
		case ColDescription:
			r.Description = value
		case ColResponsible:
			r.Responsible = value
		case ColDate:
			r.Date = value
		default:
			return domain.NotFoundf("action column %d", col)
		}
		return nil
	})
}

func (a *Action) update(row int, fn func(*ActionRow) error) error {
	a.mu.Lock()
	if row < 0 || row >= len(a.rows) {
		a.mu.Unlock()
		return domain.NotFoundf("action row %d", row)
	}
	before := a.rows[row]
	if err := fn(&a.rows[row]); err != nil {
		a.mu.Unlock()
		return err
	}
	changed := a.rows[row] != before
	a.mu.Unlock()
	if changed {
		a.Notify()
	}
	return nil
}

func (a *Action) Serialize(_ context.Context, _ panel.Env) (domain.PanelRecord, error) {
	a.mu.RLock()
	rows := append([]ActionRow{}, a.rows...)
	payload := actionData{Header: a.header, Rows: &rows}
	a.mu.RUnlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.PanelRecord{}, err
	}
	return a.Record(string(data)), nil
}

func (a *Action) Delete(_ context.Context) error {
	a.Notify()
	return nil
}

func deserializeAction(_ context.Context, rec domain.PanelRecord, _ panel.Env) (panel.Panel, error) {
	var payload actionData
	if err := json.Unmarshal([]byte(rec.Data), &payload); err != nil {
		return nil, domain.Corruptedf("action panel %s: %v", rec.ID, err)
	}
	if payload.Rows == nil {
		return nil, domain.Corruptedf("action panel %s: missing rows", rec.ID)
	}
	a := NewAction(rec.ID)
	if payload.Header != ([numColumns]string{}) {
		a.header = payload.Header
	}
	a.rows = *payload.Rows
	return a, nil
}
