package domain

import "time"

// CatalogKey is the storage key holding the JSON array of all descriptors.
const CatalogKey = "spe-pages"

// Descriptor is the catalog entry for one document. It carries metadata only,
// never panel content.
type Descriptor struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Timestamp  int64    `json:"ts"` // last modification, unix milliseconds
	PanelTypes []string `json:"panelTypes"`
}

// LastModified returns the descriptor timestamp as a time.Time.
func (d Descriptor) LastModified() time.Time {
	return time.UnixMilli(d.Timestamp)
}

// Saveable reports whether every field required for persisting is populated.
func (d Descriptor) Saveable() bool {
	return d.ID != "" && d.Name != "" && d.Timestamp > 0 && d.PanelTypes != nil
}

// Clone returns a deep copy so callers can't alias the panel type slice.
func (d Descriptor) Clone() Descriptor {
	c := d
	if d.PanelTypes != nil {
		c.PanelTypes = append([]string(nil), d.PanelTypes...)
	}
	return c
}

// Catalog is the set of descriptors known to this client, in insertion order.
type Catalog []Descriptor

// Index returns the position of the descriptor with the given id, or -1.
func (c Catalog) Index(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the descriptor with the given id.
func (c Catalog) Find(id string) (Descriptor, bool) {
	if i := c.Index(id); i >= 0 {
		return c[i].Clone(), true
	}
	return Descriptor{}, false
}

// FindByName returns the first descriptor carrying the given name.
func (c Catalog) FindByName(name string) (Descriptor, bool) {
	for i := range c {
		if c[i].Name == name {
			return c[i].Clone(), true
		}
	}
	return Descriptor{}, false
}

// Upsert appends d when its id is new and merges it in place otherwise.
func (c Catalog) Upsert(d Descriptor) Catalog {
	if i := c.Index(d.ID); i >= 0 {
		c[i] = d.Clone()
		return c
	}
	return append(c, d.Clone())
}

// Remove drops the descriptor with the given id. It reports whether one was removed.
func (c Catalog) Remove(id string) (Catalog, bool) {
	i := c.Index(id)
	if i < 0 {
		return c, false
	}
	return append(c[:i:i], c[i+1:]...), true
}

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for i := range c {
		out[i] = c[i].Clone()
	}
	return out
}
