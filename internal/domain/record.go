package domain

// PanelRecord is the type-erased storage and wire form of one panel.
// Data is owned by the panel type and opaque to everything else.
type PanelRecord struct {
	PanelType string `json:"panelType"`
	ID        string `json:"id"`
	Data      string `json:"data"`
}

// Validate checks that the container-level fields are present.
func (r PanelRecord) Validate() error {
	if r.PanelType == "" || r.ID == "" {
		return Corruptedf("panel record missing panelType or id")
	}
	return nil
}

// PanelTypes lists the panel type of every record, preserving order.
func PanelTypes(records []PanelRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.PanelType)
	}
	return out
}

// Blob is a binary payload referenced indirectly from a panel record.
type Blob struct {
	Data        []byte
	ContentType string
}
