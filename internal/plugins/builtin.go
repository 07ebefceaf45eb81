package plugins

import "spe/internal/panel"

// Register adds the built-in panel kinds to reg in display order.
func Register(reg *panel.Registry) {
	reg.Register(panel.Descriptor{
		TypeName:    TypeText,
		Description: "A Markdown-formatted text field",
		Construct:   func(id string) panel.Panel { return NewText(id) },
		Deserialize: deserializeText,
	})
	reg.Register(panel.Descriptor{
		TypeName:    TypePicture,
		Description: "A picture from a link or from a file",
		Construct:   func(id string) panel.Panel { return NewPicture(id) },
		Deserialize: deserializePicture,
		Blobs:       pictureBlobs,
	})
	reg.Register(panel.Descriptor{
		TypeName:    TypeAction,
		Description: "A table organising actions",
		Construct:   func(id string) panel.Panel { return NewAction(id) },
		Deserialize: deserializeAction,
	})
}

// NewRegistry returns a registry with the built-in panels registered.
func NewRegistry() *panel.Registry {
	reg := panel.NewRegistry()
	Register(reg)
	return reg
}
