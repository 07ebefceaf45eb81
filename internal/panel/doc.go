// Package panel defines the panel contract, the registry that maps panel type
// names to constructors and deserializers, and the Document that holds the
// live panels of the open document in display order.
//
// The registry is the only extension seam: a new panel kind registers a
// Descriptor and needs no change anywhere else.
//
//	reg := panel.NewRegistry()
//	plugins.Register(reg)
//	p, _ := reg.New("Text")
//	doc := panel.NewDocument()
//	doc.Append(p)
package panel
