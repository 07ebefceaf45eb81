// Package idgen mints opaque identifiers for documents and panels.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Size is the number of random bytes behind every id.
const Size = 12

// New returns 24 lowercase hex characters from 12 bytes of crypto/rand.
// Ids are not sortable and carry no sequence.
func New() string {
	var b [Size]byte
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Valid reports whether id has the shape produced by New.
func Valid(id string) bool {
	if len(id) != Size*2 {
		return false
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
