package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Check with errors.Is:
//
//	if errors.Is(err, domain.ErrNotFound) {
//	    // unknown document, panel or panel type
//	}
var (
	// ErrNotFound is returned when a panel, document id or panel type does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCorrupted is returned when a catalog, body or record fails to parse
	// or misses required fields.
	ErrCorrupted = errors.New("corrupted")

	// ErrUnresolvable is returned when a blob reference resolves neither
	// locally nor remotely.
	ErrUnresolvable = errors.New("unresolvable resource")

	// ErrPreconditionFailed is returned when an operation needs state that is
	// not established yet, such as saving without a name.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrNotAuthenticated is returned by remote operations without a session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Corruptedf wraps ErrCorrupted with a formatted message.
func Corruptedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupted, fmt.Sprintf(format, args...))
}

// Preconditionf wraps ErrPreconditionFailed with a formatted message.
func Preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPreconditionFailed, fmt.Sprintf(format, args...))
}
