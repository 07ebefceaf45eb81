package storage

import "errors"

var (
	// ErrUnsupportedDriver is returned for an unknown storage driver name.
	ErrUnsupportedDriver = errors.New("storage: unsupported driver")

	// ErrConnectionFailed is returned when a server database cannot be reached.
	ErrConnectionFailed = errors.New("storage: connection failed")
)
