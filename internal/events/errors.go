package events

import "errors"

var (
	// ErrConnectionFailed is returned when the broker cannot be reached.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrDisabled is returned by Connect when MQTT is switched off in config.
	ErrDisabled = errors.New("mqtt: disabled")

	// ErrPayloadTooLarge guards the broker's message size limit.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
)
