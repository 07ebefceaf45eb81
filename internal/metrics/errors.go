package metrics

import "errors"

var (
	// ErrDisabled is returned by Connect when InfluxDB is switched off.
	ErrDisabled = errors.New("influxdb: disabled")

	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)
