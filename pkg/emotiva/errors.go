package emotiva

import "errors"

var (
	// ErrNotConnected is returned by operations that require an
	// established connection.
	ErrNotConnected = errors.New("not connected")

	// ErrMissingHost is returned when the configuration names no device.
	ErrMissingHost = errors.New("configuration missing host")

	// ErrDisconnecting is returned by Connect while a disconnect is
	// still tearing the previous connection down.
	ErrDisconnecting = errors.New("disconnect in progress")
)
