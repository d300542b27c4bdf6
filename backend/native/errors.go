package native

import "errors"

// Package errors for the HAL backend.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrBackendMissing is returned when the requested HAL backend is not
	// compiled in.
	ErrBackendMissing = errors.New("native: HAL backend not registered")

	// ErrDeviceDestroyed is returned by calls on a destroyed device.
	ErrDeviceDestroyed = errors.New("native: device destroyed")

	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("native: unknown resource")

	// ErrNotMapped is returned by BufferData for device-local buffers.
	ErrNotMapped = errors.New("native: buffer is not host visible")

	// ErrUnsupportedFill is returned for FillBuffer with a non-zero value;
	// HAL clears only to zero.
	ErrUnsupportedFill = errors.New("native: fill value must be zero")

	// ErrNotHALProvider is returned when a device provider does not expose
	// its HAL device and queue.
	ErrNotHALProvider = errors.New("native: provider does not expose HAL types")
)
