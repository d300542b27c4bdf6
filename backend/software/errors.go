package software

import "errors"

// Software device errors.
var (
	// ErrDeviceDestroyed is returned by operations on a destroyed device.
	ErrDeviceDestroyed = errors.New("software: device destroyed")

	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("software: unknown resource")

	// ErrNoKernel is returned when a pipeline's entry point has no
	// registered kernel.
	ErrNoKernel = errors.New("software: no kernel registered for entry point")

	// ErrOutOfBounds is reported when a command addresses bytes or texels
	// outside its resource.
	ErrOutOfBounds = errors.New("software: access out of bounds")

	// ErrUnsupportedFormat is returned for textures whose format has no
	// texel size.
	ErrUnsupportedFormat = errors.New("software: unsupported texture format")
)
