package backend

import (
	"errors"

	"github.com/gogpu/gpucmd/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered
	// or cannot open a device on this machine.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend name constants.
const (
	// Software is the CPU device executing Go compute kernels.
	Software = "software"
	// Native is the gogpu/wgpu HAL device on Vulkan.
	Native = "native"
	// Noop is the gogpu/wgpu HAL device on the noop backend. It accepts every
	// command and executes none; it exercises HAL plumbing in tests.
	Noop = "noop"
)

// Config is passed to a backend factory.
type Config struct {
	// Workers is the number of goroutines the software device runs
	// workgroups on. Zero means GOMAXPROCS.
	Workers int

	// Adapter selects a native adapter whose name contains this string.
	// Empty selects the first discrete or integrated GPU.
	Adapter string
}

// Factory opens a device.
type Factory func(cfg Config) (gpucore.Device, error)
