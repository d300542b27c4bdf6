// Package backend is the registry of gpucmd devices.
//
// Device packages register a [Factory] from their init() functions, and
// programs select one at runtime by name:
//
//	import (
//	    "github.com/gogpu/gpucmd/backend"
//	    _ "github.com/gogpu/gpucmd/backend/native"
//	    _ "github.com/gogpu/gpucmd/backend/software"
//	)
//
//	dev, err := backend.Open(backend.Software, backend.Config{Workers: 4})
//
// Default opens the best available device, trying the native HAL device
// first and falling back to the software device.
//
// # Available Backends
//
//   - "software": CPU device, always available
//   - "native": gogpu/wgpu HAL on Vulkan
//   - "noop": gogpu/wgpu HAL on the noop backend, for plumbing tests
package backend
