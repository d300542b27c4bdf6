package gpucmd

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucmd/gpucore"
	"github.com/gogpu/gpucmd/internal/cache"
	"github.com/gogpu/gpucmd/internal/wgslreflect"
)

// Context owns a device and every resource created on it.
//
// Resource tables are guarded by an RWMutex, so resources may be created and
// destroyed from any goroutine. Handles are plain values and may be shared.
type Context struct {
	device  gpucore.Device
	opts    contextOptions
	metrics *Metrics
	shaders *cache.Cache[[sha256.Size]byte, *wgslreflect.Module]

	mu       sync.RWMutex
	buffers  table[bufferEntry]
	textures table[textureEntry]
	views    table[viewEntry]

	destroyed atomic.Bool
}

// New creates a Context on device. The Context takes ownership of the
// device and destroys it in Destroy.
func New(device gpucore.Device, opts ...ContextOption) (*Context, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{
		device:  device,
		opts:    o,
		shaders: cache.New[[sha256.Size]byte, *wgslreflect.Module](o.shaderCacheSize),
	}
	if o.registerer != nil {
		m, err := NewMetrics(o.registerer)
		if err != nil {
			return nil, fmt.Errorf("gpucmd: register metrics: %w", err)
		}
		c.metrics = m
	}
	trackDevice(c)

	Logger().Info("gpucmd: context created", "device", device.Name(), "validation", o.validation)
	return c, nil
}

// Device returns the underlying device.
func (c *Context) Device() gpucore.Device { return c.device }

// Metrics returns the context's collectors, or nil without WithMetrics.
func (c *Context) Metrics() *Metrics { return c.metrics }

// Validation reports whether binding validation is on.
func (c *Context) Validation() bool { return c.opts.validation }

// Destroy waits for the device to finish all submitted work, then destroys
// it. Live resources are released with the device. Destroy is idempotent.
func (c *Context) Destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	untrackDevice(c)

	err := c.device.WaitIdle()
	c.mu.RLock()
	leaked := c.buffers.len() + c.textures.len() + c.views.len()
	c.mu.RUnlock()
	if leaked > 0 {
		Logger().Warn("gpucmd: context destroyed with live resources", "count", leaked)
	}
	c.device.Destroy()
	if err != nil {
		return fmt.Errorf("gpucmd: destroy: %w", err)
	}
	return nil
}
