// Package software implements gpucore.Device on the CPU.
//
// Copies are byte exact. Compute dispatches run Go kernels registered per
// shader entry point with RegisterKernel; workgroups are spread over a
// worker pool. Submissions execute in order on a queue goroutine, so a
// submission completes asynchronously and Wait is the only blocking call.
package software

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/backend"
	"github.com/gogpu/gpucmd/gpucore"
	"github.com/gogpu/gpucmd/internal/parallel"
)

func init() {
	backend.Register(backend.Software, func(cfg backend.Config) (gpucore.Device, error) {
		return New(Config{Workers: cfg.Workers}), nil
	})
}

// Config configures a software device.
type Config struct {
	// Name is reported by Device.Name. Empty means "software".
	Name string

	// Workers is the number of goroutines running workgroups.
	// Zero means GOMAXPROCS.
	Workers int
}

type kernelKey struct {
	shader string
	entry  string
}

type buffer struct {
	desc gpucore.BufferDesc
	data []byte
}

type texture struct {
	desc   gpucore.TextureDesc
	texel  uint32
	codec  codec
	canUse bool

	// levels holds one byte slice per layer and mip, layer-major.
	levels [][]byte
}

func (t *texture) mipSize(mip uint32) (w, h, d uint32) {
	w = max(1, t.desc.Width>>mip)
	h = max(1, t.desc.Height>>mip)
	d = max(1, t.desc.Depth>>mip)
	if t.desc.Dimension != gputypes.TextureDimension3D {
		d = 1
	}
	return w, h, d
}

func (t *texture) level(layer, mip uint32) []byte {
	return t.levels[layer*t.desc.MipLevelCount+mip]
}

type view struct {
	tex  *texture
	desc gpucore.TextureViewDesc
}

type pipeline struct {
	desc   gpucore.ComputePipelineDesc
	kernel Kernel
}

type release struct {
	after uint64
	fn    func()
}

// Device is a CPU gpucore.Device.
//
// Thread safety: all methods are safe for concurrent use.
type Device struct {
	name string
	pool *parallel.Pool

	mu        sync.Mutex
	nextID    uint64
	kernels   map[kernelKey]Kernel
	shaders   map[gpucore.ShaderID]string
	buffers   map[gpucore.BufferID]*buffer
	textures  map[gpucore.TextureID]*texture
	views     map[gpucore.TextureViewID]*view
	pipelines map[gpucore.PipelineID]*pipeline

	queue     []*submission
	submitted uint64
	releases  []release
	changed   chan struct{}
	resume    chan struct{}
	fault     error
	destroyed bool

	completed atomic.Uint64
	wake      chan struct{}
	done      chan struct{}
	exited    chan struct{}
}

// New creates a software device and starts its queue goroutine.
func New(cfg Config) *Device {
	name := cfg.Name
	if name == "" {
		name = "software"
	}
	d := &Device{
		name:      name,
		pool:      parallel.NewPool(cfg.Workers),
		kernels:   make(map[kernelKey]Kernel),
		shaders:   make(map[gpucore.ShaderID]string),
		buffers:   make(map[gpucore.BufferID]*buffer),
		textures:  make(map[gpucore.TextureID]*texture),
		views:     make(map[gpucore.TextureViewID]*view),
		pipelines: make(map[gpucore.PipelineID]*pipeline),
		changed:   make(chan struct{}),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	go d.run()
	slogger().Info("software: device created", "name", name, "workers", d.pool.Workers())
	return d
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// SetLogger sets the logger of the software backend.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// RegisterKernel registers the kernel run for entry point entry of the
// shader labelled shader. Pipelines created afterwards pick it up.
func (d *Device) RegisterKernel(shader, entry string, k Kernel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels[kernelKey{shader, entry}] = k
}

// Err returns the first fault raised while executing a submission.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fault
}

// Pause holds the queue before its next submission until Resume.
// Submissions already executing finish.
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resume == nil {
		d.resume = make(chan struct{})
	}
}

// Resume releases a paused queue.
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resume != nil {
		close(d.resume)
		d.resume = nil
	}
}

func (d *Device) newIDLocked() uint64 {
	d.nextID++
	return d.nextID
}

// releaseLocked runs fn once every submission made so far has completed.
func (d *Device) releaseLocked(fn func()) {
	if d.completed.Load() >= d.submitted {
		fn()
		return
	}
	d.releases = append(d.releases, release{after: d.submitted, fn: fn})
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gpucore.InvalidID, ErrDeviceDestroyed
	}
	id := gpucore.BufferID(d.newIDLocked())
	d.buffers[id] = &buffer{desc: *desc, data: make([]byte, desc.Size)}
	return id, nil
}

// DestroyBuffer releases a buffer after in-flight submissions complete.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked(func() { delete(d.buffers, id) })
}

// BufferData returns the buffer's bytes. Every memory kind is host
// addressable on the CPU, so only unknown IDs fail.
func (d *Device) BufferData(id gpucore.BufferID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("buffer %d: %w", id, ErrUnknownResource)
	}
	return b.data, nil
}

// CreateTexture allocates a zeroed texture.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	texel, ok := gpucore.TexelSize(desc.Format)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("texture %q: %s: %w", desc.Label, desc.Format, ErrUnsupportedFormat)
	}
	c, canUse := codecFor(desc.Format)
	t := &texture{desc: *desc, texel: texel, codec: c, canUse: canUse}
	t.desc.MipLevelCount = max(t.desc.MipLevelCount, 1)
	t.desc.ArrayLayers = max(t.desc.ArrayLayers, 1)
	t.desc.Depth = max(t.desc.Depth, 1)
	for range t.desc.ArrayLayers {
		for mip := range t.desc.MipLevelCount {
			w, h, dd := t.mipSize(mip)
			t.levels = append(t.levels, make([]byte, uint64(w)*uint64(h)*uint64(dd)*uint64(texel)))
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gpucore.InvalidID, ErrDeviceDestroyed
	}
	id := gpucore.TextureID(d.newIDLocked())
	d.textures[id] = t
	return id, nil
}

// DestroyTexture releases a texture after in-flight submissions complete.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked(func() { delete(d.textures, id) })
}

// CreateTextureView creates a view of a texture's subresource range.
func (d *Device) CreateTextureView(tex gpucore.TextureID, desc *gpucore.TextureViewDesc) (gpucore.TextureViewID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[tex]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("texture %d: %w", tex, ErrUnknownResource)
	}
	id := gpucore.TextureViewID(d.newIDLocked())
	d.views[id] = &view{tex: t, desc: *desc}
	return id, nil
}

// DestroyTextureView releases a view after in-flight submissions complete.
func (d *Device) DestroyTextureView(id gpucore.TextureViewID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked(func() { delete(d.views, id) })
}

// CreateShader records the shader's label. The source is not compiled;
// kernels stand in for its entry points.
func (d *Device) CreateShader(desc *gpucore.ShaderDesc) (gpucore.ShaderID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.ShaderID(d.newIDLocked())
	d.shaders[id] = desc.Label
	return id, nil
}

// DestroyShader forgets a shader.
func (d *Device) DestroyShader(id gpucore.ShaderID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.shaders, id)
}

// CreateComputePipeline binds the pipeline to the kernel registered for its
// shader label and entry point.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.PipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	label, ok := d.shaders[desc.Shader]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("shader %d: %w", desc.Shader, ErrUnknownResource)
	}
	k, ok := d.kernels[kernelKey{label, desc.EntryPoint}]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%s.%s: %w", label, desc.EntryPoint, ErrNoKernel)
	}
	id := gpucore.PipelineID(d.newIDLocked())
	d.pipelines[id] = &pipeline{desc: *desc, kernel: k}
	return id, nil
}

// DestroyComputePipeline releases a pipeline after in-flight submissions
// complete.
func (d *Device) DestroyComputePipeline(id gpucore.PipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked(func() { delete(d.pipelines, id) })
}

// Submit queues list and returns its submission index.
func (d *Device) Submit(list *gpucore.CommandList) (uint64, error) {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return 0, ErrDeviceDestroyed
	}
	d.submitted++
	index := d.submitted
	d.queue = append(d.queue, &submission{index: index, list: list})
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return index, nil
}

// Completed returns the highest completed submission index.
func (d *Device) Completed() uint64 { return d.completed.Load() }

// Wait blocks until submission index completes or timeout elapses.
func (d *Device) Wait(index uint64, timeout time.Duration) bool {
	if d.completed.Load() >= index {
		return true
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		d.mu.Lock()
		ch := d.changed
		d.mu.Unlock()
		if d.completed.Load() >= index {
			return true
		}
		select {
		case <-ch:
		case <-timer.C:
			return d.completed.Load() >= index
		}
	}
}

// WaitIdle blocks until every submission so far has completed.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	target := d.submitted
	d.mu.Unlock()
	for !d.Wait(target, time.Second) {
		select {
		case <-d.exited:
			return ErrDeviceDestroyed
		default:
		}
	}
	return nil
}

// Destroy stops the queue after it drains and releases all resources.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	if d.resume != nil {
		close(d.resume)
		d.resume = nil
	}
	d.mu.Unlock()

	close(d.done)
	<-d.exited
	d.pool.Close()

	d.mu.Lock()
	clear(d.buffers)
	clear(d.textures)
	clear(d.views)
	clear(d.pipelines)
	clear(d.shaders)
	d.releases = nil
	d.mu.Unlock()
	slogger().Info("software: device destroyed", "name", d.name)
}
