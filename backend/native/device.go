// Package native implements gpucore.Device on the gogpu/wgpu HAL.
//
// Open selects a Vulkan adapter; the noop HAL backend is available under
// backend.Noop for exercising the plumbing without a GPU. A device owned by
// another gogpu component can be adopted with NewFromProvider.
//
// Each dispatch is lowered to its own HAL compute pass so that resource
// transitions between dispatches of one gpucmd compute pass can be recorded
// outside any pass. Plain binding values are uploaded into transient uniform
// buffers that live until their submission completes.
package native

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Registers HAL backends via init().
	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/gpucmd/backend"
	"github.com/gogpu/gpucmd/gpucore"
)

// pollInterval is how often Wait re-reads the completed submission index.
const pollInterval = 200 * time.Microsecond

func init() {
	backend.Register(backend.Native, func(cfg backend.Config) (gpucore.Device, error) {
		return Open(Config{Backend: gputypes.BackendVulkan, Adapter: cfg.Adapter})
	})
	backend.Register(backend.Noop, func(cfg backend.Config) (gpucore.Device, error) {
		return Open(Config{Backend: gputypes.BackendEmpty, Adapter: cfg.Adapter})
	})
}

// Config selects a HAL backend and adapter.
type Config struct {
	// Backend is the HAL backend variant, BackendVulkan or BackendEmpty.
	Backend gputypes.Backend

	// Adapter selects the first adapter whose name contains this string.
	// Empty prefers a discrete or integrated GPU.
	Adapter string
}

type buffer struct {
	desc   gpucore.BufferDesc
	raw    hal.Buffer
	mapped []byte
	state  gputypes.BufferUsage
}

type texture struct {
	desc gpucore.TextureDesc
	raw  hal.Texture

	// states holds the usage of every subresource, layer-major.
	states []gputypes.TextureUsage
}

func (t *texture) state(layer, mip uint32) *gputypes.TextureUsage {
	return &t.states[layer*t.desc.MipLevelCount+mip]
}

type view struct {
	raw  hal.TextureView
	tex  *texture
	desc gpucore.TextureViewDesc
}

type pipeline struct {
	desc   gpucore.ComputePipelineDesc
	groups []hal.BindGroupLayout
	layout hal.PipelineLayout
	raw    hal.ComputePipeline
}

type release struct {
	after uint64
	fn    func()
}

// inflight holds what a submission needs until it completes.
type inflight struct {
	index    uint64
	encoder  hal.CommandEncoder
	cmd      hal.CommandBuffer
	groups   []hal.BindGroup
	uniforms []hal.Buffer
}

// Device is a HAL-backed gpucore.Device.
//
// Thread safety: all methods are safe for concurrent use. Submissions are
// recorded under the device mutex, so their order matches their indices.
type Device struct {
	name     string
	instance hal.Instance
	dev      hal.Device
	queue    hal.Queue
	external bool

	mu        sync.Mutex
	nextID    uint64
	shaders   map[gpucore.ShaderID]hal.ShaderModule
	buffers   map[gpucore.BufferID]*buffer
	textures  map[gpucore.TextureID]*texture
	views     map[gpucore.TextureViewID]*view
	pipelines map[gpucore.PipelineID]*pipeline
	inflight  []*inflight
	releases  []release
	submitted uint64
	destroyed bool
}

// Open creates a HAL instance for cfg.Backend and opens a device on the
// selected adapter.
func Open(cfg Config) (*Device, error) {
	api, ok := hal.GetBackend(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBackendMissing, cfg.Backend)
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	selected := selectAdapter(adapters, cfg.Adapter)
	if selected == nil {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}
	d := newDevice(selected.Info.Name, open.Device, open.Queue)
	d.instance = instance
	slogger().Info("native: device opened",
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType.String(),
		"backend", selected.Info.Backend.String())
	return d, nil
}

func selectAdapter(adapters []hal.ExposedAdapter, name string) *hal.ExposedAdapter {
	if len(adapters) == 0 {
		return nil
	}
	if name != "" {
		for i := range adapters {
			if strings.Contains(adapters[i].Info.Name, name) {
				return &adapters[i]
			}
		}
		return nil
	}
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// NewFromProvider adopts the HAL device and queue of an external provider.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. Destroy does not destroy an adopted device.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHALProvider
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNotHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNotHALProvider)
	}
	d := newDevice(provider.AdapterInfo().Name, dev, queue)
	d.external = true
	return d, nil
}

func newDevice(name string, dev hal.Device, queue hal.Queue) *Device {
	if name == "" {
		name = "native"
	}
	return &Device{
		name:      name,
		dev:       dev,
		queue:     queue,
		shaders:   make(map[gpucore.ShaderID]hal.ShaderModule),
		buffers:   make(map[gpucore.BufferID]*buffer),
		textures:  make(map[gpucore.TextureID]*texture),
		views:     make(map[gpucore.TextureViewID]*view),
		pipelines: make(map[gpucore.PipelineID]*pipeline),
	}
}

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// SetLogger sets the package logger. Called by gpucmd.SetLogger.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

func (d *Device) allocLocked() uint64 {
	d.nextID++
	return d.nextID
}

// deferLocked runs fn once all submitted work has completed.
func (d *Device) deferLocked(fn func()) {
	if d.submitted <= d.queue.PollCompleted() {
		fn()
		return
	}
	d.releases = append(d.releases, release{after: d.submitted, fn: fn})
}

// CreateBuffer allocates a buffer. Host-visible buffers stay mapped for
// their whole lifetime.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return 0, ErrDeviceDestroyed
	}
	raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: bufferUsage(desc.Memory),
	})
	if err != nil {
		return 0, fmt.Errorf("native: create buffer %q: %w", desc.Label, err)
	}
	b := &buffer{desc: *desc, raw: raw}
	if desc.Memory.HostVisible() && desc.Size > 0 {
		m, err := d.dev.MapBuffer(raw, 0, desc.Size)
		if err != nil {
			d.dev.DestroyBuffer(raw)
			return 0, fmt.Errorf("native: map buffer %q: %w", desc.Label, err)
		}
		b.mapped = unsafe.Slice((*byte)(m.Ptr), desc.Size)
	}
	id := gpucore.BufferID(d.allocLocked())
	d.buffers[id] = b
	return id, nil
}

// DestroyBuffer releases a buffer once in-flight work has completed.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return
	}
	delete(d.buffers, id)
	d.deferLocked(func() {
		if b.mapped != nil {
			_ = d.dev.UnmapBuffer(b.raw)
		}
		d.dev.DestroyBuffer(b.raw)
	})
}

// BufferData returns the persistent mapping of a host-visible buffer.
func (d *Device) BufferData(id gpucore.BufferID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if !b.desc.Memory.HostVisible() {
		return nil, fmt.Errorf("%w: %q", ErrNotMapped, b.desc.Label)
	}
	return b.mapped, nil
}

// CreateTexture allocates a texture in the undefined state.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return 0, ErrDeviceDestroyed
	}
	raw, err := d.dev.CreateTexture(textureDesc(desc))
	if err != nil {
		return 0, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}
	layers := max(desc.ArrayLayers, 1)
	id := gpucore.TextureID(d.allocLocked())
	d.textures[id] = &texture{
		desc:   *desc,
		raw:    raw,
		states: make([]gputypes.TextureUsage, layers*desc.MipLevelCount),
	}
	return id, nil
}

// DestroyTexture releases a texture once in-flight work has completed.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	if !ok {
		return
	}
	delete(d.textures, id)
	d.deferLocked(func() { d.dev.DestroyTexture(t.raw) })
}

// CreateTextureView creates a view over a subresource range.
func (d *Device) CreateTextureView(texID gpucore.TextureID, desc *gpucore.TextureViewDesc) (gpucore.TextureViewID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[texID]
	if !ok {
		return 0, fmt.Errorf("%w: texture %d", ErrUnknownResource, texID)
	}
	raw, err := d.dev.CreateTextureView(t.raw, viewDesc(desc))
	if err != nil {
		return 0, fmt.Errorf("native: create view %q: %w", desc.Label, err)
	}
	id := gpucore.TextureViewID(d.allocLocked())
	d.views[id] = &view{raw: raw, tex: t, desc: *desc}
	return id, nil
}

// DestroyTextureView releases a view once in-flight work has completed.
func (d *Device) DestroyTextureView(id gpucore.TextureViewID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.views[id]
	if !ok {
		return
	}
	delete(d.views, id)
	d.deferLocked(func() { d.dev.DestroyTextureView(v.raw) })
}

// CreateShader compiles WGSL through the HAL, which translates it with naga.
func (d *Device) CreateShader(desc *gpucore.ShaderDesc) (gpucore.ShaderID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return 0, ErrDeviceDestroyed
	}
	mod, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{WGSL: desc.Source},
	})
	if err != nil {
		return 0, fmt.Errorf("native: compile shader %q: %w", desc.Label, err)
	}
	id := gpucore.ShaderID(d.allocLocked())
	d.shaders[id] = mod
	return id, nil
}

// DestroyShader releases a shader module.
func (d *Device) DestroyShader(id gpucore.ShaderID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mod, ok := d.shaders[id]
	if !ok {
		return
	}
	delete(d.shaders, id)
	d.dev.DestroyShaderModule(mod)
}

// CreateComputePipeline builds bind group layouts, a pipeline layout and
// the pipeline.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.PipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mod, ok := d.shaders[desc.Shader]
	if !ok {
		return 0, fmt.Errorf("%w: shader %d", ErrUnknownResource, desc.Shader)
	}
	p := &pipeline{desc: *desc}
	fail := func(err error) (gpucore.PipelineID, error) {
		d.destroyPipeline(p)
		return 0, fmt.Errorf("native: create pipeline %q: %w", desc.Label, err)
	}
	for i, g := range desc.Groups {
		layout, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s/group%d", desc.Label, i),
			Entries: layoutEntries(g),
		})
		if err != nil {
			return fail(err)
		}
		p.groups = append(p.groups, layout)
	}
	layout, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: p.groups,
	})
	if err != nil {
		return fail(err)
	}
	p.layout = layout
	raw, err := d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     mod,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return fail(err)
	}
	p.raw = raw
	id := gpucore.PipelineID(d.allocLocked())
	d.pipelines[id] = p
	return id, nil
}

func (d *Device) destroyPipeline(p *pipeline) {
	if p.raw != nil {
		d.dev.DestroyComputePipeline(p.raw)
	}
	if p.layout != nil {
		d.dev.DestroyPipelineLayout(p.layout)
	}
	for _, g := range p.groups {
		d.dev.DestroyBindGroupLayout(g)
	}
}

// DestroyComputePipeline releases a pipeline once in-flight work has completed.
func (d *Device) DestroyComputePipeline(id gpucore.PipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[id]
	if !ok {
		return
	}
	delete(d.pipelines, id)
	d.deferLocked(func() { d.destroyPipeline(p) })
}

// Submit records list into one HAL command buffer and submits it.
func (d *Device) Submit(list *gpucore.CommandList) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return 0, ErrDeviceDestroyed
	}
	d.reclaimLocked(d.queue.PollCompleted())

	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: list.Label})
	if err != nil {
		return 0, fmt.Errorf("native: create encoder: %w", err)
	}
	if err := enc.BeginEncoding(list.Label); err != nil {
		enc.Destroy()
		return 0, fmt.Errorf("native: begin encoding: %w", err)
	}
	fl := &inflight{encoder: enc}
	r := &recorder{d: d, enc: enc, fl: fl}
	for i := range list.Passes {
		if err := r.record(&list.Passes[i]); err != nil {
			enc.DiscardEncoding()
			d.freeInflight(fl)
			return 0, fmt.Errorf("native: %s: %w", list.Passes[i].Label, err)
		}
	}
	cmd, err := enc.EndEncoding()
	if err != nil {
		d.freeInflight(fl)
		return 0, fmt.Errorf("native: end encoding: %w", err)
	}
	fl.cmd = cmd
	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.freeInflight(fl)
		return 0, fmt.Errorf("native: submit: %w", err)
	}
	fl.index = index
	d.submitted = index
	d.inflight = append(d.inflight, fl)
	slogger().Debug("native: submitted", "label", list.Label, "index", index, "passes", len(list.Passes))
	return index, nil
}

func (d *Device) freeInflight(fl *inflight) {
	for _, g := range fl.groups {
		d.dev.DestroyBindGroup(g)
	}
	for _, b := range fl.uniforms {
		d.dev.DestroyBuffer(b)
	}
	if fl.cmd != nil {
		d.dev.FreeCommandBuffer(fl.cmd)
	}
	fl.encoder.Destroy()
}

// reclaimLocked frees in-flight state and runs deferred releases for
// submissions up to completed.
func (d *Device) reclaimLocked(completed uint64) {
	n := 0
	for _, fl := range d.inflight {
		if fl.index <= completed {
			d.freeInflight(fl)
			continue
		}
		d.inflight[n] = fl
		n++
	}
	clear(d.inflight[n:])
	d.inflight = d.inflight[:n]

	m := 0
	for _, r := range d.releases {
		if r.after <= completed {
			r.fn()
			continue
		}
		d.releases[m] = r
		m++
	}
	clear(d.releases[m:])
	d.releases = d.releases[:m]
}

// Completed returns the highest completed submission index.
func (d *Device) Completed() uint64 {
	return d.queue.PollCompleted()
}

// Wait polls until index completes or timeout elapses.
func (d *Device) Wait(index uint64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		completed := d.queue.PollCompleted()
		if completed >= index {
			d.mu.Lock()
			d.reclaimLocked(completed)
			d.mu.Unlock()
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(min(pollInterval, time.Until(deadline)))
	}
}

// WaitIdle blocks until the GPU is idle and reclaims all in-flight state.
func (d *Device) WaitIdle() error {
	if err := d.dev.WaitIdle(); err != nil {
		return fmt.Errorf("native: wait idle: %w", err)
	}
	d.mu.Lock()
	d.reclaimLocked(d.queue.PollCompleted())
	d.mu.Unlock()
	return nil
}

// Destroy waits for the GPU and releases the device. An adopted device is
// left to its owner. Destroy is idempotent.
func (d *Device) Destroy() {
	d.mu.Lock()
	destroyed := d.destroyed
	d.mu.Unlock()
	if destroyed {
		return
	}
	if err := d.dev.WaitIdle(); err != nil {
		slogger().Warn("native: destroy", "err", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true
	for _, fl := range d.inflight {
		d.freeInflight(fl)
	}
	d.inflight = nil
	for _, r := range d.releases {
		r.fn()
	}
	d.releases = nil
	for _, p := range d.pipelines {
		d.destroyPipeline(p)
	}
	for _, mod := range d.shaders {
		d.dev.DestroyShaderModule(mod)
	}
	for _, v := range d.views {
		d.dev.DestroyTextureView(v.raw)
	}
	for _, t := range d.textures {
		d.dev.DestroyTexture(t.raw)
	}
	for _, b := range d.buffers {
		d.dev.DestroyBuffer(b.raw)
	}
	clear(d.pipelines)
	clear(d.shaders)
	clear(d.views)
	clear(d.textures)
	clear(d.buffers)
	if d.external {
		return
	}
	d.dev.Destroy()
	if d.instance != nil {
		d.instance.Destroy()
	}
	slogger().Info("native: device destroyed", "name", d.name)
}
