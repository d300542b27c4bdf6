package native

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/backend"
	"github.com/gogpu/gpucmd/gpucore"
)

const copyWGSL = `
@group(0) @binding(0) var<uniform> scale: vec4<f32>;
@group(0) @binding(1) var src: texture_2d<f32>;
@group(0) @binding(2) var dst: texture_storage_2d<rgba8unorm, write>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    textureStore(dst, vec2<i32>(id.xy), textureLoad(src, vec2<i32>(id.xy), 0) * scale);
}
`

func openNoop(t *testing.T) *Device {
	t.Helper()
	d, err := Open(Config{Backend: gputypes.BackendEmpty})
	if err != nil {
		t.Fatalf("Open(noop) error = %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func TestOpen_Noop(t *testing.T) {
	d := openNoop(t)
	if d.Name() == "" {
		t.Error("Name() is empty")
	}
	if got := d.Completed(); got != 0 {
		t.Errorf("Completed() = %d, want 0", got)
	}
}

func TestOpen_UnknownAdapter(t *testing.T) {
	_, err := Open(Config{Backend: gputypes.BackendEmpty, Adapter: "no such adapter"})
	if !errors.Is(err, ErrNoGPU) {
		t.Errorf("Open() error = %v, want ErrNoGPU", err)
	}
}

func TestBackendRegistry_Noop(t *testing.T) {
	if !backend.IsRegistered(backend.Noop) || !backend.IsRegistered(backend.Native) {
		t.Fatalf("Available() = %v, want native and noop registered", backend.Available())
	}
	dev, err := backend.Open(backend.Noop, backend.Config{})
	if err != nil {
		t.Fatalf("backend.Open(noop) error = %v", err)
	}
	dev.Destroy()
}

func TestSelectAdapter(t *testing.T) {
	adapters := []hal.ExposedAdapter{
		{Info: gputypes.AdapterInfo{Name: "llvmpipe", DeviceType: gputypes.DeviceTypeCPU}},
		{Info: gputypes.AdapterInfo{Name: "Radeon 780M", DeviceType: gputypes.DeviceTypeIntegratedGPU}},
		{Info: gputypes.AdapterInfo{Name: "GeForce RTX", DeviceType: gputypes.DeviceTypeDiscreteGPU}},
	}
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"prefers first gpu", "", "Radeon 780M"},
		{"by name", "GeForce", "GeForce RTX"},
		{"cpu by name", "llvm", "llvmpipe"},
		{"no match", "Arc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectAdapter(adapters, tt.query)
			name := ""
			if got != nil {
				name = got.Info.Name
			}
			if name != tt.want {
				t.Errorf("selectAdapter(%q) = %q, want %q", tt.query, name, tt.want)
			}
		})
	}
	if selectAdapter(nil, "") != nil {
		t.Error("selectAdapter(nil) != nil")
	}
}

func TestBufferData(t *testing.T) {
	d := openNoop(t)
	tests := []struct {
		name    string
		memory  gpucore.Memory
		wantErr error
	}{
		{"upload", gpucore.MemoryUpload, nil},
		{"shared", gpucore.MemoryShared, nil},
		{"device", gpucore.MemoryDevice, ErrNotMapped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := d.CreateBuffer(&gpucore.BufferDesc{Label: tt.name, Size: 64, Memory: tt.memory})
			if err != nil {
				t.Fatalf("CreateBuffer() error = %v", err)
			}
			defer d.DestroyBuffer(id)
			data, err := d.BufferData(id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("BufferData() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && len(data) != 64 {
				t.Errorf("len(BufferData()) = %d, want 64", len(data))
			}
		})
	}
	if _, err := d.BufferData(9999); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("BufferData(unknown) error = %v, want ErrUnknownResource", err)
	}
}

func createTexture(t *testing.T, d *Device, mips uint32) gpucore.TextureID {
	t.Helper()
	id, err := d.CreateTexture(&gpucore.TextureDesc{
		Label:         "tex",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureDimension2D,
		Width:         16,
		Height:        16,
		Depth:         1,
		ArrayLayers:   1,
		MipLevelCount: mips,
		Usage: gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst |
			gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	return id
}

func TestSubmit_TransferTracksStates(t *testing.T) {
	d := openNoop(t)
	tex := createTexture(t, d, 3)
	up, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "up", Size: 1024, Memory: gpucore.MemoryUpload})
	if err != nil {
		t.Fatal(err)
	}
	down, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "down", Size: 16, Memory: gpucore.MemoryShared})
	if err != nil {
		t.Fatal(err)
	}

	list := &gpucore.CommandList{Label: "transfer", Passes: []gpucore.Pass{{
		Kind:  gpucore.PassTransfer,
		Label: "transfer/transfer-0",
		Commands: []gpucore.Command{
			gpucore.InitTexture{Texture: tex, MipLevels: 3, ArrayLayers: 1},
			gpucore.CopyBufferToTexture{
				Src:         up,
				BytesPerRow: 64,
				Dst:         gpucore.TextureLocation{Texture: tex},
				Size:        gpucore.Extent3D{Width: 16, Height: 16, Depth: 1},
			},
			gpucore.CopyTextureToBuffer{
				Src:         gpucore.TextureLocation{Texture: tex, MipLevel: 2},
				Dst:         down,
				BytesPerRow: 16,
				Size:        gpucore.Extent3D{Width: 4, Height: 1, Depth: 1},
			},
			gpucore.FillBuffer{Dst: down, Size: 16},
		},
	}}}
	index, err := d.Submit(list)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if index == 0 {
		t.Error("Submit() index = 0")
	}
	if !d.Wait(index, time.Second) {
		t.Fatal("Wait() = false")
	}

	tx := d.textures[tex]
	want := []gputypes.TextureUsage{
		gputypes.TextureUsageCopyDst,
		gputypes.TextureUsageCopyDst,
		gputypes.TextureUsageCopySrc,
	}
	for mip, w := range want {
		if got := *tx.state(0, uint32(mip)); got != w {
			t.Errorf("state(mip %d) = %v, want %v", mip, got, w)
		}
	}
	if got := d.buffers[down].state; got != gputypes.BufferUsageCopyDst {
		t.Errorf("down state = %v, want CopyDst", got)
	}
	if len(d.inflight) != 0 {
		t.Errorf("len(inflight) = %d after Wait, want 0", len(d.inflight))
	}
}

func TestSubmit_ComputeDispatch(t *testing.T) {
	d := openNoop(t)
	tex := createTexture(t, d, 2)
	shader, err := d.CreateShader(&gpucore.ShaderDesc{Label: "copy", Source: copyWGSL})
	if err != nil {
		t.Fatalf("CreateShader() error = %v", err)
	}
	pipe, err := d.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:      "copy",
		Shader:     shader,
		EntryPoint: "main",
		Groups: []gpucore.GroupLayout{{Slots: []gpucore.SlotLayout{
			{Kind: gpucore.SlotUniform, Size: 16},
			{Kind: gpucore.SlotSampledTexture, ViewDimension: gputypes.TextureViewDimension2D, SampleType: gputypes.TextureSampleTypeFloat},
			{Kind: gpucore.SlotStorageTexture, ViewDimension: gputypes.TextureViewDimension2D,
				Format: gputypes.TextureFormatRGBA8Unorm, Access: gputypes.StorageTextureAccessWriteOnly},
		}}},
		WorkgroupSize: [3]uint32{8, 8, 1},
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline() error = %v", err)
	}
	mipView := func(level uint32) gpucore.TextureViewID {
		v, err := d.CreateTextureView(tex, &gpucore.TextureViewDesc{
			Format:          gputypes.TextureFormatRGBA8Unorm,
			Dimension:       gputypes.TextureViewDimension2D,
			BaseMipLevel:    level,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		})
		if err != nil {
			t.Fatalf("CreateTextureView() error = %v", err)
		}
		return v
	}
	src, dst := mipView(0), mipView(1)

	list := &gpucore.CommandList{Label: "compute", Passes: []gpucore.Pass{{
		Kind:  gpucore.PassCompute,
		Label: "compute/compute-0",
		Commands: []gpucore.Command{
			gpucore.SetPipeline{Pipeline: pipe},
			gpucore.BindGroup{Group: 0, Entries: []gpucore.BindingValue{
				{Kind: gpucore.SlotUniform, Plain: make([]byte, 16)},
				{Kind: gpucore.SlotSampledTexture, View: src},
				{Kind: gpucore.SlotStorageTexture, View: dst},
			}},
			gpucore.Dispatch{Groups: [3]uint32{2, 2, 1}},
		},
	}}}
	index, err := d.Submit(list)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	tx := d.textures[tex]
	if got := *tx.state(0, 0); got != gputypes.TextureUsageTextureBinding {
		t.Errorf("mip 0 state = %v, want TextureBinding", got)
	}
	if got := *tx.state(0, 1); got != gputypes.TextureUsageStorageBinding {
		t.Errorf("mip 1 state = %v, want StorageBinding", got)
	}
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if d.Completed() < index {
		t.Errorf("Completed() = %d, want >= %d", d.Completed(), index)
	}

	d.DestroyTextureView(src)
	d.DestroyTextureView(dst)
	d.DestroyComputePipeline(pipe)
	d.DestroyShader(shader)
	d.DestroyTexture(tex)
	if len(d.releases) != 0 {
		t.Errorf("len(releases) = %d after idle destroy, want 0", len(d.releases))
	}
}

func TestSubmit_Errors(t *testing.T) {
	d := openNoop(t)
	buf, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "b", Size: 16})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		cmd     gpucore.Command
		wantErr error
	}{
		{"non-zero fill", gpucore.FillBuffer{Dst: buf, Size: 16, Value: 1}, ErrUnsupportedFill},
		{"unknown buffer", gpucore.FillBuffer{Dst: 777, Size: 16}, ErrUnknownResource},
		{"unknown pipeline", gpucore.SetPipeline{Pipeline: 777}, ErrUnknownResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := &gpucore.CommandList{Passes: []gpucore.Pass{{Label: "p", Commands: []gpucore.Command{tt.cmd}}}}
			if _, err := d.Submit(list); !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDestroy_Idempotent(t *testing.T) {
	d, err := Open(Config{Backend: gputypes.BackendEmpty})
	if err != nil {
		t.Fatal(err)
	}
	d.Destroy()
	d.Destroy()
	if _, err := d.CreateBuffer(&gpucore.BufferDesc{Size: 4}); !errors.Is(err, ErrDeviceDestroyed) {
		t.Errorf("CreateBuffer() after Destroy error = %v, want ErrDeviceDestroyed", err)
	}
	if _, err := d.Submit(&gpucore.CommandList{}); !errors.Is(err, ErrDeviceDestroyed) {
		t.Errorf("Submit() after Destroy error = %v, want ErrDeviceDestroyed", err)
	}
}

type fakeProvider struct {
	dev   hal.Device
	queue hal.Queue
}

func (p *fakeProvider) Device() gpucontext.Device             { return nil }
func (p *fakeProvider) Queue() gpucontext.Queue               { return nil }
func (p *fakeProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (p *fakeProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *fakeProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{Name: "shared"} }

type halFakeProvider struct{ fakeProvider }

func (p *halFakeProvider) HalDevice() any { return p.dev }
func (p *halFakeProvider) HalQueue() any  { return p.queue }

func TestNewFromProvider(t *testing.T) {
	if _, err := NewFromProvider(&fakeProvider{}); !errors.Is(err, ErrNotHALProvider) {
		t.Errorf("NewFromProvider(no hal) error = %v, want ErrNotHALProvider", err)
	}
	if _, err := NewFromProvider(&halFakeProvider{}); !errors.Is(err, ErrNotHALProvider) {
		t.Errorf("NewFromProvider(nil hal) error = %v, want ErrNotHALProvider", err)
	}

	owner := openNoop(t)
	d, err := NewFromProvider(&halFakeProvider{fakeProvider{dev: owner.dev, queue: owner.queue}})
	if err != nil {
		t.Fatalf("NewFromProvider() error = %v", err)
	}
	if d.Name() != "shared" {
		t.Errorf("Name() = %q, want shared", d.Name())
	}
	d.Destroy()

	// The owner's device must survive the adopter's Destroy.
	if _, err := owner.CreateBuffer(&gpucore.BufferDesc{Size: 4}); err != nil {
		t.Errorf("owner CreateBuffer() after adopter Destroy error = %v", err)
	}
}
