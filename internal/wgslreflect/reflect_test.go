package wgslreflect

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

const downsampleWGSL = `
@group(0) @binding(0) var<uniform> modulator: vec4<f32>;
@group(0) @binding(1) var input: texture_2d<f32>;
@group(0) @binding(2) var output: texture_storage_2d<rgba8unorm, write>;

@compute @workgroup_size(8, 4, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let size = textureDimensions(output);
    if (id.x >= size.x || id.y >= size.y) {
        return;
    }
    let v = textureLoad(input, vec2<i32>(id.xy) * 2, 0);
    textureStore(output, vec2<i32>(id.xy), v * modulator);
}
`

const buffersWGSL = `
@group(0) @binding(0) var<storage, read> src: array<u32>;
@group(0) @binding(1) var<storage, read_write> dst: array<u32>;
@group(1) @binding(0) var<uniform> scale: u32;

@compute @workgroup_size(64)
fn double(@builtin(global_invocation_id) id: vec3<u32>) {
    dst[id.x] = src[id.x] * scale;
}
`

func TestReflect_Downsample(t *testing.T) {
	m, err := Reflect(downsampleWGSL)
	if err != nil {
		t.Fatalf("Reflect() error = %v", err)
	}

	if got := len(m.Bindings); got != 3 {
		t.Fatalf("len(Bindings) = %d, want 3", got)
	}

	tests := []struct {
		index int
		name  string
		class Class
	}{
		{0, "modulator", ClassUniform},
		{1, "input", ClassSampledTexture},
		{2, "output", ClassStorageTexture},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := m.Bindings[tt.index]
			if b.Name != tt.name {
				t.Errorf("Name = %q, want %q", b.Name, tt.name)
			}
			if b.Class != tt.class {
				t.Errorf("Class = %v, want %v", b.Class, tt.class)
			}
			if b.Binding != uint32(tt.index) {
				t.Errorf("Binding = %d, want %d", b.Binding, tt.index)
			}
		})
	}

	mod := m.Bindings[0]
	if mod.Scalar != ScalarF32 || mod.Components != 4 || mod.Size != 16 {
		t.Errorf("modulator = (%v, %d, %d), want (f32, 4, 16)", mod.Scalar, mod.Components, mod.Size)
	}
	in := m.Bindings[1]
	if in.Dimension != gputypes.TextureViewDimension2D || in.SampleType != ScalarF32 {
		t.Errorf("input = (%v, %v), want (2D, f32)", in.Dimension, in.SampleType)
	}
	out := m.Bindings[2]
	if out.Format != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("output format = %v, want RGBA8Unorm", out.Format)
	}
	if out.Access != gputypes.StorageTextureAccessWriteOnly {
		t.Errorf("output access = %v, want write-only", out.Access)
	}

	ep, ok := m.EntryPoint("main")
	if !ok {
		t.Fatal("EntryPoint(main) not found")
	}
	if !ep.Compute {
		t.Error("main should be a compute entry point")
	}
	if ep.WorkgroupSize != [3]uint32{8, 4, 1} {
		t.Errorf("WorkgroupSize = %v, want [8 4 1]", ep.WorkgroupSize)
	}
}

func TestReflect_Groups(t *testing.T) {
	m, err := Reflect(buffersWGSL)
	if err != nil {
		t.Fatalf("Reflect() error = %v", err)
	}
	if got := m.GroupCount(); got != 2 {
		t.Errorf("GroupCount() = %d, want 2", got)
	}

	g0 := m.Group(0)
	if len(g0) != 2 {
		t.Fatalf("len(Group(0)) = %d, want 2", len(g0))
	}
	if g0[0].Class != ClassReadOnlyStorageBuffer {
		t.Errorf("src class = %v, want %v", g0[0].Class, ClassReadOnlyStorageBuffer)
	}
	if g0[1].Class != ClassStorageBuffer {
		t.Errorf("dst class = %v, want %v", g0[1].Class, ClassStorageBuffer)
	}

	g1 := m.Group(1)
	if len(g1) != 1 || g1[0].Name != "scale" || g1[0].Scalar != ScalarU32 {
		t.Errorf("Group(1) = %+v, want scale: u32", g1)
	}

	ep, ok := m.EntryPoint("double")
	if !ok || ep.WorkgroupSize[0] != 64 {
		t.Errorf("EntryPoint(double) = %+v, %v", ep, ok)
	}
	if _, ok := m.EntryPoint("main"); ok {
		t.Error("EntryPoint(main) found in a module without it")
	}
}

func TestReflect_Invalid(t *testing.T) {
	_, err := Reflect("fn main( {")
	if !errors.Is(err, ErrParse) {
		t.Errorf("Reflect() error = %v, want ErrParse", err)
	}
}

func TestClass_String(t *testing.T) {
	tests := []struct {
		c    Class
		want string
	}{
		{ClassUniform, "uniform"},
		{ClassSampledTexture, "texture"},
		{ClassStorageTexture, "texture_storage"},
		{ClassUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("Class(%d).String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}
