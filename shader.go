package gpucmd

import (
	"crypto/sha256"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/gpucore"
	"github.com/gogpu/gpucmd/internal/wgslreflect"
)

// ShaderDesc describes a WGSL shader module.
type ShaderDesc struct {
	Name   string
	Source string
}

// Shader is a compiled shader module with its reflected bindings.
type Shader struct {
	ctx       *Context
	id        gpucore.ShaderID
	name      string
	module    *wgslreflect.Module
	destroyed atomic.Bool
}

// Name returns the shader's name.
func (s *Shader) Name() string { return s.name }

// At selects the entry point called entry.
func (s *Shader) At(entry string) ShaderFunction {
	return ShaderFunction{Shader: s, EntryPoint: entry}
}

// ShaderFunction is an entry point of a shader.
type ShaderFunction struct {
	Shader     *Shader
	EntryPoint string
}

// CreateShader compiles and reflects a WGSL module. Reflection results are
// cached by the SHA-256 of the source. Invalid WGSL fails with ErrShaderParse.
func (c *Context) CreateShader(desc ShaderDesc) (*Shader, error) {
	key := sha256.Sum256([]byte(desc.Source))
	mod, err := c.shaders.GetOrLoad(key, func() (*wgslreflect.Module, error) {
		return wgslreflect.Reflect(desc.Source)
	})
	if err != nil {
		return nil, fmt.Errorf("create shader %q: %w: %w", desc.Name, ErrShaderParse, err)
	}

	id, err := c.device.CreateShader(&gpucore.ShaderDesc{Label: desc.Name, Source: desc.Source})
	if err != nil {
		return nil, fmt.Errorf("create shader %q: %w", desc.Name, err)
	}
	Logger().Debug("gpucmd: shader created", "name", desc.Name,
		"bindings", len(mod.Bindings), "entry_points", len(mod.EntryPoints))
	return &Shader{ctx: c, id: id, name: desc.Name, module: mod}, nil
}

// DestroyShader releases s. Pipelines created from s stay valid.
func (c *Context) DestroyShader(s *Shader) error {
	if s == nil || !s.destroyed.CompareAndSwap(false, true) {
		return fmt.Errorf("destroy shader: %w", ErrStaleHandle)
	}
	c.device.DestroyShader(s.id)
	return nil
}

// ComputePipelineDesc describes a compute pipeline. DataLayouts[g] is the
// layout of bind group g; a nil entry is a group without bindings.
type ComputePipelineDesc struct {
	Name        string
	DataLayouts []*ShaderDataLayout
	Compute     ShaderFunction
}

// ComputePipeline is a compute entry point bound to its data layouts.
type ComputePipeline struct {
	id            gpucore.PipelineID
	name          string
	layouts       []*ShaderDataLayout
	workgroupSize [3]uint32
	destroyed     atomic.Bool
}

// Name returns the pipeline's name.
func (p *ComputePipeline) Name() string { return p.name }

// WorkgroupSize returns the entry point's @workgroup_size.
func (p *ComputePipeline) WorkgroupSize() [3]uint32 { return p.workgroupSize }

// GroupCount returns the number of bind groups the pipeline expects.
func (p *ComputePipeline) GroupCount() int { return len(p.layouts) }

// CreateComputePipeline checks each data layout against the shader's
// declared bindings and creates the pipeline. A disagreement fails with a
// *LayoutMismatchError.
func (c *Context) CreateComputePipeline(desc ComputePipelineDesc) (*ComputePipeline, error) {
	s := desc.Compute.Shader
	if s == nil || s.destroyed.Load() {
		return nil, fmt.Errorf("create compute pipeline %q: shader: %w", desc.Name, ErrStaleHandle)
	}
	ep, ok := s.module.EntryPoint(desc.Compute.EntryPoint)
	if !ok || !ep.Compute {
		return nil, fmt.Errorf("create compute pipeline %q: %q in shader %q: %w",
			desc.Name, desc.Compute.EntryPoint, s.name, ErrEntryPointNotFound)
	}
	if err := checkLayouts(desc.DataLayouts, s.module); err != nil {
		return nil, fmt.Errorf("create compute pipeline %q: %w", desc.Name, err)
	}

	groups := make([]gpucore.GroupLayout, len(desc.DataLayouts))
	for g, layout := range desc.DataLayouts {
		slots := make([]gpucore.SlotLayout, layout.Len())
		for i := range slots {
			slots[i] = slotLayout(layout.Bindings[i].Kind)
		}
		groups[g] = gpucore.GroupLayout{Slots: slots}
	}

	id, err := c.device.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:         desc.Name,
		Shader:        s.id,
		EntryPoint:    ep.Name,
		Groups:        groups,
		WorkgroupSize: ep.WorkgroupSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create compute pipeline %q: %w", desc.Name, err)
	}
	Logger().Debug("gpucmd: compute pipeline created", "name", desc.Name,
		"entry_point", ep.Name, "workgroup_size", ep.WorkgroupSize)

	return &ComputePipeline{
		id:            id,
		name:          desc.Name,
		layouts:       append([]*ShaderDataLayout(nil), desc.DataLayouts...),
		workgroupSize: ep.WorkgroupSize,
	}, nil
}

// DestroyComputePipeline releases p.
func (c *Context) DestroyComputePipeline(p *ComputePipeline) error {
	if p == nil {
		return fmt.Errorf("destroy compute pipeline: %w", ErrStaleHandle)
	}
	// Submit checks destroyed under c.mu.
	c.mu.Lock()
	ok := p.destroyed.CompareAndSwap(false, true)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("destroy compute pipeline: %w", ErrStaleHandle)
	}
	c.device.DestroyComputePipeline(p.id)
	return nil
}

const noBinding = "none"

// checkLayouts compares layouts[g] slot by slot with the shader's
// @group(g) bindings 0..n.
func checkLayouts(layouts []*ShaderDataLayout, mod *wgslreflect.Module) error {
	for g, layout := range layouts {
		group := uint32(g)
		declared := make(map[uint32]wgslreflect.Binding)
		for _, b := range mod.Group(group) {
			declared[b.Binding] = b
		}
		for i := range layout.Len() {
			lb := layout.Bindings[i]
			sb, ok := declared[uint32(i)]
			if !ok {
				return &LayoutMismatchError{Group: group, Index: i, Name: lb.Name, Want: lb.Kind.String(), Got: noBinding}
			}
			if !compatible(lb.Kind, sb) {
				return &LayoutMismatchError{Group: group, Index: i, Name: lb.Name, Want: lb.Kind.String(), Got: reflectedName(sb)}
			}
		}
		for _, sb := range mod.Group(group) {
			if int(sb.Binding) >= layout.Len() {
				return &LayoutMismatchError{Group: group, Index: int(sb.Binding), Name: sb.Name, Want: noBinding, Got: reflectedName(sb)}
			}
		}
	}
	for g := uint32(len(layouts)); g < mod.GroupCount(); g++ {
		if bs := mod.Group(g); len(bs) > 0 {
			return &LayoutMismatchError{Group: g, Index: int(bs[0].Binding), Name: bs[0].Name, Want: noBinding, Got: reflectedName(bs[0])}
		}
	}
	return nil
}

func scalarKind(s wgslreflect.Scalar) ScalarKind {
	switch s {
	case wgslreflect.ScalarF32:
		return F32
	case wgslreflect.ScalarU32:
		return U32
	case wgslreflect.ScalarI32:
		return I32
	default:
		return 0
	}
}

func storageAccess(a gputypes.StorageTextureAccess) StorageAccess {
	switch a {
	case gputypes.StorageTextureAccessReadOnly:
		return Load
	case gputypes.StorageTextureAccessWriteOnly:
		return Store
	default:
		return LoadStore
	}
}

// reflectedKind returns the BindingKind that describes a reflected binding.
func reflectedKind(b wgslreflect.Binding) (BindingKind, bool) {
	switch b.Class {
	case wgslreflect.ClassUniform:
		if b.Components > 0 {
			return PlainKind{Scalar: scalarKind(b.Scalar), Components: b.Components}, true
		}
		return BufferKind{Access: Uniform}, true
	case wgslreflect.ClassStorageBuffer:
		return BufferKind{Access: ReadWrite}, true
	case wgslreflect.ClassReadOnlyStorageBuffer:
		return BufferKind{Access: ReadOnly}, true
	case wgslreflect.ClassSampledTexture:
		return SampledTextureKind{Dimension: b.Dimension, Sample: scalarKind(b.SampleType)}, true
	case wgslreflect.ClassStorageTexture:
		return StorageTextureKind{Format: b.Format, Dimension: b.Dimension, Access: storageAccess(b.Access)}, true
	default:
		return nil, false
	}
}

func reflectedName(b wgslreflect.Binding) string {
	if k, ok := reflectedKind(b); ok {
		return k.String()
	}
	return b.Class.String()
}

func compatible(k BindingKind, b wgslreflect.Binding) bool {
	rk, ok := reflectedKind(b)
	if !ok {
		return false
	}
	if k == rk {
		return true
	}
	// Any uniform may be backed by a buffer range.
	return k == BufferKind{Access: Uniform} && b.Class == wgslreflect.ClassUniform
}

func sampleType(s ScalarKind) gputypes.TextureSampleType {
	switch s {
	case U32:
		return gputypes.TextureSampleTypeUint
	case I32:
		return gputypes.TextureSampleTypeSint
	default:
		return gputypes.TextureSampleTypeFloat
	}
}

func nativeAccess(a StorageAccess) gputypes.StorageTextureAccess {
	switch a {
	case Load:
		return gputypes.StorageTextureAccessReadOnly
	case Store:
		return gputypes.StorageTextureAccessWriteOnly
	default:
		return gputypes.StorageTextureAccessReadWrite
	}
}

func slotLayout(k BindingKind) gpucore.SlotLayout {
	switch k := k.(type) {
	case PlainKind:
		return gpucore.SlotLayout{Kind: gpucore.SlotUniform, Size: k.Size()}
	case SampledTextureKind:
		return gpucore.SlotLayout{Kind: gpucore.SlotSampledTexture, ViewDimension: k.Dimension, SampleType: sampleType(k.Sample)}
	case StorageTextureKind:
		return gpucore.SlotLayout{Kind: gpucore.SlotStorageTexture, ViewDimension: k.Dimension, Format: k.Format, Access: nativeAccess(k.Access)}
	case BufferKind:
		switch k.Access {
		case ReadOnly:
			return gpucore.SlotLayout{Kind: gpucore.SlotReadOnlyStorageBuffer}
		case ReadWrite:
			return gpucore.SlotLayout{Kind: gpucore.SlotStorageBuffer}
		default:
			return gpucore.SlotLayout{Kind: gpucore.SlotUniform}
		}
	default:
		return gpucore.SlotLayout{}
	}
}
