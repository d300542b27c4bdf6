// Package wgslreflect extracts the resource interface of a WGSL module using
// gogpu/naga: the @group/@binding slots each global occupies and the
// @workgroup_size of every compute entry point.
package wgslreflect

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// ErrParse is returned when the WGSL source does not parse or lower.
var ErrParse = errors.New("wgslreflect: invalid WGSL")

// Class is the kind of resource a global binds.
type Class uint8

// Binding classes.
const (
	ClassUnknown Class = iota
	ClassUniform
	ClassStorageBuffer
	ClassReadOnlyStorageBuffer
	ClassSampledTexture
	ClassStorageTexture
	ClassSampler
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassUniform:
		return "uniform"
	case ClassStorageBuffer:
		return "storage"
	case ClassReadOnlyStorageBuffer:
		return "storage<read>"
	case ClassSampledTexture:
		return "texture"
	case ClassStorageTexture:
		return "texture_storage"
	case ClassSampler:
		return "sampler"
	default:
		return "unknown"
	}
}

// Scalar is the scalar type of a plain value or a sampled texture.
type Scalar uint8

// Scalar kinds.
const (
	ScalarNone Scalar = iota
	ScalarF32
	ScalarU32
	ScalarI32
	ScalarBool
)

// Binding is one module-scope resource variable.
type Binding struct {
	Group   uint32
	Binding uint32
	Name    string
	Class   Class

	// Scalar and Components describe a uniform holding a scalar or vector.
	// Components is zero for composite uniforms (structs, arrays).
	Scalar     Scalar
	Components uint32

	// Size is the byte size of a uniform, zero when unknown.
	Size uint64

	Dimension  gputypes.TextureViewDimension
	SampleType Scalar

	Format gputypes.TextureFormat
	Access gputypes.StorageTextureAccess
}

// EntryPoint is a shader entry point.
type EntryPoint struct {
	Name          string
	Compute       bool
	WorkgroupSize [3]uint32
}

// Module is the reflected interface of a WGSL module.
type Module struct {
	// Bindings are sorted by group, then binding.
	Bindings    []Binding
	EntryPoints []EntryPoint
}

// Reflect parses and lowers source, then collects its bindings and entry points.
func Reflect(source string) (*Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	mod, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return fromIR(mod), nil
}

func fromIR(mod *ir.Module) *Module {
	out := &Module{}
	for i := range mod.GlobalVariables {
		gv := &mod.GlobalVariables[i]
		if gv.Binding == nil {
			continue
		}
		b := Binding{
			Group:   gv.Binding.Group,
			Binding: gv.Binding.Binding,
			Name:    gv.Name,
		}
		describe(mod, gv, &b)
		out.Bindings = append(out.Bindings, b)
	}
	sort.Slice(out.Bindings, func(i, j int) bool {
		a, b := out.Bindings[i], out.Bindings[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Binding < b.Binding
	})

	for _, ep := range mod.EntryPoints {
		out.EntryPoints = append(out.EntryPoints, EntryPoint{
			Name:          ep.Name,
			Compute:       ep.Stage == ir.StageCompute,
			WorkgroupSize: ep.Workgroup,
		})
	}
	return out
}

func describe(mod *ir.Module, gv *ir.GlobalVariable, b *Binding) {
	inner := typeInner(mod, gv.Type)
	switch gv.Space {
	case ir.SpaceUniform:
		b.Class = ClassUniform
		b.Scalar, b.Components = plainShape(inner)
		b.Size = sizeOf(inner)
	case ir.SpaceStorage:
		b.Class = ClassStorageBuffer
		if gv.Access == ir.StorageRead {
			b.Class = ClassReadOnlyStorageBuffer
		}
		b.Size = sizeOf(inner)
	case ir.SpaceHandle:
		switch t := inner.(type) {
		case ir.ImageType:
			b.Dimension = viewDimension(t.Dim, t.Arrayed)
			if t.Class == ir.ImageClassStorage {
				b.Class = ClassStorageTexture
				b.Format = storageFormat(t.StorageFormat)
				b.Access = storageAccess(t.StorageAccess)
			} else {
				b.Class = ClassSampledTexture
				b.SampleType = scalarOf(ir.ScalarType{Kind: t.SampledKind, Width: 4})
			}
		case ir.SamplerType:
			b.Class = ClassSampler
		}
	}
}

func typeInner(mod *ir.Module, h ir.TypeHandle) ir.TypeInner {
	if int(h) >= len(mod.Types) {
		return nil
	}
	return mod.Types[h].Inner
}

func scalarOf(s ir.ScalarType) Scalar {
	switch s.Kind {
	case ir.ScalarFloat:
		return ScalarF32
	case ir.ScalarUint:
		return ScalarU32
	case ir.ScalarSint:
		return ScalarI32
	case ir.ScalarBool:
		return ScalarBool
	default:
		return ScalarNone
	}
}

func plainShape(inner ir.TypeInner) (Scalar, uint32) {
	switch t := inner.(type) {
	case ir.ScalarType:
		return scalarOf(t), 1
	case ir.VectorType:
		return scalarOf(t.Scalar), uint32(t.Size)
	default:
		return ScalarNone, 0
	}
}

func sizeOf(inner ir.TypeInner) uint64 {
	switch t := inner.(type) {
	case ir.ScalarType:
		return uint64(t.Width)
	case ir.VectorType:
		return uint64(t.Size) * uint64(t.Scalar.Width)
	case ir.MatrixType:
		// Columns are padded to vec4 for three-row matrices.
		rows := uint64(t.Rows)
		if rows == 3 {
			rows = 4
		}
		return uint64(t.Columns) * rows * uint64(t.Scalar.Width)
	case ir.AtomicType:
		return uint64(t.Scalar.Width)
	case ir.StructType:
		return uint64(t.Span)
	case ir.ArrayType:
		if t.Size.Constant == nil {
			return 0
		}
		return uint64(*t.Size.Constant) * uint64(t.Stride)
	default:
		return 0
	}
}

func viewDimension(d ir.ImageDimension, arrayed bool) gputypes.TextureViewDimension {
	switch d {
	case ir.Dim1D:
		return gputypes.TextureViewDimension1D
	case ir.Dim2D:
		if arrayed {
			return gputypes.TextureViewDimension2DArray
		}
		return gputypes.TextureViewDimension2D
	case ir.Dim3D:
		return gputypes.TextureViewDimension3D
	case ir.DimCube:
		if arrayed {
			return gputypes.TextureViewDimensionCubeArray
		}
		return gputypes.TextureViewDimensionCube
	default:
		return gputypes.TextureViewDimensionUndefined
	}
}

func storageFormat(f ir.StorageFormat) gputypes.TextureFormat {
	switch f {
	case ir.StorageFormatRgba8Unorm:
		return gputypes.TextureFormatRGBA8Unorm
	case ir.StorageFormatRgba8Snorm:
		return gputypes.TextureFormatRGBA8Snorm
	case ir.StorageFormatRgba8Uint:
		return gputypes.TextureFormatRGBA8Uint
	case ir.StorageFormatRgba8Sint:
		return gputypes.TextureFormatRGBA8Sint
	case ir.StorageFormatR32Uint:
		return gputypes.TextureFormatR32Uint
	case ir.StorageFormatR32Sint:
		return gputypes.TextureFormatR32Sint
	case ir.StorageFormatR32Float:
		return gputypes.TextureFormatR32Float
	case ir.StorageFormatRgba16Float:
		return gputypes.TextureFormatRGBA16Float
	case ir.StorageFormatRgba32Float:
		return gputypes.TextureFormatRGBA32Float
	case ir.StorageFormatBgra8Unorm:
		return gputypes.TextureFormatBGRA8Unorm
	default:
		return gputypes.TextureFormatUndefined
	}
}

func storageAccess(a ir.StorageAccess) gputypes.StorageTextureAccess {
	switch a {
	case ir.StorageAccessRead:
		return gputypes.StorageTextureAccessReadOnly
	case ir.StorageAccessWrite:
		return gputypes.StorageTextureAccessWriteOnly
	default:
		return gputypes.StorageTextureAccessReadWrite
	}
}

// Group returns the bindings of group g in binding order.
func (m *Module) Group(g uint32) []Binding {
	var out []Binding
	for _, b := range m.Bindings {
		if b.Group == g {
			out = append(out, b)
		}
	}
	return out
}

// GroupCount returns one past the highest group index in use.
func (m *Module) GroupCount() uint32 {
	var n uint32
	for _, b := range m.Bindings {
		if b.Group+1 > n {
			n = b.Group + 1
		}
	}
	return n
}

// EntryPoint looks up an entry point by name.
func (m *Module) EntryPoint(name string) (EntryPoint, bool) {
	for _, ep := range m.EntryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPoint{}, false
}
