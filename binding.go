package gpucmd

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ScalarKind is the scalar type of a plain constant or of sampled texels.
type ScalarKind uint8

// Scalar kinds.
const (
	F32 ScalarKind = iota + 1
	U32
	I32
)

// String returns the WGSL name of the scalar.
func (s ScalarKind) String() string {
	switch s {
	case F32:
		return "f32"
	case U32:
		return "u32"
	case I32:
		return "i32"
	default:
		return fmt.Sprintf("ScalarKind(%d)", int(s))
	}
}

// StorageAccess is the access a shader has to a storage texture.
type StorageAccess uint8

// Storage access modes.
const (
	Load StorageAccess = iota + 1
	Store
	LoadStore
)

// String returns the access mode name.
func (a StorageAccess) String() string {
	switch a {
	case Load:
		return "load"
	case Store:
		return "store"
	case LoadStore:
		return "load_store"
	default:
		return fmt.Sprintf("StorageAccess(%d)", int(a))
	}
}

// BufferAccess is the way a shader reads or writes a bound buffer.
type BufferAccess uint8

// Buffer access modes.
const (
	Uniform BufferAccess = iota + 1
	ReadOnly
	ReadWrite
)

// String returns the access mode name.
func (a BufferAccess) String() string {
	switch a {
	case Uniform:
		return "uniform"
	case ReadOnly:
		return "read"
	case ReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("BufferAccess(%d)", int(a))
	}
}

// BindingKind is the kind of one binding slot. The set of kinds is closed:
// PlainKind, SampledTextureKind, StorageTextureKind and BufferKind.
type BindingKind interface {
	fmt.Stringer
	bindingKind()
}

// PlainKind is a small constant: a scalar or a vector of Components scalars.
type PlainKind struct {
	Scalar     ScalarKind
	Components uint32
}

// Size returns the byte size of the constant.
func (k PlainKind) Size() uint64 { return 4 * uint64(k.Components) }

func (k PlainKind) String() string {
	if k.Components == 1 {
		return "plain<" + k.Scalar.String() + ">"
	}
	return fmt.Sprintf("plain<vec%d<%s>>", k.Components, k.Scalar)
}

// SampledTextureKind is a texture view read with textureLoad or a sampler.
type SampledTextureKind struct {
	Dimension gputypes.TextureViewDimension
	Sample    ScalarKind
}

func (k SampledTextureKind) String() string {
	return fmt.Sprintf("texture<%s, %s>", dimensionName(k.Dimension), k.Sample)
}

// StorageTextureKind is a texture view accessed as storage.
type StorageTextureKind struct {
	Format    gputypes.TextureFormat
	Dimension gputypes.TextureViewDimension
	Access    StorageAccess
}

func (k StorageTextureKind) String() string {
	return fmt.Sprintf("texture_storage<%s, %s, %s>", dimensionName(k.Dimension), k.Format, k.Access)
}

// BufferKind is a buffer range.
type BufferKind struct {
	Access BufferAccess
}

func (k BufferKind) String() string {
	return "buffer<" + k.Access.String() + ">"
}

func dimensionName(d gputypes.TextureViewDimension) string {
	switch d {
	case gputypes.TextureViewDimension1D:
		return "1d"
	case gputypes.TextureViewDimension2D:
		return "2d"
	case gputypes.TextureViewDimension2DArray:
		return "2d_array"
	case gputypes.TextureViewDimensionCube:
		return "cube"
	case gputypes.TextureViewDimensionCubeArray:
		return "cube_array"
	case gputypes.TextureViewDimension3D:
		return "3d"
	default:
		return "undefined"
	}
}

func (PlainKind) bindingKind()          {}
func (SampledTextureKind) bindingKind() {}
func (StorageTextureKind) bindingKind() {}
func (BufferKind) bindingKind()         {}

// Common plain kinds.
var (
	KindF32     = PlainKind{Scalar: F32, Components: 1}
	KindU32     = PlainKind{Scalar: U32, Components: 1}
	KindI32     = PlainKind{Scalar: I32, Components: 1}
	KindVec2F32 = PlainKind{Scalar: F32, Components: 2}
	KindVec4F32 = PlainKind{Scalar: F32, Components: 4}
	KindVec4U32 = PlainKind{Scalar: U32, Components: 4}
)

// Binding is a named slot of a ShaderDataLayout.
type Binding struct {
	Name string
	Kind BindingKind
}

// ShaderDataLayout is the ordered list of bindings of one bind group.
// A binding's index is its position in Bindings.
type ShaderDataLayout struct {
	Bindings []Binding
}

// Len returns the number of bindings.
func (l *ShaderDataLayout) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Bindings)
}

// Index returns the position of the binding called name.
func (l *ShaderDataLayout) Index(name string) (int, bool) {
	if l == nil {
		return 0, false
	}
	for i, b := range l.Bindings {
		if b.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Equal reports whether both layouts have the same bindings in the same order.
// A nil layout equals an empty one.
func (l *ShaderDataLayout) Equal(o *ShaderDataLayout) bool {
	if l == o {
		return true
	}
	if l.Len() != o.Len() {
		return false
	}
	for i := range l.Len() {
		if l.Bindings[i] != o.Bindings[i] {
			return false
		}
	}
	return true
}

// String returns a compact description of the layout.
func (l *ShaderDataLayout) String() string {
	s := "["
	for i := range l.Len() {
		if i > 0 {
			s += ", "
		}
		b := l.Bindings[i]
		s += b.Name + ": " + b.Kind.String()
	}
	return s + "]"
}

// ShaderData is a group of values bound together.
//
// Layout must not read the receiver: it describes the type, and LayoutOf
// calls it on the zero value. Fill writes every slot of the layout.
//
//	type Globals struct {
//	    Modulator [4]float32
//	    Input     gpucmd.TextureView
//	}
//
//	var globalsLayout = &gpucmd.ShaderDataLayout{Bindings: []gpucmd.Binding{
//	    {Name: "modulator", Kind: gpucmd.KindVec4F32},
//	    {Name: "input", Kind: gpucmd.SampledTextureKind{Dimension: gputypes.TextureViewDimension2D, Sample: gpucmd.F32}},
//	}}
//
//	func (Globals) Layout() *gpucmd.ShaderDataLayout { return globalsLayout }
//
//	func (g Globals) Fill(e *gpucmd.ShaderDataEncoder) {
//	    e.SetFloat32s(0, g.Modulator[:]...)
//	    e.SetTexture(1, g.Input)
//	}
type ShaderData interface {
	Layout() *ShaderDataLayout
	Fill(e *ShaderDataEncoder)
}

// LayoutOf returns the layout of T without requiring an instance.
// T must have a value receiver Layout method.
func LayoutOf[T ShaderData]() *ShaderDataLayout {
	var zero T
	return zero.Layout()
}
