package gpucore

import "github.com/gogpu/gputypes"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// TextureViewID is an opaque handle to a view of a texture subresource range.
type TextureViewID uint64

// ShaderID is an opaque handle to a shader module.
type ShaderID uint64

// PipelineID is an opaque handle to a compute pipeline.
type PipelineID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Memory selects where a buffer lives and whether the host can see it.
type Memory uint8

const (
	// MemoryDevice is GPU-local memory, not host visible.
	MemoryDevice Memory = iota

	// MemoryUpload is host-visible memory optimized for host writes.
	MemoryUpload

	// MemoryShared is host-visible memory the GPU writes and the host reads.
	MemoryShared
)

// String returns the memory kind name.
func (m Memory) String() string {
	switch m {
	case MemoryDevice:
		return "Device"
	case MemoryUpload:
		return "Upload"
	case MemoryShared:
		return "Shared"
	default:
		return "Unknown"
	}
}

// HostVisible reports whether buffers of this kind can be mapped by the host.
func (m Memory) HostVisible() bool {
	return m == MemoryUpload || m == MemoryShared
}

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	Label  string
	Size   uint64
	Memory Memory
}

// TextureDesc describes a texture allocation.
type TextureDesc struct {
	Label         string
	Format        gputypes.TextureFormat
	Dimension     gputypes.TextureDimension
	Width         uint32
	Height        uint32
	Depth         uint32
	ArrayLayers   uint32
	MipLevelCount uint32
	Usage         gputypes.TextureUsage
}

// TextureViewDesc describes a view over a texture subresource range.
// Counts are always explicit at this level.
type TextureViewDesc struct {
	Label           string
	Format          gputypes.TextureFormat
	Dimension       gputypes.TextureViewDimension
	BaseMipLevel    uint32
	MipLevelCount   uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
}

// ShaderDesc carries shader source through to the device unmodified.
type ShaderDesc struct {
	Label  string
	Source string
}

// SlotKind is the GPU object kind a binding slot expects.
type SlotKind uint8

// Slot kinds.
const (
	SlotUniform SlotKind = iota + 1
	SlotStorageBuffer
	SlotReadOnlyStorageBuffer
	SlotSampledTexture
	SlotStorageTexture
)

// String returns the slot kind name.
func (k SlotKind) String() string {
	switch k {
	case SlotUniform:
		return "Uniform"
	case SlotStorageBuffer:
		return "StorageBuffer"
	case SlotReadOnlyStorageBuffer:
		return "ReadOnlyStorageBuffer"
	case SlotSampledTexture:
		return "SampledTexture"
	case SlotStorageTexture:
		return "StorageTexture"
	default:
		return "Unknown"
	}
}

// SlotLayout describes one binding slot of a group. The binding number is the
// slot's position in GroupLayout.Slots.
type SlotLayout struct {
	Kind SlotKind

	// Size is the byte size of a Uniform slot.
	Size uint64

	// ViewDimension applies to texture slots.
	ViewDimension gputypes.TextureViewDimension

	// SampleType applies to SampledTexture slots.
	SampleType gputypes.TextureSampleType

	// Format and Access apply to StorageTexture slots.
	Format gputypes.TextureFormat
	Access gputypes.StorageTextureAccess
}

// GroupLayout describes one bind group.
type GroupLayout struct {
	Slots []SlotLayout
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label      string
	Shader     ShaderID
	EntryPoint string
	Groups     []GroupLayout

	// WorkgroupSize is the reflected @workgroup_size of the entry point.
	WorkgroupSize [3]uint32
}
