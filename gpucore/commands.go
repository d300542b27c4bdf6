package gpucore

import "fmt"

// PassKind identifies the kind of a recorded pass.
type PassKind uint8

// Pass kinds.
const (
	PassTransfer PassKind = iota + 1
	PassCompute
)

// String returns the pass kind name.
func (k PassKind) String() string {
	switch k {
	case PassTransfer:
		return "transfer"
	case PassCompute:
		return "compute"
	default:
		return fmt.Sprintf("PassKind(%d)", int(k))
	}
}

// CommandList is a submitted command stream lowered for a device.
type CommandList struct {
	Label  string
	Passes []Pass
}

// Pass is a scoped run of commands. Transfer passes hold only transfer
// commands; compute passes hold SetPipeline, BindGroup and Dispatch.
type Pass struct {
	Kind     PassKind
	Label    string
	Commands []Command
}

// Command is one recorded operation.
type Command interface {
	command()
}

// Extent3D is a copy size in texels.
type Extent3D struct {
	Width, Height, Depth uint32
}

// TextureLocation addresses a texel origin inside one mip level and layer.
type TextureLocation struct {
	Texture    TextureID
	MipLevel   uint32
	ArrayLayer uint32
	Origin     [3]uint32
}

// InitTexture brings a texture into a state ready for writes. Its previous
// contents are undefined.
type InitTexture struct {
	Texture     TextureID
	MipLevels   uint32
	ArrayLayers uint32
}

// CopyBufferToTexture copies rows of a buffer into a texture region.
type CopyBufferToTexture struct {
	Src         BufferID
	SrcOffset   uint64
	BytesPerRow uint32
	Dst         TextureLocation
	Size        Extent3D
}

// CopyTextureToBuffer copies a texture region into rows of a buffer.
type CopyTextureToBuffer struct {
	Src         TextureLocation
	Dst         BufferID
	DstOffset   uint64
	BytesPerRow uint32
	Size        Extent3D
}

// CopyBufferToBuffer copies a byte range between buffers.
type CopyBufferToBuffer struct {
	Src       BufferID
	SrcOffset uint64
	Dst       BufferID
	DstOffset uint64
	Size      uint64
}

// FillBuffer sets a byte range of a buffer to Value.
type FillBuffer struct {
	Dst    BufferID
	Offset uint64
	Size   uint64
	Value  byte
}

// SetPipeline selects the pipeline for following dispatches.
type SetPipeline struct {
	Pipeline PipelineID
}

// BindingValue is the concrete value written into one slot.
type BindingValue struct {
	Kind SlotKind

	// Plain holds the bytes of a Uniform slot.
	Plain []byte

	View TextureViewID

	Buffer BufferID
	Offset uint64
	Size   uint64
}

// BindGroup binds concrete values for group Group of the current pipeline.
// Entries are in slot order.
type BindGroup struct {
	Group   uint32
	Entries []BindingValue
}

// Dispatch runs Groups workgroups with the currently bound groups.
type Dispatch struct {
	Groups [3]uint32
}

func (InitTexture) command()         {}
func (CopyBufferToTexture) command() {}
func (CopyTextureToBuffer) command() {}
func (CopyBufferToBuffer) command()  {}
func (FillBuffer) command()          {}
func (SetPipeline) command()         {}
func (BindGroup) command()           {}
func (Dispatch) command()            {}
