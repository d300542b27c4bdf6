package gpucmd

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/gpucmd/gpucore"
)

// Extent is a size in texels. A zero Depth is read as 1 by resource creation.
type Extent struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

// MaxMipLevels returns the length of the full mip chain,
// floor(log2(max(w, h, d))) + 1. It returns 0 for an empty extent.
func (e Extent) MaxMipLevels() uint32 {
	return uint32(bits.Len32(max(e.Width, e.Height, e.Depth)))
}

// AtMipLevel returns the size of mip level, max(1, dim>>level) per axis.
func (e Extent) AtMipLevel(level uint32) Extent {
	return Extent{
		Width:  mipDim(e.Width, level),
		Height: mipDim(e.Height, level),
		Depth:  mipDim(e.Depth, level),
	}
}

func mipDim(d, level uint32) uint32 {
	if level >= 32 {
		return 1
	}
	return max(1, d>>level)
}

// IsEmpty reports whether any axis is zero.
func (e Extent) IsEmpty() bool {
	return e.Width == 0 || e.Height == 0 || e.Depth == 0
}

// String returns the extent as WxHxD.
func (e Extent) String() string {
	return fmt.Sprintf("%dx%dx%d", e.Width, e.Height, e.Depth)
}

func (e Extent) withDepth() Extent {
	if e.Depth == 0 {
		e.Depth = 1
	}
	return e
}

func (e Extent) core() gpucore.Extent3D {
	return gpucore.Extent3D{Width: e.Width, Height: e.Height, Depth: e.Depth}
}
