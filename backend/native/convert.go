package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/gpucore"
)

// uniformAlign is the size granularity of transient uniform buffers.
const uniformAlign = 16

// bufferUsage maps a memory kind to HAL usage flags. Host-visible buffers
// are transfer endpoints only, matching what MapRead and MapWrite allow.
func bufferUsage(m gpucore.Memory) gputypes.BufferUsage {
	switch m {
	case gpucore.MemoryUpload:
		return gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	case gpucore.MemoryShared:
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	default:
		return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
			gputypes.BufferUsageStorage | gputypes.BufferUsageUniform
	}
}

func layoutEntries(g gpucore.GroupLayout) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, len(g.Slots))
	for i, s := range g.Slots {
		e := gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
		}
		switch s.Kind {
		case gpucore.SlotUniform:
			e.Buffer = &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: s.Size,
			}
		case gpucore.SlotStorageBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		case gpucore.SlotReadOnlyStorageBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
		case gpucore.SlotSampledTexture:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    s.SampleType,
				ViewDimension: s.ViewDimension,
			}
		case gpucore.SlotStorageTexture:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        s.Access,
				Format:        s.Format,
				ViewDimension: s.ViewDimension,
			}
		}
		entries[i] = e
	}
	return entries
}

// slotUsage is the state a bound resource must be in during a dispatch.
func slotUsage(k gpucore.SlotKind) (gputypes.BufferUsage, gputypes.TextureUsage) {
	switch k {
	case gpucore.SlotUniform:
		return gputypes.BufferUsageUniform, 0
	case gpucore.SlotStorageBuffer, gpucore.SlotReadOnlyStorageBuffer:
		return gputypes.BufferUsageStorage, 0
	case gpucore.SlotSampledTexture:
		return 0, gputypes.TextureUsageTextureBinding
	case gpucore.SlotStorageTexture:
		return 0, gputypes.TextureUsageStorageBinding
	default:
		return 0, 0
	}
}

func textureDesc(d *gpucore.TextureDesc) *hal.TextureDescriptor {
	depth := d.Depth
	if d.Dimension != gputypes.TextureDimension3D {
		depth = d.ArrayLayers
	}
	return &hal.TextureDescriptor{
		Label:         d.Label,
		Size:          hal.Extent3D{Width: d.Width, Height: d.Height, DepthOrArrayLayers: max(depth, 1)},
		MipLevelCount: d.MipLevelCount,
		SampleCount:   1,
		Dimension:     d.Dimension,
		Format:        d.Format,
		Usage:         d.Usage,
	}
}

func viewDesc(d *gpucore.TextureViewDesc) *hal.TextureViewDescriptor {
	return &hal.TextureViewDescriptor{
		Label:           d.Label,
		Format:          d.Format,
		Dimension:       d.Dimension,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    d.BaseMipLevel,
		MipLevelCount:   d.MipLevelCount,
		BaseArrayLayer:  d.BaseArrayLayer,
		ArrayLayerCount: d.ArrayLayerCount,
	}
}

func copyRegion(loc gpucore.TextureLocation, tex *texture, offset uint64, bytesPerRow uint32, size gpucore.Extent3D) hal.BufferTextureCopy {
	z := loc.Origin[2]
	depth := size.Depth
	if tex.desc.Dimension != gputypes.TextureDimension3D {
		z = loc.ArrayLayer
		depth = 1
	}
	return hal.BufferTextureCopy{
		BufferLayout: hal.ImageDataLayout{
			Offset:       offset,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: size.Height,
		},
		TextureBase: hal.ImageCopyTexture{
			Texture:  tex.raw,
			MipLevel: loc.MipLevel,
			Origin:   hal.Origin3D{X: loc.Origin[0], Y: loc.Origin[1], Z: z},
			Aspect:   gputypes.TextureAspectAll,
		},
		Size: hal.Extent3D{Width: size.Width, Height: size.Height, DepthOrArrayLayers: max(depth, 1)},
	}
}
