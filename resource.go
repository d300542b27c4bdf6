package gpucmd

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/gpucore"
)

// Memory selects where a buffer lives.
type Memory = gpucore.Memory

// Memory kinds.
const (
	// MemoryDevice is GPU-local memory the host cannot read or write.
	MemoryDevice = gpucore.MemoryDevice
	// MemoryUpload is host-visible memory written by the host, read by the GPU.
	MemoryUpload = gpucore.MemoryUpload
	// MemoryShared is host-visible memory written by the GPU, read by the host.
	MemoryShared = gpucore.MemoryShared
)

// BufferDesc describes a buffer.
type BufferDesc struct {
	Name   string
	Size   uint64
	Memory Memory
}

// TextureUsage is a set of ways a texture may be used.
type TextureUsage uint8

// Texture usages.
const (
	// TextureUsageResource allows sampled (read-only) shader access.
	TextureUsageResource TextureUsage = 1 << iota
	// TextureUsageStorage allows storage access from compute shaders.
	TextureUsageStorage
	// TextureUsageCopy allows the texture as a copy source or destination.
	TextureUsageCopy
)

func (u TextureUsage) native() gputypes.TextureUsage {
	var n gputypes.TextureUsage
	if u&TextureUsageResource != 0 {
		n |= gputypes.TextureUsageTextureBinding
	}
	if u&TextureUsageStorage != 0 {
		n |= gputypes.TextureUsageStorageBinding
	}
	if u&TextureUsageCopy != 0 {
		n |= gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	}
	return n
}

// TextureDesc describes a texture. Zero ArrayLayerCount and MipLevelCount
// mean one, a zero Dimension means 2D and a zero Size.Depth means 1.
type TextureDesc struct {
	Name            string
	Format          gputypes.TextureFormat
	Size            Extent
	ArrayLayerCount uint32
	MipLevelCount   uint32
	Dimension       gputypes.TextureDimension
	Usage           TextureUsage
}

// TextureSubresources selects mip levels and array layers of a texture.
// A zero count means all levels or layers from the base to the end.
type TextureSubresources struct {
	BaseMipLevel    uint32
	MipLevelCount   uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
}

// TextureViewDesc describes a view of a texture. A zero Format means the
// texture's format, a zero Dimension is derived from the texture.
type TextureViewDesc struct {
	Name         string
	Texture      Texture
	Format       gputypes.TextureFormat
	Dimension    gputypes.TextureViewDimension
	Subresources TextureSubresources
}

type bufferEntry struct {
	id   gpucore.BufferID
	desc BufferDesc
}

type textureEntry struct {
	id          gpucore.TextureID
	desc        TextureDesc
	views       int
	initialized bool
}

type viewEntry struct {
	id        gpucore.TextureViewID
	name      string
	texture   Texture
	format    gputypes.TextureFormat
	dimension gputypes.TextureViewDimension
	usage     TextureUsage
	sub       TextureSubresources
}

// CreateBuffer allocates a buffer.
func (c *Context) CreateBuffer(desc BufferDesc) (Buffer, error) {
	if desc.Size == 0 {
		return Buffer{}, fmt.Errorf("create buffer %q: zero size: %w", desc.Name, ErrInvalidDescriptor)
	}
	id, err := c.device.CreateBuffer(&gpucore.BufferDesc{
		Label:  desc.Name,
		Size:   desc.Size,
		Memory: desc.Memory,
	})
	if err != nil {
		return Buffer{}, fmt.Errorf("create buffer %q: %w", desc.Name, err)
	}

	c.mu.Lock()
	h := c.buffers.insert(bufferEntry{id: id, desc: desc})
	c.mu.Unlock()

	Logger().Debug("gpucmd: buffer created", "name", desc.Name, "size", desc.Size, "memory", desc.Memory)
	return Buffer{h: h}, nil
}

// DestroyBuffer releases b. Later use of b fails with ErrStaleHandle.
func (c *Context) DestroyBuffer(b Buffer) error {
	c.mu.Lock()
	e, ok := c.buffers.remove(b.h)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("destroy %v: %w", b, ErrStaleHandle)
	}
	c.device.DestroyBuffer(e.id)
	return nil
}

// BufferData returns the host-visible bytes of an Upload or Shared buffer.
// The slice aliases the buffer until DestroyBuffer. Reads after a submission
// must wait on its SyncPoint first.
func (c *Context) BufferData(b Buffer) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.buffers.get(b.h)
	var entry bufferEntry
	if ok {
		entry = *e
	}
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("buffer data %v: %w", b, ErrStaleHandle)
	}
	if !entry.desc.Memory.HostVisible() {
		return nil, fmt.Errorf("buffer data %q (%s): %w", entry.desc.Name, entry.desc.Memory, ErrNotHostVisible)
	}
	data, err := c.device.BufferData(entry.id)
	if err != nil {
		return nil, fmt.Errorf("buffer data %q: %w", entry.desc.Name, err)
	}
	return data, nil
}

// BufferSize returns the size b was created with.
func (c *Context) BufferSize(b Buffer) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.buffers.get(b.h)
	if !ok {
		return 0, fmt.Errorf("buffer size %v: %w", b, ErrStaleHandle)
	}
	return e.desc.Size, nil
}

func normalizeTextureDesc(desc TextureDesc) TextureDesc {
	desc.Size = desc.Size.withDepth()
	if desc.ArrayLayerCount == 0 {
		desc.ArrayLayerCount = 1
	}
	if desc.MipLevelCount == 0 {
		desc.MipLevelCount = 1
	}
	if desc.Dimension == 0 {
		desc.Dimension = gputypes.TextureDimension2D
	}
	return desc
}

// CreateTexture allocates a texture. A MipLevelCount beyond the extent's
// full chain fails with ErrSubresourceOutOfRange. Only 3D textures have
// depth, and 1D textures have a height of one; other sizes fail with
// ErrInvalidDescriptor.
func (c *Context) CreateTexture(desc TextureDesc) (Texture, error) {
	desc = normalizeTextureDesc(desc)
	if desc.Size.IsEmpty() {
		return Texture{}, fmt.Errorf("create texture %q: empty size %v: %w", desc.Name, desc.Size, ErrInvalidDescriptor)
	}
	if desc.Dimension != gputypes.TextureDimension3D && desc.Size.Depth > 1 {
		return Texture{}, fmt.Errorf("create texture %q: depth %d on a %s texture: %w",
			desc.Name, desc.Size.Depth, dimensionLabel(desc.Dimension), ErrInvalidDescriptor)
	}
	if desc.Dimension == gputypes.TextureDimension1D && desc.Size.Height > 1 {
		return Texture{}, fmt.Errorf("create texture %q: height %d on a 1d texture: %w",
			desc.Name, desc.Size.Height, ErrInvalidDescriptor)
	}
	if _, ok := gpucore.TexelSize(desc.Format); !ok {
		return Texture{}, fmt.Errorf("create texture %q: unsupported format %s: %w", desc.Name, desc.Format, ErrInvalidDescriptor)
	}
	if desc.Usage == 0 {
		return Texture{}, fmt.Errorf("create texture %q: no usage: %w", desc.Name, ErrInvalidDescriptor)
	}
	if maxMips := desc.Size.MaxMipLevels(); desc.MipLevelCount > maxMips {
		return Texture{}, fmt.Errorf("create texture %q: %d mip levels, %v allows %d: %w",
			desc.Name, desc.MipLevelCount, desc.Size, maxMips, ErrSubresourceOutOfRange)
	}

	id, err := c.device.CreateTexture(&gpucore.TextureDesc{
		Label:         desc.Name,
		Format:        desc.Format,
		Dimension:     desc.Dimension,
		Width:         desc.Size.Width,
		Height:        desc.Size.Height,
		Depth:         desc.Size.Depth,
		ArrayLayers:   desc.ArrayLayerCount,
		MipLevelCount: desc.MipLevelCount,
		Usage:         desc.Usage.native(),
	})
	if err != nil {
		return Texture{}, fmt.Errorf("create texture %q: %w", desc.Name, err)
	}

	c.mu.Lock()
	h := c.textures.insert(textureEntry{id: id, desc: desc})
	c.mu.Unlock()

	Logger().Debug("gpucmd: texture created", "name", desc.Name, "size", desc.Size.String(),
		"format", desc.Format.String(), "mips", desc.MipLevelCount)
	return Texture{h: h}, nil
}

// DestroyTexture releases t. It fails with ErrResourceInUse while views of
// t are alive.
func (c *Context) DestroyTexture(t Texture) error {
	c.mu.Lock()
	e, ok := c.textures.get(t.h)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("destroy %v: %w", t, ErrStaleHandle)
	}
	if e.views > 0 {
		name, views := e.desc.Name, e.views
		c.mu.Unlock()
		return fmt.Errorf("destroy texture %q: %d live views: %w", name, views, ErrResourceInUse)
	}
	entry, _ := c.textures.remove(t.h)
	c.mu.Unlock()

	c.device.DestroyTexture(entry.id)
	return nil
}

// TextureDesc returns the normalized descriptor t was created with.
func (c *Context) TextureDesc(t Texture) (TextureDesc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.textures.get(t.h)
	if !ok {
		return TextureDesc{}, fmt.Errorf("texture desc %v: %w", t, ErrStaleHandle)
	}
	return e.desc, nil
}

func dimensionLabel(d gputypes.TextureDimension) string {
	switch d {
	case gputypes.TextureDimension1D:
		return "1d"
	case gputypes.TextureDimension3D:
		return "3d"
	default:
		return "2d"
	}
}

func defaultViewDimension(desc *TextureDesc, layers uint32) gputypes.TextureViewDimension {
	switch desc.Dimension {
	case gputypes.TextureDimension1D:
		return gputypes.TextureViewDimension1D
	case gputypes.TextureDimension3D:
		return gputypes.TextureViewDimension3D
	default:
		if layers > 1 {
			return gputypes.TextureViewDimension2DArray
		}
		return gputypes.TextureViewDimension2D
	}
}

// resolveRange resolves base and count (0 = remaining) against total.
func resolveRange(base, count, total uint32) (uint32, bool) {
	if base >= total {
		return 0, false
	}
	if count == 0 {
		count = total - base
	}
	if uint64(base)+uint64(count) > uint64(total) {
		return 0, false
	}
	return count, true
}

// CreateTextureView creates a view of desc.Texture. The subresource range
// must lie within the texture, otherwise ErrSubresourceOutOfRange.
func (c *Context) CreateTextureView(desc TextureViewDesc) (TextureView, error) {
	c.mu.RLock()
	e, ok := c.textures.get(desc.Texture.h)
	var tex textureEntry
	if ok {
		tex = *e
	}
	c.mu.RUnlock()
	if !ok {
		return TextureView{}, fmt.Errorf("create texture view %q: %v: %w", desc.Name, desc.Texture, ErrStaleHandle)
	}

	sub := desc.Subresources
	mips, ok := resolveRange(sub.BaseMipLevel, sub.MipLevelCount, tex.desc.MipLevelCount)
	if !ok {
		return TextureView{}, fmt.Errorf("create texture view %q: mips [%d,+%d) of %d: %w",
			desc.Name, sub.BaseMipLevel, sub.MipLevelCount, tex.desc.MipLevelCount, ErrSubresourceOutOfRange)
	}
	layers, ok := resolveRange(sub.BaseArrayLayer, sub.ArrayLayerCount, tex.desc.ArrayLayerCount)
	if !ok {
		return TextureView{}, fmt.Errorf("create texture view %q: layers [%d,+%d) of %d: %w",
			desc.Name, sub.BaseArrayLayer, sub.ArrayLayerCount, tex.desc.ArrayLayerCount, ErrSubresourceOutOfRange)
	}
	sub.MipLevelCount, sub.ArrayLayerCount = mips, layers

	format := desc.Format
	if format == gputypes.TextureFormatUndefined {
		format = tex.desc.Format
	}
	dim := desc.Dimension
	if dim == gputypes.TextureViewDimensionUndefined {
		dim = defaultViewDimension(&tex.desc, layers)
	}

	id, err := c.device.CreateTextureView(tex.id, &gpucore.TextureViewDesc{
		Label:           desc.Name,
		Format:          format,
		Dimension:       dim,
		BaseMipLevel:    sub.BaseMipLevel,
		MipLevelCount:   sub.MipLevelCount,
		BaseArrayLayer:  sub.BaseArrayLayer,
		ArrayLayerCount: sub.ArrayLayerCount,
	})
	if err != nil {
		return TextureView{}, fmt.Errorf("create texture view %q: %w", desc.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	parent, ok := c.textures.get(desc.Texture.h)
	if !ok {
		// The texture was destroyed while the view was being created.
		c.device.DestroyTextureView(id)
		return TextureView{}, fmt.Errorf("create texture view %q: %v: %w", desc.Name, desc.Texture, ErrStaleHandle)
	}
	parent.views++
	h := c.views.insert(viewEntry{
		id:        id,
		name:      desc.Name,
		texture:   desc.Texture,
		format:    format,
		dimension: dim,
		usage:     tex.desc.Usage,
		sub:       sub,
	})
	return TextureView{h: h}, nil
}

// DestroyTextureView releases v.
func (c *Context) DestroyTextureView(v TextureView) error {
	c.mu.Lock()
	e, ok := c.views.remove(v.h)
	if ok {
		if parent, live := c.textures.get(e.texture.h); live {
			parent.views--
		}
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("destroy %v: %w", v, ErrStaleHandle)
	}
	c.device.DestroyTextureView(e.id)
	return nil
}

func (c *Context) lookupBuffer(b Buffer) (bufferEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.buffers.get(b.h)
	if !ok {
		return bufferEntry{}, fmt.Errorf("%v: %w", b, ErrStaleHandle)
	}
	return *e, nil
}

func (c *Context) lookupTexture(t Texture) (textureEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.textures.get(t.h)
	if !ok {
		return textureEntry{}, fmt.Errorf("%v: %w", t, ErrStaleHandle)
	}
	return *e, nil
}

func (c *Context) lookupView(v TextureView) (viewEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.views.get(v.h)
	if !ok {
		return viewEntry{}, fmt.Errorf("%v: %w", v, ErrStaleHandle)
	}
	return *e, nil
}

// markInitialized marks t initialized and reports whether it was not before.
func (c *Context) markInitialized(t Texture) (textureEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.textures.get(t.h)
	if !ok {
		return textureEntry{}, false, fmt.Errorf("%v: %w", t, ErrStaleHandle)
	}
	first := !e.initialized
	e.initialized = true
	return *e, first, nil
}

func (c *Context) unmarkInitialized(ts []Texture) {
	if len(ts) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range ts {
		if e, ok := c.textures.get(t.h); ok {
			e.initialized = false
		}
	}
}

// checkRefsLocked returns ErrStaleHandle for the first handle in r whose
// object was destroyed. The caller holds c.mu.
func (c *Context) checkRefsLocked(r *resourceRefs) error {
	for _, b := range r.buffers {
		if _, ok := c.buffers.get(b.h); !ok {
			return fmt.Errorf("%v: %w", b, ErrStaleHandle)
		}
	}
	for _, t := range r.textures {
		if _, ok := c.textures.get(t.h); !ok {
			return fmt.Errorf("%v: %w", t, ErrStaleHandle)
		}
	}
	for _, v := range r.views {
		if _, ok := c.views.get(v.h); !ok {
			return fmt.Errorf("%v: %w", v, ErrStaleHandle)
		}
	}
	for _, p := range r.pipelines {
		if p.destroyed.Load() {
			return fmt.Errorf("compute pipeline %q: %w", p.name, ErrStaleHandle)
		}
	}
	return nil
}
