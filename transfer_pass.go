package gpucmd

import (
	"fmt"

	"github.com/gogpu/gpucmd/gpucore"
)

// TransferPass records texture initialization and copies.
// The device makes every resource touched by a transfer pass available to
// copies before the pass and to shaders after it.
type TransferPass struct {
	*pass
}

// InitTexture brings every subresource of t into a state ready for writes.
// It must precede copies into t. The texture's previous contents are
// undefined afterwards.
func (p *TransferPass) InitTexture(t Texture) error {
	p.enc.mu.Lock()
	defer p.enc.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return fmt.Errorf("init texture: %w", err)
	}
	entry, first, err := p.enc.ctx.markInitialized(t)
	if err != nil {
		return fmt.Errorf("init texture: %w", err)
	}
	if first {
		p.enc.inits = append(p.enc.inits, t)
	}
	p.enc.refs.textures = append(p.enc.refs.textures, t)
	p.recordLocked(gpucore.InitTexture{
		Texture:     entry.id,
		MipLevels:   entry.desc.MipLevelCount,
		ArrayLayers: entry.desc.ArrayLayerCount,
	})
	return nil
}

// checkRegion validates a copy region of texture entry e and returns the
// byte size of one row of the region.
func checkRegion(e *textureEntry, piece TexturePiece, size Extent, bytesPerRow uint32) (uint32, error) {
	if size.IsEmpty() {
		return 0, fmt.Errorf("empty copy size %v: %w", size, ErrInvalidDescriptor)
	}
	if e.desc.Usage&TextureUsageCopy == 0 {
		return 0, fmt.Errorf("texture %q lacks TextureUsageCopy: %w", e.desc.Name, ErrInvalidDescriptor)
	}
	if piece.MipLevel >= e.desc.MipLevelCount {
		return 0, fmt.Errorf("texture %q: mip %d of %d: %w",
			e.desc.Name, piece.MipLevel, e.desc.MipLevelCount, ErrSubresourceOutOfRange)
	}
	if piece.ArrayLayer >= e.desc.ArrayLayerCount {
		return 0, fmt.Errorf("texture %q: layer %d of %d: %w",
			e.desc.Name, piece.ArrayLayer, e.desc.ArrayLayerCount, ErrSubresourceOutOfRange)
	}
	mip := e.desc.Size.AtMipLevel(piece.MipLevel)
	if uint64(piece.Origin[0])+uint64(size.Width) > uint64(mip.Width) ||
		uint64(piece.Origin[1])+uint64(size.Height) > uint64(mip.Height) ||
		uint64(piece.Origin[2])+uint64(size.Depth) > uint64(mip.Depth) {
		return 0, fmt.Errorf("texture %q: region %v at %v exceeds mip %d size %v: %w",
			e.desc.Name, size, piece.Origin, piece.MipLevel, mip, ErrSubresourceOutOfRange)
	}

	texel, _ := gpucore.TexelSize(e.desc.Format)
	row := size.Width * texel
	if bytesPerRow < row || bytesPerRow%texel != 0 {
		return 0, fmt.Errorf("texture %q: bytesPerRow %d for %d texels of %d bytes: %w",
			e.desc.Name, bytesPerRow, size.Width, texel, ErrInvalidRowPitch)
	}
	return row, nil
}

// linearSize is the number of bytes a copy of size touches in a buffer.
func linearSize(size Extent, bytesPerRow, row uint32) uint64 {
	rows := uint64(size.Height) * uint64(size.Depth)
	return uint64(bytesPerRow)*(rows-1) + uint64(row)
}

func checkBufferRange(b *bufferEntry, offset, n uint64) error {
	if offset > b.desc.Size || n > b.desc.Size-offset {
		return fmt.Errorf("buffer %q: range [%d,+%d) of %d bytes: %w",
			b.desc.Name, offset, n, b.desc.Size, ErrCopyOutOfBounds)
	}
	return nil
}

func location(id gpucore.TextureID, p TexturePiece) gpucore.TextureLocation {
	return gpucore.TextureLocation{
		Texture:    id,
		MipLevel:   p.MipLevel,
		ArrayLayer: p.ArrayLayer,
		Origin:     p.Origin,
	}
}

// CopyBufferToTexture copies rows of src, bytesPerRow apart, into the region
// of dst at its origin. The texture must have been initialized.
func (p *TransferPass) CopyBufferToTexture(src BufferPiece, bytesPerRow uint32, dst TexturePiece, size Extent) error {
	p.enc.mu.Lock()
	defer p.enc.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return fmt.Errorf("copy buffer to texture: %w", err)
	}
	ctx := p.enc.ctx
	size = size.withDepth()

	tex, err := ctx.lookupTexture(dst.Texture)
	if err != nil {
		return fmt.Errorf("copy buffer to texture: %w", err)
	}
	if !tex.initialized {
		return fmt.Errorf("copy buffer to texture %q: %w", tex.desc.Name, ErrTextureNotInitialized)
	}
	row, err := checkRegion(&tex, dst, size, bytesPerRow)
	if err != nil {
		return fmt.Errorf("copy buffer to texture: %w", err)
	}
	buf, err := ctx.lookupBuffer(src.Buffer)
	if err != nil {
		return fmt.Errorf("copy buffer to texture: %w", err)
	}
	if err := checkBufferRange(&buf, src.Offset, linearSize(size, bytesPerRow, row)); err != nil {
		return fmt.Errorf("copy buffer to texture: %w", err)
	}

	p.enc.refs.buffers = append(p.enc.refs.buffers, src.Buffer)
	p.enc.refs.textures = append(p.enc.refs.textures, dst.Texture)
	p.recordLocked(gpucore.CopyBufferToTexture{
		Src:         buf.id,
		SrcOffset:   src.Offset,
		BytesPerRow: bytesPerRow,
		Dst:         location(tex.id, dst),
		Size:        size.core(),
	})
	return nil
}

// CopyTextureToBuffer copies the region of src at its origin into rows of
// dst, bytesPerRow apart.
func (p *TransferPass) CopyTextureToBuffer(src TexturePiece, dst BufferPiece, bytesPerRow uint32, size Extent) error {
	p.enc.mu.Lock()
	defer p.enc.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return fmt.Errorf("copy texture to buffer: %w", err)
	}
	ctx := p.enc.ctx
	size = size.withDepth()

	tex, err := ctx.lookupTexture(src.Texture)
	if err != nil {
		return fmt.Errorf("copy texture to buffer: %w", err)
	}
	row, err := checkRegion(&tex, src, size, bytesPerRow)
	if err != nil {
		return fmt.Errorf("copy texture to buffer: %w", err)
	}
	buf, err := ctx.lookupBuffer(dst.Buffer)
	if err != nil {
		return fmt.Errorf("copy texture to buffer: %w", err)
	}
	if err := checkBufferRange(&buf, dst.Offset, linearSize(size, bytesPerRow, row)); err != nil {
		return fmt.Errorf("copy texture to buffer: %w", err)
	}

	p.enc.refs.textures = append(p.enc.refs.textures, src.Texture)
	p.enc.refs.buffers = append(p.enc.refs.buffers, dst.Buffer)
	p.recordLocked(gpucore.CopyTextureToBuffer{
		Src:         location(tex.id, src),
		Dst:         buf.id,
		DstOffset:   dst.Offset,
		BytesPerRow: bytesPerRow,
		Size:        size.core(),
	})
	return nil
}

// CopyBufferToBuffer copies size bytes from src to dst.
func (p *TransferPass) CopyBufferToBuffer(src, dst BufferPiece, size uint64) error {
	p.enc.mu.Lock()
	defer p.enc.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return fmt.Errorf("copy buffer to buffer: %w", err)
	}
	ctx := p.enc.ctx

	sb, err := ctx.lookupBuffer(src.Buffer)
	if err != nil {
		return fmt.Errorf("copy buffer to buffer: %w", err)
	}
	db, err := ctx.lookupBuffer(dst.Buffer)
	if err != nil {
		return fmt.Errorf("copy buffer to buffer: %w", err)
	}
	if err := checkBufferRange(&sb, src.Offset, size); err != nil {
		return fmt.Errorf("copy buffer to buffer: %w", err)
	}
	if err := checkBufferRange(&db, dst.Offset, size); err != nil {
		return fmt.Errorf("copy buffer to buffer: %w", err)
	}

	p.enc.refs.buffers = append(p.enc.refs.buffers, src.Buffer, dst.Buffer)
	p.recordLocked(gpucore.CopyBufferToBuffer{
		Src:       sb.id,
		SrcOffset: src.Offset,
		Dst:       db.id,
		DstOffset: dst.Offset,
		Size:      size,
	})
	return nil
}

// FillBuffer sets size bytes of dst to value.
func (p *TransferPass) FillBuffer(dst BufferPiece, size uint64, value byte) error {
	p.enc.mu.Lock()
	defer p.enc.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return fmt.Errorf("fill buffer: %w", err)
	}

	b, err := p.enc.ctx.lookupBuffer(dst.Buffer)
	if err != nil {
		return fmt.Errorf("fill buffer: %w", err)
	}
	if err := checkBufferRange(&b, dst.Offset, size); err != nil {
		return fmt.Errorf("fill buffer: %w", err)
	}

	p.enc.refs.buffers = append(p.enc.refs.buffers, dst.Buffer)
	p.recordLocked(gpucore.FillBuffer{Dst: b.id, Offset: dst.Offset, Size: size, Value: value})
	return nil
}
