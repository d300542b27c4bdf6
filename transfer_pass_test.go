package gpucmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// submitTransfer records fn in a transfer pass of a fresh encoder, submits
// it and waits for completion.
func submitTransfer(t *testing.T, ctx *Context, fn func(*TransferPass) error) {
	t.Helper()
	enc := ctx.CreateCommandEncoder(CommandEncoderDesc{Name: t.Name()})
	if err := enc.Start(); err != nil {
		t.Fatal(err)
	}
	if err := enc.WithTransfer(fn); err != nil {
		t.Fatalf("recording error = %v", err)
	}
	sp, err := ctx.Submit(enc)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := ctx.Wait(context.Background(), sp); err != nil {
		t.Fatal(err)
	}
}

func uploadBuffer(t *testing.T, ctx *Context, data []byte) Buffer {
	t.Helper()
	b, err := ctx.CreateBuffer(BufferDesc{Name: "upload", Size: uint64(len(data)), Memory: MemoryUpload})
	if err != nil {
		t.Fatal(err)
	}
	host, err := ctx.BufferData(b)
	if err != nil {
		t.Fatal(err)
	}
	copy(host, data)
	return b
}

func TestTransfer_TextureRoundTrip(t *testing.T) {
	ctx, dev := newTestContext(t)
	tex := mipTexture(t, ctx, 2)

	src := make([]byte, 16*16*4)
	for i := range src {
		src[i] = byte(i * 7)
	}
	up := uploadBuffer(t, ctx, src)
	down, err := ctx.CreateBuffer(BufferDesc{Name: "readback", Size: uint64(len(src)), Memory: MemoryShared})
	if err != nil {
		t.Fatal(err)
	}

	submitTransfer(t, ctx, func(p *TransferPass) error {
		if err := p.InitTexture(tex); err != nil {
			return err
		}
		if err := p.CopyBufferToTexture(up.At(0), 64, tex.Mip(0), Extent{Width: 16, Height: 16}); err != nil {
			return err
		}
		return p.CopyTextureToBuffer(tex.Mip(0), down.At(0), 64, Extent{Width: 16, Height: 16})
	})

	got, err := ctx.BufferData(down)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src) {
		t.Error("texture round trip changed the data")
	}
	if err := dev.Err(); err != nil {
		t.Errorf("device fault = %v", err)
	}
}

func TestTransfer_PaddedRows(t *testing.T) {
	ctx, _ := newTestContext(t)
	tex := mipTexture(t, ctx, 2)

	// A 2x2 region at (3, 4) of mip 1, rows 16 bytes apart.
	src := make([]byte, 16+8)
	copy(src[0:8], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	copy(src[16:24], []byte{9, 10, 11, 12, 13, 14, 15, 16})
	up := uploadBuffer(t, ctx, src)
	down, err := ctx.CreateBuffer(BufferDesc{Name: "readback", Size: 16, Memory: MemoryShared})
	if err != nil {
		t.Fatal(err)
	}

	region := Extent{Width: 2, Height: 2}
	piece := TexturePiece{Texture: tex, MipLevel: 1, Origin: [3]uint32{3, 4, 0}}
	submitTransfer(t, ctx, func(p *TransferPass) error {
		if err := p.InitTexture(tex); err != nil {
			return err
		}
		if err := p.CopyBufferToTexture(up.At(0), 16, piece, region); err != nil {
			return err
		}
		return p.CopyTextureToBuffer(piece, down.At(0), 8, region)
	})

	got, _ := ctx.BufferData(down)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if !bytes.Equal(got, want) {
		t.Errorf("readback = %v, want %v", got, want)
	}
}

func TestTransfer_Errors(t *testing.T) {
	ctx, _ := newTestContext(t)
	tex := mipTexture(t, ctx, 2)
	fresh := mipTexture(t, ctx, 1)
	up := uploadBuffer(t, ctx, make([]byte, 1024))
	small := uploadBuffer(t, ctx, make([]byte, 64))
	full := Extent{Width: 16, Height: 16}

	enc := ctx.CreateCommandEncoder(CommandEncoderDesc{Name: "errors"})
	if err := enc.Start(); err != nil {
		t.Fatal(err)
	}
	p, err := enc.Transfer()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.InitTexture(tex); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"not initialized", func() error {
			return p.CopyBufferToTexture(up.At(0), 64, fresh.Mip(0), full)
		}, ErrTextureNotInitialized},
		{"short row pitch", func() error {
			return p.CopyBufferToTexture(up.At(0), 60, tex.Mip(0), full)
		}, ErrInvalidRowPitch},
		{"unaligned row pitch", func() error {
			return p.CopyBufferToTexture(up.At(0), 66, tex.Mip(0), full)
		}, ErrInvalidRowPitch},
		{"mip out of range", func() error {
			return p.CopyBufferToTexture(up.At(0), 64, tex.Mip(2), Extent{Width: 1, Height: 1})
		}, ErrSubresourceOutOfRange},
		{"region exceeds mip", func() error {
			return p.CopyTextureToBuffer(tex.Mip(1), up.At(0), 64, Extent{Width: 9, Height: 8})
		}, ErrSubresourceOutOfRange},
		{"depth on 2d mip", func() error {
			return p.CopyBufferToTexture(up.At(0), 64, tex.Mip(1), Extent{Width: 4, Height: 4, Depth: 4})
		}, ErrSubresourceOutOfRange},
		{"layer out of range", func() error {
			return p.CopyTextureToBuffer(TexturePiece{Texture: tex, ArrayLayer: 1}, up.At(0), 64, full)
		}, ErrSubresourceOutOfRange},
		{"buffer too small", func() error {
			return p.CopyBufferToTexture(small.At(0), 64, tex.Mip(0), full)
		}, ErrCopyOutOfBounds},
		{"buffer offset too large", func() error {
			return p.CopyTextureToBuffer(tex.Mip(1), up.At(1000), 32, Extent{Width: 8, Height: 8})
		}, ErrCopyOutOfBounds},
		{"empty region", func() error {
			return p.CopyBufferToTexture(up.At(0), 64, tex.Mip(0), Extent{Width: 16})
		}, ErrInvalidDescriptor},
		{"buffer copy out of bounds", func() error {
			return p.CopyBufferToBuffer(up.At(0), small.At(32), 64)
		}, ErrCopyOutOfBounds},
		{"fill out of bounds", func() error {
			return p.FillBuffer(small.At(60), 8, 0)
		}, ErrCopyOutOfBounds},
		{"stale buffer", func() error {
			return p.FillBuffer(BufferPiece{}, 4, 0)
		}, ErrStaleHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	p.End()
	if err := p.FillBuffer(small.At(0), 4, 0); !errors.Is(err, ErrPassEnded) {
		t.Errorf("FillBuffer() after End error = %v, want ErrPassEnded", err)
	}
}

func TestTransfer_FillAndCopyBuffers(t *testing.T) {
	ctx, _ := newTestContext(t)
	src, err := ctx.CreateBuffer(BufferDesc{Name: "src", Size: 32})
	if err != nil {
		t.Fatal(err)
	}
	dst, err := ctx.CreateBuffer(BufferDesc{Name: "dst", Size: 32, Memory: MemoryShared})
	if err != nil {
		t.Fatal(err)
	}

	submitTransfer(t, ctx, func(p *TransferPass) error {
		if err := p.FillBuffer(src.At(0), 32, 0xab); err != nil {
			return err
		}
		if err := p.FillBuffer(src.At(8), 8, 0x01); err != nil {
			return err
		}
		return p.CopyBufferToBuffer(src.At(4), dst.At(0), 16)
	})

	got, _ := ctx.BufferData(dst)
	want := make([]byte, 32)
	copy(want, []byte{0xab, 0xab, 0xab, 0xab, 1, 1, 1, 1, 1, 1, 1, 1, 0xab, 0xab, 0xab, 0xab})
	if !bytes.Equal(got, want) {
		t.Errorf("dst = %x, want %x", got, want)
	}
}
