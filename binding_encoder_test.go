package gpucmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/gpucore"
)

func TestShaderDataEncoder_Fill(t *testing.T) {
	ctx, _ := newTestContext(t)
	tex := mipTexture(t, ctx, 2)
	in := mipView(t, ctx, tex, 0, 1)
	out := mipView(t, ctx, tex, 1, 1)

	enc := newShaderDataEncoder(ctx, downsampleLayout, true)
	downsample{Modulator: [4]float32{1, 1, 1, 1}, Input: in, Output: out}.Fill(enc)
	values, err := enc.finish()
	if err != nil {
		t.Fatalf("finish() error = %v", err)
	}

	wantPlain := []byte{0, 0, 0x80, 0x3f, 0, 0, 0x80, 0x3f, 0, 0, 0x80, 0x3f, 0, 0, 0x80, 0x3f}
	if values[0].Kind != gpucore.SlotUniform || !bytes.Equal(values[0].Plain, wantPlain) {
		t.Errorf("values[0] = %+v, want uniform %x", values[0], wantPlain)
	}
	inEntry, _ := ctx.lookupView(in)
	outEntry, _ := ctx.lookupView(out)
	if values[1].Kind != gpucore.SlotSampledTexture || values[1].View != inEntry.id {
		t.Errorf("values[1] = %+v, want sampled view %d", values[1], inEntry.id)
	}
	if values[2].Kind != gpucore.SlotStorageTexture || values[2].View != outEntry.id {
		t.Errorf("values[2] = %+v, want storage view %d", values[2], outEntry.id)
	}
}

func TestShaderDataEncoder_Incomplete(t *testing.T) {
	ctx, _ := newTestContext(t)
	tex := mipTexture(t, ctx, 2)
	in := mipView(t, ctx, tex, 0, 1)
	partial := func(e *ShaderDataEncoder) { e.SetTexture(1, in) }

	t.Run("validation on", func(t *testing.T) {
		enc := newShaderDataEncoder(ctx, downsampleLayout, true)
		partial(enc)
		if _, err := enc.finish(); !errors.Is(err, ErrIncompleteBinding) {
			t.Errorf("finish() error = %v, want ErrIncompleteBinding", err)
		}
	})

	t.Run("validation off", func(t *testing.T) {
		enc := newShaderDataEncoder(ctx, downsampleLayout, false)
		partial(enc)
		values, err := enc.finish()
		if err != nil {
			t.Fatalf("finish() error = %v", err)
		}
		if values[0].Kind != gpucore.SlotUniform || !bytes.Equal(values[0].Plain, make([]byte, 16)) {
			t.Errorf("values[0] = %+v, want 16 zero bytes", values[0])
		}
		if values[2].Kind != gpucore.SlotStorageTexture || values[2].View != gpucore.InvalidID {
			t.Errorf("values[2] = %+v, want empty storage slot", values[2])
		}
	})
}

func TestShaderDataEncoder_Reused(t *testing.T) {
	ctx, _ := newTestContext(t)
	layout := &ShaderDataLayout{Bindings: []Binding{{Name: "scale", Kind: KindF32}}}
	enc := newShaderDataEncoder(ctx, layout, true)
	enc.SetFloat32s(0, 2)
	if _, err := enc.finish(); err != nil {
		t.Fatalf("finish() error = %v", err)
	}
	if _, err := enc.finish(); !errors.Is(err, ErrEncoderReused) {
		t.Errorf("second finish() error = %v, want ErrEncoderReused", err)
	}
	enc.SetFloat32s(0, 3)
	if !errors.Is(enc.err, ErrEncoderReused) {
		t.Errorf("setter after finish recorded %v, want ErrEncoderReused", enc.err)
	}
}

func TestShaderDataEncoder_KindErrors(t *testing.T) {
	ctx, _ := newTestContext(t)
	tex := mipTexture(t, ctx, 2)
	whole := mipView(t, ctx, tex, 0, 0)
	level1 := mipView(t, ctx, tex, 1, 1)

	floatTex, err := ctx.CreateTexture(TextureDesc{
		Name:   "r32",
		Format: gputypes.TextureFormatR32Float,
		Size:   Extent{Width: 4, Height: 4},
		Usage:  allUsage,
	})
	if err != nil {
		t.Fatal(err)
	}
	floatView := mipView(t, ctx, floatTex, 0, 1)

	sampledOnly, err := ctx.CreateTexture(TextureDesc{
		Name:   "sampled only",
		Format: gputypes.TextureFormatRGBA8Unorm,
		Size:   Extent{Width: 4, Height: 4},
		Usage:  TextureUsageResource,
	})
	if err != nil {
		t.Fatal(err)
	}
	sampledView := mipView(t, ctx, sampledOnly, 0, 1)

	stale := mipView(t, ctx, tex, 0, 1)
	if err := ctx.DestroyTextureView(stale); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		fill func(*ShaderDataEncoder)
		want error
	}{
		{"vector into texture slot", func(e *ShaderDataEncoder) { e.SetFloat32s(1, 1, 2, 3, 4) }, ErrBindingKind},
		{"u32 into f32 slot", func(e *ShaderDataEncoder) { e.SetUint32s(0, 1, 2, 3, 4) }, ErrBindingKind},
		{"short vector", func(e *ShaderDataEncoder) { e.SetFloat32s(0, 1, 2) }, ErrBindingKind},
		{"raw bytes of wrong size", func(e *ShaderDataEncoder) { e.SetPlain(0, make([]byte, 12)) }, ErrBindingKind},
		{"index out of range", func(e *ShaderDataEncoder) { e.SetTexture(3, level1) }, ErrBindingKind},
		{"negative index", func(e *ShaderDataEncoder) { e.SetTexture(-1, level1) }, ErrBindingKind},
		{"texture into plain slot", func(e *ShaderDataEncoder) { e.SetTexture(0, level1) }, ErrBindingKind},
		{"storage view of many levels", func(e *ShaderDataEncoder) { e.SetTexture(2, whole) }, ErrBindingKind},
		{"storage view of other format", func(e *ShaderDataEncoder) { e.SetTexture(2, floatView) }, ErrBindingKind},
		{"storage without storage usage", func(e *ShaderDataEncoder) { e.SetTexture(2, sampledView) }, ErrBindingKind},
		{"buffer into texture slot", func(e *ShaderDataEncoder) { e.SetBuffer(1, BufferPiece{}) }, ErrBindingKind},
		{"stale view", func(e *ShaderDataEncoder) { e.SetTexture(1, stale) }, ErrStaleHandle},
		{"first error sticks", func(e *ShaderDataEncoder) {
			e.SetTexture(1, stale)
			e.SetFloat32s(1, 1)
		}, ErrStaleHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := newShaderDataEncoder(ctx, downsampleLayout, false)
			tt.fill(enc)
			if _, err := enc.finish(); !errors.Is(err, tt.want) {
				t.Errorf("finish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestShaderDataEncoder_SetBuffer(t *testing.T) {
	ctx, _ := newTestContext(t)
	buf, err := ctx.CreateBuffer(BufferDesc{Name: "data", Size: 16})
	if err != nil {
		t.Fatal(err)
	}
	entry, _ := ctx.lookupBuffer(buf)

	tests := []struct {
		name     string
		access   BufferAccess
		offset   uint64
		wantKind gpucore.SlotKind
		wantErr  error
	}{
		{"read write", ReadWrite, 4, gpucore.SlotStorageBuffer, nil},
		{"read only", ReadOnly, 0, gpucore.SlotReadOnlyStorageBuffer, nil},
		{"uniform", Uniform, 8, gpucore.SlotUniform, nil},
		{"offset at end", ReadWrite, 16, 0, ErrCopyOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := &ShaderDataLayout{Bindings: []Binding{{Name: "data", Kind: BufferKind{Access: tt.access}}}}
			enc := newShaderDataEncoder(ctx, layout, true)
			enc.SetBuffer(0, buf.At(tt.offset))
			values, err := enc.finish()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("finish() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			want := gpucore.BindingValue{Kind: tt.wantKind, Buffer: entry.id, Offset: tt.offset, Size: 16 - tt.offset}
			if got := values[0]; got.Kind != want.Kind || got.Buffer != want.Buffer ||
				got.Offset != want.Offset || got.Size != want.Size {
				t.Errorf("values[0] = %+v, want %+v", got, want)
			}
		})
	}
}
