package gpucmd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gpucmd/gpucore"
)

// ShaderDataEncoder receives the values of one ShaderData during Fill.
// Setters address slots by their position in the layout.
//
// Setters do not return errors. The first misuse (a value of the wrong kind,
// a wrong plain size, an index out of range, a stale handle) is kept and
// reported by the Bind call that created the encoder.
type ShaderDataEncoder struct {
	ctx      *Context
	layout   *ShaderDataLayout
	values   []gpucore.BindingValue
	written  []bool
	validate bool
	err      error
	finished bool

	// views and buffers keep the handle written to each resource slot.
	views   []TextureView
	buffers []Buffer
}

func newShaderDataEncoder(ctx *Context, layout *ShaderDataLayout, validate bool) *ShaderDataEncoder {
	return &ShaderDataEncoder{
		ctx:      ctx,
		layout:   layout,
		values:   make([]gpucore.BindingValue, layout.Len()),
		written:  make([]bool, layout.Len()),
		validate: validate,
		views:    make([]TextureView, layout.Len()),
		buffers:  make([]Buffer, layout.Len()),
	}
}

// refs returns the handles of the written resource slots.
func (e *ShaderDataEncoder) refs() resourceRefs {
	var r resourceRefs
	for _, v := range e.views {
		if !v.IsZero() {
			r.views = append(r.views, v)
		}
	}
	for _, b := range e.buffers {
		if !b.IsZero() {
			r.buffers = append(r.buffers, b)
		}
	}
	return r
}

func (e *ShaderDataEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// binding returns slot index, recording an error if it is out of range or
// the encoder is already finished.
func (e *ShaderDataEncoder) binding(index int) (Binding, bool) {
	if e.finished {
		e.fail(ErrEncoderReused)
		return Binding{}, false
	}
	if index < 0 || index >= e.layout.Len() {
		e.fail(fmt.Errorf("binding %d out of range [0,%d): %w", index, e.layout.Len(), ErrBindingKind))
		return Binding{}, false
	}
	return e.layout.Bindings[index], true
}

func (e *ShaderDataEncoder) mismatch(index int, b Binding, got string) {
	e.fail(fmt.Errorf("binding %d (%s): slot is %s, got %s: %w", index, b.Name, b.Kind, got, ErrBindingKind))
}

func (e *ShaderDataEncoder) plain(index int, scalar ScalarKind, data []byte) {
	b, ok := e.binding(index)
	if !ok {
		return
	}
	k, ok := b.Kind.(PlainKind)
	if !ok {
		e.mismatch(index, b, "plain data")
		return
	}
	if scalar != 0 && k.Scalar != scalar {
		e.mismatch(index, b, scalar.String()+" values")
		return
	}
	if uint64(len(data)) != k.Size() {
		e.fail(fmt.Errorf("binding %d (%s): %d bytes, want %d: %w", index, b.Name, len(data), k.Size(), ErrBindingKind))
		return
	}
	e.values[index] = gpucore.BindingValue{Kind: gpucore.SlotUniform, Plain: data}
	e.written[index] = true
}

// SetPlain writes the raw little-endian bytes of a plain slot.
func (e *ShaderDataEncoder) SetPlain(index int, data []byte) {
	e.plain(index, 0, bytes.Clone(data))
}

// SetFloat32s writes an f32 scalar or vector slot.
func (e *ShaderDataEncoder) SetFloat32s(index int, v ...float32) {
	buf := make([]byte, 0, 4*len(v))
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	e.plain(index, F32, buf)
}

// SetUint32s writes a u32 scalar or vector slot.
func (e *ShaderDataEncoder) SetUint32s(index int, v ...uint32) {
	buf := make([]byte, 0, 4*len(v))
	for _, u := range v {
		buf = binary.LittleEndian.AppendUint32(buf, u)
	}
	e.plain(index, U32, buf)
}

// SetInt32s writes an i32 scalar or vector slot.
func (e *ShaderDataEncoder) SetInt32s(index int, v ...int32) {
	buf := make([]byte, 0, 4*len(v))
	for _, i := range v {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(i))
	}
	e.plain(index, I32, buf)
}

// SetTexture writes a sampled or storage texture slot.
func (e *ShaderDataEncoder) SetTexture(index int, view TextureView) {
	b, ok := e.binding(index)
	if !ok {
		return
	}
	v, err := e.ctx.lookupView(view)
	if err != nil {
		e.fail(fmt.Errorf("binding %d (%s): %w", index, b.Name, err))
		return
	}

	switch k := b.Kind.(type) {
	case SampledTextureKind:
		if v.dimension != k.Dimension {
			e.mismatch(index, b, "view "+dimensionName(v.dimension))
			return
		}
		if v.usage&TextureUsageResource == 0 {
			e.mismatch(index, b, "texture without TextureUsageResource")
			return
		}
		e.values[index] = gpucore.BindingValue{Kind: gpucore.SlotSampledTexture, View: v.id}
	case StorageTextureKind:
		if v.dimension != k.Dimension || v.format != k.Format {
			e.mismatch(index, b, fmt.Sprintf("view %s %s", dimensionName(v.dimension), v.format))
			return
		}
		if v.usage&TextureUsageStorage == 0 {
			e.mismatch(index, b, "texture without TextureUsageStorage")
			return
		}
		if v.sub.MipLevelCount != 1 {
			e.mismatch(index, b, fmt.Sprintf("view of %d mip levels", v.sub.MipLevelCount))
			return
		}
		e.values[index] = gpucore.BindingValue{Kind: gpucore.SlotStorageTexture, View: v.id}
	default:
		e.mismatch(index, b, "texture view")
		return
	}
	e.views[index] = view
	e.written[index] = true
}

// SetBuffer writes a buffer slot with the range from piece.Offset to the
// end of the buffer.
func (e *ShaderDataEncoder) SetBuffer(index int, piece BufferPiece) {
	b, ok := e.binding(index)
	if !ok {
		return
	}
	k, ok := b.Kind.(BufferKind)
	if !ok {
		e.mismatch(index, b, "buffer")
		return
	}
	buf, err := e.ctx.lookupBuffer(piece.Buffer)
	if err != nil {
		e.fail(fmt.Errorf("binding %d (%s): %w", index, b.Name, err))
		return
	}
	if piece.Offset >= buf.desc.Size {
		e.fail(fmt.Errorf("binding %d (%s): offset %d in %d-byte buffer: %w",
			index, b.Name, piece.Offset, buf.desc.Size, ErrCopyOutOfBounds))
		return
	}
	kind := gpucore.SlotUniform
	switch k.Access {
	case ReadOnly:
		kind = gpucore.SlotReadOnlyStorageBuffer
	case ReadWrite:
		kind = gpucore.SlotStorageBuffer
	}
	e.values[index] = gpucore.BindingValue{
		Kind:   kind,
		Buffer: buf.id,
		Offset: piece.Offset,
		Size:   buf.desc.Size - piece.Offset,
	}
	e.buffers[index] = piece.Buffer
	e.written[index] = true
}

// finish returns the slot values. It can be called once.
func (e *ShaderDataEncoder) finish() ([]gpucore.BindingValue, error) {
	if e.finished {
		return nil, ErrEncoderReused
	}
	e.finished = true
	if e.err != nil {
		return nil, e.err
	}
	for i, ok := range e.written {
		if ok {
			continue
		}
		b := e.layout.Bindings[i]
		if e.validate {
			return nil, fmt.Errorf("binding %d (%s) not written: %w", i, b.Name, ErrIncompleteBinding)
		}
		e.values[i] = zeroValue(b.Kind)
	}
	return e.values, nil
}

func zeroValue(k BindingKind) gpucore.BindingValue {
	s := slotLayout(k)
	v := gpucore.BindingValue{Kind: s.Kind}
	if p, ok := k.(PlainKind); ok {
		v.Plain = make([]byte, p.Size())
	}
	return v
}
