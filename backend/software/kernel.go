package software

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gpucmd/gpucore"
)

// Kernel runs one shader invocation on the CPU. It reads and writes bound
// resources through inv. Invocations of a dispatch run concurrently; a
// kernel must only write texels or bytes owned by its invocation.
type Kernel func(inv *Invocation)

// bound is a resolved binding value.
type bound struct {
	plain []byte
	tex   *Texture
	buf   []byte
}

func (d *Device) resolve(entries []gpucore.BindingValue) ([]bound, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]bound, len(entries))
	for i, e := range entries {
		switch {
		case e.Plain != nil:
			out[i].plain = e.Plain
		case e.View != gpucore.InvalidID:
			v, ok := d.views[e.View]
			if !ok {
				return nil, fmt.Errorf("binding %d: view %d: %w", i, e.View, ErrUnknownResource)
			}
			out[i].tex = newTexture(v)
		case e.Buffer != gpucore.InvalidID:
			b, ok := d.buffers[e.Buffer]
			if !ok {
				return nil, fmt.Errorf("binding %d: buffer %d: %w", i, e.Buffer, ErrUnknownResource)
			}
			out[i].buf = b.data[e.Offset : e.Offset+e.Size]
		}
	}
	return out, nil
}

// dispatch runs the pipeline's kernel over a grid of workgroups.
func (d *Device) dispatch(st *state, groups [3]uint32) {
	kernel := st.pipeline.kernel
	size := st.pipeline.desc.WorkgroupSize
	for i := range size {
		size[i] = max(size[i], 1)
	}
	bindings := st.groups
	d.pool.Dispatch(groups, func(wg [3]uint32) {
		inv := Invocation{WorkgroupID: wg, groups: bindings}
		for z := range size[2] {
			for y := range size[1] {
				for x := range size[0] {
					inv.LocalID = [3]uint32{x, y, z}
					inv.GlobalID = [3]uint32{wg[0]*size[0] + x, wg[1]*size[1] + y, wg[2]*size[2] + z}
					kernel(&inv)
				}
			}
		}
	})
}

// Invocation is one kernel invocation of a dispatch.
type Invocation struct {
	GlobalID    [3]uint32
	LocalID     [3]uint32
	WorkgroupID [3]uint32

	groups [][]bound
}

func (inv *Invocation) binding(group, slot uint32) *bound {
	if int(group) >= len(inv.groups) || int(slot) >= len(inv.groups[group]) {
		return nil
	}
	return &inv.groups[group][slot]
}

// Plain returns the bytes of a plain binding, or nil.
func (inv *Invocation) Plain(group, slot uint32) []byte {
	if b := inv.binding(group, slot); b != nil {
		return b.plain
	}
	return nil
}

// Vec4 decodes a plain vec4<f32> binding. Missing components read as zero.
func (inv *Invocation) Vec4(group, slot uint32) [4]float32 {
	var v [4]float32
	p := inv.Plain(group, slot)
	for i := 0; i < 4 && 4*i+4 <= len(p); i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[4*i:]))
	}
	return v
}

// Texture returns a texture binding, or nil.
func (inv *Invocation) Texture(group, slot uint32) *Texture {
	if b := inv.binding(group, slot); b != nil {
		return b.tex
	}
	return nil
}

// Buffer returns the bound byte range of a buffer binding, or nil.
func (inv *Invocation) Buffer(group, slot uint32) []byte {
	if b := inv.binding(group, slot); b != nil {
		return b.buf
	}
	return nil
}

// Texture is a bound texture view as a kernel sees it: the view's base mip
// level and array layer, addressed in texels.
type Texture struct {
	tex   *texture
	mip   uint32
	mips  uint32
	layer uint32
}

func newTexture(v *view) *Texture {
	return &Texture{
		tex:   v.tex,
		mip:   v.desc.BaseMipLevel,
		mips:  max(v.desc.MipLevelCount, 1),
		layer: v.desc.BaseArrayLayer,
	}
}

// Dimensions returns the width and height of the view's base level, as
// textureDimensions does.
func (t *Texture) Dimensions() (w, h uint32) {
	if t == nil {
		return 0, 0
	}
	w, h, _ = t.tex.mipSize(t.mip)
	return w, h
}

func (t *Texture) texel(x, y int32, level uint32) []byte {
	if t == nil || !t.tex.canUse || level >= t.mips || x < 0 || y < 0 {
		return nil
	}
	mip := t.mip + level
	w, h, _ := t.tex.mipSize(mip)
	if uint32(x) >= w || uint32(y) >= h {
		return nil
	}
	off := (uint64(y)*uint64(w) + uint64(x)) * uint64(t.tex.texel)
	return t.tex.level(t.layer, mip)[off : off+uint64(t.tex.texel)]
}

// Load reads texel (x, y) of level, relative to the view's base level.
// Out-of-range reads return zero.
func (t *Texture) Load(x, y int32, level uint32) [4]float32 {
	b := t.texel(x, y, level)
	if b == nil {
		return [4]float32{}
	}
	return t.tex.codec.decode(b)
}

// Store writes texel (x, y) of the view's base level.
// Out-of-range writes are dropped.
func (t *Texture) Store(x, y int32, v [4]float32) {
	if b := t.texel(x, y, 0); b != nil {
		t.tex.codec.encode(v, b)
	}
}
