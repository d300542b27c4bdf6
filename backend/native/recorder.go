package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/gpucore"
)

// recorder lowers one command list into a HAL encoder. It runs under the
// device mutex.
type recorder struct {
	d   *Device
	enc hal.CommandEncoder
	fl  *inflight

	pipeline *pipeline
	groups   map[uint32]*boundGroup
}

type boundGroup struct {
	raw    hal.BindGroup
	values []gpucore.BindingValue
}

func (r *recorder) record(p *gpucore.Pass) error {
	r.pipeline = nil
	r.groups = make(map[uint32]*boundGroup)
	for _, c := range p.Commands {
		if err := r.command(p.Label, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *recorder) command(label string, c gpucore.Command) error {
	switch c := c.(type) {
	case gpucore.InitTexture:
		t, err := r.texture(c.Texture)
		if err != nil {
			return err
		}
		r.transitionTexture(t, 0, c.MipLevels, 0, c.ArrayLayers, gputypes.TextureUsageCopyDst)

	case gpucore.CopyBufferToTexture:
		src, err := r.buffer(c.Src)
		if err != nil {
			return err
		}
		dst, err := r.texture(c.Dst.Texture)
		if err != nil {
			return err
		}
		r.transitionBuffer(src, gputypes.BufferUsageCopySrc)
		r.transitionTexture(dst, c.Dst.MipLevel, 1, c.Dst.ArrayLayer, 1, gputypes.TextureUsageCopyDst)
		r.enc.CopyBufferToTexture(src.raw, dst.raw, []hal.BufferTextureCopy{
			copyRegion(c.Dst, dst, c.SrcOffset, c.BytesPerRow, c.Size),
		})

	case gpucore.CopyTextureToBuffer:
		src, err := r.texture(c.Src.Texture)
		if err != nil {
			return err
		}
		dst, err := r.buffer(c.Dst)
		if err != nil {
			return err
		}
		r.transitionTexture(src, c.Src.MipLevel, 1, c.Src.ArrayLayer, 1, gputypes.TextureUsageCopySrc)
		r.transitionBuffer(dst, gputypes.BufferUsageCopyDst)
		r.enc.CopyTextureToBuffer(src.raw, dst.raw, []hal.BufferTextureCopy{
			copyRegion(c.Src, src, c.DstOffset, c.BytesPerRow, c.Size),
		})

	case gpucore.CopyBufferToBuffer:
		src, err := r.buffer(c.Src)
		if err != nil {
			return err
		}
		dst, err := r.buffer(c.Dst)
		if err != nil {
			return err
		}
		r.transitionBuffer(src, gputypes.BufferUsageCopySrc)
		r.transitionBuffer(dst, gputypes.BufferUsageCopyDst)
		r.enc.CopyBufferToBuffer(src.raw, dst.raw, []hal.BufferCopy{
			{SrcOffset: c.SrcOffset, DstOffset: c.DstOffset, Size: c.Size},
		})

	case gpucore.FillBuffer:
		if c.Value != 0 {
			return ErrUnsupportedFill
		}
		dst, err := r.buffer(c.Dst)
		if err != nil {
			return err
		}
		r.transitionBuffer(dst, gputypes.BufferUsageCopyDst)
		r.enc.ClearBuffer(dst.raw, c.Offset, c.Size)

	case gpucore.SetPipeline:
		p, ok := r.d.pipelines[c.Pipeline]
		if !ok {
			return fmt.Errorf("%w: pipeline %d", ErrUnknownResource, c.Pipeline)
		}
		r.pipeline = p
		clear(r.groups)

	case gpucore.BindGroup:
		return r.bindGroup(c)

	case gpucore.Dispatch:
		return r.dispatch(label, c)

	default:
		return fmt.Errorf("native: unknown command %T", c)
	}
	return nil
}

func (r *recorder) buffer(id gpucore.BufferID) (*buffer, error) {
	b, ok := r.d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	return b, nil
}

func (r *recorder) texture(id gpucore.TextureID) (*texture, error) {
	t, ok := r.d.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	return t, nil
}

func (r *recorder) transitionBuffer(b *buffer, usage gputypes.BufferUsage) {
	if b.state == usage {
		return
	}
	r.enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: b.raw,
		Usage:  hal.BufferUsageTransition{OldUsage: b.state, NewUsage: usage},
	}})
	b.state = usage
}

// transitionTexture moves every subresource in the range to usage, one
// barrier per subresource whose state differs.
func (r *recorder) transitionTexture(t *texture, baseMip, mips, baseLayer, layers uint32, usage gputypes.TextureUsage) {
	var barriers []hal.TextureBarrier
	for layer := baseLayer; layer < baseLayer+max(layers, 1); layer++ {
		for mip := baseMip; mip < baseMip+mips; mip++ {
			s := t.state(layer, mip)
			if *s == usage {
				continue
			}
			barriers = append(barriers, hal.TextureBarrier{
				Texture: t.raw,
				Range: hal.TextureRange{
					Aspect:          gputypes.TextureAspectAll,
					BaseMipLevel:    mip,
					MipLevelCount:   1,
					BaseArrayLayer:  layer,
					ArrayLayerCount: 1,
				},
				Usage: hal.TextureUsageTransition{OldUsage: *s, NewUsage: usage},
			})
			*s = usage
		}
	}
	if len(barriers) > 0 {
		r.enc.TransitionTextures(barriers)
	}
}

func (r *recorder) bindGroup(c gpucore.BindGroup) error {
	p := r.pipeline
	if p == nil || int(c.Group) >= len(p.groups) {
		return fmt.Errorf("native: bind group %d without a matching pipeline", c.Group)
	}
	entries := make([]gputypes.BindGroupEntry, len(c.Entries))
	for i, v := range c.Entries {
		e := gputypes.BindGroupEntry{Binding: uint32(i)}
		switch v.Kind {
		case gpucore.SlotUniform:
			size := (uint64(len(v.Plain)) + uniformAlign - 1) / uniformAlign * uniformAlign
			ub, err := r.d.dev.CreateBuffer(&hal.BufferDescriptor{
				Label: fmt.Sprintf("%s/group%d/uniform%d", p.desc.Label, c.Group, i),
				Size:  size,
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageMapWrite,
			})
			if err != nil {
				return fmt.Errorf("native: uniform buffer: %w", err)
			}
			r.fl.uniforms = append(r.fl.uniforms, ub)
			if err := r.d.queue.WriteBuffer(ub, 0, v.Plain); err != nil {
				return fmt.Errorf("native: write uniform: %w", err)
			}
			e.Resource = gputypes.BufferBinding{Buffer: ub.NativeHandle(), Size: uint64(len(v.Plain))}
		case gpucore.SlotStorageBuffer, gpucore.SlotReadOnlyStorageBuffer:
			b, err := r.buffer(v.Buffer)
			if err != nil {
				return err
			}
			e.Resource = gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: v.Offset, Size: v.Size}
		case gpucore.SlotSampledTexture, gpucore.SlotStorageTexture:
			tv, ok := r.d.views[v.View]
			if !ok {
				return fmt.Errorf("%w: view %d", ErrUnknownResource, v.View)
			}
			e.Resource = gputypes.TextureViewBinding{TextureView: tv.raw.NativeHandle()}
		}
		entries[i] = e
	}
	raw, err := r.d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s/group%d", p.desc.Label, c.Group),
		Layout:  p.groups[c.Group],
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("native: create bind group: %w", err)
	}
	r.fl.groups = append(r.fl.groups, raw)
	r.groups[c.Group] = &boundGroup{raw: raw, values: c.Entries}
	return nil
}

// dispatch records the transitions the bound resources need, then the
// dispatch inside a compute pass of its own.
func (r *recorder) dispatch(label string, c gpucore.Dispatch) error {
	p := r.pipeline
	if p == nil {
		return fmt.Errorf("native: dispatch without a pipeline")
	}
	for g := range p.groups {
		bg, ok := r.groups[uint32(g)]
		if !ok {
			return fmt.Errorf("native: dispatch with group %d unbound", g)
		}
		for _, v := range bg.values {
			bufUsage, texUsage := slotUsage(v.Kind)
			switch {
			case texUsage != 0:
				tv := r.d.views[v.View]
				d := tv.desc
				r.transitionTexture(tv.tex, d.BaseMipLevel, d.MipLevelCount, d.BaseArrayLayer, d.ArrayLayerCount, texUsage)
			case bufUsage == gputypes.BufferUsageStorage:
				if b, ok := r.d.buffers[v.Buffer]; ok {
					r.transitionBuffer(b, bufUsage)
				}
			}
		}
	}

	cp := r.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	cp.SetPipeline(p.raw)
	for g := range p.groups {
		cp.SetBindGroup(uint32(g), r.groups[uint32(g)].raw, nil)
	}
	cp.Dispatch(c.Groups[0], c.Groups[1], c.Groups[2])
	cp.End()
	return nil
}
