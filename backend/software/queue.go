package software

import (
	"fmt"

	"github.com/gogpu/gpucmd/gpucore"
)

type submission struct {
	index uint64
	list  *gpucore.CommandList
}

// run executes queued submissions in order until the device is destroyed,
// then drains what is left.
func (d *Device) run() {
	defer close(d.exited)
	for {
		select {
		case <-d.wake:
		case <-d.done:
			d.drain()
			return
		}
		d.drain()
	}
}

func (d *Device) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		s := d.queue[0]
		d.queue = d.queue[1:]
		gate := d.resume
		d.mu.Unlock()

		if gate != nil {
			<-gate
		}
		if err := d.execute(s.list); err != nil {
			d.mu.Lock()
			if d.fault == nil {
				d.fault = err
			}
			d.mu.Unlock()
			slogger().Warn("software: submission failed", "index", s.index, "label", s.list.Label, "err", err)
		}
		d.complete(s.index)
	}
}

// complete publishes index as completed, runs due releases and wakes waiters.
func (d *Device) complete(index uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completed.Store(index)

	kept := d.releases[:0]
	for _, r := range d.releases {
		if r.after <= index {
			r.fn()
			continue
		}
		kept = append(kept, r)
	}
	d.releases = kept

	close(d.changed)
	d.changed = make(chan struct{})
}

// state is the compute state of one pass.
type state struct {
	pipeline *pipeline
	groups   [][]bound
}

func (d *Device) execute(list *gpucore.CommandList) error {
	for i := range list.Passes {
		p := &list.Passes[i]
		st := &state{}
		for _, cmd := range p.Commands {
			if err := d.executeCommand(st, cmd); err != nil {
				return fmt.Errorf("pass %q: %w", p.Label, err)
			}
		}
		slogger().Debug("software: pass executed", "pass", p.Label, "kind", p.Kind, "commands", len(p.Commands))
	}
	return nil
}

func (d *Device) executeCommand(st *state, cmd gpucore.Command) error {
	switch c := cmd.(type) {
	case gpucore.InitTexture:
		t, err := d.texture(c.Texture)
		if err != nil {
			return err
		}
		for _, l := range t.levels {
			clear(l)
		}
	case gpucore.CopyBufferToTexture:
		b, err := d.buffer(c.Src)
		if err != nil {
			return err
		}
		t, err := d.texture(c.Dst.Texture)
		if err != nil {
			return err
		}
		return copyRows(t, c.Dst, c.Size, c.BytesPerRow, uint64(len(b.data)), c.SrcOffset, func(row []byte, off uint64) {
			copy(row, b.data[c.SrcOffset+off:])
		})
	case gpucore.CopyTextureToBuffer:
		t, err := d.texture(c.Src.Texture)
		if err != nil {
			return err
		}
		b, err := d.buffer(c.Dst)
		if err != nil {
			return err
		}
		return copyRows(t, c.Src, c.Size, c.BytesPerRow, uint64(len(b.data)), c.DstOffset, func(row []byte, off uint64) {
			copy(b.data[c.DstOffset+off:], row)
		})
	case gpucore.CopyBufferToBuffer:
		src, err := d.buffer(c.Src)
		if err != nil {
			return err
		}
		dst, err := d.buffer(c.Dst)
		if err != nil {
			return err
		}
		if !inRange(uint64(len(src.data)), c.SrcOffset, c.Size) || !inRange(uint64(len(dst.data)), c.DstOffset, c.Size) {
			return fmt.Errorf("copy %d bytes from %d+%d to %d+%d: %w", c.Size, c.Src, c.SrcOffset, c.Dst, c.DstOffset, ErrOutOfBounds)
		}
		copy(dst.data[c.DstOffset:c.DstOffset+c.Size], src.data[c.SrcOffset:c.SrcOffset+c.Size])
	case gpucore.FillBuffer:
		b, err := d.buffer(c.Dst)
		if err != nil {
			return err
		}
		if !inRange(uint64(len(b.data)), c.Offset, c.Size) {
			return fmt.Errorf("fill buffer %d [%d,+%d): %w", c.Dst, c.Offset, c.Size, ErrOutOfBounds)
		}
		region := b.data[c.Offset : c.Offset+c.Size]
		for i := range region {
			region[i] = c.Value
		}
	case gpucore.SetPipeline:
		d.mu.Lock()
		p, ok := d.pipelines[c.Pipeline]
		d.mu.Unlock()
		if !ok {
			return fmt.Errorf("pipeline %d: %w", c.Pipeline, ErrUnknownResource)
		}
		st.pipeline = p
		st.groups = make([][]bound, len(p.desc.Groups))
	case gpucore.BindGroup:
		if st.pipeline == nil || int(c.Group) >= len(st.groups) {
			return fmt.Errorf("bind group %d without a matching pipeline", c.Group)
		}
		values, err := d.resolve(c.Entries)
		if err != nil {
			return fmt.Errorf("bind group %d: %w", c.Group, err)
		}
		st.groups[c.Group] = values
	case gpucore.Dispatch:
		if st.pipeline == nil {
			return fmt.Errorf("dispatch without a pipeline")
		}
		d.dispatch(st, c.Groups)
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
	return nil
}

func (d *Device) buffer(id gpucore.BufferID) (*buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("buffer %d: %w", id, ErrUnknownResource)
	}
	return b, nil
}

func (d *Device) texture(id gpucore.TextureID) (*texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	if !ok {
		return nil, fmt.Errorf("texture %d: %w", id, ErrUnknownResource)
	}
	return t, nil
}

// inRange reports whether [off, off+size) lies within n bytes.
func inRange(n, off, size uint64) bool {
	return off <= n && size <= n-off
}

// copyRows calls fn for every texel row of a copy region, with the row's
// bytes in the texture and its offset in the linear buffer layout. The
// region must lie in the mip level and the rows in the bufLen-byte buffer
// from bufOffset.
func copyRows(t *texture, loc gpucore.TextureLocation, size gpucore.Extent3D, bytesPerRow uint32, bufLen, bufOffset uint64, fn func(row []byte, off uint64)) error {
	if loc.MipLevel >= t.desc.MipLevelCount || loc.ArrayLayer >= t.desc.ArrayLayers {
		return fmt.Errorf("texture %q: subresource mip %d layer %d: %w", t.desc.Label, loc.MipLevel, loc.ArrayLayer, ErrOutOfBounds)
	}
	level := t.level(loc.ArrayLayer, loc.MipLevel)
	w, h, d := t.mipSize(loc.MipLevel)
	rowBytes := uint64(size.Width) * uint64(t.texel)
	depth := max(size.Depth, 1)
	if uint64(loc.Origin[0])+uint64(size.Width) > uint64(w) ||
		uint64(loc.Origin[1])+uint64(size.Height) > uint64(h) ||
		uint64(loc.Origin[2])+uint64(depth) > uint64(d) {
		return fmt.Errorf("texture %q: region %dx%dx%d at %v exceeds mip %d (%dx%dx%d): %w",
			t.desc.Label, size.Width, size.Height, depth, loc.Origin, loc.MipLevel, w, h, d, ErrOutOfBounds)
	}
	rows := uint64(size.Height) * uint64(depth)
	if rows == 0 || rowBytes == 0 {
		return nil
	}
	if uint64(bytesPerRow) < rowBytes || !inRange(bufLen, bufOffset, uint64(bytesPerRow)*(rows-1)+rowBytes) {
		return fmt.Errorf("texture %q: %d rows of %d bytes, %d apart, from buffer offset %d of %d: %w",
			t.desc.Label, rows, rowBytes, bytesPerRow, bufOffset, bufLen, ErrOutOfBounds)
	}
	for z := range depth {
		for y := range size.Height {
			tz, ty := uint64(loc.Origin[2]+z), uint64(loc.Origin[1]+y)
			start := ((tz*uint64(h)+ty)*uint64(w) + uint64(loc.Origin[0])) * uint64(t.texel)
			off := (uint64(z)*uint64(size.Height) + uint64(y)) * uint64(bytesPerRow)
			fn(level[start:start+rowBytes], off)
		}
	}
	return nil
}
