// Package mipchain builds a mip chain on the GPU by repeated 2x2 box
// downsampling and reads back the last level.
//
// The base level holds y*x as a little-endian u32 per texel, so only the red
// channel is non-zero. Level 1 is scaled by (0.2, 0.4, 0.3, 0), later levels
// by one. For a 16x16 texture the single texel of the last level reads
// 0x0000000c.
package mipchain

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd"
	"github.com/gogpu/gpucmd/backend/software"
)

// Source is the WGSL of the downsample kernel.
//
//go:embed downsample.wgsl
var Source string

const (
	// ShaderName is the label of the downsample shader. The software device
	// resolves kernels by it.
	ShaderName = "mipchain"

	// EntryPoint is the compute entry point of Source.
	EntryPoint = "main"
)

// ErrTimeout is returned when the submission does not complete within
// Config.WaitTimeout.
var ErrTimeout = errors.New("mipchain: wait timed out")

// Globals is the bind group of the downsample kernel.
type Globals struct {
	Modulator [4]float32
	Input     gpucmd.TextureView
	Output    gpucmd.TextureView
}

var globalsLayout = &gpucmd.ShaderDataLayout{Bindings: []gpucmd.Binding{
	{Name: "modulator", Kind: gpucmd.KindVec4F32},
	{Name: "input", Kind: gpucmd.SampledTextureKind{Dimension: gputypes.TextureViewDimension2D, Sample: gpucmd.F32}},
	{Name: "output", Kind: gpucmd.StorageTextureKind{
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Dimension: gputypes.TextureViewDimension2D,
		Access:    gpucmd.Store,
	}},
}}

// Layout implements gpucmd.ShaderData.
func (Globals) Layout() *gpucmd.ShaderDataLayout { return globalsLayout }

// Fill implements gpucmd.ShaderData.
func (g Globals) Fill(e *gpucmd.ShaderDataEncoder) {
	e.SetFloat32s(0, g.Modulator[:]...)
	e.SetTexture(1, g.Input)
	e.SetTexture(2, g.Output)
}

// Modulator returns the modulator applied when producing level.
func Modulator(level uint32) [4]float32 {
	if level == 1 {
		return [4]float32{0.2, 0.4, 0.3, 0}
	}
	return [4]float32{1, 1, 1, 1}
}

// Config configures Run.
type Config struct {
	Width  uint32
	Height uint32

	// WaitTimeout bounds the wait for the submission. Zero means one second.
	WaitTimeout time.Duration

	// ReadLevels also reads back every level into Result.Levels.
	ReadLevels bool
}

func (c Config) withDefaults() Config {
	if c.Width == 0 {
		c.Width = 16
	}
	if c.Height == 0 {
		c.Height = 16
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = time.Second
	}
	return c
}

// Level is one RGBA8 mip level, rows tightly packed.
type Level struct {
	Size gpucmd.Extent
	Pix  []byte
}

// Result is the outcome of one run.
type Result struct {
	// Value is texel (0, 0) of the last level as a little-endian u32.
	Value uint32

	// Levels holds every level, base first, when Config.ReadLevels is set.
	Levels []Level
}

// Register registers the downsample kernel on a software device.
func Register(dev *software.Device) {
	dev.RegisterKernel(ShaderName, EntryPoint, Kernel)
}

// Kernel is the downsample entry point for the software device.
func Kernel(inv *software.Invocation) {
	out := inv.Texture(0, 2)
	w, h := out.Dimensions()
	x, y := inv.GlobalID[0], inv.GlobalID[1]
	if x >= w || y >= h {
		return
	}
	in := inv.Texture(0, 1)
	sx, sy := int32(2*x), int32(2*y)
	a := in.Load(sx, sy, 0)
	b := in.Load(sx+1, sy, 0)
	c := in.Load(sx, sy+1, 0)
	d := in.Load(sx+1, sy+1, 0)
	out.Store(int32(x), int32(y), downsample(a, b, c, d, inv.Vec4(0, 0)))
}

func downsample(a, b, c, d, m [4]float32) [4]float32 {
	var v [4]float32
	for i := range v {
		sum := ((a[i] + b[i]) + c[i]) + d[i]
		v[i] = sum * 0.25 * m[i]
	}
	return v
}

// baseLevel returns the upload data of the base level.
func baseLevel(w, h uint32) []byte {
	pix := make([]byte, 0, 4*w*h)
	for y := range h {
		for x := range w {
			pix = binary.LittleEndian.AppendUint32(pix, y*x)
		}
	}
	return pix
}

// cleanup runs deferred destroy calls in reverse order and logs failures.
type cleanup []func() error

func (c *cleanup) add(fn func() error) { *c = append(*c, fn) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			gpucmd.Logger().Warn("mipchain: release failed", "err", err)
		}
	}
}

// Run builds the mip chain of a Width x Height texture on gc and returns the
// last level. On a software device the kernel must be registered first.
func Run(gc *gpucmd.Context, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	size := gpucmd.Extent{Width: cfg.Width, Height: cfg.Height}
	mips := size.MaxMipLevels()

	var res cleanup
	defer res.run()

	shader, err := gc.CreateShader(gpucmd.ShaderDesc{Name: ShaderName, Source: Source})
	if err != nil {
		return nil, err
	}
	res.add(func() error { return gc.DestroyShader(shader) })

	pipeline, err := gc.CreateComputePipeline(gpucmd.ComputePipelineDesc{
		Name:        "mipchain/downsample",
		DataLayouts: []*gpucmd.ShaderDataLayout{gpucmd.LayoutOf[Globals]()},
		Compute:     shader.At(EntryPoint),
	})
	if err != nil {
		return nil, err
	}
	res.add(func() error { return gc.DestroyComputePipeline(pipeline) })

	tex, err := gc.CreateTexture(gpucmd.TextureDesc{
		Name:          "mipchain/texture",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Size:          size,
		MipLevelCount: mips,
		Usage:         gpucmd.TextureUsageResource | gpucmd.TextureUsageStorage | gpucmd.TextureUsageCopy,
	})
	if err != nil {
		return nil, err
	}
	res.add(func() error { return gc.DestroyTexture(tex) })

	views := make([]gpucmd.TextureView, mips)
	for i := range views {
		v, err := gc.CreateTextureView(gpucmd.TextureViewDesc{
			Name:    fmt.Sprintf("mipchain/mip%d", i),
			Texture: tex,
			Subresources: gpucmd.TextureSubresources{
				BaseMipLevel:  uint32(i),
				MipLevelCount: 1,
			},
		})
		if err != nil {
			return nil, err
		}
		views[i] = v
		res.add(func() error { return gc.DestroyTextureView(v) })
	}

	result, err := gc.CreateBuffer(gpucmd.BufferDesc{Name: "mipchain/result", Size: 4, Memory: gpucmd.MemoryShared})
	if err != nil {
		return nil, err
	}
	res.add(func() error { return gc.DestroyBuffer(result) })

	upload, err := gc.CreateBuffer(gpucmd.BufferDesc{
		Name:   "mipchain/upload",
		Size:   4 * uint64(size.Width) * uint64(size.Height),
		Memory: gpucmd.MemoryUpload,
	})
	if err != nil {
		return nil, err
	}
	res.add(func() error { return gc.DestroyBuffer(upload) })
	host, err := gc.BufferData(upload)
	if err != nil {
		return nil, err
	}
	copy(host, baseLevel(size.Width, size.Height))

	var readback gpucmd.Buffer
	var offsets []uint64
	if cfg.ReadLevels {
		var total uint64
		for i := range mips {
			offsets = append(offsets, total)
			m := size.AtMipLevel(i)
			total += 4 * uint64(m.Width) * uint64(m.Height)
		}
		readback, err = gc.CreateBuffer(gpucmd.BufferDesc{Name: "mipchain/levels", Size: total, Memory: gpucmd.MemoryShared})
		if err != nil {
			return nil, err
		}
		res.add(func() error { return gc.DestroyBuffer(readback) })
	}

	enc := gc.CreateCommandEncoder(gpucmd.CommandEncoderDesc{Name: "mipchain"})
	res.add(func() error { return gc.DestroyCommandEncoder(enc) })
	if err := enc.Start(); err != nil {
		return nil, err
	}

	err = enc.WithTransfer(func(p *gpucmd.TransferPass) error {
		if err := p.InitTexture(tex); err != nil {
			return err
		}
		return p.CopyBufferToTexture(upload.At(0), 4*size.Width, tex.Mip(0), size)
	})
	if err != nil {
		return nil, err
	}

	for i := uint32(1); i < mips; i++ {
		err := enc.WithCompute(func(p *gpucmd.ComputePass) error {
			pe, err := p.With(pipeline)
			if err != nil {
				return err
			}
			err = pe.Bind(0, Globals{
				Modulator: Modulator(i),
				Input:     views[i-1],
				Output:    views[i],
			})
			if err != nil {
				return err
			}
			return pe.Dispatch(gpucmd.DispatchGroups(size.AtMipLevel(i), pipeline.WorkgroupSize()))
		})
		if err != nil {
			return nil, fmt.Errorf("mipchain: level %d: %w", i, err)
		}
	}

	last := mips - 1
	err = enc.WithTransfer(func(p *gpucmd.TransferPass) error {
		if err := p.CopyTextureToBuffer(tex.Mip(last), result.At(0), 4, gpucmd.Extent{Width: 1, Height: 1}); err != nil {
			return err
		}
		for i, off := range offsets {
			m := size.AtMipLevel(uint32(i))
			if err := p.CopyTextureToBuffer(tex.Mip(uint32(i)), readback.At(off), 4*m.Width, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sp, err := gc.Submit(enc)
	if err != nil {
		return nil, err
	}
	if !gc.WaitFor(sp, cfg.WaitTimeout) {
		return nil, fmt.Errorf("%w: %v after %v", ErrTimeout, sp, cfg.WaitTimeout)
	}

	data, err := gc.BufferData(result)
	if err != nil {
		return nil, err
	}
	out := &Result{Value: binary.LittleEndian.Uint32(data)}
	if cfg.ReadLevels {
		all, err := gc.BufferData(readback)
		if err != nil {
			return nil, err
		}
		for i, off := range offsets {
			m := size.AtMipLevel(uint32(i))
			n := 4 * uint64(m.Width) * uint64(m.Height)
			out.Levels = append(out.Levels, Level{Size: m, Pix: append([]byte(nil), all[off:off+n]...)})
		}
	}
	gpucmd.Logger().Debug("mipchain: done", "size", size.String(), "levels", mips, "value", out.Value)
	return out, nil
}
