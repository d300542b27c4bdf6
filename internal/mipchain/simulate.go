package mipchain

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gpucmd"
)

// Simulate computes the chain of a width x height texture on the host with
// float32 arithmetic and unorm8 quantization, independently of Kernel.
// Reads past the edge of a level are zero.
func Simulate(width, height uint32) *Result {
	size := gpucmd.Extent{Width: width, Height: height}
	base := make([]byte, 4*width*height)
	for y := range height {
		for x := range width {
			binary.LittleEndian.PutUint32(base[4*(y*width+x):], y*x)
		}
	}
	levels := []Level{{Size: size.AtMipLevel(0), Pix: base}}

	for i := uint32(1); i < size.MaxMipLevels(); i++ {
		src := levels[i-1]
		m := size.AtMipLevel(i)
		scale := [4]float32{1, 1, 1, 1}
		if i == 1 {
			scale = [4]float32{0.2, 0.4, 0.3, 0}
		}
		pix := make([]byte, 4*m.Width*m.Height)
		for y := range m.Height {
			for x := range m.Width {
				a, b := texel(src, 2*x, 2*y), texel(src, 2*x+1, 2*y)
				c, d := texel(src, 2*x, 2*y+1), texel(src, 2*x+1, 2*y+1)
				o := 4 * (y*m.Width + x)
				for ch := range 4 {
					avg := (((a[ch] + b[ch]) + c[ch]) + d[ch]) * 0.25
					pix[o+uint32(ch)] = unorm8(avg * scale[ch])
				}
			}
		}
		levels = append(levels, Level{Size: m, Pix: pix})
	}

	last := levels[len(levels)-1]
	return &Result{Value: binary.LittleEndian.Uint32(last.Pix), Levels: levels}
}

func texel(l Level, x, y uint32) [4]float32 {
	if x >= l.Size.Width || y >= l.Size.Height {
		return [4]float32{}
	}
	o := 4 * (y*l.Size.Width + x)
	p := l.Pix[o : o+4]
	return [4]float32{float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255, float32(p[3]) / 255}
}

func unorm8(v float32) byte {
	v = min(max(v, 0), 1)
	return byte(math.Floor(float64(float32(v*255) + 0.5)))
}
