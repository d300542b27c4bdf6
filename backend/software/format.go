package software

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

// codec converts one texel between its stored bytes and four float32
// channels, the way shaders see it.
type codec struct {
	decode func(b []byte) [4]float32
	encode func(v [4]float32, b []byte)
}

func codecFor(f gputypes.TextureFormat) (codec, bool) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return codec{decodeRGBA8Unorm, encodeRGBA8Unorm}, true
	case gputypes.TextureFormatBGRA8Unorm:
		return codec{decodeBGRA8Unorm, encodeBGRA8Unorm}, true
	case gputypes.TextureFormatRGBA8Snorm:
		return codec{decodeRGBA8Snorm, encodeRGBA8Snorm}, true
	case gputypes.TextureFormatR8Unorm:
		return codec{decodeR8Unorm, encodeR8Unorm}, true
	case gputypes.TextureFormatR32Float:
		return codec{decodeR32Float, encodeR32Float}, true
	case gputypes.TextureFormatRGBA32Float:
		return codec{decodeRGBA32Float, encodeRGBA32Float}, true
	case gputypes.TextureFormatR32Uint:
		return codec{decodeR32Uint, encodeR32Uint}, true
	default:
		return codec{}, false
	}
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}

// unorm8 quantizes v to 8 bits, rounding to nearest. The explicit
// conversion keeps the multiply from fusing with the add.
func unorm8(v float32) byte {
	return byte(math.Floor(float64(float32(clamp01(v)*255) + 0.5)))
}

func snorm8(v float32) byte {
	v = min(max(v, -1), 1)
	return byte(int8(math.Round(float64(float32(v * 127)))))
}

func decodeRGBA8Unorm(b []byte) [4]float32 {
	return [4]float32{
		float32(b[0]) / 255, float32(b[1]) / 255,
		float32(b[2]) / 255, float32(b[3]) / 255,
	}
}

func encodeRGBA8Unorm(v [4]float32, b []byte) {
	b[0], b[1], b[2], b[3] = unorm8(v[0]), unorm8(v[1]), unorm8(v[2]), unorm8(v[3])
}

func decodeBGRA8Unorm(b []byte) [4]float32 {
	return [4]float32{
		float32(b[2]) / 255, float32(b[1]) / 255,
		float32(b[0]) / 255, float32(b[3]) / 255,
	}
}

func encodeBGRA8Unorm(v [4]float32, b []byte) {
	b[2], b[1], b[0], b[3] = unorm8(v[0]), unorm8(v[1]), unorm8(v[2]), unorm8(v[3])
}

func decodeRGBA8Snorm(b []byte) [4]float32 {
	var v [4]float32
	for i := range v {
		v[i] = max(float32(int8(b[i]))/127, -1)
	}
	return v
}

func encodeRGBA8Snorm(v [4]float32, b []byte) {
	for i := range 4 {
		b[i] = snorm8(v[i])
	}
}

func decodeR8Unorm(b []byte) [4]float32 {
	return [4]float32{float32(b[0]) / 255, 0, 0, 1}
}

func encodeR8Unorm(v [4]float32, b []byte) {
	b[0] = unorm8(v[0])
}

func decodeR32Float(b []byte) [4]float32 {
	return [4]float32{math.Float32frombits(binary.LittleEndian.Uint32(b)), 0, 0, 1}
}

func encodeR32Float(v [4]float32, b []byte) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v[0]))
}

func decodeRGBA32Float(b []byte) [4]float32 {
	var v [4]float32
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func encodeRGBA32Float(v [4]float32, b []byte) {
	for i := range 4 {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v[i]))
	}
}

// R32Uint texels are exposed as the float value of the integer.
func decodeR32Uint(b []byte) [4]float32 {
	return [4]float32{float32(binary.LittleEndian.Uint32(b)), 0, 0, 1}
}

func encodeR32Uint(v [4]float32, b []byte) {
	binary.LittleEndian.PutUint32(b, uint32(max(v[0], 0)))
}
