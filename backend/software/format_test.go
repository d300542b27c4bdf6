package software

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestUnorm8(t *testing.T) {
	tests := []struct {
		v    float32
		want byte
	}{
		{0, 0},
		{1, 255},
		{-0.5, 0},
		{2, 255},
		{0.5, 128},
		{12.0 / 255, 12},
		{0.2 * 0.25, 13},
	}
	for _, tt := range tests {
		if got := unorm8(tt.v); got != tt.want {
			t.Errorf("unorm8(%v) = %d, want %d", tt.v, got, tt.want)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		format gputypes.TextureFormat
		size   int
		v      [4]float32
		want   [4]float32
	}{
		{"RGBA8Unorm", gputypes.TextureFormatRGBA8Unorm, 4, [4]float32{0, 1, 51.0 / 255, 1}, [4]float32{0, 1, 51.0 / 255, 1}},
		{"BGRA8Unorm", gputypes.TextureFormatBGRA8Unorm, 4, [4]float32{1, 0, 0, 1}, [4]float32{1, 0, 0, 1}},
		{"R32Float", gputypes.TextureFormatR32Float, 4, [4]float32{0.125, 9, 9, 9}, [4]float32{0.125, 0, 0, 1}},
		{"RGBA32Float", gputypes.TextureFormatRGBA32Float, 16, [4]float32{1.5, -2, 0, 3}, [4]float32{1.5, -2, 0, 3}},
		{"R32Uint", gputypes.TextureFormatR32Uint, 4, [4]float32{42, 0, 0, 0}, [4]float32{42, 0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := codecFor(tt.format)
			if !ok {
				t.Fatalf("codecFor(%v) not found", tt.format)
			}
			b := make([]byte, tt.size)
			c.encode(tt.v, b)
			if got := c.decode(b); got != tt.want {
				t.Errorf("decode(encode(%v)) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestBGRA8UnormByteOrder(t *testing.T) {
	b := make([]byte, 4)
	encodeBGRA8Unorm([4]float32{1, 0, 0, 1}, b)
	if b[2] != 255 || b[0] != 0 {
		t.Errorf("BGRA bytes = %v, want red in byte 2", b)
	}
}

func TestCodecFor_Unsupported(t *testing.T) {
	if _, ok := codecFor(gputypes.TextureFormatRGBA16Float); ok {
		t.Error("codecFor(RGBA16Float) should not be supported")
	}
}
