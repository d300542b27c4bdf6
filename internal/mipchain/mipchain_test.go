package mipchain

import (
	"bytes"
	"testing"

	"github.com/gogpu/gpucmd"
	"github.com/gogpu/gpucmd/backend/software"
)

func newContext(t *testing.T) *gpucmd.Context {
	t.Helper()
	dev := software.New(software.Config{Workers: 4})
	Register(dev)
	gc, err := gpucmd.New(dev)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := dev.Err(); err != nil {
			t.Errorf("device fault = %v", err)
		}
		if err := gc.Destroy(); err != nil {
			t.Errorf("Destroy() error = %v", err)
		}
	})
	return gc
}

func TestRun_Golden(t *testing.T) {
	gc := newContext(t)
	res, err := Run(gc, Config{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Value != 0xc {
		t.Errorf("Run() = 0x%x, want 0xc", res.Value)
	}
	if res.Levels != nil {
		t.Error("Levels read back without ReadLevels")
	}
}

func TestSimulate_Golden(t *testing.T) {
	res := Simulate(16, 16)
	if res.Value != 0xc {
		t.Errorf("Simulate(16, 16) = 0x%x, want 0xc", res.Value)
	}
	if got := len(res.Levels); got != 5 {
		t.Fatalf("len(Levels) = %d, want 5", got)
	}
	// Level 1 scales blue by 0.3 and zeroes alpha; only red is non-zero at
	// the base, so green, blue and alpha stay zero everywhere.
	for i, l := range res.Levels[1:] {
		for o := 0; o < len(l.Pix); o += 4 {
			if l.Pix[o+1] != 0 || l.Pix[o+2] != 0 || l.Pix[o+3] != 0 {
				t.Fatalf("level %d texel %d = %v, want red only", i+1, o/4, l.Pix[o:o+4])
			}
		}
	}
}

func TestSimulate_HandComputed(t *testing.T) {
	res := Simulate(16, 16)
	tests := []struct {
		name  string
		level int
		x, y  uint32
		want  [4]byte
	}{
		// y*x = 225 as a little-endian u32.
		{"base", 0, 15, 15, [4]byte{225, 0, 0, 0}},
		{"base row 12", 0, 15, 12, [4]byte{180, 0, 0, 0}},
		// (196+210+210+225)/4 * 0.2 = 42.05.
		{"level 1 corner", 1, 7, 7, [4]byte{42, 0, 0, 0}},
		// (0+0+0+1)/4 * 0.2 rounds to zero.
		{"level 1 origin", 1, 0, 0, [4]byte{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := res.Levels[tt.level]
			o := 4 * (tt.y*l.Size.Width + tt.x)
			if got := [4]byte(l.Pix[o : o+4]); got != tt.want {
				t.Errorf("level %d (%d, %d) = %v, want %v", tt.level, tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestRun_MatchesSimulate(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint32
	}{
		{"16x16", 16, 16},
		{"32x32", 32, 32},
		{"non-square", 24, 10},
		{"odd", 13, 7},
	}
	gc := newContext(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Run(gc, Config{Width: tt.width, Height: tt.height, ReadLevels: true})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			want := Simulate(tt.width, tt.height)
			if got.Value != want.Value {
				t.Errorf("Value = 0x%x, want 0x%x", got.Value, want.Value)
			}
			if len(got.Levels) != len(want.Levels) {
				t.Fatalf("len(Levels) = %d, want %d", len(got.Levels), len(want.Levels))
			}
			for i := range want.Levels {
				if got.Levels[i].Size != want.Levels[i].Size {
					t.Errorf("level %d size = %v, want %v", i, got.Levels[i].Size, want.Levels[i].Size)
				}
				if !bytes.Equal(got.Levels[i].Pix, want.Levels[i].Pix) {
					t.Errorf("level %d differs from host simulation", i)
				}
			}
		})
	}
}

func TestGlobals_Layout(t *testing.T) {
	want := "[modulator: plain<vec4<f32>>, input: texture<2d, f32>, output: texture_storage<2d, RGBA8Unorm, store>]"
	if got := gpucmd.LayoutOf[Globals]().String(); got != want {
		t.Errorf("Layout() = %q, want %q", got, want)
	}
}

func TestModulator(t *testing.T) {
	tests := []struct {
		level uint32
		want  [4]float32
	}{
		{1, [4]float32{0.2, 0.4, 0.3, 0}},
		{2, [4]float32{1, 1, 1, 1}},
		{4, [4]float32{1, 1, 1, 1}},
	}
	for _, tt := range tests {
		if got := Modulator(tt.level); got != tt.want {
			t.Errorf("Modulator(%d) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestRun_Repeated(t *testing.T) {
	gc := newContext(t)
	for i := range 3 {
		res, err := Run(gc, Config{})
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if res.Value != 0xc {
			t.Errorf("run %d = 0x%x, want 0xc", i, res.Value)
		}
	}
}

func TestRun_NoKernel(t *testing.T) {
	dev := software.New(software.Config{Workers: 1})
	gc, err := gpucmd.New(dev)
	if err != nil {
		t.Fatal(err)
	}
	defer gc.Destroy()
	if _, err := Run(gc, Config{}); err == nil {
		t.Error("Run() without a registered kernel succeeded")
	}
}
