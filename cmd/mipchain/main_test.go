package main

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/gpucmd/config"
	"github.com/gogpu/gpucmd/internal/mipchain"
)

func TestLevelImage(t *testing.T) {
	l := mipchain.Level{Size: mipchain.Simulate(16, 16).Levels[1].Size, Pix: make([]byte, 8*8*4)}
	l.Pix[0] = 200
	img := levelImage(l)
	if got := img.Bounds().Dx(); got != 256 {
		t.Errorf("width = %d, want 256", got)
	}
	r, _, _, a := img.At(31, 31).RGBA()
	if r>>8 != 200 || a>>8 != 0xff {
		t.Errorf("At(31, 31) = (r %d, a %d), want (200, 255)", r>>8, a>>8)
	}
	if r, _, _, _ := img.At(32, 0).RGBA(); r != 0 {
		t.Errorf("At(32, 0) red = %d, want 0", r>>8)
	}
}

func TestRun_Dump(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 2
	cfg.LogLevel = "error"
	cfg.DumpDir = t.TempDir()
	if err := run(cfg); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	for i := range 5 {
		f, err := os.Open(filepath.Join(cfg.DumpDir, fmt.Sprintf("mip%d.png", i)))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := png.Decode(f); err != nil {
			t.Errorf("mip%d.png: %v", i, err)
		}
		f.Close()
	}
}
