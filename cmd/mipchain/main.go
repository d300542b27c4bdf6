// Command mipchain builds a mip chain on a GPU device by repeated 2x2
// downsampling and prints the texel of the last level.
//
// Usage:
//
//	mipchain [-config run.toml] [-backend software|native|noop] [-dump dir]
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/gpucmd"
	"github.com/gogpu/gpucmd/backend"
	_ "github.com/gogpu/gpucmd/backend/native"
	"github.com/gogpu/gpucmd/backend/software"
	"github.com/gogpu/gpucmd/config"
	"github.com/gogpu/gpucmd/internal/mipchain"
)

// dumpSize is the minimum edge length of a dumped level.
const dumpSize = 256

func main() {
	var (
		configPath = flag.String("config", "", "TOML or YAML config file")
		backendArg = flag.String("backend", "", "device backend: software, native or noop")
		adapter    = flag.String("adapter", "", "native adapter name substring")
		width      = flag.Uint("width", 0, "texture width")
		height     = flag.Uint("height", 0, "texture height")
		timeout    = flag.Duration("timeout", 0, "submission wait timeout")
		workers    = flag.Int("workers", 0, "software device goroutines")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn or error")
		dumpDir    = flag.String("dump", "", "directory to write one PNG per mip level")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backendArg
		case "adapter":
			cfg.Adapter = *adapter
		case "width":
			cfg.Width = uint32(*width)
		case "height":
			cfg.Height = uint32(*height)
		case "timeout":
			cfg.WaitTimeout = config.Duration(*timeout)
		case "workers":
			cfg.Workers = *workers
		case "log-level":
			cfg.LogLevel = *logLevel
		case "dump":
			cfg.DumpDir = *dumpDir
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Config) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	gpucmd.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	dev, err := backend.Open(cfg.Backend, backend.Config{Workers: cfg.Workers, Adapter: cfg.Adapter})
	if err != nil {
		return err
	}
	if sw, ok := dev.(*software.Device); ok {
		mipchain.Register(sw)
	}
	gc, err := gpucmd.New(dev)
	if err != nil {
		dev.Destroy()
		return err
	}
	defer func() {
		if err := gc.Destroy(); err != nil {
			gpucmd.Logger().Warn("mipchain: destroy", "err", err)
		}
	}()

	start := time.Now()
	res, err := mipchain.Run(gc, mipchain.Config{
		Width:       cfg.Width,
		Height:      cfg.Height,
		WaitTimeout: time.Duration(cfg.WaitTimeout),
		ReadLevels:  cfg.DumpDir != "",
	})
	if err != nil {
		return err
	}
	gpucmd.Logger().Info("mipchain: finished", "backend", cfg.Backend, "device", dev.Name(), "elapsed", time.Since(start))
	fmt.Printf("Output: 0x%x\n", res.Value)

	if cfg.DumpDir != "" {
		if err := dump(cfg.DumpDir, res.Levels); err != nil {
			return err
		}
	}
	return nil
}

// dump writes level i to dir/mip<i>.png, upscaled to at least dumpSize.
func dump(dir string, levels []mipchain.Level) error {
	if len(levels) == 0 {
		return errors.New("mipchain: no levels read back")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var g errgroup.Group
	for i, l := range levels {
		g.Go(func() error {
			return writePNG(filepath.Join(dir, fmt.Sprintf("mip%d.png", i)), levelImage(l))
		})
	}
	return g.Wait()
}

// levelImage scales l up by nearest neighbour. Alpha is forced opaque since
// level 1 is modulated to zero alpha.
func levelImage(l mipchain.Level) image.Image {
	w, h := int(l.Size.Width), int(l.Size.Height)
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(src.Pix, l.Pix)
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 0xff
	}
	scale := max(1, dumpSize/max(w, h))
	dst := image.NewNRGBA(image.Rect(0, 0, w*scale, h*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}
