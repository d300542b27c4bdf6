// Package config loads the settings of the mipchain command from TOML or
// YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/gpucmd/backend"
)

var (
	// ErrUnknownFormat is returned by Load for extensions other than .toml,
	// .yaml and .yml.
	ErrUnknownFormat = errors.New("config: unknown file format")

	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("config: invalid value")
)

// Duration is a time.Duration written as a string such as "250ms".
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds the command settings.
type Config struct {
	// Backend names the device backend: software, native or noop.
	Backend string `toml:"backend" yaml:"backend"`

	// Adapter selects a native adapter by name substring.
	Adapter string `toml:"adapter" yaml:"adapter"`

	Width  uint32 `toml:"width" yaml:"width"`
	Height uint32 `toml:"height" yaml:"height"`

	// WaitTimeout bounds the wait for the submission.
	WaitTimeout Duration `toml:"wait_timeout" yaml:"wait_timeout"`

	// Workers is the software device's goroutine count; 0 means GOMAXPROCS.
	Workers int `toml:"workers" yaml:"workers"`

	// LogLevel is a slog level name: debug, info, warn or error.
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// DumpDir receives one PNG per mip level when set.
	DumpDir string `toml:"dump_dir" yaml:"dump_dir"`
}

// Default returns the settings of the 16x16 golden run on the software
// backend.
func Default() Config {
	return Config{
		Backend:     backend.Software,
		Width:       16,
		Height:      16,
		WaitTimeout: Duration(time.Second),
		LogLevel:    "info",
	}
}

// Load reads path over Default. The format follows the file extension.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
	default:
		return cfg, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Level returns the parsed LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend {
	case backend.Software, backend.Native, backend.Noop:
	default:
		return fmt.Errorf("%w: backend %q", ErrInvalid, c.Backend)
	}
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalid, c.Width, c.Height)
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("%w: wait_timeout %v", ErrInvalid, time.Duration(c.WaitTimeout))
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalid, c.Workers)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}
