// Package config holds the settings of the compute-to-present application.
// Values start from Default, are overlaid by an optional TOML file and then
// by command line flags.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/vkngwrapper/computepresent/internal/diag"
	"github.com/vkngwrapper/computepresent/internal/policy"
)

const DefaultShaderPath = "shaders/comp.spv"

type App struct {
	Name string `toml:"name"`
}

type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type Shader struct {
	Path string `toml:"path"`
}

type Device struct {
	Variant      string `toml:"variant"`
	AdapterIndex int    `toml:"adapter_index"`
}

// Validation lists the layers to enable. Every entry is checked against the
// layers the loader reports before the instance is created.
type Validation struct {
	Enabled    bool     `toml:"enabled"`
	Layers     []string `toml:"layers"`
	Severities []string `toml:"severities"`
}

// Swapchain.ExtraImages is added to the surface's minimum image count
// before clamping to its maximum.
type Swapchain struct {
	ExtraImages int `toml:"extra_images"`
}

type Sync struct {
	PerImageFences bool `toml:"per_image_fences"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Stats struct {
	Interval Duration `toml:"interval"`
}

// Duration reads values such as "5s" or "250ms" from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	App        App        `toml:"app"`
	Window     Window     `toml:"window"`
	Shader     Shader     `toml:"shader"`
	Device     Device     `toml:"device"`
	Swapchain  Swapchain  `toml:"swapchain"`
	Validation Validation `toml:"validation"`
	Sync       Sync       `toml:"sync"`
	Log        Log        `toml:"log"`
	Stats      Stats      `toml:"stats"`
}

func Default() Config {
	return Config{
		App:       App{Name: "TheFuture"},
		Window:    Window{Title: "The Future by Unbound"},
		Shader:    Shader{Path: DefaultShaderPath},
		Device:    Device{Variant: policy.VariantMinimal.String()},
		Swapchain: Swapchain{ExtraImages: 1},
		Validation: Validation{
			Enabled:    true,
			Layers:     []string{"VK_LAYER_KHRONOS_validation"},
			Severities: []string{"error", "warning"},
		},
		Sync:  Sync{PerImageFences: true},
		Log:   Log{Level: "info", Format: "text"},
		Stats: Stats{Interval: Duration{5 * time.Second}},
	}
}

// Load reads a TOML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	err = Decode(data, &cfg)
	if err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Decode overlays TOML data onto cfg.
func Decode(data []byte, cfg *Config) error {
	return toml.Unmarshal(data, cfg)
}

// Variant returns the parsed device variant.
func (c Config) Variant() (policy.Variant, error) {
	return policy.ParseVariant(c.Device.Variant)
}

func (c Config) Validate() error {
	if _, err := c.Variant(); err != nil {
		return err
	}
	if c.Shader.Path == "" {
		return errors.New("shader path is empty")
	}
	if c.Window.Width < 0 || c.Window.Height < 0 {
		return errors.Newf("window size %dx%d is negative", c.Window.Width, c.Window.Height)
	}
	if c.Swapchain.ExtraImages < 0 {
		return errors.Newf("extra swapchain images %d is negative", c.Swapchain.ExtraImages)
	}
	if c.Device.AdapterIndex < 0 {
		return errors.Newf("adapter index %d is negative", c.Device.AdapterIndex)
	}
	if c.Validation.Enabled {
		if len(c.Validation.Layers) == 0 {
			return errors.New("validation enabled but no layers listed")
		}
		if _, err := diag.ParseSeverities(c.Validation.Severities); err != nil {
			return err
		}
	}
	if _, err := diag.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.Newf("unknown log format %q", c.Log.Format)
	}
	if c.Stats.Interval.Duration < 0 {
		return errors.Newf("stats interval %s is negative", c.Stats.Interval)
	}
	return nil
}
