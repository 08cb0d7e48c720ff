package main

import (
	"flag"
	"io"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/computepresent/internal/config"
)

type flags struct {
	set *flag.FlagSet

	configPath string
	shader     string
	variant    string
	adapter    int
	extra      int
	width      int
	height     int
	validation bool
	fences     bool
	logLevel   string
	logFormat  string
	stats      time.Duration
}

func newFlags(output io.Writer) *flags {
	f := &flags{set: flag.NewFlagSet("thefuture", flag.ContinueOnError)}
	f.set.SetOutput(output)

	defaults := config.Default()
	f.set.StringVar(&f.configPath, "config", "", "TOML configuration file")
	f.set.StringVar(&f.shader, "shader", defaults.Shader.Path, "compiled compute program")
	f.set.StringVar(&f.variant, "variant", defaults.Device.Variant, "device variant: minimal or extended")
	f.set.IntVar(&f.adapter, "adapter", defaults.Device.AdapterIndex, "physical device index")
	f.set.IntVar(&f.extra, "extra-images", defaults.Swapchain.ExtraImages, "swapchain images requested above the surface minimum")
	f.set.IntVar(&f.width, "width", defaults.Window.Width, "window width, 0 for half the display")
	f.set.IntVar(&f.height, "height", defaults.Window.Height, "window height, 0 for half the display")
	f.set.BoolVar(&f.validation, "validation", defaults.Validation.Enabled, "enable validation layers")
	f.set.BoolVar(&f.fences, "fences", defaults.Sync.PerImageFences, "wait on a per-image fence before reusing a command buffer")
	f.set.StringVar(&f.logLevel, "log-level", defaults.Log.Level, "debug, info, warn or error")
	f.set.StringVar(&f.logFormat, "log-format", defaults.Log.Format, "text or json")
	f.set.DurationVar(&f.stats, "stats", defaults.Stats.Interval.Duration, "frame statistics interval, 0 to disable")
	return f
}

func (f *flags) parse(args []string) error {
	return f.set.Parse(args)
}

// load builds the configuration: defaults, then the config file if one was
// given, then only the flags set explicitly on the command line.
func (f *flags) load() (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		cfg, err = config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
	}

	f.set.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "shader":
			cfg.Shader.Path = f.shader
		case "variant":
			cfg.Device.Variant = f.variant
		case "adapter":
			cfg.Device.AdapterIndex = f.adapter
		case "extra-images":
			cfg.Swapchain.ExtraImages = f.extra
		case "width":
			cfg.Window.Width = f.width
		case "height":
			cfg.Window.Height = f.height
		case "validation":
			cfg.Validation.Enabled = f.validation
		case "fences":
			cfg.Sync.PerImageFences = f.fences
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		case "stats":
			cfg.Stats.Interval = config.Duration{Duration: f.stats}
		}
	})

	err := cfg.Validate()
	if err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}
