package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/computepresent/internal/config"
)

func TestFlagsDefaults(t *testing.T) {
	f := newFlags(io.Discard)
	require.NoError(t, f.parse(nil))

	cfg, err := f.load()
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	f := newFlags(io.Discard)
	require.NoError(t, f.parse([]string{
		"-variant", "extended",
		"-extra-images", "2",
		"-width", "800",
		"-height", "600",
		"-fences=false",
		"-validation=false",
		"-log-format", "json",
		"-stats", "1s",
	}))

	cfg, err := f.load()
	require.NoError(t, err)
	assert.Equal(t, "extended", cfg.Device.Variant)
	assert.Equal(t, 2, cfg.Swapchain.ExtraImages)
	assert.Equal(t, 800, cfg.Window.Width)
	assert.Equal(t, 600, cfg.Window.Height)
	assert.False(t, cfg.Sync.PerImageFences)
	assert.False(t, cfg.Validation.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, time.Second, cfg.Stats.Interval.Duration)
	assert.Equal(t, config.DefaultShaderPath, cfg.Shader.Path)
}

func TestFlagsOverlayConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thefuture.toml")
	err := os.WriteFile(path, []byte(`
[device]
variant = "extended"

[window]
width = 1024
height = 768
`), 0o644)
	require.NoError(t, err)

	f := newFlags(io.Discard)
	require.NoError(t, f.parse([]string{"-config", path, "-width", "640"}))

	cfg, err := f.load()
	require.NoError(t, err)
	assert.Equal(t, "extended", cfg.Device.Variant)
	assert.Equal(t, 640, cfg.Window.Width, "explicit flag wins over the file")
	assert.Equal(t, 768, cfg.Window.Height)
}

func TestFlagsRejectInvalidConfig(t *testing.T) {
	f := newFlags(io.Discard)
	require.NoError(t, f.parse([]string{"-variant", "maximal"}))

	_, err := f.load()
	assert.Error(t, err)
}

func TestFlagsUnknownFlag(t *testing.T) {
	f := newFlags(io.Discard)
	assert.Error(t, f.parse([]string{"-frames", "10"}))
}
