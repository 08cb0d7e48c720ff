// Package window provides the fixed-size SDL window the pipeline presents to.
package window

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
	"golang.org/x/exp/slog"
)

type Options struct {
	Title string
	// Width and Height of zero pick half of the primary display mode.
	Width, Height int
	Hidden        bool
}

// Window is a non-resizable SDL window with Vulkan support. It must be used
// from the thread that created it.
type Window struct {
	window *sdl.Window
	width  int
	height int
	closed bool
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl video")
	}

	width, height := opts.Width, opts.Height
	if width == 0 || height == 0 {
		mode, err := sdl.GetDesktopDisplayMode(0)
		if err != nil {
			sdl.Quit()
			return nil, errors.Wrap(err, "query desktop display mode")
		}
		width, height = int(mode.W)/2, int(mode.H)/2
	}

	flags := uint32(sdl.WINDOW_VULKAN)
	if opts.Hidden {
		flags |= uint32(sdl.WINDOW_HIDDEN)
	} else {
		flags |= uint32(sdl.WINDOW_SHOWN)
	}

	window, err := sdl.CreateWindow(opts.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(width), int32(height), flags)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	// Lock the size; the swapchain is never recreated.
	window.SetMinimumSize(int32(width), int32(height))
	window.SetMaximumSize(int32(width), int32(height))

	logger.Info("window created", slog.Int("width", width), slog.Int("height", height))

	return &Window{
		window: window,
		width:  width,
		height: height,
		logger: logger,
	}, nil
}

// ProcAddr returns the loader entry point the Vulkan driver is built from.
func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// InstanceExtensions lists the instance extensions SDL needs for surfaces.
func (w *Window) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *Window) CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	surface, err := vkng_sdl2.CreateSurface(instance, surfaceDriver, w.window)
	if err != nil {
		return khr_surface.Surface{}, errors.Wrap(err, "create sdl surface")
	}
	return surface, nil
}

// Size is the size the window was created with.
func (w *Window) Size() core1_0.Extent2D {
	return core1_0.Extent2D{Width: w.width, Height: w.height}
}

// CloseRequested drains pending events and reports whether the user asked to
// close the window. Once true it stays true.
func (w *Window) CloseRequested() bool {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			w.closed = true
		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_CLOSE {
				w.closed = true
			}
		}
	}
	return w.closed
}

func (w *Window) Destroy() {
	if w.window != nil {
		if err := w.window.Destroy(); err != nil {
			w.logger.Warn("destroy window", slog.Any("error", err))
		}
		w.window = nil
	}
	sdl.Quit()
}
