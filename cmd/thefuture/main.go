// Command thefuture runs a compute shader straight into the swapchain images
// of an SDL window until the window is closed.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/computepresent/internal/config"
	"github.com/vkngwrapper/computepresent/internal/diag"
	"github.com/vkngwrapper/computepresent/internal/gpu"
	"github.com/vkngwrapper/computepresent/internal/window"
)

func main() {
	// SDL and the frame loop must stay on the main thread.
	runtime.LockOSThread()

	f := newFlags(os.Stderr)
	err := f.parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	} else if err != nil {
		os.Exit(2)
	}

	cfg, err := f.load()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}

	err = run(cfg)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}

func run(cfg config.Config) error {
	logger, err := diag.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	win, err := window.New(window.Options{
		Title:  cfg.Window.Title,
		Width:  cfg.Window.Width,
		Height: cfg.Window.Height,
	}, logger)
	if err != nil {
		return err
	}
	defer win.Destroy()

	globalDriver, err := core.CreateDriverFromProcAddr(win.ProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan")
	}

	opts, err := gpu.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	var sink *diag.Sink
	if cfg.Validation.Enabled {
		sink = diag.NewSink(logger.With(slog.String("component", "validation")))
	}

	renderer, err := gpu.New(globalDriver, win, opts, sink, logger)
	if err != nil {
		return err
	}
	defer renderer.Destroy()

	return renderer.Run(ctx)
}
