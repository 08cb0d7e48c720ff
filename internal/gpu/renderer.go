package gpu

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/computepresent/internal/config"
	"github.com/vkngwrapper/computepresent/internal/diag"
	"github.com/vkngwrapper/computepresent/internal/policy"
	"github.com/vkngwrapper/computepresent/internal/release"
)

// Window is what the renderer needs from the windowing side.
type Window interface {
	SurfaceSource
	CloseRequester
	InstanceExtensions() []string
	Size() core1_0.Extent2D
}

type Options struct {
	AppName        string
	Validation     config.Validation
	AdapterIndex   int
	Variant        policy.Variant
	ExtraImages    int
	ProgramPath    string
	PerImageFences bool
	StatsInterval  time.Duration
}

// OptionsFromConfig maps the loaded configuration onto renderer options.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	variant, err := cfg.Variant()
	if err != nil {
		return Options{}, err
	}

	return Options{
		AppName:        cfg.App.Name,
		Validation:     cfg.Validation,
		AdapterIndex:   cfg.Device.AdapterIndex,
		Variant:        variant,
		ExtraImages:    cfg.Swapchain.ExtraImages,
		ProgramPath:    cfg.Shader.Path,
		PerImageFences: cfg.Sync.PerImageFences,
		StatsInterval:  cfg.Stats.Interval.Duration,
	}, nil
}

// Renderer brings the components up in order and tears them down in exact
// reverse order.
type Renderer struct {
	Adapter   *Adapter
	Surface   *Surface
	Device    *Device
	Swapchain *Swapchain
	Pipeline  *ComputePipeline
	Sync      *FrameSync
	Loop      *FrameLoop

	logger     *slog.Logger
	components *release.Stack
}

func New(globalDriver core1_0.GlobalDriver, window Window, opts Options, sink *diag.Sink, logger *slog.Logger) (r *Renderer, err error) {
	r = &Renderer{
		logger:     logger,
		components: release.NewStack(logger),
	}
	defer r.components.ReleaseOnError(&err)

	r.Adapter, err = NewAdapter(globalDriver, AdapterOptions{
		AppName:      opts.AppName,
		Extensions:   window.InstanceExtensions(),
		Validation:   opts.Validation,
		AdapterIndex: opts.AdapterIndex,
		Sink:         sink,
	}, logger)
	if err != nil {
		return nil, err
	}
	r.components.Push("adapter", r.Adapter.Destroy)

	r.Surface, err = NewSurface(r.Adapter, window, logger)
	if err != nil {
		return nil, err
	}
	r.components.Push("surface", r.Surface.Destroy)

	r.Device, err = NewDevice(r.Adapter, r.Surface, opts.Variant, logger)
	if err != nil {
		return nil, err
	}
	r.components.Push("device", r.Device.Destroy)

	r.Swapchain, err = NewSwapchain(r.Adapter, r.Surface, r.Device, SwapchainOptions{
		Requested:      window.Size(),
		ExtraImages:    opts.ExtraImages,
		PerImageFences: opts.PerImageFences,
	}, logger)
	if err != nil {
		return nil, err
	}
	r.components.Push("swapchain", r.Swapchain.Destroy)

	r.Pipeline, err = NewComputePipeline(r.Device, r.Swapchain, opts.ProgramPath, logger)
	if err != nil {
		return nil, err
	}
	r.components.Push("pipeline", r.Pipeline.Destroy)

	r.Sync, err = NewFrameSync(r.Device, logger)
	if err != nil {
		return nil, err
	}
	r.components.Push("sync", r.Sync.Destroy)

	r.Loop = NewFrameLoop(r.Device, r.Swapchain, r.Pipeline, r.Sync, window, FrameLoopOptions{
		PerImageFences: opts.PerImageFences,
		StatsInterval:  opts.StatsInterval,
	}, logger)

	return r, nil
}

// Run drives the frame loop, then waits for the device to drain so that
// Destroy never frees resources the queue still uses.
func (r *Renderer) Run(ctx context.Context) error {
	runErr := r.Loop.Run(ctx)
	idleErr := r.Device.WaitIdle()
	return errors.CombineErrors(runErr, idleErr)
}

func (r *Renderer) Destroy() {
	r.components.Release()
}
