package gpu

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/exp/slog"
)

type FrameState int

const (
	StateIdle FrameState = iota
	StateAcquiring
	StateSubmitting
	StatePresenting
)

var frameStateNames = map[FrameState]string{
	StateIdle:       "Idle",
	StateAcquiring:  "Acquiring",
	StateSubmitting: "Submitting",
	StatePresenting: "Presenting",
}

func (s FrameState) String() string {
	name, ok := frameStateNames[s]
	if !ok {
		return "Unknown"
	}
	return name
}

// CloseRequester reports whether the user asked for the window to close.
type CloseRequester interface {
	CloseRequested() bool
}

// frameOps are the three queue operations of one frame.
type frameOps interface {
	Acquire() (int, error)
	Submit(imageIndex int) error
	Present(imageIndex int) error
}

type queueOps struct {
	driver          core1_0.CoreDeviceDriver
	swapchainDriver khr_swapchain.ExtensionDriver
	swapchain       khr_swapchain.Swapchain
	queue           core1_0.Queue
	sync            *FrameSync
	images          []SwapchainImage
	commandBuffers  []core1_0.CommandBuffer
	perImageFences  bool
}

// Acquire blocks until the presentation engine hands back an image. Anything
// other than a plain success ends the loop; there is no out-of-date path.
func (q *queueOps) Acquire() (int, error) {
	imageIndex, res, err := q.swapchainDriver.AcquireNextImage(q.swapchain, common.NoTimeout, &q.sync.AcquireComplete, nil)
	if err != nil {
		return 0, errors.Wrap(err, "acquire next image")
	}
	if res != core1_0.VKSuccess {
		return 0, errors.Newf("acquire next image: unexpected result %v", res)
	}
	if imageIndex < 0 || imageIndex >= len(q.commandBuffers) {
		return 0, errors.AssertionFailedf("acquired image %d of %d", imageIndex, len(q.commandBuffers))
	}
	return imageIndex, nil
}

func (q *queueOps) Submit(imageIndex int) error {
	var fence *core1_0.Fence
	if q.perImageFences {
		fence = &q.images[imageIndex].Fence

		// The previous dispatch into this image must finish before its
		// command buffer is queued again.
		_, err := q.driver.WaitForFences(true, common.NoTimeout, *fence)
		if err != nil {
			return errors.Wrapf(err, "wait for image %d fence", imageIndex)
		}
		_, err = q.driver.ResetFences(*fence)
		if err != nil {
			return errors.Wrapf(err, "reset image %d fence", imageIndex)
		}
	}

	_, err := q.driver.QueueSubmit(q.queue, fence,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{q.sync.AcquireComplete},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageComputeShader},
			CommandBuffers:   []core1_0.CommandBuffer{q.commandBuffers[imageIndex]},
			SignalSemaphores: []core1_0.Semaphore{q.sync.RenderComplete},
		})
	if err != nil {
		return errors.Wrapf(err, "submit command buffer %d", imageIndex)
	}
	return nil
}

func (q *queueOps) Present(imageIndex int) error {
	_, err := q.swapchainDriver.QueuePresent(q.queue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{q.sync.RenderComplete},
		Swapchains:     []khr_swapchain.Swapchain{q.swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if err != nil {
		return errors.Wrapf(err, "present image %d", imageIndex)
	}
	return nil
}

// frameStats counts presented frames and logs the mean frame time once per
// interval.
type frameStats struct {
	interval time.Duration
	now      func() time.Duration
	logger   *slog.Logger

	total       int
	frames      int
	windowStart time.Duration
}

func newFrameStats(interval time.Duration, logger *slog.Logger) *frameStats {
	return &frameStats{
		interval: interval,
		now:      hrtime.Now,
		logger:   logger,
	}
}

func (s *frameStats) start() {
	s.windowStart = s.now()
	s.frames = 0
}

func (s *frameStats) frame() {
	s.total++
	s.frames++
	if s.interval <= 0 {
		return
	}

	now := s.now()
	elapsed := now - s.windowStart
	if elapsed < s.interval {
		return
	}

	mean := elapsed / time.Duration(s.frames)
	s.logger.Info("frame stats",
		slog.Int("frames", s.frames),
		slog.Int("total", s.total),
		slog.Duration("mean_frame_time", mean),
		slog.Float64("fps", float64(s.frames)/elapsed.Seconds()))

	s.windowStart = now
	s.frames = 0
}

type FrameLoopOptions struct {
	PerImageFences bool
	// StatsInterval of zero turns frame statistics off.
	StatsInterval time.Duration
}

// FrameLoop drives acquire, submit and present until the window is closed or
// the context is cancelled. It must run on the thread that owns the window.
type FrameLoop struct {
	ops    frameOps
	closer CloseRequester
	stats  *frameStats
	logger *slog.Logger

	state   FrameState
	observe func(FrameState)
}

func NewFrameLoop(device *Device, swapchain *Swapchain, pipeline *ComputePipeline, sync *FrameSync, closer CloseRequester, opts FrameLoopOptions, logger *slog.Logger) *FrameLoop {
	ops := &queueOps{
		driver:          device.Driver,
		swapchainDriver: swapchain.driver,
		swapchain:       swapchain.Handle,
		queue:           device.Queue,
		sync:            sync,
		images:          swapchain.Images,
		commandBuffers:  pipeline.CommandBuffers,
		perImageFences:  opts.PerImageFences,
	}
	return newFrameLoop(ops, closer, opts.StatsInterval, logger)
}

func newFrameLoop(ops frameOps, closer CloseRequester, statsInterval time.Duration, logger *slog.Logger) *FrameLoop {
	logger = logger.With(slog.String("component", "frame"))
	return &FrameLoop{
		ops:    ops,
		closer: closer,
		stats:  newFrameStats(statsInterval, logger),
		logger: logger,
		state:  StateIdle,
	}
}

func (l *FrameLoop) State() FrameState {
	return l.state
}

// Frames is the number of frames presented so far.
func (l *FrameLoop) Frames() int {
	return l.stats.total
}

func (l *FrameLoop) transition(state FrameState) {
	l.state = state
	if l.observe != nil {
		l.observe(state)
	}
}

// Step runs one acquire, submit, present iteration. The loop is back in
// Idle when it returns, whether or not it failed.
func (l *FrameLoop) Step() error {
	defer l.transition(StateIdle)

	l.transition(StateAcquiring)
	imageIndex, err := l.ops.Acquire()
	if err != nil {
		return err
	}

	l.transition(StateSubmitting)
	err = l.ops.Submit(imageIndex)
	if err != nil {
		return err
	}

	l.transition(StatePresenting)
	err = l.ops.Present(imageIndex)
	if err != nil {
		return err
	}

	l.stats.frame()
	return nil
}

// Run steps until a close request or ctx cancellation, both of which return
// nil. The first frame error ends the loop and is returned.
func (l *FrameLoop) Run(ctx context.Context) error {
	l.stats.start()
	l.logger.Info("frame loop started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("frame loop stopped", slog.String("reason", "cancelled"), slog.Int("frames", l.stats.total))
			return nil
		default:
		}

		if l.closer.CloseRequested() {
			l.logger.Info("frame loop stopped", slog.String("reason", "close requested"), slog.Int("frames", l.stats.total))
			return nil
		}

		err := l.Step()
		if err != nil {
			l.logger.Error("frame loop failed", slog.Any("error", err), slog.Int("frames", l.stats.total))
			return err
		}
	}
}
