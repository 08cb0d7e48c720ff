package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/computepresent/internal/release"
)

// FrameSync holds the two semaphores that order every frame: the acquired
// image is ready before the dispatch starts, and the dispatch is done before
// the image is presented. They are reused by every iteration.
type FrameSync struct {
	AcquireComplete core1_0.Semaphore
	RenderComplete  core1_0.Semaphore

	resources *release.Stack
}

func NewFrameSync(device *Device, logger *slog.Logger) (f *FrameSync, err error) {
	f = &FrameSync{
		resources: release.NewStack(logger.With(slog.String("component", "sync"))),
	}
	defer f.resources.ReleaseOnError(&err)

	driver := device.Driver

	acquireComplete, _, err := driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create acquire semaphore")
	}
	f.AcquireComplete = acquireComplete
	f.resources.Push("acquire semaphore", func() { driver.DestroySemaphore(acquireComplete, nil) })

	renderComplete, _, err := driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create render semaphore")
	}
	f.RenderComplete = renderComplete
	f.resources.Push("render semaphore", func() { driver.DestroySemaphore(renderComplete, nil) })

	return f, nil
}

func (f *FrameSync) Destroy() {
	f.resources.Release()
}
