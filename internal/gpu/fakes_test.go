package gpu

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/computepresent/internal/diag"
)

// bufferLogger returns a debug logger writing text records into the returned
// buffer.
func bufferLogger(t *testing.T) (*slog.Logger, *bytes.Buffer) {
	var logs bytes.Buffer
	logger, err := diag.NewLogger(&logs, "debug", "text")
	require.NoError(t, err)
	return logger, &logs
}

// fakeSurfaceDriver answers the surface queries with fixed values. Methods it
// does not override panic through the nil embedded interface.
type fakeSurfaceDriver struct {
	khr_surface.ExtensionDriver

	supported    bool
	capabilities khr_surface.SurfaceCapabilities

	supportQueries []int
}

func (f *fakeSurfaceDriver) GetPhysicalDeviceSurfaceSupport(surface khr_surface.Surface, physicalDevice core1_0.PhysicalDevice, queueFamilyIndex int) (bool, common.VkResult, error) {
	f.supportQueries = append(f.supportQueries, queueFamilyIndex)
	return f.supported, core1_0.VKSuccess, nil
}

func (f *fakeSurfaceDriver) GetPhysicalDeviceSurfaceCapabilities(surface khr_surface.Surface, device core1_0.PhysicalDevice) (*khr_surface.SurfaceCapabilities, common.VkResult, error) {
	caps := f.capabilities
	return &caps, core1_0.VKSuccess, nil
}

// fakeSwapchainDriver records swapchain calls and hands out a fixed set of
// images.
type fakeSwapchainDriver struct {
	khr_swapchain.ExtensionDriver

	device core1_0.Device
	images []core1_0.Image

	acquireIndex  int
	acquireResult common.VkResult
	acquireErr    error

	created           []khr_swapchain.SwapchainCreateInfo
	destroyed         int
	acquireSemaphores []*core1_0.Semaphore
	acquireFences     []*core1_0.Fence
	acquireTimeouts   []time.Duration
	presentQueues     []core1_0.Queue
	presents          []khr_swapchain.PresentInfo
}

func (f *fakeSwapchainDriver) CreateSwapchain(allocation *loader.AllocationCallbacks, options khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, common.VkResult, error) {
	f.created = append(f.created, options)
	return khr_swapchain.NewDummySwapchain(f.device), core1_0.VKSuccess, nil
}

func (f *fakeSwapchainDriver) DestroySwapchain(swapchain khr_swapchain.Swapchain, callbacks *loader.AllocationCallbacks) {
	f.destroyed++
}

func (f *fakeSwapchainDriver) GetSwapchainImages(swapchain khr_swapchain.Swapchain) ([]core1_0.Image, common.VkResult, error) {
	return f.images, core1_0.VKSuccess, nil
}

func (f *fakeSwapchainDriver) AcquireNextImage(swapchain khr_swapchain.Swapchain, timeout time.Duration, semaphore *core1_0.Semaphore, fence *core1_0.Fence) (int, common.VkResult, error) {
	f.acquireTimeouts = append(f.acquireTimeouts, timeout)
	f.acquireSemaphores = append(f.acquireSemaphores, semaphore)
	f.acquireFences = append(f.acquireFences, fence)
	if f.acquireErr != nil {
		return 0, f.acquireResult, f.acquireErr
	}
	return f.acquireIndex, f.acquireResult, nil
}

func (f *fakeSwapchainDriver) QueuePresent(queue core1_0.Queue, o khr_swapchain.PresentInfo) (common.VkResult, error) {
	f.presentQueues = append(f.presentQueues, queue)
	f.presents = append(f.presents, o)
	return core1_0.VKSuccess, nil
}
