package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/computepresent/internal/policy"
	"github.com/vkngwrapper/computepresent/internal/release"
)

// Device is the logical device bound to a single queue family, with the one
// queue created on it.
type Device struct {
	Driver      core1_0.CoreDeviceDriver
	QueueFamily int
	Queue       core1_0.Queue

	logger    *slog.Logger
	resources *release.Stack
}

func NewDevice(adapter *Adapter, surface *Surface, variant policy.Variant, logger *slog.Logger) (d *Device, err error) {
	logger = logger.With(slog.String("component", "device"))
	d = &Device{
		logger:    logger,
		resources: release.NewStack(logger),
	}
	defer d.resources.ReleaseOnError(&err)

	required, matchAny := variant.QueueRequirement()
	family, ok := policy.SelectQueueFamily(adapter.QueueFamilies, required, matchAny)
	if !ok {
		return nil, contractViolation(ErrNoQueueFamily, "need %v (variant %s)", required, variant)
	}

	supported, err := surface.SupportsPresent(adapter.PhysicalDevice, family)
	if err != nil {
		return nil, err
	}
	if !supported {
		return nil, contractViolation(ErrPresentUnsupported, "queue family %d", family)
	}
	d.QueueFamily = family

	if !policy.SupportsDispatch(adapter.QueueFamilies[family]) {
		logger.Warn("selected queue family has no compute support, dispatches will be invalid",
			slog.Int("queue_family", family),
			slog.Any("flags", adapter.QueueFamilies[family]))
	}

	extensions, _, err := adapter.InstanceDriver().EnumerateDeviceExtensionProperties(adapter.PhysicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "enumerate device extensions")
	}

	_, hasSwapchain := extensions[khr_swapchain.ExtensionName]
	if !hasSwapchain {
		return nil, contractViolation(ErrMissingExtension, "device extension %s", khr_swapchain.ExtensionName)
	}
	extensionNames := []string{khr_swapchain.ExtensionName}

	// Required on portability implementations such as MoltenVK.
	_, portability := extensions[khr_portability_subset.ExtensionName]
	if portability {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	device, _, err := adapter.InstanceDriver().CreateDevice(adapter.PhysicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{
			{
				QueueFamilyIndex: family,
				QueuePriorities:  []float32{0.0},
			},
		},
		EnabledFeatures:       adapter.Features,
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create device")
	}

	driver, err := adapter.InstanceDriver().BuildDeviceDriver(device)
	if err != nil {
		return nil, errors.Wrap(err, "build device driver")
	}
	d.Driver = driver
	d.resources.Push("device", func() { driver.DestroyDevice(nil) })

	d.Queue = driver.GetQueue(family, 0)

	logger.Info("device created",
		slog.Int("queue_family", family),
		slog.String("variant", variant.String()),
		slog.Any("extensions", extensionNames))
	return d, nil
}

// WaitIdle blocks until all work queued on the device has finished.
func (d *Device) WaitIdle() error {
	_, err := d.Driver.DeviceWaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for device idle")
	}
	return nil
}

func (d *Device) Destroy() {
	d.resources.Release()
}
