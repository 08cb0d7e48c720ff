package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/computepresent/internal/config"
	"github.com/vkngwrapper/computepresent/internal/diag"
	"github.com/vkngwrapper/computepresent/internal/release"
)

type AdapterOptions struct {
	AppName string
	// Extensions are the instance extensions the window needs for surfaces.
	Extensions   []string
	Validation   config.Validation
	AdapterIndex int
	// Sink receives validation messages. It may be nil when validation is off.
	Sink *diag.Sink
}

// Adapter owns the instance, the optional debug messenger and the read-only
// snapshot of the selected physical device.
type Adapter struct {
	instanceDriver core1_0.CoreInstanceDriver
	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	PhysicalDevice   core1_0.PhysicalDevice
	Properties       *core1_0.PhysicalDeviceProperties
	Features         *core1_0.PhysicalDeviceFeatures
	MemoryProperties *core1_0.PhysicalDeviceMemoryProperties
	// QueueFamilies holds the capability flags of each family in
	// enumeration order.
	QueueFamilies []core1_0.QueueFlags

	logger    *slog.Logger
	resources *release.Stack
}

func NewAdapter(globalDriver core1_0.GlobalDriver, opts AdapterOptions, logger *slog.Logger) (a *Adapter, err error) {
	logger = logger.With(slog.String("component", "adapter"))
	a = &Adapter{
		logger:    logger,
		resources: release.NewStack(logger),
	}
	defer a.resources.ReleaseOnError(&err)

	err = a.createInstance(globalDriver, opts)
	if err != nil {
		return nil, err
	}

	if opts.Validation.Enabled && opts.Sink != nil {
		err = a.createDebugMessenger(opts)
		if err != nil {
			return nil, err
		}
	}

	err = a.selectPhysicalDevice(opts.AdapterIndex)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func debugMessengerOptions(opts AdapterOptions) (ext_debug_utils.DebugUtilsMessengerCreateInfo, error) {
	severities, err := diag.ParseSeverities(opts.Validation.Severities)
	if err != nil {
		return ext_debug_utils.DebugUtilsMessengerCreateInfo{}, err
	}

	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: severities,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    opts.Sink.Callback,
	}, nil
}

func (a *Adapter) createInstance(globalDriver core1_0.GlobalDriver, opts AdapterOptions) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         opts.AppName,
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_0,
	}

	extensions, _, err := globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range opts.Extensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return contractViolation(ErrMissingExtension, "instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation.Enabled {
		_, hasDebugUtils := extensions[ext_debug_utils.ExtensionName]
		if !hasDebugUtils {
			return contractViolation(ErrMissingExtension, "instance extension %s", ext_debug_utils.ExtensionName)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)

		layers, _, err := globalDriver.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate instance layers")
		}

		for _, layer := range opts.Validation.Layers {
			_, hasLayer := layers[layer]
			if !hasLayer {
				return contractViolation(ErrMissingLayer, "layer %s (install the Vulkan SDK or disable validation)", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		if opts.Sink != nil {
			// Also catch messages from instance creation itself.
			messengerOptions, err := debugMessengerOptions(opts)
			if err != nil {
				return err
			}
			instanceOptions.Next = messengerOptions
		}
	}

	instance, _, err := globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}

	instanceDriver, err := globalDriver.BuildInstanceDriver(instance)
	if err != nil {
		return errors.Wrap(err, "build instance driver")
	}
	a.instanceDriver = instanceDriver
	a.resources.Push("instance", func() { instanceDriver.DestroyInstance(nil) })

	a.logger.Debug("instance created",
		slog.Any("extensions", instanceOptions.EnabledExtensionNames),
		slog.Any("layers", instanceOptions.EnabledLayerNames))
	return nil
}

func (a *Adapter) createDebugMessenger(opts AdapterOptions) error {
	messengerOptions, err := debugMessengerOptions(opts)
	if err != nil {
		return err
	}

	a.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(a.instanceDriver)
	messenger, _, err := a.debugDriver.CreateDebugUtilsMessenger(nil, messengerOptions)
	if err != nil {
		return errors.Wrap(err, "create debug messenger")
	}
	a.debugMessenger = messenger
	a.resources.Push("debug messenger", func() { a.debugDriver.DestroyDebugUtilsMessenger(messenger, nil) })
	return nil
}

func (a *Adapter) selectPhysicalDevice(index int) error {
	physicalDevices, _, err := a.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	if index < 0 || index >= len(physicalDevices) {
		return contractViolation(ErrNoAdapter, "index %d of %d", index, len(physicalDevices))
	}
	a.PhysicalDevice = physicalDevices[index]

	a.Properties, err = a.instanceDriver.GetPhysicalDeviceProperties(a.PhysicalDevice)
	if err != nil {
		return errors.Wrap(err, "query physical device properties")
	}
	a.Features = a.instanceDriver.GetPhysicalDeviceFeatures(a.PhysicalDevice)
	a.MemoryProperties = a.instanceDriver.GetPhysicalDeviceMemoryProperties(a.PhysicalDevice)

	a.QueueFamilies = a.QueueFamilies[:0]
	for _, family := range a.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(a.PhysicalDevice) {
		a.QueueFamilies = append(a.QueueFamilies, family.QueueFlags)
	}

	a.logger.Info("adapter selected",
		slog.Int("index", index),
		slog.String("name", a.Properties.DriverName),
		slog.Any("type", a.Properties.DriverType),
		slog.Any("api_version", a.Properties.APIVersion),
		slog.Any("driver_version", a.Properties.DriverVersion),
		slog.Any("vendor_id", a.Properties.VendorID),
		slog.Any("device_id", a.Properties.DeviceID),
		slog.String("pipeline_cache_uuid", a.Properties.PipelineCacheUUID.String()),
		slog.Int("memory_heaps", len(a.MemoryProperties.MemoryHeaps)),
		slog.Int("memory_types", len(a.MemoryProperties.MemoryTypes)),
		slog.Int("queue_families", len(a.QueueFamilies)))
	return nil
}

// InstanceDriver is the driver for the instance this adapter owns.
func (a *Adapter) InstanceDriver() core1_0.CoreInstanceDriver {
	return a.instanceDriver
}

// Destroy releases the debug messenger and the instance. Everything created
// from the instance must already be gone.
func (a *Adapter) Destroy() {
	a.resources.Release()
}
