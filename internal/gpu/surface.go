package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/computepresent/internal/policy"
	"github.com/vkngwrapper/computepresent/internal/release"
)

// SurfaceSource is the windowing side: it turns a window into a surface.
type SurfaceSource interface {
	CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error)
}

// Surface binds the window's platform surface and holds the negotiated
// format, color space and present mode.
type Surface struct {
	driver khr_surface.ExtensionDriver
	Handle khr_surface.Surface

	Format      khr_surface.SurfaceFormat
	PresentMode khr_surface.PresentMode

	logger    *slog.Logger
	resources *release.Stack
}

func NewSurface(adapter *Adapter, source SurfaceSource, logger *slog.Logger) (s *Surface, err error) {
	logger = logger.With(slog.String("component", "surface"))
	s = &Surface{
		logger:    logger,
		resources: release.NewStack(logger),
	}
	defer s.resources.ReleaseOnError(&err)

	s.driver = khr_surface.CreateExtensionDriverFromCoreDriver(adapter.InstanceDriver())
	handle, err := source.CreateSurface(adapter.InstanceDriver().Instance(), s.driver)
	if err != nil {
		return nil, err
	}
	s.Handle = handle
	s.resources.Push("surface", func() { s.driver.DestroySurface(handle, nil) })

	formats, _, err := s.driver.GetPhysicalDeviceSurfaceFormats(handle, adapter.PhysicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "query surface formats")
	}
	s.Format, err = policy.ChooseSurfaceFormat(formats)
	if err != nil {
		return nil, err
	}

	presentModes, _, err := s.driver.GetPhysicalDeviceSurfacePresentModes(handle, adapter.PhysicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "query surface present modes")
	}
	s.PresentMode = policy.ChoosePresentMode(presentModes)

	logger.Info("surface negotiated",
		slog.Any("format", s.Format.Format),
		slog.Any("color_space", s.Format.ColorSpace),
		slog.Any("present_mode", s.PresentMode),
		slog.Int("formats_offered", len(formats)),
		slog.Int("present_modes_offered", len(presentModes)))

	return s, nil
}

// SupportsPresent asks whether a queue family of the device can present to
// this surface.
func (s *Surface) SupportsPresent(physicalDevice core1_0.PhysicalDevice, queueFamily int) (bool, error) {
	supported, _, err := s.driver.GetPhysicalDeviceSurfaceSupport(s.Handle, physicalDevice, queueFamily)
	if err != nil {
		return false, errors.Wrap(err, "query surface support")
	}
	return supported, nil
}

func (s *Surface) Capabilities(physicalDevice core1_0.PhysicalDevice) (*khr_surface.SurfaceCapabilities, error) {
	caps, _, err := s.driver.GetPhysicalDeviceSurfaceCapabilities(s.Handle, physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "query surface capabilities")
	}
	return caps, nil
}

func (s *Surface) Destroy() {
	s.resources.Release()
}
