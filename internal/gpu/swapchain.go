package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/computepresent/internal/policy"
	"github.com/vkngwrapper/computepresent/internal/release"
)

// SwapchainImage is one presentable image. The image belongs to the
// swapchain; the view and the fence belong to us.
type SwapchainImage struct {
	Image core1_0.Image
	View  core1_0.ImageView
	// Fence is signalled when the last dispatch into this image finished.
	// It is only created when per-image fences are enabled.
	Fence core1_0.Fence
}

type SwapchainOptions struct {
	// Requested is used only when the surface leaves the extent to us.
	Requested      core1_0.Extent2D
	// ExtraImages is requested on top of the surface minimum.
	ExtraImages    int
	PerImageFences bool
}

// Swapchain creates the swapchain once and owns the image views. It is never
// recreated; the window cannot be resized.
type Swapchain struct {
	driver khr_swapchain.ExtensionDriver
	Handle khr_swapchain.Swapchain

	Extent       core1_0.Extent2D
	ImageFormat  core1_0.Format
	ColorSpace   khr_surface.ColorSpace
	PresentMode  khr_surface.PresentMode
	PreTransform khr_surface.SurfaceTransformFlags
	Images       []SwapchainImage

	logger    *slog.Logger
	resources *release.Stack
}

func NewSwapchain(adapter *Adapter, surface *Surface, device *Device, opts SwapchainOptions, logger *slog.Logger) (*Swapchain, error) {
	swapchainDriver := khr_swapchain.CreateExtensionDriverFromCoreDriver(device.Driver)
	if swapchainDriver == nil {
		return nil, contractViolation(ErrMissingExtension, "device extension %s is not active", khr_swapchain.ExtensionName)
	}
	return newSwapchain(swapchainDriver, adapter, surface, device, opts, logger)
}

func newSwapchain(swapchainDriver khr_swapchain.ExtensionDriver, adapter *Adapter, surface *Surface, device *Device, opts SwapchainOptions, logger *slog.Logger) (s *Swapchain, err error) {
	logger = logger.With(slog.String("component", "swapchain"))
	s = &Swapchain{
		driver:    swapchainDriver,
		logger:    logger,
		resources: release.NewStack(logger),
	}
	defer s.resources.ReleaseOnError(&err)

	caps, err := surface.Capabilities(adapter.PhysicalDevice)
	if err != nil {
		return nil, err
	}

	usage, err := swapchainUsage(caps.SupportedUsageFlags)
	if err != nil {
		return nil, err
	}

	formatProps := adapter.InstanceDriver().GetPhysicalDeviceFormatProperties(adapter.PhysicalDevice, surface.Format.Format)
	if formatProps.OptimalTilingFeatures&core1_0.FormatFeatureStorageImage == 0 {
		return nil, contractViolation(ErrStorageUsageUnsupported, "format %v has no storage image support", surface.Format.Format)
	}

	s.Extent = policy.ResolveExtent(caps.CurrentExtent, opts.Requested)
	s.ImageFormat = surface.Format.Format
	s.ColorSpace = surface.Format.ColorSpace
	s.PresentMode = surface.PresentMode
	s.PreTransform = policy.ResolvePreTransform(caps.SupportedTransforms, caps.CurrentTransform)
	imageCount := policy.ResolveImageCount(caps.MinImageCount, caps.MaxImageCount, opts.ExtraImages)

	swapchain, _, err := s.driver.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: surface.Handle,

		MinImageCount:    imageCount,
		ImageFormat:      s.ImageFormat,
		ImageColorSpace:  s.ColorSpace,
		ImageExtent:      s.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       usage,
		ImageSharingMode: core1_0.SharingModeExclusive,

		PreTransform:   s.PreTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    s.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}
	s.Handle = swapchain
	s.resources.Push("swapchain", func() { s.driver.DestroySwapchain(swapchain, nil) })

	images, _, err := s.driver.GetSwapchainImages(swapchain)
	if err != nil {
		return nil, errors.Wrap(err, "get swapchain images")
	}

	for index, image := range images {
		view, _, err := device.Driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   s.ImageFormat,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "create view for swapchain image %d", index)
		}
		s.resources.Push("image view", func() { device.Driver.DestroyImageView(view, nil) })

		s.Images = append(s.Images, SwapchainImage{Image: image, View: view})
	}

	if opts.PerImageFences {
		for index := range s.Images {
			// Signalled so the first wait on each image returns at once.
			fence, _, err := device.Driver.CreateFence(nil, core1_0.FenceCreateInfo{
				Flags: core1_0.FenceCreateSignaled,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "create fence for swapchain image %d", index)
			}
			s.resources.Push("image fence", func() { device.Driver.DestroyFence(fence, nil) })
			s.Images[index].Fence = fence
		}
	}

	logger.Info("swapchain created",
		slog.Int("width", s.Extent.Width),
		slog.Int("height", s.Extent.Height),
		slog.Bool("extent_from_request", policy.ExtentUndefined(caps.CurrentExtent.Width)),
		slog.Int("min_images", caps.MinImageCount),
		slog.Int("max_images", caps.MaxImageCount),
		slog.Int("requested_images", imageCount),
		slog.Int("images", len(s.Images)),
		slog.Any("pre_transform", s.PreTransform),
		slog.Bool("per_image_fences", opts.PerImageFences))

	return s, nil
}

// swapchainUsage returns the image usage flags for compute output. Storage is
// mandatory; transfer destination is added when the surface allows it.
func swapchainUsage(supported core1_0.ImageUsageFlags) (core1_0.ImageUsageFlags, error) {
	if supported&core1_0.ImageUsageStorage == 0 {
		return 0, contractViolation(ErrStorageUsageUnsupported, "surface usage %v", supported)
	}

	usage := core1_0.ImageUsageStorage | core1_0.ImageUsageColorAttachment
	if supported&core1_0.ImageUsageTransferDst != 0 {
		usage |= core1_0.ImageUsageTransferDst
	}
	return usage, nil
}

// Views returns the image views in swapchain order.
func (s *Swapchain) Views() []core1_0.ImageView {
	views := make([]core1_0.ImageView, 0, len(s.Images))
	for _, image := range s.Images {
		views = append(views, image.View)
	}
	return views
}

func (s *Swapchain) Destroy() {
	s.resources.Release()
}
