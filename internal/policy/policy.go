// Package policy holds the negotiation rules used to turn what the adapter and
// surface report into concrete swapchain and dispatch parameters. Nothing here
// talks to the driver, so every rule can be exercised without a GPU.
package policy

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// DefaultSurfaceFormat is used when the surface has no preferred format.
const DefaultSurfaceFormat = core1_0.FormatB8G8R8A8UnsignedNormalized

// LocalGroupSize is the compute program's local work group size on X and Y.
const LocalGroupSize = 16

// ErrNoSurfaceFormats is returned when the surface reports no formats at all.
var ErrNoSurfaceFormats = errors.New("surface reports no formats")

// Variant selects between the two queue family policies.
type Variant int

const (
	// VariantMinimal requires a compute queue.
	VariantMinimal Variant = iota
	// VariantExtended accepts a compute or graphics queue.
	VariantExtended
)

func (v Variant) String() string {
	switch v {
	case VariantMinimal:
		return "minimal"
	case VariantExtended:
		return "extended"
	}
	return "unknown"
}

// ParseVariant maps a config string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "minimal", "":
		return VariantMinimal, nil
	case "extended":
		return VariantExtended, nil
	}
	return 0, errors.Newf("unknown device variant %q", s)
}

// QueueRequirement returns the capability bits a queue family must carry and
// whether any one of them is enough.
func (v Variant) QueueRequirement() (core1_0.QueueFlags, bool) {
	if v == VariantExtended {
		return core1_0.QueueCompute | core1_0.QueueGraphics, true
	}
	return core1_0.QueueCompute, false
}

// SupportsDispatch reports whether a family with these flags can record
// compute dispatches. The extended variant may select a family that cannot.
func SupportsDispatch(flags core1_0.QueueFlags) bool {
	return flags&core1_0.QueueCompute != 0
}

// SelectQueueFamily returns the index of the first family, in enumeration
// order, whose flags satisfy required. With matchAny a single shared bit is
// enough; otherwise every required bit must be present.
func SelectQueueFamily(families []core1_0.QueueFlags, required core1_0.QueueFlags, matchAny bool) (int, bool) {
	for index, flags := range families {
		if matchAny && flags&required != 0 {
			return index, true
		}
		if !matchAny && flags&required == required {
			return index, true
		}
	}
	return -1, false
}

// ChooseSurfaceFormat picks the swapchain format. A single UNDEFINED entry
// means the surface has no preference and DefaultSurfaceFormat is used;
// otherwise the first entry wins. The color space always comes from the
// first entry.
func ChooseSurfaceFormat(formats []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(formats) == 0 {
		return khr_surface.SurfaceFormat{}, ErrNoSurfaceFormats
	}

	chosen := formats[0]
	if len(formats) == 1 && formats[0].Format == core1_0.FormatUndefined {
		chosen.Format = DefaultSurfaceFormat
	}
	return chosen, nil
}

// ChoosePresentMode applies the fixed priority MAILBOX > IMMEDIATE > FIFO.
// FIFO is always available, so it is returned when neither of the others is.
func ChoosePresentMode(modes []khr_surface.PresentMode) khr_surface.PresentMode {
	chosen := khr_surface.PresentModeFIFO
	for _, mode := range modes {
		if mode == khr_surface.PresentModeMailbox {
			return mode
		}
		if mode == khr_surface.PresentModeImmediate {
			chosen = mode
		}
	}
	return chosen
}

// ExtentUndefined reports whether a surface width is the "size is determined
// by the swapchain" sentinel. The driver reports 0xFFFFFFFF, which shows up
// as -1 or MaxUint32 depending on how the binding widened it.
func ExtentUndefined(width int) bool {
	return uint32(width) == math.MaxUint32
}

// ResolveExtent returns the swapchain extent. When the surface dictates its
// size the requested size is ignored.
func ResolveExtent(current, requested core1_0.Extent2D) core1_0.Extent2D {
	if ExtentUndefined(current.Width) {
		return requested
	}
	return current
}

// ResolveImageCount returns minCount+extra clamped to maxCount. A maxCount
// of zero means the surface places no upper bound.
func ResolveImageCount(minCount, maxCount, extra int) int {
	count := minCount + extra
	if maxCount > 0 && count > maxCount {
		count = maxCount
	}
	return count
}

// ResolvePreTransform prefers the identity transform and otherwise keeps the
// surface's current one. No compensating rotation is applied in the second
// case.
func ResolvePreTransform(supported, current khr_surface.SurfaceTransformFlags) khr_surface.SurfaceTransformFlags {
	if supported&khr_surface.TransformIdentity != 0 {
		return khr_surface.TransformIdentity
	}
	return current
}

// DispatchGroups returns the global work group counts for an image. Sizes
// that are not a multiple of LocalGroupSize leave the remainder unwritten.
func DispatchGroups(extent core1_0.Extent2D) (int, int) {
	return extent.Width / LocalGroupSize, extent.Height / LocalGroupSize
}
