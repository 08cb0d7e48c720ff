package gpu

import (
	"github.com/cockroachdb/errors"
)

// Setup contract violations. They are returned wrapped with an assertion
// failure marker; callers are expected to abort rather than retry.
var (
	ErrNoAdapter               = errors.New("no vulkan adapter at the requested index")
	ErrNoQueueFamily           = errors.New("no queue family has the required capabilities")
	ErrPresentUnsupported      = errors.New("selected queue family cannot present to the surface")
	ErrStorageUsageUnsupported = errors.New("swapchain images cannot be written by compute")
	ErrMissingLayer            = errors.New("validation layer not available")
	ErrMissingExtension        = errors.New("extension not available")
)

func contractViolation(err error, format string, args ...interface{}) error {
	return errors.WithAssertionFailure(errors.Wrapf(err, format, args...))
}

// IsContractViolation reports whether err came from a failed setup check
// rather than a driver call.
func IsContractViolation(err error) bool {
	return errors.HasAssertionFailure(err)
}
