package dieselxr

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Setup errors abort engine construction
var (
	ErrNoCompatibleQueue    = errors.New("no queue family with graphics capability")
	ErrMultiviewUnsupported = errors.New("device does not support multiview rendering")
	ErrUnsupportedFormat    = errors.New("format not supported for attachment use")
	ErrAPIVersion           = errors.New("graphics API version not accepted by the runtime")
	ErrMissingExtensions    = errors.New("required extensions not available")
	ErrGraphicsDevice       = errors.New("physical device differs from the one the runtime requires")
	ErrViewConfiguration    = errors.New("runtime did not report a stereo view configuration")
)

// Usage errors from the frame synchronization layer
var (
	ErrOutOfOrderAcquire     = errors.New("swapchain image acquired before the previous one was released")
	ErrReleaseWithoutAcquire = errors.New("swapchain image released without being acquired")
	ErrImageNotAcquired      = errors.New("no swapchain image is acquired")
	ErrSlotBusy              = errors.New("frame slot is still being recorded")
	ErrSlotNotRecorded       = errors.New("frame slot has no finished recording to submit")
	ErrCommandSequence       = errors.New("command stream out of sequence")
	ErrSubmitNotPermitted    = errors.New("session is not running, GPU submission refused")
	ErrTornDown              = errors.New("object already torn down")
)

// Runtime errors
var (
	ErrSessionNotRunning = errors.New("session is not running")
	ErrSurfaceOutOfDate  = errors.New("presentation surface is out of date")
	ErrInstanceLost      = errors.New("runtime instance lost")
)

// IsSurfaceOutOfDate reports whether err was caused by a stale presentation surface.
func IsSurfaceOutOfDate(err error) bool {
	return errors.Cause(err) == ErrSurfaceOutOfDate
}

// Fatal reports err and exits the process. Finalizers run first so that GPU objects
// created so far can be released.
func Fatal(err error, finalizers ...func()) {
	if err == nil {
		return
	}
	for _, fn := range finalizers {
		fn()
	}
	Logger().Error("fatal", "err", err)
	fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
	os.Exit(1)
}
