package vkdev

import (
	"github.com/andewx/dieselxr"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// NewError converts a failed result into an error carrying the call stack.
// Out of date and suboptimal results are reported as dieselxr.ErrSurfaceOutOfDate
// so the frame loop can rebuild the presentation surface.
func NewError(ret vk.Result) error {
	switch ret {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return errors.Wrapf(dieselxr.ErrSurfaceOutOfDate, "vulkan result %d", ret)
	}
	return errors.Errorf("vulkan error: %s (%d)", vk.Error(ret).Error(), ret)
}

// newCallError names the failing call.
func newCallError(call string, ret vk.Result) error {
	if err := NewError(ret); err != nil {
		return errors.Wrap(err, call)
	}
	return nil
}
