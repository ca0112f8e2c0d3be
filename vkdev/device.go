package vkdev

import (
	"time"

	"github.com/andewx/dieselxr"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Device is the logical device with its graphics queue. It implements
// dieselxr.Device.
type Device struct {
	handle           vk.Device
	gpu              vk.PhysicalDevice
	queue            vk.Queue
	family           uint32
	memoryProperties vk.PhysicalDeviceMemoryProperties
}

var _ dieselxr.Device = (*Device)(nil)

func (d *Device) Handle() any         { return d.handle }
func (d *Device) QueueFamily() uint32 { return d.family }
func (d *Device) QueueIndex() uint32  { return 0 }

// FormatSupported checks the optimal tiling features of f against usage.
func (d *Device) FormatSupported(f dieselxr.Format, usage dieselxr.ImageUsage) bool {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.gpu, vk.Format(f), &props)
	props.Deref()
	features := props.OptimalTilingFeatures

	var need vk.FormatFeatureFlags
	if usage&dieselxr.ImageUsageColorAttachment != 0 {
		need |= vk.FormatFeatureFlags(vk.FormatFeatureColorAttachmentBit)
	}
	if usage&dieselxr.ImageUsageDepthAttachment != 0 {
		need |= vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	}
	if usage&dieselxr.ImageUsageSampled != 0 {
		need |= vk.FormatFeatureFlags(vk.FormatFeatureSampledImageBit)
	}
	return features&need == need
}

// WaitForFence blocks on f. dieselxr.Infinite and negative timeouts wait forever.
func (d *Device) WaitForFence(f dieselxr.Fence, timeout time.Duration) error {
	ns := uint64(vk.MaxUint64)
	if timeout >= 0 && timeout != dieselxr.Infinite {
		ns = uint64(timeout.Nanoseconds())
	}
	fences := []vk.Fence{handle[vk.Fence](f)}
	ret := vk.WaitForFences(d.handle, 1, fences, vk.True, ns)
	if ret == vk.Timeout {
		return errors.Errorf("fence wait timed out after %v", timeout)
	}
	return newCallError("wait for fence", ret)
}

func (d *Device) ResetFence(f dieselxr.Fence) error {
	fences := []vk.Fence{handle[vk.Fence](f)}
	return newCallError("reset fence", vk.ResetFences(d.handle, 1, fences))
}

func (d *Device) CreateFence(signaled bool) (dieselxr.Fence, error) {
	var flags vk.FenceCreateFlags
	if signaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	ret := vk.CreateFence(d.handle, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: flags,
	}, nil, &fence)
	if isError(ret) {
		return nil, newCallError("create fence", ret)
	}
	return fence, nil
}

func (d *Device) DestroyFence(f dieselxr.Fence) {
	vk.DestroyFence(d.handle, handle[vk.Fence](f), nil)
}

// Submit queues cmd with no semaphores; the runtime synchronizes swapchain
// images itself.
func (d *Device) Submit(cmd dieselxr.CommandBuffer, fence dieselxr.Fence) error {
	submitInfos := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers: []vk.CommandBuffer{
			handle[vk.CommandBuffer](cmd),
		},
	}}
	ret := vk.QueueSubmit(d.queue, 1, submitInfos, handle[vk.Fence](fence))
	return newCallError("queue submit", ret)
}

func (d *Device) WaitIdle() error {
	return newCallError("device wait idle", vk.DeviceWaitIdle(d.handle))
}

// Destroy releases the logical device. Everything created from it must be gone.
func (d *Device) Destroy() {
	if d.handle == nil {
		return
	}
	vk.DestroyDevice(d.handle, nil)
	d.handle = nil
}

// findRequiredMemoryType returns the first memory type allowed by typeBits that
// has all of the wanted property flags.
func findRequiredMemoryType(props vk.PhysicalDeviceMemoryProperties,
	typeBits uint32, wanted vk.MemoryPropertyFlagBits) (uint32, bool) {

	for i := uint32(0); i < vk.MaxMemoryTypes && i < props.MemoryTypeCount; i++ {
		if typeBits&(1<<i) != 0 {
			props.MemoryTypes[i].Deref()
			flags := props.MemoryTypes[i].PropertyFlags
			if flags&vk.MemoryPropertyFlags(wanted) == vk.MemoryPropertyFlags(wanted) {
				return i, true
			}
		}
	}
	return 0, false
}
