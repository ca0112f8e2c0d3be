package vkdev

import (
	"github.com/andewx/dieselxr"
	vk "github.com/vulkan-go/vulkan"
)

// queueFamilies lists the queue family properties of gpu in index order.
func queueFamilies(gpu vk.PhysicalDevice) []dieselxr.QueueFamily {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, properties)

	families := make([]dieselxr.QueueFamily, 0, count)
	for index := range properties {
		queue := properties[index]
		queue.Deref()
		families = append(families, dieselxr.QueueFamily{
			Index: uint32(index),
			Flags: dieselxr.QueueFlags(queue.QueueFlags),
			Count: queue.QueueCount,
		})
	}
	return families
}

// Checks if device is suitable for queue operations
func isDeviceSuitable(gpu vk.PhysicalDevice, flags dieselxr.QueueFlags) bool {
	for _, family := range queueFamilies(gpu) {
		if family.Flags&flags == flags && family.Count > 0 {
			return true
		}
	}
	return false
}
