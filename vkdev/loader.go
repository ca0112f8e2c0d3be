package vkdev

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// InitLoader resolves the Vulkan loader through GLFW. No window is created; the
// VR runtime owns presentation. The returned func terminates GLFW.
func InitLoader() (func(), error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "glfw init")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.New("glfw: no Vulkan loader found")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "vulkan init")
	}
	return glfw.Terminate, nil
}
