package vkdev

import (
	"github.com/andewx/dieselxr"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Image is a device local image with its own memory allocation.
type Image struct {
	Image  vk.Image
	Memory vk.DeviceMemory
	Format vk.Format
}

func (d *Device) CreateImage(desc dieselxr.ImageDesc) (dieselxr.Image, error) {
	layers := desc.ArrayLayers
	if layers == 0 {
		layers = 1
	}
	var image vk.Image
	res := vk.CreateImage(d.handle, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        vk.Format(desc.Format),
		Extent:        vk.Extent3D{Width: desc.Extent.Width, Height: desc.Extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &image)
	if isError(res) {
		return nil, newCallError("create image", res)
	}

	//Search through GPU memory properties to see if this can be device local
	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, image, &memReq)
	memReq.Deref()

	memType, ok := findRequiredMemoryType(d.memoryProperties, memReq.MemoryTypeBits,
		vk.MemoryPropertyDeviceLocalBit)
	if !ok {
		dieselxr.Logger().Warn("vulkan: no device local memory type for image, using any", "format", desc.Format)
		memType, ok = findRequiredMemoryType(d.memoryProperties, memReq.MemoryTypeBits, 0)
	}
	if !ok {
		vk.DestroyImage(d.handle, image, nil)
		return nil, errors.Errorf("no memory type for image bits %#x", memReq.MemoryTypeBits)
	}

	var memory vk.DeviceMemory
	res = vk.AllocateMemory(d.handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: memType,
	}, nil, &memory)
	if isError(res) {
		vk.DestroyImage(d.handle, image, nil)
		return nil, newCallError("allocate image memory", res)
	}
	if res := vk.BindImageMemory(d.handle, image, memory, 0); isError(res) {
		vk.FreeMemory(d.handle, memory, nil)
		vk.DestroyImage(d.handle, image, nil)
		return nil, newCallError("bind image memory", res)
	}
	return &Image{Image: image, Memory: memory, Format: vk.Format(desc.Format)}, nil
}

func (d *Device) DestroyImage(img dieselxr.Image) {
	im := handle[*Image](img)
	if im == nil {
		return
	}
	vk.DestroyImage(d.handle, im.Image, nil)
	vk.FreeMemory(d.handle, im.Memory, nil)
}

// CreateImageView creates a 2D array view over the layer range of img.
func (d *Device) CreateImageView(img dieselxr.Image, desc dieselxr.ImageViewDesc) (dieselxr.ImageView, error) {
	im := handle[*Image](img)
	if im == nil {
		return nil, errors.Errorf("image view on foreign image %T", img)
	}
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if desc.Format.IsDepth() {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}

	var view vk.ImageView
	res := vk.CreateImageView(d.handle, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    im.Image,
		ViewType: vk.ImageViewType2dArray,
		Format:   vk.Format(desc.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			LevelCount:     1,
			BaseArrayLayer: desc.BaseLayer,
			LayerCount:     desc.LayerCount,
		},
	}, nil, &view)
	if isError(res) {
		return nil, newCallError("create image view", res)
	}
	return view, nil
}

func (d *Device) DestroyImageView(v dieselxr.ImageView) {
	vk.DestroyImageView(d.handle, handle[vk.ImageView](v), nil)
}

// CreateFramebuffer binds the attachments to a render pass. Multiview passes use
// one framebuffer layer; the view mask selects the image layers.
func (d *Device) CreateFramebuffer(desc dieselxr.FramebufferDesc) (dieselxr.Framebuffer, error) {
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, a := range desc.Attachments {
		views[i] = handle[vk.ImageView](a)
	}
	var framebuffer vk.Framebuffer
	res := vk.CreateFramebuffer(d.handle, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      handle[vk.RenderPass](desc.RenderPass),
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          desc.Layers,
	}, nil, &framebuffer)
	if isError(res) {
		return nil, newCallError("create framebuffer", res)
	}
	return framebuffer, nil
}

func (d *Device) DestroyFramebuffer(fb dieselxr.Framebuffer) {
	vk.DestroyFramebuffer(d.handle, handle[vk.Framebuffer](fb), nil)
}
