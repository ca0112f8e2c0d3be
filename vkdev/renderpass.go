package vkdev

import (
	"unsafe"

	"github.com/andewx/dieselxr"
	vk "github.com/vulkan-go/vulkan"
)

func attachmentDescription(a dieselxr.AttachmentDesc) vk.AttachmentDescription {
	load := vk.AttachmentLoadOpDontCare
	if a.Clear {
		load = vk.AttachmentLoadOpClear
	}
	store := vk.AttachmentStoreOpDontCare
	if a.Store {
		store = vk.AttachmentStoreOpStore
	}
	return vk.AttachmentDescription{
		Format:         vk.Format(a.Format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         load,
		StoreOp:        store,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayout(a.InitialLayout),
		FinalLayout:    vk.ImageLayout(a.FinalLayout),
	}
}

// CreateRenderPass creates a single subpass render pass. A non zero view mask
// chains the multiview info so one draw broadcasts to every masked layer.
func (d *Device) CreateRenderPass(desc dieselxr.RenderPassDesc) (dieselxr.RenderPass, error) {
	attachmentDescriptions := []vk.AttachmentDescription{attachmentDescription(desc.Color)}

	//Setup Subpass Attachment References
	colorReferences := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpass0 := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorReferences,
	}
	if desc.Depth != nil {
		attachmentDescriptions = append(attachmentDescriptions, attachmentDescription(*desc.Depth))
		subpass0.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dep := desc.Dependency
	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.MaxUint32,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(dep.SrcStage),
		DstStageMask:  vk.PipelineStageFlags(dep.DstStage),
		SrcAccessMask: vk.AccessFlags(dep.SrcAccess),
		DstAccessMask: vk.AccessFlags(dep.DstAccess),
	}}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass0},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
	if desc.ViewMask != 0 {
		multiview := vk.RenderPassMultiviewCreateInfo{
			SType:                vk.StructureTypeRenderPassMultiviewCreateInfo,
			SubpassCount:         1,
			PViewMasks:           []uint32{desc.ViewMask},
			CorrelationMaskCount: 1,
			PCorrelationMasks:    []uint32{desc.CorrelationMask},
		}
		ref, allocs := multiview.PassRef()
		defer allocs.Free()
		info.PNext = unsafe.Pointer(ref)
	}

	var renderPass vk.RenderPass
	res := vk.CreateRenderPass(d.handle, &info, nil, &renderPass)
	if isError(res) {
		return nil, newCallError("create render pass", res)
	}
	return renderPass, nil
}

func (d *Device) DestroyRenderPass(rp dieselxr.RenderPass) {
	vk.DestroyRenderPass(d.handle, handle[vk.RenderPass](rp), nil)
}
