package vkdev

import (
	"github.com/andewx/dieselxr"
	vk "github.com/vulkan-go/vulkan"
)

// CreateCommandPool creates a pool on the graphics family whose buffers can be
// reset individually.
func (d *Device) CreateCommandPool() (dieselxr.CommandPool, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(d.handle, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)
	if isError(ret) {
		return nil, newCallError("create command pool", ret)
	}
	return pool, nil
}

func (d *Device) DestroyCommandPool(pool dieselxr.CommandPool) {
	vk.DestroyCommandPool(d.handle, handle[vk.CommandPool](pool), nil)
}

func (d *Device) AllocateCommandBuffers(pool dieselxr.CommandPool, count int) ([]dieselxr.CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, count)
	ret := vk.AllocateCommandBuffers(d.handle, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        handle[vk.CommandPool](pool),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}, buffers)
	if isError(ret) {
		return nil, newCallError("allocate command buffers", ret)
	}
	out := make([]dieselxr.CommandBuffer, count)
	for i := range buffers {
		out[i] = buffers[i]
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(pool dieselxr.CommandPool, cmds []dieselxr.CommandBuffer) {
	if len(cmds) == 0 {
		return
	}
	buffers := make([]vk.CommandBuffer, len(cmds))
	for i := range cmds {
		buffers[i] = handle[vk.CommandBuffer](cmds[i])
	}
	vk.FreeCommandBuffers(d.handle, handle[vk.CommandPool](pool), uint32(len(buffers)), buffers)
}

// BeginCommandBuffer resets cmd and opens it for a single submission.
func (d *Device) BeginCommandBuffer(cmd dieselxr.CommandBuffer) (dieselxr.CommandStream, error) {
	buf := handle[vk.CommandBuffer](cmd)
	ret := vk.ResetCommandBuffer(buf, vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit))
	if isError(ret) {
		return nil, newCallError("reset command buffer", ret)
	}
	ret = vk.BeginCommandBuffer(buf, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if isError(ret) {
		return nil, newCallError("begin command buffer", ret)
	}
	return commandStream{cmd: buf}, nil
}

func (d *Device) EndCommandBuffer(cmd dieselxr.CommandBuffer) error {
	return newCallError("end command buffer", vk.EndCommandBuffer(handle[vk.CommandBuffer](cmd)))
}

// commandStream records straight into a Vulkan command buffer.
type commandStream struct {
	cmd vk.CommandBuffer
}

func (s commandStream) BeginRenderPass(begin dieselxr.RenderPassBegin) {
	c := begin.ClearColor
	clearValues := []vk.ClearValue{
		vk.NewClearValue([]float32{c[0], c[1], c[2], c[3]}),
	}
	if begin.HasDepth {
		clearValues = append(clearValues, vk.NewClearDepthStencil(begin.ClearDepth, 0))
	}
	vk.CmdBeginRenderPass(s.cmd, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      handle[vk.RenderPass](begin.RenderPass),
		Framebuffer:     handle[vk.Framebuffer](begin.Framebuffer),
		RenderArea:      rect(begin.Area),
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsInline)
}

func (s commandStream) SetViewport(vp dieselxr.Viewport) {
	vk.CmdSetViewport(s.cmd, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (s commandStream) SetScissor(r dieselxr.Rect2D) {
	vk.CmdSetScissor(s.cmd, 0, 1, []vk.Rect2D{rect(r)})
}

func (s commandStream) BindPipeline(p dieselxr.Pipeline) {
	vk.CmdBindPipeline(s.cmd, vk.PipelineBindPointGraphics, handle[vk.Pipeline](p))
}

func (s commandStream) Draw(p dieselxr.DrawParams) {
	vk.CmdDraw(s.cmd, p.VertexCount, p.InstanceCount, p.FirstVertex, p.FirstInstance)
}

func (s commandStream) EndRenderPass() {
	vk.CmdEndRenderPass(s.cmd)
}

func rect(r dieselxr.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}
}
