package dieselxr

import "time"

// QueueFlags mirror VkQueueFlagBits.
type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 0x1
	QueueCompute  QueueFlags = 0x2
	QueueTransfer QueueFlags = 0x4
)

// QueueFamily is one queue family advertised by the physical device.
type QueueFamily struct {
	Index uint32
	Flags QueueFlags
	Count uint32
}

// GraphicsHandles are the raw graphics API handles the VR runtime needs to bind a
// session to the engine's device.
type GraphicsHandles struct {
	Instance       any
	PhysicalDevice any
	Device         any
}

// DeviceDesc selects the queue family and extensions of the logical device.
type DeviceDesc struct {
	QueueFamily uint32
	Extensions  []string
	Multiview   bool
}

// Backend is a graphics instance bound to one physical device.
type Backend interface {
	// APIVersion is the graphics API version the instance was created for.
	APIVersion() Version
	// QueueFamilies lists the physical device queue families in index order.
	QueueFamilies() ([]QueueFamily, error)
	// DeviceExtensions lists the extensions the physical device offers.
	DeviceExtensions() ([]string, error)
	// SupportsMultiview reports the multiview device feature.
	SupportsMultiview() bool
	// CreateDevice creates the logical device with one queue from desc.QueueFamily.
	CreateDevice(desc DeviceDesc) (Device, error)
	// Handles returns the instance and physical device handles.
	Handles() GraphicsHandles
}

// ImageUsage mirrors VkImageUsageFlagBits.
type ImageUsage uint32

const (
	ImageUsageTransferSrc     ImageUsage = 0x01
	ImageUsageSampled         ImageUsage = 0x04
	ImageUsageColorAttachment ImageUsage = 0x10
	ImageUsageDepthAttachment ImageUsage = 0x20
)

// ImageDesc describes a 2D image with array layers.
type ImageDesc struct {
	Format      Format
	Extent      Extent2D
	ArrayLayers uint32
	Usage       ImageUsage
}

// ImageViewDesc describes a 2D array view over a layer range.
type ImageViewDesc struct {
	Format     Format
	BaseLayer  uint32
	LayerCount uint32
}

type FramebufferDesc struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
	Layers      uint32
}

// ImageLayout mirrors the VkImageLayout values used by the render pass.
type ImageLayout uint32

const (
	LayoutUndefined              ImageLayout = 0
	LayoutColorAttachmentOptimal ImageLayout = 2
	LayoutDepthAttachmentOptimal ImageLayout = 3
)

// PipelineStage mirrors VkPipelineStageFlagBits.
type PipelineStage uint32

const (
	StageEarlyFragmentTests    PipelineStage = 0x100
	StageLateFragmentTests     PipelineStage = 0x200
	StageColorAttachmentOutput PipelineStage = 0x400
)

// Access mirrors VkAccessFlagBits.
type Access uint32

const (
	AccessColorAttachmentWrite Access = 0x100
	AccessDepthAttachmentWrite Access = 0x400
)

// AttachmentDesc describes one render pass attachment.
type AttachmentDesc struct {
	Format        Format
	Clear         bool
	Store         bool
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

// SubpassDependency is the external to subpass 0 barrier.
type SubpassDependency struct {
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
}

// RenderPassDesc is a single subpass render pass with multiview masks.
type RenderPassDesc struct {
	Color           AttachmentDesc
	Depth           *AttachmentDesc
	ViewMask        uint32
	CorrelationMask uint32
	Dependency      SubpassDependency
}

// ShaderStage mirrors VkShaderStageFlagBits.
type ShaderStage uint32

const (
	ShaderVertex   ShaderStage = 0x01
	ShaderFragment ShaderStage = 0x10
)

// ShaderModule is SPIR-V code for one pipeline stage.
type ShaderModule struct {
	Stage ShaderStage
	Code  []byte
	Entry string
}

// Topology mirrors VkPrimitiveTopology.
type Topology uint32

const (
	TopologyPointList     Topology = 0
	TopologyLineList      Topology = 1
	TopologyTriangleList  Topology = 3
	TopologyTriangleStrip Topology = 4
)

// PipelineDesc is the shader and fixed function content the external renderer
// supplies. Viewport and scissor are always dynamic.
type PipelineDesc struct {
	Stages    []ShaderModule
	Topology  Topology
	CullBack  bool
	DepthTest bool
}

// RenderPassBegin opens the render pass on a framebuffer.
type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Rect2D
	ClearColor  Color
	ClearDepth  float32
	HasDepth    bool
}

// DrawParams are the non-indexed draw arguments.
type DrawParams struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// CommandStream is the append only command recording surface for one command
// buffer.
type CommandStream interface {
	BeginRenderPass(begin RenderPassBegin)
	SetViewport(vp Viewport)
	SetScissor(rect Rect2D)
	BindPipeline(p Pipeline)
	Draw(params DrawParams)
	EndRenderPass()
}

// Device is the logical device and its single graphics queue.
//
// Destroy methods do not check ordering or GPU progress; callers destroy in reverse
// construction order after WaitIdle.
type Device interface {
	// Handle is the raw logical device handle.
	Handle() any
	QueueFamily() uint32
	QueueIndex() uint32

	FormatSupported(f Format, usage ImageUsage) bool

	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	CreatePipeline(pass RenderPass, desc PipelineDesc) (Pipeline, PipelineLayout, error)
	CreateCommandPool() (CommandPool, error)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)
	CreateFence(signaled bool) (Fence, error)
	CreateImage(desc ImageDesc) (Image, error)
	CreateImageView(img Image, desc ImageViewDesc) (ImageView, error)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)

	// WaitForFence blocks until the fence signals or the timeout passes.
	WaitForFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error
	// BeginCommandBuffer resets cmd and opens it for one time submission.
	BeginCommandBuffer(cmd CommandBuffer) (CommandStream, error)
	EndCommandBuffer(cmd CommandBuffer) error
	// Submit queues cmd on the graphics queue; fence signals on completion.
	Submit(cmd CommandBuffer, fence Fence) error
	// WaitIdle returns once no submitted work is outstanding on the device.
	WaitIdle() error

	DestroyFramebuffer(fb Framebuffer)
	DestroyImageView(v ImageView)
	DestroyImage(img Image)
	DestroyFence(f Fence)
	FreeCommandBuffers(pool CommandPool, cmds []CommandBuffer)
	DestroyCommandPool(pool CommandPool)
	DestroyPipeline(p Pipeline)
	DestroyPipelineLayout(l PipelineLayout)
	DestroyRenderPass(rp RenderPass)
	// Destroy releases the logical device itself.
	Destroy()
}
