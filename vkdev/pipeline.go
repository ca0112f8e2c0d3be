package vkdev

import (
	"github.com/andewx/dieselxr"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

type pipelineBuilder struct {
	shaderStages         []vk.PipelineShaderStageCreateInfo
	modules              []vk.ShaderModule
	vertexInputInfo      vk.PipelineVertexInputStateCreateInfo
	inputAssembly        vk.PipelineInputAssemblyStateCreateInfo
	rasterizer           vk.PipelineRasterizationStateCreateInfo
	colorBlendAttachment vk.PipelineColorBlendAttachmentState
	multisampling        vk.PipelineMultisampleStateCreateInfo
	depthStencil         vk.PipelineDepthStencilStateCreateInfo
}

// newPipelineBuilder creates the shader modules of desc and fills in the fixed
// function state. Vertices come from the shaders; there are no vertex buffers.
func newPipelineBuilder(d *Device, desc dieselxr.PipelineDesc) (*pipelineBuilder, error) {
	pb := &pipelineBuilder{}
	for _, stage := range desc.Stages {
		module, err := LoadShaderModule(d.handle, stage.Code)
		if err != nil {
			pb.destroyModules(d)
			return nil, errors.Wrapf(err, "shader stage %#x", stage.Stage)
		}
		pb.modules = append(pb.modules, module)
		entry := stage.Entry
		if entry == "" {
			entry = "main"
		}
		pb.shaderStages = append(pb.shaderStages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(stage.Stage),
			Module: module,
			PName:  safeString(entry),
		})
	}

	pb.vertexInputInfo = vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	pb.inputAssembly = vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	cull := vk.CullModeFlags(vk.CullModeNone)
	if desc.CullBack {
		cull = vk.CullModeFlags(vk.CullModeBackBit)
	}
	pb.rasterizer = vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                cull,
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}

	pb.multisampling = vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1.0,
	}

	pb.colorBlendAttachment = vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
		BlendEnable: vk.False,
	}

	pb.depthStencil = vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vkBool(desc.DepthTest),
		DepthWriteEnable: vkBool(desc.DepthTest),
		DepthCompareOp:   vk.CompareOpLessOrEqual,
	}
	return pb, nil
}

func (pb *pipelineBuilder) destroyModules(d *Device) {
	for _, m := range pb.modules {
		vk.DestroyShaderModule(d.handle, m, nil)
	}
	pb.modules = nil
}

func (pb *pipelineBuilder) build(d *Device, renderPass vk.RenderPass, layout vk.PipelineLayout) (vk.Pipeline, error) {
	// Viewport and scissor are set per frame so the pipeline survives surface rebuilds.
	viewState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: 2,
		PDynamicStates:    []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
	}
	blendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{pb.colorBlendAttachment},
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(pb.shaderStages)),
		PStages:             pb.shaderStages,
		PVertexInputState:   &pb.vertexInputInfo,
		PInputAssemblyState: &pb.inputAssembly,
		PViewportState:      &viewState,
		PRasterizationState: &pb.rasterizer,
		PMultisampleState:   &pb.multisampling,
		PDepthStencilState:  &pb.depthStencil,
		PColorBlendState:    &blendState,
		PDynamicState:       &dynamic,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             0,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.handle, nil, 1,
		[]vk.GraphicsPipelineCreateInfo{pipelineInfo}, nil, pipelines)
	if isError(res) {
		return vk.NullPipeline, newCallError("create graphics pipeline", res)
	}
	return pipelines[0], nil
}

// CreatePipeline builds a graphics pipeline with an empty layout. The shader
// modules only live for the duration of the call.
func (d *Device) CreatePipeline(pass dieselxr.RenderPass, desc dieselxr.PipelineDesc) (dieselxr.Pipeline, dieselxr.PipelineLayout, error) {
	pb, err := newPipelineBuilder(d, desc)
	if err != nil {
		return nil, nil, err
	}
	defer pb.destroyModules(d)

	var layout vk.PipelineLayout
	res := vk.CreatePipelineLayout(d.handle, &vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}, nil, &layout)
	if isError(res) {
		return nil, nil, newCallError("create pipeline layout", res)
	}

	pipeline, err := pb.build(d, handle[vk.RenderPass](pass), layout)
	if err != nil {
		vk.DestroyPipelineLayout(d.handle, layout, nil)
		return nil, nil, err
	}
	return pipeline, layout, nil
}

func (d *Device) DestroyPipeline(p dieselxr.Pipeline) {
	vk.DestroyPipeline(d.handle, handle[vk.Pipeline](p), nil)
}

func (d *Device) DestroyPipelineLayout(l dieselxr.PipelineLayout) {
	vk.DestroyPipelineLayout(d.handle, handle[vk.PipelineLayout](l), nil)
}

// LoadShaderModule wraps SPIR-V code in a shader module.
func LoadShaderModule(device vk.Device, data []byte) (vk.ShaderModule, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return vk.NullShaderModule, errors.Errorf("SPIR-V size %d is not a positive multiple of 4", len(data))
	}
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(data)),
		PCode:    sliceUint32(data),
	}, nil, &module)
	if isError(ret) {
		return vk.NullShaderModule, newCallError("create shader module", ret)
	}
	return module, nil
}
