package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

// Pipeline bundles the compiled pipeline with its layout objects. One
// descriptor set layout carries every binding slot; the binding number of
// a slot is its append-order index in the gpu.BindingLayout.
type Pipeline struct {
	device    *Device
	kind      gpu.PipelineKind
	handle    vk.Pipeline
	layout    vk.PipelineLayout
	setLayout vk.DescriptorSetLayout
}

func stageFlagsForVisibility(visibility gpu.ShaderVisibility) vk.ShaderStageFlags {
	switch visibility {
	case gpu.VisibilityVertex:
		return vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	case gpu.VisibilityPixel:
		return vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	case gpu.VisibilityCompute:
		return vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	default:
		return vk.ShaderStageFlags(vk.ShaderStageAllGraphics | vk.ShaderStageFlagBits(vk.ShaderStageComputeBit))
	}
}

func newSetLayout(device *Device, layout *gpu.BindingLayout) (vk.DescriptorSetLayout, error) {
	if layout == nil || layout.SlotCount() == 0 {
		return vk.NullDescriptorSetLayout, nil
	}

	bindings := make([]vk.DescriptorSetLayoutBinding, layout.SlotCount())
	for i := 0; i < layout.SlotCount(); i++ {
		slot := layout.Slot(i)
		binding := vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorCount: 1,
			StageFlags:      stageFlagsForVisibility(slot.Visibility),
		}
		switch slot.Kind {
		case gpu.BindingConstantBuffer:
			binding.DescriptorType = vk.DescriptorTypeUniformBuffer
		case gpu.BindingTable:
			binding.DescriptorType = vk.DescriptorTypeStorageBuffer
			var count uint32
			for _, r := range slot.Ranges {
				count += r.Count
			}
			if count > 0 {
				binding.DescriptorCount = count
			}
		}
		bindings[i] = binding
	}

	layoutCreateInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var setLayout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(device.logicalDevice, &layoutCreateInfo, device.allocator, &setLayout); res != vk.Success {
		err := fmt.Errorf("failed to create descriptor set layout with `%s`", ResultString(res))
		core.LogError(err.Error())
		return vk.NullDescriptorSetLayout, err
	}
	return setLayout, nil
}

func newPipelineLayout(device *Device, setLayout vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	layoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	if setLayout != vk.NullDescriptorSetLayout {
		layoutCreateInfo.SetLayoutCount = 1
		layoutCreateInfo.PSetLayouts = []vk.DescriptorSetLayout{setLayout}
	}
	var pipelineLayout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(device.logicalDevice, &layoutCreateInfo, device.allocator, &pipelineLayout); res != vk.Success {
		err := fmt.Errorf("vkCreatePipelineLayout failed with `%s`", ResultString(res))
		core.LogError(err.Error())
		return vk.NullPipelineLayout, err
	}
	return pipelineLayout, nil
}

func newShaderModule(device *Device, blob []byte) (vk.ShaderModule, error) {
	if len(blob) == 0 || len(blob)%4 != 0 {
		err := fmt.Errorf("shader blob must be non-empty SPIR-V (got %d bytes)", len(blob))
		core.LogError(err.Error())
		return vk.NullShaderModule, err
	}
	code := sliceUint32(blob)

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(blob)),
		PCode:    code,
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(device.logicalDevice, &createInfo, device.allocator, &module); res != vk.Success {
		err := fmt.Errorf("failed to create shader module with `%s`", ResultString(res))
		core.LogError(err.Error())
		return vk.NullShaderModule, err
	}
	return module, nil
}

func attributeFormat(format gpu.Format) vk.Format {
	switch format {
	case gpu.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gpu.FormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm
	default:
		return vk.FormatR32g32b32a32Sfloat
	}
}

func primitiveTopology(topology gpu.PrimitiveTopology) vk.PrimitiveTopology {
	switch topology {
	case gpu.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	case gpu.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func newGraphicsPipeline(device *Device, desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	p := &Pipeline{device: device, kind: gpu.PipelineGraphics}

	setLayout, err := newSetLayout(device, desc.Layout)
	if err != nil {
		return nil, err
	}
	p.setLayout = setLayout

	pipelineLayout, err := newPipelineLayout(device, setLayout)
	if err != nil {
		return nil, err
	}
	p.layout = pipelineLayout

	vertexModule, err := newShaderModule(device, desc.VertexShader)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(device.logicalDevice, vertexModule, device.allocator)

	pixelModule, err := newShaderModule(device, desc.PixelShader)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(device.logicalDevice, pixelModule, device.allocator)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertexModule,
			PName:  SafeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: pixelModule,
			PName:  SafeString("main"),
		},
	}

	// Vertex input
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, a := range desc.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Offset:   a.Offset,
			Format:   attributeFormat(a.Format),
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if desc.VertexStride > 0 {
		bindingDescription := vk.VertexInputBindingDescription{
			Binding:   0,
			Stride:    desc.VertexStride,
			InputRate: vk.VertexInputRateVertex,
		}
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{bindingDescription}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInputInfo.PVertexAttributeDescriptions = attributes
	}
	vertexInputInfo.Deref()

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               primitiveTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}
	inputAssembly.Deref()

	// Viewport and scissor are dynamic; the counts still must be one.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	viewportState.Deref()

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	rasterizerCreateInfo.Deref()

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}
	multisamplingCreateInfo.Deref()

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	depthStencil.Deref()

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlendAttachmentState.Deref()

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}
	colorBlendStateCreateInfo.Deref()

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}
	dynamicStateCreateInfo.Deref()

	// The pipeline renders into the swapchain pass; a swapchain must exist
	// before graphics pipelines are created. A throwaway compatible pass
	// would also work but the engine never needs one.
	renderPass := device.renderPassForPipelines()
	if renderPass == vk.NullRenderPass {
		err := fmt.Errorf("graphics pipeline requires a swapchain render pass")
		core.LogError(err.Error())
		return nil, err
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              p.layout,
		RenderPass:          renderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelineCreateInfo.Deref()

	pipelines := make([]vk.Pipeline, 1)
	result := vk.CreateGraphicsPipelines(
		device.logicalDevice,
		vk.NullPipelineCache,
		1,
		[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
		device.allocator,
		pipelines)
	if !ResultIsSuccess(result) {
		err := fmt.Errorf("vkCreateGraphicsPipelines failed with `%s`", ResultString(result))
		core.LogError(err.Error())
		return nil, err
	}
	p.handle = pipelines[0]

	core.LogDebug("Graphics pipeline created!")
	return p, nil
}

func newComputePipeline(device *Device, desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	p := &Pipeline{device: device, kind: gpu.PipelineCompute}

	setLayout, err := newSetLayout(device, desc.Layout)
	if err != nil {
		return nil, err
	}
	p.setLayout = setLayout

	pipelineLayout, err := newPipelineLayout(device, setLayout)
	if err != nil {
		return nil, err
	}
	p.layout = pipelineLayout

	module, err := newShaderModule(device, desc.Shader)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(device.logicalDevice, module, device.allocator)

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  SafeString("main"),
		},
		Layout:             p.layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelineCreateInfo.Deref()

	pipelines := make([]vk.Pipeline, 1)
	result := vk.CreateComputePipelines(
		device.logicalDevice,
		vk.NullPipelineCache,
		1,
		[]vk.ComputePipelineCreateInfo{pipelineCreateInfo},
		device.allocator,
		pipelines)
	if !ResultIsSuccess(result) {
		err := fmt.Errorf("vkCreateComputePipelines failed with `%s`", ResultString(result))
		core.LogError(err.Error())
		return nil, err
	}
	p.handle = pipelines[0]

	core.LogDebug("Compute pipeline created!")
	return p, nil
}

func (p *Pipeline) Kind() gpu.PipelineKind {
	return p.kind
}

func (p *Pipeline) Destroy() {
	if p.handle != vk.NullPipeline {
		vk.DestroyPipeline(p.device.logicalDevice, p.handle, p.device.allocator)
		p.handle = vk.NullPipeline
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(p.device.logicalDevice, p.layout, p.device.allocator)
		p.layout = vk.NullPipelineLayout
	}
	if p.setLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(p.device.logicalDevice, p.setLayout, p.device.allocator)
		p.setLayout = vk.NullDescriptorSetLayout
	}
}
