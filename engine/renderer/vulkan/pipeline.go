package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// minSampleShading is the fraction of samples shaded individually when
// sample-rate shading is on.
const minSampleShading = 0.2

func (b *Backend) CreateShaderModule(code []uint32) (metadata.ShaderModule, error) {
	if len(code) == 0 {
		return 0, fmt.Errorf("empty shader code")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if err := vkCheck(vk.CreateShaderModule(b.device, &createInfo, nil, &module), "vkCreateShaderModule"); err != nil {
		return 0, err
	}
	return b.shaderModules.add(module), nil
}

func (b *Backend) DestroyShaderModule(h metadata.ShaderModule) {
	if module, ok := b.shaderModules.remove(h); ok {
		vk.DestroyShaderModule(b.device, module, nil)
	}
}

func (b *Backend) CreateDescriptorSetLayout(bindings []metadata.DescriptorBinding) (metadata.DescriptorSetLayout, error) {
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, 0, len(bindings))
	for _, binding := range bindings {
		layoutBindings = append(layoutBindings, vk.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  vk.DescriptorType(binding.Type),
			DescriptorCount: max(binding.Count, 1),
			StageFlags:      vk.ShaderStageFlags(binding.Stages),
		})
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}

	var layout vk.DescriptorSetLayout
	if err := vkCheck(vk.CreateDescriptorSetLayout(b.device, &layoutInfo, nil, &layout), "vkCreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	return b.setLayouts.add(layout), nil
}

func (b *Backend) DestroyDescriptorSetLayout(h metadata.DescriptorSetLayout) {
	if layout, ok := b.setLayouts.remove(h); ok {
		vk.DestroyDescriptorSetLayout(b.device, layout, nil)
	}
}

func (b *Backend) CreateDescriptorPool(config metadata.DescriptorPoolConfig) (metadata.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(config.Sizes))
	for _, size := range config.Sizes {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(size.Type),
			DescriptorCount: size.Count,
		})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       config.MaxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	if err := vkCheck(vk.CreateDescriptorPool(b.device, &poolInfo, nil, &pool), "vkCreateDescriptorPool"); err != nil {
		return 0, err
	}
	return b.descriptorPools.add(pool), nil
}

// DestroyDescriptorPool also releases every set allocated from the pool.
func (b *Backend) DestroyDescriptorPool(h metadata.DescriptorPool) {
	pool, ok := b.descriptorPools.remove(h)
	if !ok {
		return
	}
	_ = b.locks.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorPool(b.device, pool, nil)
		return nil
	})
	b.descriptorSets.removeIf(func(set descriptorSet) bool { return set.pool == pool })
}

func (b *Backend) AllocateDescriptorSet(h metadata.DescriptorPool, l metadata.DescriptorSetLayout) (metadata.DescriptorSet, error) {
	pool, ok := b.descriptorPools.get(h)
	if !ok {
		return 0, fmt.Errorf("allocate from unknown descriptor pool %d", h)
	}
	layout, ok := b.setLayouts.get(l)
	if !ok {
		return 0, fmt.Errorf("allocate with unknown set layout %d", l)
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}

	var set vk.DescriptorSet
	if err := b.locks.SafeCall(DescriptorManagement, func() error {
		return vkCheck(vk.AllocateDescriptorSets(b.device, &allocInfo, &set), "vkAllocateDescriptorSets")
	}); err != nil {
		return 0, err
	}
	return b.descriptorSets.add(descriptorSet{handle: set, pool: pool}), nil
}

func (b *Backend) UpdateDescriptorSets(writes []metadata.DescriptorWrite) {
	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := b.descriptorSets.get(w.Set)
		if !ok {
			core.LogWarn("descriptor write to unknown set %d skipped", w.Set)
			continue
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorType(w.Type),
			DescriptorCount: 1,
		}
		switch w.Type {
		case metadata.DescriptorTypeUniformBuffer, metadata.DescriptorTypeStorageBuffer:
			buffer, _ := b.buffers.get(w.Buffer)
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buffer,
				Offset: 0,
				Range:  vk.DeviceSize(w.BufferRange),
			}}
		default:
			view, _ := b.views.get(w.ImageView)
			sampler, _ := b.samplers.get(w.Sampler)
			write.PImageInfo = []vk.DescriptorImageInfo{{
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				ImageView:   view,
				Sampler:     sampler,
			}}
		}
		descriptorWrites = append(descriptorWrites, write)
	}
	if len(descriptorWrites) == 0 {
		return
	}
	_ = b.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(b.device, uint32(len(descriptorWrites)), descriptorWrites, 0, nil)
		return nil
	})
}

func (b *Backend) CreatePipelineLayout(config metadata.PipelineLayoutConfig) (metadata.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, 0, len(config.SetLayouts))
	for _, h := range config.SetLayouts {
		layout, ok := b.setLayouts.get(h)
		if !ok {
			return 0, fmt.Errorf("pipeline layout references unknown set layout %d", h)
		}
		setLayouts = append(setLayouts, layout)
	}

	// NOTE: 32 is the max number of ranges we can ever have, since the API only guarantees 128 bytes with 4-byte alignment.
	if len(config.PushConstants) > 32 {
		return 0, fmt.Errorf("cannot have more than 32 push constant ranges. Passed count: %d", len(config.PushConstants))
	}
	ranges := make([]vk.PushConstantRange, 0, len(config.PushConstants))
	for _, r := range config.PushConstants {
		ranges = append(ranges, vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		})
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}

	var pPipelineLayout vk.PipelineLayout
	if err := b.locks.SafeCall(PipelineManagement, func() error {
		return vkCheck(vk.CreatePipelineLayout(b.device, &pipelineLayoutCreateInfo, nil, &pPipelineLayout), "vkCreatePipelineLayout")
	}); err != nil {
		return 0, err
	}
	return b.pipelineLayouts.add(pPipelineLayout), nil
}

func (b *Backend) DestroyPipelineLayout(h metadata.PipelineLayout) {
	if layout, ok := b.pipelineLayouts.remove(h); ok {
		_ = b.locks.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipelineLayout(b.device, layout, nil)
			return nil
		})
	}
}

// vertexInput describes a single interleaved vertex stream at binding 0.
func vertexInput(config metadata.PipelineConfig) vk.PipelineVertexInputStateCreateInfo {
	attributes := make([]vk.VertexInputAttributeDescription, 0, len(config.Attributes))
	for _, a := range config.Attributes {
		attributes = append(attributes, vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		})
	}
	return vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    config.VertexStride,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
}

func (b *Backend) CreateGraphicsPipeline(config metadata.PipelineConfig) (metadata.Pipeline, error) {
	layout, ok := b.pipelineLayouts.get(config.Layout)
	if !ok {
		return 0, fmt.Errorf("pipeline with unknown layout %d", config.Layout)
	}
	pass, ok := b.renderPasses.get(config.RenderPass)
	if !ok {
		return 0, fmt.Errorf("pipeline with unknown render pass %d", config.RenderPass)
	}
	vertModule, ok := b.shaderModules.get(config.Vertex)
	if !ok {
		return 0, fmt.Errorf("pipeline with unknown vertex module %d", config.Vertex)
	}
	fragModule, ok := b.shaderModules.get(config.Fragment)
	if !ok {
		return 0, fmt.Errorf("pipeline with unknown fragment module %d", config.Fragment)
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertModule,
			PName:  VulkanSafeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  VulkanSafeString("main"),
		},
	}

	vertexInputInfo := vertexInput(config)

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Viewport and scissor are dynamic, only the counts matter here.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

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
	if config.CullBackFaces {
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCountFlagBits(max(config.Samples, metadata.SampleCount1)),
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}
	if config.SampleShading {
		multisamplingCreateInfo.SampleShadingEnable = vk.True
		multisamplingCreateInfo.MinSampleShading = minSampleShading
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if config.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
		depthStencil.DepthBoundsTestEnable = vk.False
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
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
		Layout:              layout,
		RenderPass:          pass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := b.locks.SafeCall(PipelineManagement, func() error {
		return vkCheck(vk.CreateGraphicsPipelines(b.device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, nil, pPipelines), "vkCreateGraphicsPipelines")
	}); err != nil {
		return 0, err
	}
	if pPipelines[0] == nil {
		return 0, fmt.Errorf("vulkan pipeline handle is nil")
	}

	core.LogDebug("Graphics pipeline created!")
	return b.pipelines.add(pPipelines[0]), nil
}

func (b *Backend) DestroyPipeline(h metadata.Pipeline) {
	if pipeline, ok := b.pipelines.remove(h); ok {
		_ = b.locks.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipeline(b.device, pipeline, nil)
			return nil
		})
	}
}

func (b *Backend) CmdBindPipeline(cb metadata.CommandBuffer, h metadata.Pipeline) {
	commandBuffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	if pipeline, ok := b.pipelines.get(h); ok {
		vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, pipeline)
	}
}
