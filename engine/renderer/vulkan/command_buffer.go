package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func (b *Backend) CreateCommandPool(queueFamily uint32) (metadata.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		// Frame command buffers are reset and re-recorded every frame.
		Flags: vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := vkCheck(vk.CreateCommandPool(b.device, &poolCreateInfo, nil, &pool), "vkCreateCommandPool"); err != nil {
		return 0, err
	}
	core.LogDebug("Graphics command pool created.")
	return b.commandPools.add(pool), nil
}

// DestroyCommandPool frees the buffers allocated from it as well.
func (b *Backend) DestroyCommandPool(h metadata.CommandPool) {
	pool, ok := b.commandPools.remove(h)
	if !ok {
		return
	}
	_ = b.locks.SafeCall(CommandPoolManagement, func() error {
		vk.DestroyCommandPool(b.device, pool, nil)
		return nil
	})
	b.commandBuffers.removeIf(func(cb commandBuffer) bool { return cb.pool == pool })
}

func (b *Backend) AllocateCommandBuffer(h metadata.CommandPool) (metadata.CommandBuffer, error) {
	pool, ok := b.commandPools.get(h)
	if !ok {
		return 0, fmt.Errorf("allocate from unknown command pool %d", h)
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}

	buffers := make([]vk.CommandBuffer, 1)
	if err := b.locks.SafeCall(CommandPoolManagement, func() error {
		return vkCheck(vk.AllocateCommandBuffers(b.device, &allocateInfo, buffers), "vkAllocateCommandBuffers")
	}); err != nil {
		return 0, err
	}
	return b.commandBuffers.add(commandBuffer{handle: buffers[0], pool: pool}), nil
}

func (b *Backend) FreeCommandBuffer(p metadata.CommandPool, h metadata.CommandBuffer) {
	pool, ok := b.commandPools.get(p)
	if !ok {
		return
	}
	cb, ok := b.commandBuffers.remove(h)
	if !ok {
		return
	}
	_ = b.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(b.device, pool, 1, []vk.CommandBuffer{cb.handle})
		return nil
	})
}

func (b *Backend) BeginCommandBuffer(h metadata.CommandBuffer, oneTimeSubmit bool) error {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok {
		return fmt.Errorf("begin of unknown command buffer %d", h)
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}
	if oneTimeSubmit {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return vkCheck(vk.BeginCommandBuffer(commandBuffer, &beginInfo), "vkBeginCommandBuffer")
}

func (b *Backend) EndCommandBuffer(h metadata.CommandBuffer) error {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok {
		return fmt.Errorf("end of unknown command buffer %d", h)
	}
	return vkCheck(vk.EndCommandBuffer(commandBuffer), "vkEndCommandBuffer")
}

func (b *Backend) Submit(info metadata.SubmitInfo) error {
	commandBuffer, ok := b.commandBuffer(info.CommandBuffer)
	if !ok {
		return fmt.Errorf("submit of unknown command buffer %d", info.CommandBuffer)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer},
	}
	if semaphore, ok := b.semaphores.get(info.Wait); ok {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{semaphore}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(info.WaitStage)}
	}
	if semaphore, ok := b.semaphores.get(info.Signal); ok {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{semaphore}
	}
	fence := vk.NullFence
	if f, ok := b.fences.get(info.Fence); ok {
		fence = f
	}

	return b.locks.SafeCall(QueueManagement, func() error {
		return vkCheck(vk.QueueSubmit(b.queue, 1, []vk.SubmitInfo{submitInfo}, fence), "vkQueueSubmit")
	})
}

func (b *Backend) QueueWaitIdle() error {
	return b.locks.SafeCall(QueueManagement, func() error {
		return vkCheck(vk.QueueWaitIdle(b.queue), "vkQueueWaitIdle")
	})
}

func (b *Backend) commandBuffer(h metadata.CommandBuffer) (vk.CommandBuffer, bool) {
	cb, ok := b.commandBuffers.get(h)
	return cb.handle, ok
}

func (b *Backend) CmdCopyBuffer(h metadata.CommandBuffer, region metadata.BufferCopy) {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok {
		return
	}
	src, _ := b.buffers.get(region.Src)
	dst, _ := b.buffers.get(region.Dst)
	vk.CmdCopyBuffer(commandBuffer, src, dst, 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(region.Size),
	}})
}

func (b *Backend) CmdCopyBufferToImage(h metadata.CommandBuffer, region metadata.BufferImageCopy) {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok {
		return
	}
	src, _ := b.buffers.get(region.Src)
	dst, _ := b.images.get(region.Dst)
	vk.CmdCopyBufferToImage(commandBuffer, src, dst, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{Width: region.Extent.Width, Height: region.Extent.Height, Depth: 1},
	}})
}

// barrierMasks returns the access and stage masks for a supported layout
// transition. ok is false for pairs the renderer never issues.
func barrierMasks(oldLayout, newLayout metadata.ImageLayout) (srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags, ok bool) {
	switch {
	case oldLayout == metadata.ImageLayoutUndefined && newLayout == metadata.ImageLayoutTransferDstOptimal:
		// Don't care about the old layout, transition to optimal for the copy.
		return 0, vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit), true
	case oldLayout == metadata.ImageLayoutTransferDstOptimal && newLayout == metadata.ImageLayoutShaderReadOnlyOptimal:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), true
	case oldLayout == metadata.ImageLayoutTransferDstOptimal && newLayout == metadata.ImageLayoutTransferSrcOptimal:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessTransferReadBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit), true
	case oldLayout == metadata.ImageLayoutTransferSrcOptimal && newLayout == metadata.ImageLayoutShaderReadOnlyOptimal:
		return vk.AccessFlags(vk.AccessTransferReadBit), vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), true
	case oldLayout == metadata.ImageLayoutUndefined && newLayout == metadata.ImageLayoutDepthStencilAttachmentOptimal:
		return 0, vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit), true
	case oldLayout == metadata.ImageLayoutUndefined && newLayout == metadata.ImageLayoutColorAttachmentOptimal:
		return 0, vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), true
	default:
		return 0, 0, 0, 0, false
	}
}

func (b *Backend) CmdImageBarrier(h metadata.CommandBuffer, barrier metadata.ImageBarrier) {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok {
		return
	}
	image, ok := b.images.get(barrier.Image)
	if !ok {
		core.LogError("layout transition of unknown image %d", barrier.Image)
		return
	}
	srcAccess, dstAccess, srcStage, dstStage, ok := barrierMasks(barrier.OldLayout, barrier.NewLayout)
	if !ok {
		core.LogError("unsupported layout transition %d -> %d", barrier.OldLayout, barrier.NewLayout)
		return
	}

	imageBarrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vk.ImageLayout(barrier.OldLayout),
		NewLayout:           vk.ImageLayout(barrier.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(barrier.Aspect),
			BaseMipLevel:   barrier.BaseMip,
			LevelCount:     max(barrier.MipCount, 1),
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
	}
	vk.CmdPipelineBarrier(commandBuffer, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{imageBarrier})
}

func (b *Backend) CmdBlitImage(h metadata.CommandBuffer, blit metadata.ImageBlit) {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok {
		return
	}
	image, ok := b.images.get(blit.Image)
	if !ok {
		return
	}
	region := vk.ImageBlit{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       blit.SrcMip,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(blit.SrcExtent.Width), Y: int32(blit.SrcExtent.Height), Z: 1},
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       blit.DstMip,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		DstOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(blit.DstExtent.Width), Y: int32(blit.DstExtent.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(commandBuffer,
		image, vk.ImageLayoutTransferSrcOptimal,
		image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterLinear)
}

func (b *Backend) CmdSetViewportScissor(h metadata.CommandBuffer, extent metadata.Extent2D) {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok {
		return
	}
	vk.CmdSetViewport(commandBuffer, 0, 1, []vk.Viewport{{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}})
	vk.CmdSetScissor(commandBuffer, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}})
}

func (b *Backend) CmdBindVertexBuffer(h metadata.CommandBuffer, vertices metadata.Buffer) {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok {
		return
	}
	if buffer, ok := b.buffers.get(vertices); ok {
		vk.CmdBindVertexBuffers(commandBuffer, 0, 1, []vk.Buffer{buffer}, []vk.DeviceSize{0})
	}
}

func (b *Backend) CmdBindIndexBuffer(h metadata.CommandBuffer, indices metadata.Buffer, indexType metadata.IndexType) {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok {
		return
	}
	if buffer, ok := b.buffers.get(indices); ok {
		vk.CmdBindIndexBuffer(commandBuffer, buffer, 0, vk.IndexType(indexType))
	}
}

func (b *Backend) CmdBindDescriptorSets(h metadata.CommandBuffer, l metadata.PipelineLayout, firstSet uint32, sets []metadata.DescriptorSet) {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok || len(sets) == 0 {
		return
	}
	layout, ok := b.pipelineLayouts.get(l)
	if !ok {
		return
	}
	handles := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		set, ok := b.descriptorSets.get(s)
		if !ok {
			core.LogError("binding unknown descriptor set %d", s)
			return
		}
		handles = append(handles, set.handle)
	}
	vk.CmdBindDescriptorSets(commandBuffer, vk.PipelineBindPointGraphics, layout, firstSet, uint32(len(handles)), handles, 0, nil)
}

func (b *Backend) CmdPushConstants(h metadata.CommandBuffer, l metadata.PipelineLayout, stages metadata.ShaderStageFlags, offset uint32, data []byte) {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok || len(data) == 0 {
		return
	}
	layout, ok := b.pipelineLayouts.get(l)
	if !ok {
		return
	}
	vk.CmdPushConstants(commandBuffer, layout, vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (b *Backend) CmdDrawIndexed(h metadata.CommandBuffer, draw metadata.DrawIndexed) {
	commandBuffer, ok := b.commandBuffer(h)
	if !ok {
		return
	}
	vk.CmdDrawIndexed(commandBuffer, draw.IndexCount, max(draw.InstanceCount, 1), draw.FirstIndex, draw.VertexOffset, draw.FirstInstance)
}
