package headless

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	kindCommandPool   = "command pool"
	kindCommandBuffer = "command buffer"
)

type cbState int

const (
	stateInitial cbState = iota
	stateRecording
	stateExecutable
)

func (s cbState) String() string {
	switch s {
	case stateRecording:
		return "recording"
	case stateExecutable:
		return "executable"
	default:
		return "initial"
	}
}

type commandBuffer struct {
	pool    metadata.CommandPool
	state   cbState
	pending uint64

	ops           []func()
	presentWrites []metadata.Image
	draws         int

	inRenderPass bool
	pipeline     metadata.Pipeline
	vertices     metadata.Buffer
	indices      metadata.Buffer
}

func (b *Backend) CreateCommandPool(queueFamily uint32) (metadata.CommandPool, error) {
	if !b.device {
		return 0, core.ErrNotInitialized
	}
	if int(queueFamily) >= len(b.adapter.QueueFamilies) {
		return 0, fmt.Errorf("queue family %d: %w", queueFamily, core.ErrNoGraphicsQueue)
	}
	h := metadata.CommandPool(b.newHandle(kindCommandPool))
	b.pools[h] = nil
	return h, nil
}

// DestroyCommandPool frees the command buffers still allocated from the pool.
func (b *Backend) DestroyCommandPool(h metadata.CommandPool) {
	for _, cb := range append([]metadata.CommandBuffer(nil), b.pools[h]...) {
		b.FreeCommandBuffer(h, cb)
	}
	if b.destroy(uint64(h), kindCommandPool) {
		delete(b.pools, h)
	}
}

func (b *Backend) AllocateCommandBuffer(pool metadata.CommandPool) (metadata.CommandBuffer, error) {
	if !b.isLive(uint64(pool), kindCommandPool) {
		return 0, fmt.Errorf("allocate from unknown command pool %d", pool)
	}
	h := metadata.CommandBuffer(b.newHandle(kindCommandBuffer))
	b.commands[h] = &commandBuffer{pool: pool}
	b.pools[pool] = append(b.pools[pool], h)
	return h, nil
}

func (b *Backend) FreeCommandBuffer(pool metadata.CommandPool, h metadata.CommandBuffer) {
	cb, ok := b.commands[h]
	if !ok {
		b.violate("free of unknown command buffer %d", h)
		return
	}
	if cb.pool != pool {
		b.violate("command buffer %d freed to pool %d, allocated from %d", h, pool, cb.pool)
	}
	if cb.pending > b.completed {
		b.violate("command buffer %d freed while pending", h)
	}
	list := b.pools[cb.pool]
	for i, c := range list {
		if c == h {
			b.pools[cb.pool] = append(list[:i], list[i+1:]...)
			break
		}
	}
	delete(b.commands, h)
	b.destroy(uint64(h), kindCommandBuffer)
}

func (b *Backend) BeginCommandBuffer(h metadata.CommandBuffer, oneTimeSubmit bool) error {
	cb, ok := b.commands[h]
	if !ok {
		return fmt.Errorf("begin of unknown command buffer %d", h)
	}
	if cb.pending > b.completed {
		b.violate("command buffer %d re-recorded while its submission is pending", h)
	}
	*cb = commandBuffer{pool: cb.pool, pending: cb.pending, state: stateRecording}
	return nil
}

func (b *Backend) EndCommandBuffer(h metadata.CommandBuffer) error {
	cb, ok := b.commands[h]
	if !ok {
		return fmt.Errorf("end of unknown command buffer %d", h)
	}
	if cb.state != stateRecording {
		return fmt.Errorf("end of command buffer %d in state %s", h, cb.state)
	}
	if cb.inRenderPass {
		b.violate("command buffer %d ended inside a render pass", h)
	}
	cb.state = stateExecutable
	return nil
}

// recording returns the command buffer if it accepts commands.
func (b *Backend) recording(h metadata.CommandBuffer, command string) *commandBuffer {
	cb, ok := b.commands[h]
	if !ok || cb.state != stateRecording {
		b.violate("%s recorded into command buffer %d that is not recording", command, h)
		return nil
	}
	return cb
}

func (b *Backend) CmdCopyBuffer(h metadata.CommandBuffer, region metadata.BufferCopy) {
	cb := b.recording(h, "copy buffer")
	if cb == nil {
		return
	}
	cb.ops = append(cb.ops, func() {
		src, dst := b.buffers[region.Src], b.buffers[region.Dst]
		if src == nil || dst == nil {
			b.violate("copy between unknown buffers %d and %d", region.Src, region.Dst)
			return
		}
		if src.config.Usage&metadata.BufferUsageTransferSrc == 0 || dst.config.Usage&metadata.BufferUsageTransferDst == 0 {
			b.violate("copy from buffer %d to %d without transfer usage", region.Src, region.Dst)
		}
		if region.Size > src.config.Size || region.Size > dst.config.Size {
			b.violate("copy of %d bytes overflows buffer %d or %d", region.Size, region.Src, region.Dst)
			return
		}
		copy(b.memories[dst.memory].data[:region.Size], b.memories[src.memory].data[:region.Size])
		b.stats.BufferCopies++
	})
}

func (b *Backend) CmdCopyBufferToImage(h metadata.CommandBuffer, region metadata.BufferImageCopy) {
	cb := b.recording(h, "copy buffer to image")
	if cb == nil {
		return
	}
	cb.ops = append(cb.ops, func() {
		src, dst := b.buffers[region.Src], b.images[region.Dst]
		if src == nil || dst == nil {
			b.violate("copy from unknown buffer %d to image %d", region.Src, region.Dst)
			return
		}
		if dst.layouts[0] != metadata.ImageLayoutTransferDstOptimal {
			b.violate("copy into image %d in layout %d", region.Dst, dst.layouts[0])
		}
		n := uint64(region.Extent.Width) * uint64(region.Extent.Height) * 4
		if n > src.config.Size {
			b.violate("copy of %d texels overflows buffer %d", n/4, region.Src)
			return
		}
		dst.pixels = append([]byte(nil), b.memories[src.memory].data[:n]...)
		b.stats.ImageCopies++
	})
}

func (b *Backend) CmdImageBarrier(h metadata.CommandBuffer, barrier metadata.ImageBarrier) {
	cb := b.recording(h, "image barrier")
	if cb == nil {
		return
	}
	cb.ops = append(cb.ops, func() {
		img := b.images[barrier.Image]
		if img == nil {
			b.violate("barrier on unknown image %d", barrier.Image)
			return
		}
		end := barrier.BaseMip + barrier.MipCount
		if end > uint32(len(img.layouts)) || barrier.MipCount == 0 {
			b.violate("barrier on mips %d..%d of image %d with %d mips", barrier.BaseMip, end, barrier.Image, len(img.layouts))
			return
		}
		for mip := barrier.BaseMip; mip < end; mip++ {
			if barrier.OldLayout != metadata.ImageLayoutUndefined && img.layouts[mip] != barrier.OldLayout {
				b.violate("image %d mip %d is in layout %d, barrier expects %d", barrier.Image, mip, img.layouts[mip], barrier.OldLayout)
			}
			img.layouts[mip] = barrier.NewLayout
		}
	})
}

func (b *Backend) CmdBlitImage(h metadata.CommandBuffer, blit metadata.ImageBlit) {
	cb := b.recording(h, "blit")
	if cb == nil {
		return
	}
	cb.ops = append(cb.ops, func() {
		img := b.images[blit.Image]
		if img == nil {
			b.violate("blit of unknown image %d", blit.Image)
			return
		}
		if int(blit.DstMip) >= len(img.layouts) {
			b.violate("blit into mip %d of image %d with %d mips", blit.DstMip, blit.Image, len(img.layouts))
			return
		}
		if img.layouts[blit.SrcMip] != metadata.ImageLayoutTransferSrcOptimal {
			b.violate("blit source mip %d of image %d in layout %d", blit.SrcMip, blit.Image, img.layouts[blit.SrcMip])
		}
		if img.layouts[blit.DstMip] != metadata.ImageLayoutTransferDstOptimal {
			b.violate("blit destination mip %d of image %d in layout %d", blit.DstMip, blit.Image, img.layouts[blit.DstMip])
		}
		b.stats.Blits++
	})
}

func (b *Backend) CmdBeginRenderPass(h metadata.CommandBuffer, begin metadata.RenderPassBegin) {
	cb := b.recording(h, "begin render pass")
	if cb == nil {
		return
	}
	if cb.inRenderPass {
		b.violate("render pass begun inside a render pass")
	}
	cb.inRenderPass = true
	if !b.isLive(uint64(begin.RenderPass), kindRenderPass) {
		b.violate("begin of unknown render pass %d", begin.RenderPass)
	}
	fb, ok := b.framebuffers[begin.Framebuffer]
	if !ok {
		b.violate("begin with unknown framebuffer %d", begin.Framebuffer)
		return
	}
	if fb.Extent != begin.Extent {
		b.violate("render area %v does not match framebuffer %v", begin.Extent, fb.Extent)
	}
	for _, v := range fb.Attachments {
		view, ok := b.views[v]
		if !ok {
			b.violate("framebuffer %d uses destroyed view %d", begin.Framebuffer, v)
			continue
		}
		if img := b.images[view.Image]; img != nil && img.swapchain != 0 {
			cb.presentWrites = append(cb.presentWrites, view.Image)
		}
	}
}

func (b *Backend) CmdEndRenderPass(h metadata.CommandBuffer) {
	cb := b.recording(h, "end render pass")
	if cb == nil {
		return
	}
	if !cb.inRenderPass {
		b.violate("render pass ended outside a render pass")
	}
	cb.inRenderPass = false
}

func (b *Backend) CmdSetViewportScissor(h metadata.CommandBuffer, extent metadata.Extent2D) {
	if cb := b.recording(h, "set viewport"); cb != nil && extent.IsZero() {
		b.violate("viewport without area")
	}
}

func (b *Backend) CmdBindPipeline(h metadata.CommandBuffer, pipeline metadata.Pipeline) {
	cb := b.recording(h, "bind pipeline")
	if cb == nil {
		return
	}
	if !b.isLive(uint64(pipeline), kindPipeline) {
		b.violate("bind of unknown pipeline %d", pipeline)
	}
	cb.pipeline = pipeline
}

func (b *Backend) CmdBindVertexBuffer(h metadata.CommandBuffer, vertices metadata.Buffer) {
	cb := b.recording(h, "bind vertex buffer")
	if cb == nil {
		return
	}
	if buf := b.buffers[vertices]; buf == nil || buf.config.Usage&metadata.BufferUsageVertexBuffer == 0 {
		b.violate("bind of buffer %d as vertex buffer", vertices)
	}
	cb.vertices = vertices
}

func (b *Backend) CmdBindIndexBuffer(h metadata.CommandBuffer, indices metadata.Buffer, indexType metadata.IndexType) {
	cb := b.recording(h, "bind index buffer")
	if cb == nil {
		return
	}
	if buf := b.buffers[indices]; buf == nil || buf.config.Usage&metadata.BufferUsageIndexBuffer == 0 {
		b.violate("bind of buffer %d as index buffer", indices)
	}
	cb.indices = indices
}

func (b *Backend) CmdBindDescriptorSets(h metadata.CommandBuffer, layout metadata.PipelineLayout, firstSet uint32, sets []metadata.DescriptorSet) {
	if cb := b.recording(h, "bind descriptor sets"); cb == nil {
		return
	}
	if !b.isLive(uint64(layout), kindPipelineLayout) {
		b.violate("descriptor sets bound with unknown pipeline layout %d", layout)
	}
	for _, s := range sets {
		if !b.isLive(uint64(s), kindDescriptorSet) {
			b.violate("bind of unknown descriptor set %d", s)
		}
	}
}

func (b *Backend) CmdPushConstants(h metadata.CommandBuffer, layout metadata.PipelineLayout, stages metadata.ShaderStageFlags, offset uint32, data []byte) {
	if cb := b.recording(h, "push constants"); cb == nil {
		return
	}
	if offset+uint32(len(data)) > b.adapter.Limits.MaxPushConstantsSize {
		b.violate("push constants of %d bytes at %d exceed the device limit", len(data), offset)
	}
	if stages == 0 {
		b.violate("push constants without stages")
	}
}

func (b *Backend) CmdDrawIndexed(h metadata.CommandBuffer, draw metadata.DrawIndexed) {
	cb := b.recording(h, "draw")
	if cb == nil {
		return
	}
	if !cb.inRenderPass || cb.pipeline == 0 || cb.vertices == 0 || cb.indices == 0 {
		b.violate("draw without render pass, pipeline or geometry bound")
	}
	if draw.IndexCount == 0 || draw.InstanceCount == 0 {
		b.violate("empty draw")
	}
	cb.draws++
}
