package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// renderPassAttachments describes the attachments of the single forward pass.
// A multisampled pass renders into a transient color target and resolves into
// the swapchain image, so the framebuffer order is [color, depth, resolve].
// A single-sample pass renders straight into the swapchain image: [color, depth].
func renderPassAttachments(config metadata.RenderPassConfig) ([]vk.AttachmentDescription, vk.SubpassDescription) {
	samples := vk.SampleCountFlagBits(max(config.Samples, metadata.SampleCount1))
	multisampled := samples != vk.SampleCount1Bit

	colorAttachment := vk.AttachmentDescription{
		Format:         vk.Format(config.ColorFormat),
		Samples:        samples,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		// Do not expect any particular layout before render pass starts.
		InitialLayout: vk.ImageLayoutUndefined,
		FinalLayout:   vk.ImageLayoutPresentSrc,
	}
	if multisampled {
		colorAttachment.FinalLayout = vk.ImageLayoutColorAttachmentOptimal
	}

	depthAttachment := vk.AttachmentDescription{
		Format:         vk.Format(config.DepthFormat),
		Samples:        samples,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	attachments := []vk.AttachmentDescription{colorAttachment, depthAttachment}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	if multisampled {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.Format(config.ColorFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		})
		subpass.PResolveAttachments = []vk.AttachmentReference{{
			Attachment: 2,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}}
	}
	return attachments, subpass
}

func (b *Backend) CreateRenderPass(config metadata.RenderPassConfig) (metadata.RenderPass, error) {
	attachments, subpass := renderPassAttachments(config)

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pRenderPass vk.RenderPass
	if err := vkCheck(vk.CreateRenderPass(b.device, &renderpassCreateInfo, nil, &pRenderPass), "vkCreateRenderPass"); err != nil {
		return 0, err
	}
	core.LogDebug("Render pass created with %d attachments.", len(attachments))
	return b.renderPasses.add(pRenderPass), nil
}

func (b *Backend) DestroyRenderPass(h metadata.RenderPass) {
	if pass, ok := b.renderPasses.remove(h); ok {
		vk.DestroyRenderPass(b.device, pass, nil)
	}
}

func (b *Backend) CmdBeginRenderPass(cb metadata.CommandBuffer, begin metadata.RenderPassBegin) {
	commandBuffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	pass, _ := b.renderPasses.get(begin.RenderPass)
	framebuffer, _ := b.framebuffers.get(begin.Framebuffer)

	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor(begin.ClearColor[:])
	clearValues[1].SetDepthStencil(begin.ClearDepth, 0)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: begin.Extent.Width, Height: begin.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(commandBuffer, &beginInfo, vk.SubpassContentsInline)
}

func (b *Backend) CmdEndRenderPass(cb metadata.CommandBuffer) {
	if commandBuffer, ok := b.commandBuffer(cb); ok {
		vk.CmdEndRenderPass(commandBuffer)
	}
}

func (b *Backend) CreateFramebuffer(config metadata.FramebufferConfig) (metadata.Framebuffer, error) {
	pass, ok := b.renderPasses.get(config.RenderPass)
	if !ok {
		return 0, fmt.Errorf("framebuffer for unknown render pass %d", config.RenderPass)
	}
	attachments := make([]vk.ImageView, 0, len(config.Attachments))
	for _, h := range config.Attachments {
		view, ok := b.views.get(h)
		if !ok {
			return 0, fmt.Errorf("framebuffer attachment %d is not a live image view", h)
		}
		attachments = append(attachments, view)
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           config.Extent.Width,
		Height:          config.Extent.Height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	if err := vkCheck(vk.CreateFramebuffer(b.device, &framebufferCreateInfo, nil, &framebuffer), "vkCreateFramebuffer"); err != nil {
		return 0, err
	}
	return b.framebuffers.add(framebuffer), nil
}

func (b *Backend) DestroyFramebuffer(h metadata.Framebuffer) {
	if framebuffer, ok := b.framebuffers.remove(h); ok {
		vk.DestroyFramebuffer(b.device, framebuffer, nil)
	}
}
