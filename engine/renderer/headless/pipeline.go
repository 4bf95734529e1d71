package headless

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	kindRenderPass          = "render pass"
	kindFramebuffer         = "framebuffer"
	kindShaderModule        = "shader module"
	kindDescriptorSetLayout = "descriptor set layout"
	kindDescriptorPool      = "descriptor pool"
	kindDescriptorSet       = "descriptor set"
	kindPipelineLayout      = "pipeline layout"
	kindPipeline            = "pipeline"
)

const spirvMagic = 0x07230203

type descriptorPool struct {
	config metadata.DescriptorPoolConfig
	sets   []metadata.DescriptorSet
}

func (b *Backend) CreateRenderPass(config metadata.RenderPassConfig) (metadata.RenderPass, error) {
	if config.ColorFormat == metadata.FormatUndefined || config.DepthFormat == metadata.FormatUndefined {
		return 0, fmt.Errorf("render pass needs color and depth formats")
	}
	if b.FormatFeatures(config.DepthFormat)&metadata.FormatFeatureDepthStencilAttachment == 0 {
		return 0, fmt.Errorf("format %d is not a depth format: %w", config.DepthFormat, core.ErrFeatureNotSupported)
	}
	return metadata.RenderPass(b.newHandle(kindRenderPass)), nil
}

func (b *Backend) DestroyRenderPass(h metadata.RenderPass) {
	b.destroy(uint64(h), kindRenderPass)
}

func (b *Backend) CreateFramebuffer(config metadata.FramebufferConfig) (metadata.Framebuffer, error) {
	if !b.isLive(uint64(config.RenderPass), kindRenderPass) {
		return 0, fmt.Errorf("framebuffer for unknown render pass %d", config.RenderPass)
	}
	for _, v := range config.Attachments {
		if _, ok := b.views[v]; !ok {
			return 0, fmt.Errorf("framebuffer with unknown attachment %d", v)
		}
	}
	h := metadata.Framebuffer(b.newHandle(kindFramebuffer))
	b.framebuffers[h] = config
	return h, nil
}

func (b *Backend) DestroyFramebuffer(h metadata.Framebuffer) {
	if b.destroy(uint64(h), kindFramebuffer) {
		delete(b.framebuffers, h)
	}
}

func (b *Backend) CreateShaderModule(code []uint32) (metadata.ShaderModule, error) {
	if len(code) < 5 || code[0] != spirvMagic {
		return 0, fmt.Errorf("shader code is not SPIR-V")
	}
	return metadata.ShaderModule(b.newHandle(kindShaderModule)), nil
}

func (b *Backend) DestroyShaderModule(h metadata.ShaderModule) {
	b.destroy(uint64(h), kindShaderModule)
}

func (b *Backend) CreateDescriptorSetLayout(bindings []metadata.DescriptorBinding) (metadata.DescriptorSetLayout, error) {
	seen := make(map[uint32]bool)
	for _, bind := range bindings {
		if seen[bind.Binding] {
			return 0, fmt.Errorf("binding %d declared twice", bind.Binding)
		}
		seen[bind.Binding] = true
	}
	return metadata.DescriptorSetLayout(b.newHandle(kindDescriptorSetLayout)), nil
}

func (b *Backend) DestroyDescriptorSetLayout(h metadata.DescriptorSetLayout) {
	b.destroy(uint64(h), kindDescriptorSetLayout)
}

func (b *Backend) CreateDescriptorPool(config metadata.DescriptorPoolConfig) (metadata.DescriptorPool, error) {
	if config.MaxSets == 0 {
		return 0, fmt.Errorf("descriptor pool without sets")
	}
	h := metadata.DescriptorPool(b.newHandle(kindDescriptorPool))
	b.descPools[h] = &descriptorPool{config: config}
	return h, nil
}

// DestroyDescriptorPool frees every set allocated from the pool.
func (b *Backend) DestroyDescriptorPool(h metadata.DescriptorPool) {
	if p, ok := b.descPools[h]; ok {
		for _, s := range p.sets {
			b.destroy(uint64(s), kindDescriptorSet)
		}
	}
	if b.destroy(uint64(h), kindDescriptorPool) {
		delete(b.descPools, h)
	}
}

func (b *Backend) AllocateDescriptorSet(pool metadata.DescriptorPool, layout metadata.DescriptorSetLayout) (metadata.DescriptorSet, error) {
	p, ok := b.descPools[pool]
	if !ok {
		return 0, fmt.Errorf("allocate from unknown descriptor pool %d", pool)
	}
	if !b.isLive(uint64(layout), kindDescriptorSetLayout) {
		return 0, fmt.Errorf("allocate with unknown set layout %d", layout)
	}
	if uint32(len(p.sets)) >= p.config.MaxSets {
		return 0, fmt.Errorf("descriptor pool %d exhausted: %w", pool, core.ErrCapacityExceeded)
	}
	h := metadata.DescriptorSet(b.newHandle(kindDescriptorSet))
	p.sets = append(p.sets, h)
	return h, nil
}

func (b *Backend) UpdateDescriptorSets(writes []metadata.DescriptorWrite) {
	for _, w := range writes {
		if !b.isLive(uint64(w.Set), kindDescriptorSet) {
			b.violate("write to unknown descriptor set %d", w.Set)
			continue
		}
		switch w.Type {
		case metadata.DescriptorTypeStorageBuffer, metadata.DescriptorTypeUniformBuffer:
			if _, ok := b.buffers[w.Buffer]; !ok {
				b.violate("descriptor write with unknown buffer %d", w.Buffer)
			}
		case metadata.DescriptorTypeCombinedImageSampler:
			if _, ok := b.views[w.ImageView]; !ok || !b.isLive(uint64(w.Sampler), kindSampler) {
				b.violate("descriptor write with unknown view %d or sampler %d", w.ImageView, w.Sampler)
			}
		}
	}
}

func (b *Backend) CreatePipelineLayout(config metadata.PipelineLayoutConfig) (metadata.PipelineLayout, error) {
	for _, l := range config.SetLayouts {
		if !b.isLive(uint64(l), kindDescriptorSetLayout) {
			return 0, fmt.Errorf("pipeline layout with unknown set layout %d", l)
		}
	}
	for _, r := range config.PushConstants {
		if r.Offset+r.Size > b.adapter.Limits.MaxPushConstantsSize {
			return 0, fmt.Errorf("push constant range of %d bytes: %w", r.Size, core.ErrFeatureNotSupported)
		}
	}
	return metadata.PipelineLayout(b.newHandle(kindPipelineLayout)), nil
}

func (b *Backend) DestroyPipelineLayout(h metadata.PipelineLayout) {
	b.destroy(uint64(h), kindPipelineLayout)
}

func (b *Backend) CreateGraphicsPipeline(config metadata.PipelineConfig) (metadata.Pipeline, error) {
	switch {
	case !b.isLive(uint64(config.Layout), kindPipelineLayout):
		return 0, fmt.Errorf("pipeline with unknown layout %d", config.Layout)
	case !b.isLive(uint64(config.RenderPass), kindRenderPass):
		return 0, fmt.Errorf("pipeline with unknown render pass %d", config.RenderPass)
	case !b.isLive(uint64(config.Vertex), kindShaderModule), !b.isLive(uint64(config.Fragment), kindShaderModule):
		return 0, fmt.Errorf("pipeline with unknown shader modules")
	case config.VertexStride == 0 || len(config.Attributes) == 0:
		return 0, fmt.Errorf("pipeline without vertex input")
	}
	return metadata.Pipeline(b.newHandle(kindPipeline)), nil
}

func (b *Backend) DestroyPipeline(h metadata.Pipeline) {
	b.destroy(uint64(h), kindPipeline)
}
