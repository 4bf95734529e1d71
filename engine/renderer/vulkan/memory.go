package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

func (b *Backend) CreateBuffer(config metadata.BufferConfig) (metadata.Buffer, metadata.MemoryRequirements, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(config.Size),
		Usage:       vk.BufferUsageFlags(config.Usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if err := vkCheck(vk.CreateBuffer(b.device, &bufferInfo, nil, &buffer), "vkCreateBuffer"); err != nil {
		return 0, metadata.MemoryRequirements{}, err
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device, buffer, &memRequirements)
	memRequirements.Deref()

	return b.buffers.add(buffer), toRequirements(memRequirements), nil
}

func (b *Backend) DestroyBuffer(h metadata.Buffer) {
	if buffer, ok := b.buffers.remove(h); ok {
		vk.DestroyBuffer(b.device, buffer, nil)
	}
}

func (b *Backend) CreateImage(config metadata.ImageConfig) (metadata.Image, metadata.MemoryRequirements, error) {
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  config.Width,
			Height: config.Height,
			Depth:  1,
		},
		MipLevels:     max(config.MipLevels, 1),
		ArrayLayers:   1,
		Format:        vk.Format(config.Format),
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(config.Usage),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCountFlagBits(max(config.Samples, metadata.SampleCount1)),
	}

	var image vk.Image
	if err := vkCheck(vk.CreateImage(b.device, &imageInfo, nil, &image), "vkCreateImage"); err != nil {
		return 0, metadata.MemoryRequirements{}, err
	}

	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.device, image, &memRequirements)
	memRequirements.Deref()

	return b.images.add(image), toRequirements(memRequirements), nil
}

func (b *Backend) DestroyImage(h metadata.Image) {
	ownedBySwapchain := b.swapchains.contains(func(sc *swapchain) bool {
		return slices.Contains(sc.images, h)
	})
	if ownedBySwapchain {
		core.LogWarn("image %d belongs to a swapchain and is not destroyed", h)
		return
	}
	if image, ok := b.images.remove(h); ok {
		vk.DestroyImage(b.device, image, nil)
	}
}

func (b *Backend) AllocateMemory(size uint64, memoryTypeIndex uint32) (metadata.DeviceMemory, error) {
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryTypeIndex,
	}
	var memory vk.DeviceMemory
	if err := vkCheck(vk.AllocateMemory(b.device, &allocInfo, nil, &memory), "vkAllocateMemory"); err != nil {
		return 0, err
	}
	return b.memories.add(memory), nil
}

func (b *Backend) FreeMemory(h metadata.DeviceMemory) {
	if memory, ok := b.memories.remove(h); ok {
		vk.FreeMemory(b.device, memory, nil)
	}
}

func (b *Backend) BindBufferMemory(h metadata.Buffer, mem metadata.DeviceMemory) error {
	buffer, ok := b.buffers.get(h)
	if !ok {
		return fmt.Errorf("bind of unknown buffer %d", h)
	}
	memory, ok := b.memories.get(mem)
	if !ok {
		return fmt.Errorf("bind of unknown memory %d", mem)
	}
	return vkCheck(vk.BindBufferMemory(b.device, buffer, memory, 0), "vkBindBufferMemory")
}

func (b *Backend) BindImageMemory(h metadata.Image, mem metadata.DeviceMemory) error {
	image, ok := b.images.get(h)
	if !ok {
		return fmt.Errorf("bind of unknown image %d", h)
	}
	memory, ok := b.memories.get(mem)
	if !ok {
		return fmt.Errorf("bind of unknown memory %d", mem)
	}
	return vkCheck(vk.BindImageMemory(b.device, image, memory, 0), "vkBindImageMemory")
}

// mapped maps n bytes of host-visible memory at offset for the duration of fn.
func (b *Backend) mapped(mem metadata.DeviceMemory, offset uint64, n int, fn func(unsafe.Pointer)) error {
	if n == 0 {
		return nil
	}
	memory, ok := b.memories.get(mem)
	if !ok {
		return fmt.Errorf("map of unknown memory %d", mem)
	}
	var pData unsafe.Pointer
	if err := vkCheck(vk.MapMemory(b.device, memory, vk.DeviceSize(offset), vk.DeviceSize(n), 0, &pData), "vkMapMemory"); err != nil {
		return err
	}
	defer vk.UnmapMemory(b.device, memory)
	fn(pData)
	return nil
}

func (b *Backend) WriteMemory(mem metadata.DeviceMemory, offset uint64, data []byte) error {
	return b.mapped(mem, offset, len(data), func(pData unsafe.Pointer) {
		vk.Memcopy(pData, data)
	})
}

func (b *Backend) ReadMemory(mem metadata.DeviceMemory, offset uint64, out []byte) error {
	return b.mapped(mem, offset, len(out), func(pData unsafe.Pointer) {
		copy(out, unsafe.Slice((*byte)(pData), len(out)))
	})
}

func (b *Backend) CreateImageView(config metadata.ImageViewConfig) (metadata.ImageView, error) {
	image, ok := b.images.get(config.Image)
	if !ok {
		return 0, fmt.Errorf("view of unknown image %d", config.Image)
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(config.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(config.Aspect),
			BaseMipLevel:   0,
			LevelCount:     max(config.MipLevels, 1),
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if err := vkCheck(vk.CreateImageView(b.device, &viewInfo, nil, &view), "vkCreateImageView"); err != nil {
		return 0, err
	}
	return b.views.add(view), nil
}

func (b *Backend) DestroyImageView(h metadata.ImageView) {
	if view, ok := b.views.remove(h); ok {
		vk.DestroyImageView(b.device, view, nil)
	}
}

func (b *Backend) CreateSampler(config metadata.SamplerConfig) (metadata.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MipLodBias:              0,
		MinLod:                  0,
		MaxLod:                  config.MaxLod,
	}
	if config.MaxAnisotropy > 0 {
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = config.MaxAnisotropy
	}

	var sampler vk.Sampler
	if err := vkCheck(vk.CreateSampler(b.device, &samplerInfo, nil, &sampler), "vkCreateSampler"); err != nil {
		return 0, err
	}
	return b.samplers.add(sampler), nil
}

func (b *Backend) DestroySampler(h metadata.Sampler) {
	if sampler, ok := b.samplers.remove(h); ok {
		vk.DestroySampler(b.device, sampler, nil)
	}
}

func toRequirements(req vk.MemoryRequirements) metadata.MemoryRequirements {
	return metadata.MemoryRequirements{
		Size:      uint64(req.Size),
		Alignment: uint64(req.Alignment),
		TypeBits:  req.MemoryTypeBits,
	}
}
