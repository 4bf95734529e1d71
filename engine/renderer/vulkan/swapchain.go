package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func (b *Backend) surfaceCapabilities() (vk.SurfaceCapabilities, error) {
	var capabilities vk.SurfaceCapabilities
	if err := vkCheck(vk.GetPhysicalDeviceSurfaceCapabilities(b.physicalDevice, b.surface, &capabilities), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return capabilities, err
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()
	return capabilities, nil
}

func (b *Backend) SurfaceSupport() (metadata.SurfaceSupport, error) {
	support := metadata.SurfaceSupport{}

	capabilities, err := b.surfaceCapabilities()
	if err != nil {
		return support, err
	}
	support.Capabilities = metadata.SurfaceCapabilities{
		MinImageCount:  capabilities.MinImageCount,
		MaxImageCount:  capabilities.MaxImageCount,
		CurrentExtent:  toExtent(capabilities.CurrentExtent),
		MinImageExtent: toExtent(capabilities.MinImageExtent),
		MaxImageExtent: toExtent(capabilities.MaxImageExtent),
	}

	var formatCount uint32
	if err := vkCheck(vk.GetPhysicalDeviceSurfaceFormats(b.physicalDevice, b.surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return support, err
	}
	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		if err := vkCheck(vk.GetPhysicalDeviceSurfaceFormats(b.physicalDevice, b.surface, &formatCount, formats), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
			return support, err
		}
		for i := range formats {
			formats[i].Deref()
			support.Formats = append(support.Formats, metadata.SurfaceFormat{
				Format:     metadata.Format(formats[i].Format),
				ColorSpace: metadata.ColorSpace(formats[i].ColorSpace),
			})
		}
	}

	var presentModeCount uint32
	if err := vkCheck(vk.GetPhysicalDeviceSurfacePresentModes(b.physicalDevice, b.surface, &presentModeCount, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return support, err
	}
	if presentModeCount != 0 {
		modes := make([]vk.PresentMode, presentModeCount)
		if err := vkCheck(vk.GetPhysicalDeviceSurfacePresentModes(b.physicalDevice, b.surface, &presentModeCount, modes), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
			return support, err
		}
		for _, mode := range modes {
			support.PresentModes = append(support.PresentModes, metadata.PresentMode(mode))
		}
	}
	return support, nil
}

func (b *Backend) CreateSwapchain(config metadata.SwapchainConfig) (metadata.Swapchain, []metadata.Image, error) {
	capabilities, err := b.surfaceCapabilities()
	if err != nil {
		return 0, nil, err
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          b.surface,
		MinImageCount:    config.ImageCount,
		ImageFormat:      vk.Format(config.Format.Format),
		ImageColorSpace:  vk.ColorSpace(config.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: config.Extent.Width, Height: config.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(config.Usage),
		// The device uses a single queue for graphics and present.
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(config.PresentMode),
		Clipped:          vk.True,
	}

	var handle vk.Swapchain
	if err := vkCheck(vk.CreateSwapchain(b.device, &swapchainCreateInfo, nil, &handle), "vkCreateSwapchain"); err != nil {
		return 0, nil, err
	}

	var imageCount uint32
	if err := vkCheck(vk.GetSwapchainImages(b.device, handle, &imageCount, nil), "vkGetSwapchainImages"); err != nil {
		vk.DestroySwapchain(b.device, handle, nil)
		return 0, nil, err
	}
	vkImages := make([]vk.Image, imageCount)
	if err := vkCheck(vk.GetSwapchainImages(b.device, handle, &imageCount, vkImages), "vkGetSwapchainImages"); err != nil {
		vk.DestroySwapchain(b.device, handle, nil)
		return 0, nil, err
	}

	sc := &swapchain{handle: handle}
	for _, img := range vkImages {
		sc.images = append(sc.images, b.images.add(img))
	}
	core.LogInfo("Swapchain created successfully (%d images, %dx%d).", imageCount, config.Extent.Width, config.Extent.Height)
	return b.swapchains.add(sc), append([]metadata.Image(nil), sc.images...), nil
}

func (b *Backend) DestroySwapchain(h metadata.Swapchain) {
	sc, ok := b.swapchains.remove(h)
	if !ok {
		return
	}
	// The images are owned by the swapchain and are destroyed with it.
	for _, img := range sc.images {
		b.images.remove(img)
	}
	vk.DestroySwapchain(b.device, sc.handle, nil)
}

func (b *Backend) AcquireNextImage(h metadata.Swapchain, signal metadata.Semaphore) (uint32, error) {
	sc, ok := b.swapchains.get(h)
	if !ok {
		return 0, core.ErrSwapchainOutOfDate
	}
	semaphore, _ := b.semaphores.get(signal)

	var imageIndex uint32
	res := vk.AcquireNextImage(b.device, sc.handle, vk.MaxUint64, semaphore, vk.NullFence, &imageIndex)
	switch res {
	case vk.Success, vk.Suboptimal:
		// A suboptimal acquire still signals the semaphore, the next present reports it.
		return imageIndex, nil
	case vk.ErrorOutOfDate:
		return 0, core.ErrSwapchainOutOfDate
	default:
		return 0, vkCheck(res, "vkAcquireNextImage")
	}
}

func (b *Backend) Present(h metadata.Swapchain, imageIndex uint32, wait metadata.Semaphore) error {
	sc, ok := b.swapchains.get(h)
	if !ok {
		return core.ErrSwapchainOutOfDate
	}
	semaphore, _ := b.semaphores.get(wait)

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{semaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{imageIndex},
	}

	return b.locks.SafeCall(QueueManagement, func() error {
		res := vk.QueuePresent(b.queue, &presentInfo)
		switch res {
		case vk.Success:
			return nil
		case vk.Suboptimal, vk.ErrorOutOfDate:
			return core.ErrSwapchainOutOfDate
		default:
			return vkCheck(res, "vkQueuePresent")
		}
	})
}

func toExtent(e vk.Extent2D) metadata.Extent2D {
	return metadata.Extent2D{Width: e.Width, Height: e.Height}
}
