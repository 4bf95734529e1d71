package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func (b *Backend) CreateSemaphore() (metadata.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := vkCheck(vk.CreateSemaphore(b.device, &semaphoreCreateInfo, nil, &semaphore), "vkCreateSemaphore"); err != nil {
		return 0, err
	}
	return b.semaphores.add(semaphore), nil
}

func (b *Backend) DestroySemaphore(h metadata.Semaphore) {
	if semaphore, ok := b.semaphores.remove(h); ok {
		vk.DestroySemaphore(b.device, semaphore, nil)
	}
}

func (b *Backend) CreateFence(signaled bool) (metadata.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	// Make sure to signal the fence if required.
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if err := vkCheck(vk.CreateFence(b.device, &fenceCreateInfo, nil, &fence), "vkCreateFence"); err != nil {
		return 0, err
	}
	return b.fences.add(fence), nil
}

func (b *Backend) DestroyFence(h metadata.Fence) {
	if fence, ok := b.fences.remove(h); ok {
		vk.DestroyFence(b.device, fence, nil)
	}
}

func (b *Backend) WaitFence(h metadata.Fence) error {
	fence, ok := b.fences.get(h)
	if !ok {
		return fmt.Errorf("wait on unknown fence %d", h)
	}
	result := vk.WaitForFences(b.device, 1, []vk.Fence{fence}, vk.True, vk.MaxUint64)
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	case vk.ErrorOutOfHostMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_HOST_MEMORY.")
	case vk.ErrorOutOfDeviceMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_DEVICE_MEMORY.")
	default:
		core.LogError("vk_fence_wait - An unknown error has occurred.")
	}
	return fmt.Errorf("failed to wait for fence: %s", VulkanResultString(result, false))
}

func (b *Backend) ResetFence(h metadata.Fence) error {
	fence, ok := b.fences.get(h)
	if !ok {
		return fmt.Errorf("reset of unknown fence %d", h)
	}
	return vkCheck(vk.ResetFences(b.device, 1, []vk.Fence{fence}), "vkResetFences")
}
