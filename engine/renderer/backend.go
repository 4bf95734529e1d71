package renderer

import "github.com/spaghettifunk/lumen/engine/renderer/metadata"

// InstanceBackend owns the API instance and the window surface.
type InstanceBackend interface {
	CreateInstance(appName string) error
	DestroyInstance()
	CreateSurface(source metadata.SurfaceSource) error
	DestroySurface()
	// Adapters lists the physical devices in enumeration order. Present support
	// of every queue family is evaluated against the current surface.
	Adapters() ([]metadata.AdapterInfo, error)
}

type DeviceBackend interface {
	CreateDevice(config metadata.DeviceConfig) error
	DestroyDevice()
	WaitIdle() error
	// FormatFeatures returns the optimal-tiling features of format on the selected adapter.
	FormatFeatures(format metadata.Format) metadata.FormatFeatureFlags
}

type SurfaceBackend interface {
	SurfaceSupport() (metadata.SurfaceSupport, error)
	CreateSwapchain(config metadata.SwapchainConfig) (metadata.Swapchain, []metadata.Image, error)
	DestroySwapchain(swapchain metadata.Swapchain)
	// AcquireNextImage blocks until an image is available and signals semaphore.
	// core.ErrSwapchainOutOfDate is returned when the surface no longer matches.
	AcquireNextImage(swapchain metadata.Swapchain, signal metadata.Semaphore) (uint32, error)
	// Present queues imageIndex once wait is signaled. Out-of-date and
	// suboptimal surfaces both report core.ErrSwapchainOutOfDate.
	Present(swapchain metadata.Swapchain, imageIndex uint32, wait metadata.Semaphore) error
}

type SyncBackend interface {
	CreateSemaphore() (metadata.Semaphore, error)
	DestroySemaphore(semaphore metadata.Semaphore)
	CreateFence(signaled bool) (metadata.Fence, error)
	DestroyFence(fence metadata.Fence)
	// WaitFence blocks without timeout.
	WaitFence(fence metadata.Fence) error
	ResetFence(fence metadata.Fence) error
}

type MemoryBackend interface {
	CreateBuffer(config metadata.BufferConfig) (metadata.Buffer, metadata.MemoryRequirements, error)
	DestroyBuffer(buffer metadata.Buffer)
	CreateImage(config metadata.ImageConfig) (metadata.Image, metadata.MemoryRequirements, error)
	DestroyImage(image metadata.Image)
	AllocateMemory(size uint64, memoryTypeIndex uint32) (metadata.DeviceMemory, error)
	FreeMemory(memory metadata.DeviceMemory)
	BindBufferMemory(buffer metadata.Buffer, memory metadata.DeviceMemory) error
	BindImageMemory(image metadata.Image, memory metadata.DeviceMemory) error
	// WriteMemory and ReadMemory map host-visible memory for the duration of the copy.
	WriteMemory(memory metadata.DeviceMemory, offset uint64, data []byte) error
	ReadMemory(memory metadata.DeviceMemory, offset uint64, out []byte) error
	CreateImageView(config metadata.ImageViewConfig) (metadata.ImageView, error)
	DestroyImageView(view metadata.ImageView)
	CreateSampler(config metadata.SamplerConfig) (metadata.Sampler, error)
	DestroySampler(sampler metadata.Sampler)
}

type PipelineBackend interface {
	CreateRenderPass(config metadata.RenderPassConfig) (metadata.RenderPass, error)
	DestroyRenderPass(pass metadata.RenderPass)
	CreateFramebuffer(config metadata.FramebufferConfig) (metadata.Framebuffer, error)
	DestroyFramebuffer(framebuffer metadata.Framebuffer)
	CreateShaderModule(code []uint32) (metadata.ShaderModule, error)
	DestroyShaderModule(module metadata.ShaderModule)
	CreateDescriptorSetLayout(bindings []metadata.DescriptorBinding) (metadata.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout metadata.DescriptorSetLayout)
	CreateDescriptorPool(config metadata.DescriptorPoolConfig) (metadata.DescriptorPool, error)
	DestroyDescriptorPool(pool metadata.DescriptorPool)
	AllocateDescriptorSet(pool metadata.DescriptorPool, layout metadata.DescriptorSetLayout) (metadata.DescriptorSet, error)
	UpdateDescriptorSets(writes []metadata.DescriptorWrite)
	CreatePipelineLayout(config metadata.PipelineLayoutConfig) (metadata.PipelineLayout, error)
	DestroyPipelineLayout(layout metadata.PipelineLayout)
	CreateGraphicsPipeline(config metadata.PipelineConfig) (metadata.Pipeline, error)
	DestroyPipeline(pipeline metadata.Pipeline)
}

type CommandBackend interface {
	CreateCommandPool(queueFamily uint32) (metadata.CommandPool, error)
	DestroyCommandPool(pool metadata.CommandPool)
	AllocateCommandBuffer(pool metadata.CommandPool) (metadata.CommandBuffer, error)
	FreeCommandBuffer(pool metadata.CommandPool, buffer metadata.CommandBuffer)
	BeginCommandBuffer(buffer metadata.CommandBuffer, oneTimeSubmit bool) error
	EndCommandBuffer(buffer metadata.CommandBuffer) error
	Submit(info metadata.SubmitInfo) error
	QueueWaitIdle() error
	CommandRecorder
}

// CommandRecorder records into a command buffer between Begin and End.
type CommandRecorder interface {
	CmdCopyBuffer(buffer metadata.CommandBuffer, region metadata.BufferCopy)
	CmdCopyBufferToImage(buffer metadata.CommandBuffer, region metadata.BufferImageCopy)
	CmdImageBarrier(buffer metadata.CommandBuffer, barrier metadata.ImageBarrier)
	CmdBlitImage(buffer metadata.CommandBuffer, blit metadata.ImageBlit)
	CmdBeginRenderPass(buffer metadata.CommandBuffer, begin metadata.RenderPassBegin)
	CmdEndRenderPass(buffer metadata.CommandBuffer)
	CmdSetViewportScissor(buffer metadata.CommandBuffer, extent metadata.Extent2D)
	CmdBindPipeline(buffer metadata.CommandBuffer, pipeline metadata.Pipeline)
	CmdBindVertexBuffer(buffer metadata.CommandBuffer, vertices metadata.Buffer)
	CmdBindIndexBuffer(buffer metadata.CommandBuffer, indices metadata.Buffer, indexType metadata.IndexType)
	CmdBindDescriptorSets(buffer metadata.CommandBuffer, layout metadata.PipelineLayout, firstSet uint32, sets []metadata.DescriptorSet)
	CmdPushConstants(buffer metadata.CommandBuffer, layout metadata.PipelineLayout, stages metadata.ShaderStageFlags, offset uint32, data []byte)
	CmdDrawIndexed(buffer metadata.CommandBuffer, draw metadata.DrawIndexed)
}

// Backend is everything the renderer needs from a graphics API.
type Backend interface {
	Name() string
	InstanceBackend
	DeviceBackend
	SurfaceBackend
	SyncBackend
	MemoryBackend
	PipelineBackend
	CommandBackend
}
