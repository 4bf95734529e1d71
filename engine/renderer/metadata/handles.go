package metadata

// Opaque object handles issued by a renderer backend. The zero value of every
// handle type is the null handle.
type (
	Swapchain           uint64
	Image               uint64
	ImageView           uint64
	Sampler             uint64
	Buffer              uint64
	DeviceMemory        uint64
	Semaphore           uint64
	Fence               uint64
	CommandPool         uint64
	CommandBuffer       uint64
	RenderPass          uint64
	Framebuffer         uint64
	ShaderModule        uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	PipelineLayout      uint64
	Pipeline            uint64
)

// Handle constrains generic helpers to the handle types above.
type Handle interface {
	~uint64
}

const InvalidID uint32 = 4294967295
