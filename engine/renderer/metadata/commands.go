package metadata

type SubmitInfo struct {
	CommandBuffer CommandBuffer
	Wait          Semaphore
	WaitStage     PipelineStageFlags
	Signal        Semaphore
	// Fence may be null.
	Fence Fence
}

type BufferCopy struct {
	Src  Buffer
	Dst  Buffer
	Size uint64
}

type BufferImageCopy struct {
	Src    Buffer
	Dst    Image
	Extent Extent2D
}

// ImageBarrier transitions a mip range of an image between two layouts.
type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	Aspect    ImageAspectFlags
	BaseMip   uint32
	MipCount  uint32
}

// ImageBlit copies one mip level of an image into another level of the same image.
type ImageBlit struct {
	Image     Image
	SrcMip    uint32
	SrcExtent Extent2D
	DstMip    uint32
	DstExtent Extent2D
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent2D
	ClearColor  [4]float32
	ClearDepth  float32
}

type DrawIndexed struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}
