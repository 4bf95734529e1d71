package metadata

type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

type BufferConfig struct {
	Size  uint64
	Usage BufferUsageFlags
}

type ImageConfig struct {
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    Format
	Samples   SampleCount
	Usage     ImageUsageFlags
}

type ImageViewConfig struct {
	Image     Image
	Format    Format
	Aspect    ImageAspectFlags
	MipLevels uint32
}

type SamplerConfig struct {
	MaxLod float32
	// MaxAnisotropy of 0 disables anisotropic filtering.
	MaxAnisotropy float32
}

type RenderPassConfig struct {
	ColorFormat Format
	DepthFormat Format
	// Samples above SampleCount1 add a single-sample resolve attachment.
	Samples SampleCount
}

type FramebufferConfig struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStageFlags
}

type PushConstantRange struct {
	Stages ShaderStageFlags
	Offset uint32
	Size   uint32
}

type PipelineLayoutConfig struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

type PipelineConfig struct {
	Layout        PipelineLayout
	RenderPass    RenderPass
	Vertex        ShaderModule
	Fragment      ShaderModule
	VertexStride  uint32
	Attributes    []VertexAttribute
	Samples       SampleCount
	SampleShading bool
	DepthTest     bool
	CullBackFaces bool
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolConfig struct {
	MaxSets uint32
	Sizes   []DescriptorPoolSize
}

// DescriptorWrite updates one binding with either a buffer or an image/sampler pair.
type DescriptorWrite struct {
	Set         DescriptorSet
	Binding     uint32
	Type        DescriptorType
	Buffer      Buffer
	BufferRange uint64
	ImageView   ImageView
	Sampler     Sampler
}
