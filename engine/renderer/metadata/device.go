package metadata

import "unsafe"

// SurfaceSource is the window the presentation chain targets. *glfw.Window
// satisfies it.
type SurfaceSource interface {
	GetFramebufferSize() (width, height int)
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (surface uintptr, err error)
}

type QueueFamily struct {
	Index      uint32
	QueueCount uint32
	Graphics   bool
	Compute    bool
	Transfer   bool
	// Present reports support for presenting to the renderer's surface.
	Present bool
}

type AdapterFeatures struct {
	SamplerAnisotropy bool
	SampleRateShading bool
}

type AdapterLimits struct {
	MaxPushConstantsSize         uint32
	MaxSamplerAnisotropy         float32
	FramebufferColorSampleCounts SampleCount
	FramebufferDepthSampleCounts SampleCount
}

type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     uint32
}

type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

// AdapterInfo describes one physical device, in enumeration order.
type AdapterInfo struct {
	Index         int
	Name          string
	Type          AdapterType
	DriverVersion uint32
	APIVersion    uint32
	QueueFamilies []QueueFamily
	Features      AdapterFeatures
	Limits        AdapterLimits
	MemoryTypes   []MemoryType
	MemoryHeaps   []MemoryHeap
}

type DeviceConfig struct {
	Adapter     int
	QueueFamily uint32
	Features    AdapterFeatures
}

type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of 0 means no upper bound.
	MaxImageCount uint32
	// CurrentExtent is {0xFFFFFFFF, 0xFFFFFFFF} when the surface size follows the swapchain.
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

type SwapchainConfig struct {
	ImageCount  uint32
	Format      SurfaceFormat
	Extent      Extent2D
	PresentMode PresentMode
	Usage       ImageUsageFlags
}
