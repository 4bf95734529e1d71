package renderer

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/registry"
)

// DeviceContext is the selected adapter plus the logical device created on it.
// The device itself lives inside the backend; DeviceContext keeps what the rest
// of the renderer needs to know about it.
type DeviceContext struct {
	Adapter     metadata.AdapterInfo
	QueueFamily uint32
	DepthFormat metadata.Format
	Samples     metadata.SampleCount
}

var requiredFeatures = metadata.AdapterFeatures{
	SamplerAnisotropy: true,
	SampleRateShading: true,
}

var depthCandidates = []metadata.Format{
	metadata.FormatD32Sfloat,
	metadata.FormatD32SfloatS8Uint,
	metadata.FormatD24UnormS8Uint,
}

// selectDevice returns the first discrete adapter, else the first one enumerated.
func selectDevice(candidates []metadata.AdapterInfo) (int, error) {
	if len(candidates) == 0 {
		return -1, core.ErrNoDevice
	}
	for i, c := range candidates {
		if c.Type == metadata.AdapterTypeDiscrete {
			return i, nil
		}
	}
	return 0, nil
}

// findQueueFamily returns the first family able to both draw and present.
func findQueueFamily(adapter metadata.AdapterInfo) (uint32, error) {
	for _, family := range adapter.QueueFamilies {
		if family.Graphics && family.Present {
			return family.Index, nil
		}
	}
	return 0, fmt.Errorf("adapter %s: %w", adapter.Name, core.ErrNoGraphicsQueue)
}

func checkFeatures(adapter metadata.AdapterInfo) error {
	if requiredFeatures.SamplerAnisotropy && !adapter.Features.SamplerAnisotropy {
		return fmt.Errorf("sampler anisotropy: %w", core.ErrFeatureNotSupported)
	}
	if requiredFeatures.SampleRateShading && !adapter.Features.SampleRateShading {
		return fmt.Errorf("sample rate shading: %w", core.ErrFeatureNotSupported)
	}
	if adapter.Limits.MaxPushConstantsSize < pushConstantSize {
		return fmt.Errorf("push constants need %d bytes, device offers %d: %w",
			pushConstantSize, adapter.Limits.MaxPushConstantsSize, core.ErrFeatureNotSupported)
	}
	return nil
}

// detectDepthFormat picks the first candidate usable as an optimal-tiling depth attachment.
func detectDepthFormat(be DeviceBackend) (metadata.Format, error) {
	for _, f := range depthCandidates {
		if be.FormatFeatures(f)&metadata.FormatFeatureDepthStencilAttachment != 0 {
			return f, nil
		}
	}
	return metadata.FormatUndefined, fmt.Errorf("no depth format: %w", core.ErrFeatureNotSupported)
}

// maxUsableSampleCount clamps requested to the counts both color and depth
// attachments support.
func maxUsableSampleCount(requested uint32, limits metadata.AdapterLimits) metadata.SampleCount {
	supported := limits.FramebufferColorSampleCounts & limits.FramebufferDepthSampleCounts
	for c := metadata.SampleCount64; c > metadata.SampleCount1; c >>= 1 {
		if uint32(c) <= requested && supported&c != 0 {
			return c
		}
	}
	return metadata.SampleCount1
}

func logAdapter(adapter metadata.AdapterInfo) {
	core.LogInfo("Selected device: '%s'.", adapter.Name)
	core.LogInfo("GPU type is %s.", adapter.Type)
	core.LogInfo("GPU Driver version: %d.%d.%d",
		adapter.DriverVersion>>22, (adapter.DriverVersion>>12)&0x3FF, adapter.DriverVersion&0xFFF)
	core.LogInfo("API version: %d.%d.%d",
		adapter.APIVersion>>22, (adapter.APIVersion>>12)&0x3FF, adapter.APIVersion&0xFFF)
	for _, heap := range adapter.MemoryHeaps {
		sizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if heap.DeviceLocal {
			core.LogInfo("Local GPU memory: %.2f GiB", sizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", sizeGib)
		}
	}
}

// createDeviceContext selects an adapter, creates the logical device and
// registers its destruction in reg.
func createDeviceContext(be Backend, cfg Config, reg *registry.Registry) (*DeviceContext, error) {
	adapters, err := be.Adapters()
	if err != nil {
		return nil, err
	}
	idx, err := selectDevice(adapters)
	if err != nil {
		return nil, err
	}
	adapter := adapters[idx]
	logAdapter(adapter)
	if adapter.Type != metadata.AdapterTypeDiscrete {
		core.LogWarn("no discrete GPU found, falling back to %s", adapter.Name)
	}

	family, err := findQueueFamily(adapter)
	if err != nil {
		return nil, err
	}
	if err := checkFeatures(adapter); err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")
	if err := be.CreateDevice(metadata.DeviceConfig{
		Adapter:     adapter.Index,
		QueueFamily: family,
		Features:    requiredFeatures,
	}); err != nil {
		return nil, err
	}
	reg.PushFunc(func() {
		core.LogInfo("Destroying logical device...")
		be.DestroyDevice()
	})
	core.LogInfo("Logical device created.")

	depth, err := detectDepthFormat(be)
	if err != nil {
		return nil, err
	}

	dc := &DeviceContext{
		Adapter:     adapter,
		QueueFamily: family,
		DepthFormat: depth,
		Samples:     maxUsableSampleCount(cfg.MSAASamples, adapter.Limits),
	}
	core.LogDebug("queue family %d, depth format %d, %d samples", family, depth, dc.Samples)
	return dc, nil
}

// findMemoryType returns the first memory type allowed by typeBits whose flags
// include props.
func (dc *DeviceContext) findMemoryType(typeBits uint32, props metadata.MemoryPropertyFlags) (uint32, error) {
	for i, t := range dc.Adapter.MemoryTypes {
		if typeBits&(1<<uint(i)) != 0 && t.PropertyFlags&props == props {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("type bits %#x, properties %#x: %w", typeBits, props, core.ErrNoMemoryType)
}

// supportsLinearBlit reports whether mip chains can be generated for format.
func supportsLinearBlit(be DeviceBackend, format metadata.Format) bool {
	return be.FormatFeatures(format)&metadata.FormatFeatureSampledImageFilterLinear != 0
}
