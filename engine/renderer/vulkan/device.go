package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const portabilitySubset = "VK_KHR_portability_subset"

// Adapters lists the physical devices in enumeration order. Present support is
// evaluated against the current surface.
func (b *Backend) Adapters() ([]metadata.AdapterInfo, error) {
	var count uint32
	if err := vkCheck(vk.EnumeratePhysicalDevices(b.instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, core.ErrNoDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := vkCheck(vk.EnumeratePhysicalDevices(b.instance, &count, devices), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	b.physicalDevices = devices

	adapters := make([]metadata.AdapterInfo, 0, count)
	for i, device := range devices {
		adapters = append(adapters, b.describeAdapter(i, device))
	}
	return adapters, nil
}

func (b *Backend) describeAdapter(index int, device vk.PhysicalDevice) metadata.AdapterInfo {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()
	properties.Limits.Deref()

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(device, &features)
	features.Deref()

	info := metadata.AdapterInfo{
		Index:         index,
		Name:          vk.ToString(properties.DeviceName[:]),
		Type:          metadata.AdapterType(properties.DeviceType),
		DriverVersion: properties.DriverVersion,
		APIVersion:    properties.ApiVersion,
		Features: metadata.AdapterFeatures{
			SamplerAnisotropy: features.SamplerAnisotropy == vk.True,
			SampleRateShading: features.SampleRateShading == vk.True,
		},
		Limits: metadata.AdapterLimits{
			MaxPushConstantsSize:         properties.Limits.MaxPushConstantsSize,
			MaxSamplerAnisotropy:         properties.Limits.MaxSamplerAnisotropy,
			FramebufferColorSampleCounts: metadata.SampleCount(properties.Limits.FramebufferColorSampleCounts),
			FramebufferDepthSampleCounts: metadata.SampleCount(properties.Limits.FramebufferDepthSampleCounts),
		},
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)
	for i := range families {
		families[i].Deref()
		flags := families[i].QueueFlags
		family := metadata.QueueFamily{
			Index:      uint32(i),
			QueueCount: families[i].QueueCount,
			Graphics:   flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			Compute:    flags&vk.QueueFlags(vk.QueueComputeBit) != 0,
			Transfer:   flags&vk.QueueFlags(vk.QueueTransferBit) != 0,
		}
		if b.surface != nil {
			var supportsPresent vk.Bool32
			if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), b.surface, &supportsPresent); res == vk.Success {
				family.Present = supportsPresent.B()
			} else {
				core.LogWarn("querying present support of queue family %d: %s", i, VulkanResultString(res, false))
			}
		}
		info.QueueFamilies = append(info.QueueFamilies, family)
	}

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(device, &memory)
	memory.Deref()
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
		info.MemoryTypes = append(info.MemoryTypes, metadata.MemoryType{
			PropertyFlags: metadata.MemoryPropertyFlags(memory.MemoryTypes[i].PropertyFlags),
			HeapIndex:     memory.MemoryTypes[i].HeapIndex,
		})
	}
	for i := uint32(0); i < memory.MemoryHeapCount; i++ {
		memory.MemoryHeaps[i].Deref()
		info.MemoryHeaps = append(info.MemoryHeaps, metadata.MemoryHeap{
			Size:        uint64(memory.MemoryHeaps[i].Size),
			DeviceLocal: memory.MemoryHeaps[i].Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0,
		})
	}
	return info
}

func (b *Backend) deviceExtensions(device vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if err := vkCheck(vk.EnumerateDeviceExtensionProperties(device, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	available := make([]vk.ExtensionProperties, count)
	if err := vkCheck(vk.EnumerateDeviceExtensionProperties(device, "", &count, available), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for i := range available {
		available[i].Deref()
		names = append(names, vk.ToString(available[i].ExtensionName[:]))
	}
	return names, nil
}

func (b *Backend) CreateDevice(config metadata.DeviceConfig) error {
	if config.Adapter < 0 || config.Adapter >= len(b.physicalDevices) {
		return fmt.Errorf("adapter %d out of range: %w", config.Adapter, core.ErrNoDevice)
	}
	physicalDevice := b.physicalDevices[config.Adapter]

	core.LogInfo("Creating logical device...")

	available, err := b.deviceExtensions(physicalDevice)
	if err != nil {
		return err
	}
	if !hasName(available, vk.KhrSwapchainExtensionName) {
		return fmt.Errorf("device lacks %s: %w", vk.KhrSwapchainExtensionName, core.ErrFeatureNotSupported)
	}
	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if hasName(available, portabilitySubset) {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		extensionNames = append(extensionNames, portabilitySubset)
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	if config.Features.SamplerAnisotropy {
		deviceFeatures.SamplerAnisotropy = vk.True
	}
	if config.Features.SampleRateShading {
		deviceFeatures.SampleRateShading = vk.True
	}

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: config.QueueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		// Deprecated and ignored, so pass nothing.
		EnabledLayerCount:   0,
		PpEnabledLayerNames: nil,
	}

	var device vk.Device
	if err := vkCheck(vk.CreateDevice(physicalDevice, &deviceCreateInfo, nil, &device), "vkCreateDevice"); err != nil {
		return err
	}
	b.physicalDevice = physicalDevice
	b.device = device
	b.queueFamily = config.QueueFamily

	var queue vk.Queue
	vk.GetDeviceQueue(b.device, config.QueueFamily, 0, &queue)
	b.queue = queue

	core.LogInfo("Logical device created.")
	return nil
}

func (b *Backend) DestroyDevice() {
	if b.device == nil {
		return
	}
	if leaked := b.liveObjects(); leaked > 0 {
		core.LogWarn("Destroying logical device with %d live objects.", leaked)
	}
	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(b.device, nil)
	b.device = nil
	b.queue = nil
	// Physical devices are not destroyed.
	b.physicalDevice = nil
}

func (b *Backend) liveObjects() int {
	return b.swapchains.len() + b.views.len() + b.samplers.len() + b.buffers.len() +
		b.memories.len() + b.semaphores.len() + b.fences.len() + b.commandPools.len() +
		b.renderPasses.len() + b.framebuffers.len() + b.shaderModules.len() + b.setLayouts.len() +
		b.descriptorPools.len() + b.pipelineLayouts.len() + b.pipelines.len()
}

func (b *Backend) WaitIdle() error {
	return b.locks.SafeCall(QueueManagement, func() error {
		return vkCheck(vk.DeviceWaitIdle(b.device), "vkDeviceWaitIdle")
	})
}

func (b *Backend) FormatFeatures(format metadata.Format) metadata.FormatFeatureFlags {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(b.physicalDevice, vk.Format(format), &props)
	props.Deref()
	return metadata.FormatFeatureFlags(props.OptimalTilingFeatures)
}
