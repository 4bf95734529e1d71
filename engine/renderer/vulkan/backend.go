// Package vulkan implements the renderer backend on top of goki/vulkan. Every
// Vulkan object is exposed to the renderer through an opaque handle.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type Options struct {
	// Validation enables the Khronos validation layer and routes its reports
	// to the engine log.
	Validation bool
	// InstanceExtensions are the extensions the window system needs.
	InstanceExtensions []string
}

type swapchain struct {
	handle vk.Swapchain
	images []metadata.Image
}

// descriptorSet remembers its pool so destroying the pool forgets the set.
type descriptorSet struct {
	handle vk.DescriptorSet
	pool   vk.DescriptorPool
}

type commandBuffer struct {
	handle vk.CommandBuffer
	pool   vk.CommandPool
}

type Backend struct {
	opts  Options
	locks *VulkanLockPool

	instance       vk.Instance
	debugMessenger vk.DebugReportCallback
	surface        vk.Surface
	source         metadata.SurfaceSource

	physicalDevices []vk.PhysicalDevice
	physicalDevice  vk.PhysicalDevice
	device          vk.Device
	queue           vk.Queue
	queueFamily     uint32

	swapchains      *handleTable[metadata.Swapchain, *swapchain]
	images          *handleTable[metadata.Image, vk.Image]
	views           *handleTable[metadata.ImageView, vk.ImageView]
	samplers        *handleTable[metadata.Sampler, vk.Sampler]
	buffers         *handleTable[metadata.Buffer, vk.Buffer]
	memories        *handleTable[metadata.DeviceMemory, vk.DeviceMemory]
	semaphores      *handleTable[metadata.Semaphore, vk.Semaphore]
	fences          *handleTable[metadata.Fence, vk.Fence]
	commandPools    *handleTable[metadata.CommandPool, vk.CommandPool]
	commandBuffers  *handleTable[metadata.CommandBuffer, commandBuffer]
	renderPasses    *handleTable[metadata.RenderPass, vk.RenderPass]
	framebuffers    *handleTable[metadata.Framebuffer, vk.Framebuffer]
	shaderModules   *handleTable[metadata.ShaderModule, vk.ShaderModule]
	setLayouts      *handleTable[metadata.DescriptorSetLayout, vk.DescriptorSetLayout]
	descriptorPools *handleTable[metadata.DescriptorPool, vk.DescriptorPool]
	descriptorSets  *handleTable[metadata.DescriptorSet, descriptorSet]
	pipelineLayouts *handleTable[metadata.PipelineLayout, vk.PipelineLayout]
	pipelines       *handleTable[metadata.Pipeline, vk.Pipeline]
}

func New(opts Options) *Backend {
	return &Backend{
		opts:            opts,
		locks:           NewVulkanLockPool(),
		swapchains:      newHandleTable[metadata.Swapchain, *swapchain](),
		images:          newHandleTable[metadata.Image, vk.Image](),
		views:           newHandleTable[metadata.ImageView, vk.ImageView](),
		samplers:        newHandleTable[metadata.Sampler, vk.Sampler](),
		buffers:         newHandleTable[metadata.Buffer, vk.Buffer](),
		memories:        newHandleTable[metadata.DeviceMemory, vk.DeviceMemory](),
		semaphores:      newHandleTable[metadata.Semaphore, vk.Semaphore](),
		fences:          newHandleTable[metadata.Fence, vk.Fence](),
		commandPools:    newHandleTable[metadata.CommandPool, vk.CommandPool](),
		commandBuffers:  newHandleTable[metadata.CommandBuffer, commandBuffer](),
		renderPasses:    newHandleTable[metadata.RenderPass, vk.RenderPass](),
		framebuffers:    newHandleTable[metadata.Framebuffer, vk.Framebuffer](),
		shaderModules:   newHandleTable[metadata.ShaderModule, vk.ShaderModule](),
		setLayouts:      newHandleTable[metadata.DescriptorSetLayout, vk.DescriptorSetLayout](),
		descriptorPools: newHandleTable[metadata.DescriptorPool, vk.DescriptorPool](),
		descriptorSets:  newHandleTable[metadata.DescriptorSet, descriptorSet](),
		pipelineLayouts: newHandleTable[metadata.PipelineLayout, vk.PipelineLayout](),
		pipelines:       newHandleTable[metadata.Pipeline, vk.Pipeline](),
	}
}

func (b *Backend) Name() string {
	return "vulkan"
}

func (b *Backend) CreateInstance(appName string) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		EngineVersion:      uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Lumen Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := requiredInstanceExtensions(b.opts.InstanceExtensions, runtime.GOOS, b.opts.Validation)
	if runtime.GOOS == "darwin" {
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	layers := []string{}
	if b.opts.Validation {
		available, err := instanceLayers()
		if err != nil {
			return err
		}
		if hasName(available, validationLayer) {
			layers = append(layers, validationLayer)
			core.LogInfo("Validation layer %s enabled.", validationLayer)
		} else {
			core.LogWarn("Validation requested but %s is missing, continuing without it.", validationLayer)
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := vkCheck(vk.CreateInstance(&createInfo, nil, &instance), "vkCreateInstance"); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		core.LogError(err.Error())
		vk.DestroyInstance(instance, nil)
		return err
	}
	b.instance = instance
	core.LogInfo("Vulkan Instance created.")

	if len(layers) > 0 {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vkCheck(vk.CreateDebugReportCallback(b.instance, &debugCreateInfo, nil, &dbg), "vkCreateDebugReportCallback"); err != nil {
			return err
		}
		b.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func (b *Backend) DestroyInstance() {
	if b.instance == nil {
		return
	}
	if b.debugMessenger != nil {
		vk.DestroyDebugReportCallback(b.instance, b.debugMessenger, nil)
		b.debugMessenger = nil
	}
	vk.DestroyInstance(b.instance, nil)
	b.instance = nil
	b.physicalDevices = nil
	core.LogDebug("Vulkan instance destroyed.")
}

func (b *Backend) CreateSurface(source metadata.SurfaceSource) error {
	surfacePtr, err := source.CreateWindowSurface(b.instance, nil)
	if err != nil {
		core.LogError("cannot create surface within GLFW window: %s", err)
		return err
	}
	b.surface = vk.SurfaceFromPointer(surfacePtr)
	b.source = source
	core.LogDebug("Vulkan surface created.")
	return nil
}

func (b *Backend) DestroySurface() {
	if b.surface == nil {
		return
	}
	vk.DestroySurface(b.instance, b.surface, nil)
	b.surface = nil
	b.source = nil
}

// requiredInstanceExtensions appends the platform and debug extensions to the
// ones the window system asked for, without duplicates.
func requiredInstanceExtensions(window []string, goos string, validation bool) []string {
	extensions := []string{"VK_KHR_surface"}
	extensions = append(extensions, window...)
	if goos == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}
	if validation {
		extensions = append(extensions, "VK_EXT_debug_report")
	}

	seen := make(map[string]bool, len(extensions))
	out := extensions[:0]
	for _, ext := range extensions {
		if seen[ext] {
			continue
		}
		seen[ext] = true
		out = append(out, ext)
	}
	return out
}

func instanceLayers() ([]string, error) {
	var count uint32
	if err := vkCheck(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return nil, err
	}
	available := make([]vk.LayerProperties, count)
	if err := vkCheck(vk.EnumerateInstanceLayerProperties(&count, available), "vkEnumerateInstanceLayerProperties"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].LayerName[:])
		names = append(names, vk.ToString(available[i].LayerName[:end+1]))
	}
	return names, nil
}

func hasName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
