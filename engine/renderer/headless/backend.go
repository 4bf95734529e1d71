// Package headless implements the renderer backend on top of an in-memory
// model of a GPU queue. Work submitted to the queue executes immediately on
// the CPU but only counts as complete once something waits for it, so the
// synchronization protocol of the caller is exercised as on real hardware.
// Protocol misuse is recorded as violations instead of crashing.
package headless

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// ErrDeadlock is returned by waits that could never complete.
var ErrDeadlock = errors.New("headless: wait would never return")

// AcquireOrder controls which available presentable image acquire returns.
type AcquireOrder int

const (
	// AcquireInOrder hands images out in the order they were presented.
	AcquireInOrder AcquireOrder = iota
	// AcquireNewestFirst hands out the most recently presented image, which
	// forces callers to wait on images still being rendered.
	AcquireNewestFirst
)

type Options struct {
	Adapters     []metadata.AdapterInfo
	Formats      []metadata.SurfaceFormat
	PresentModes []metadata.PresentMode
	// Capabilities.CurrentExtent is ignored, the surface follows the window.
	Capabilities metadata.SurfaceCapabilities
	AcquireOrder AcquireOrder
	DepthFormats []metadata.Format
	LinearBlit   bool
}

// DefaultAdapter describes a device able to run the renderer.
func DefaultAdapter(name string, kind metadata.AdapterType) metadata.AdapterInfo {
	return metadata.AdapterInfo{
		Name:          name,
		Type:          kind,
		DriverVersion: 1 << 22,
		APIVersion:    1<<22 | 1<<12,
		QueueFamilies: []metadata.QueueFamily{
			{Index: 0, QueueCount: 1, Graphics: true, Compute: true, Transfer: true, Present: true},
		},
		Features: metadata.AdapterFeatures{SamplerAnisotropy: true, SampleRateShading: true},
		Limits: metadata.AdapterLimits{
			MaxPushConstantsSize:         256,
			MaxSamplerAnisotropy:         16,
			FramebufferColorSampleCounts: metadata.SampleCount1 | metadata.SampleCount2 | metadata.SampleCount4 | metadata.SampleCount8,
			FramebufferDepthSampleCounts: metadata.SampleCount1 | metadata.SampleCount2 | metadata.SampleCount4 | metadata.SampleCount8,
		},
		MemoryTypes: []metadata.MemoryType{
			{PropertyFlags: metadata.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{PropertyFlags: metadata.MemoryPropertyHostVisible | metadata.MemoryPropertyHostCoherent, HeapIndex: 1},
			{PropertyFlags: metadata.MemoryPropertyDeviceLocal | metadata.MemoryPropertyHostVisible | metadata.MemoryPropertyHostCoherent, HeapIndex: 0},
		},
		MemoryHeaps: []metadata.MemoryHeap{
			{Size: 8 << 30, DeviceLocal: true},
			{Size: 16 << 30, DeviceLocal: false},
		},
	}
}

func DefaultOptions() Options {
	return Options{
		Adapters: []metadata.AdapterInfo{DefaultAdapter("Headless Device", metadata.AdapterTypeDiscrete)},
		Formats: []metadata.SurfaceFormat{
			{Format: metadata.FormatB8G8R8A8Srgb, ColorSpace: metadata.ColorSpaceSrgbNonlinear},
			{Format: metadata.FormatB8G8R8A8Unorm, ColorSpace: metadata.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []metadata.PresentMode{metadata.PresentModeFifo, metadata.PresentModeMailbox},
		Capabilities: metadata.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			MinImageExtent: metadata.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: metadata.Extent2D{Width: 16384, Height: 16384},
		},
		AcquireOrder: AcquireInOrder,
		DepthFormats: []metadata.Format{metadata.FormatD32Sfloat, metadata.FormatD32SfloatS8Uint, metadata.FormatD24UnormS8Uint},
		LinearBlit:   true,
	}
}

// Stats counts the work the queue has seen.
type Stats struct {
	Submits           int
	Presents          int
	Acquires          int
	FenceWaits        int
	Draws             int
	BufferCopies      int
	ImageCopies       int
	Blits             int
	SwapchainsCreated int
}

// Backend is not safe for concurrent use.
type Backend struct {
	opts Options

	nextHandle uint64
	instance   bool
	surface    metadata.SurfaceSource
	device     bool
	adapter    metadata.AdapterInfo

	live         map[uint64]string
	memories     map[metadata.DeviceMemory]*memory
	buffers      map[metadata.Buffer]*buffer
	images       map[metadata.Image]*image
	views        map[metadata.ImageView]metadata.ImageViewConfig
	framebuffers map[metadata.Framebuffer]metadata.FramebufferConfig
	fences       map[metadata.Fence]*fence
	semaphores   map[metadata.Semaphore]*semaphore
	pools        map[metadata.CommandPool][]metadata.CommandBuffer
	commands     map[metadata.CommandBuffer]*commandBuffer
	swapchains   map[metadata.Swapchain]*swapchain
	descPools    map[metadata.DescriptorPool]*descriptorPool

	// submitted is the sequence number of the newest submission, completed
	// the newest one known to be finished.
	submitted   uint64
	completed   uint64
	imageWriter map[metadata.Image]uint64

	violations []string
	stats      Stats
}

func New(opts Options) *Backend {
	return &Backend{
		opts:         opts,
		live:         make(map[uint64]string),
		memories:     make(map[metadata.DeviceMemory]*memory),
		buffers:      make(map[metadata.Buffer]*buffer),
		images:       make(map[metadata.Image]*image),
		views:        make(map[metadata.ImageView]metadata.ImageViewConfig),
		framebuffers: make(map[metadata.Framebuffer]metadata.FramebufferConfig),
		fences:       make(map[metadata.Fence]*fence),
		semaphores:   make(map[metadata.Semaphore]*semaphore),
		pools:        make(map[metadata.CommandPool][]metadata.CommandBuffer),
		commands:     make(map[metadata.CommandBuffer]*commandBuffer),
		swapchains:   make(map[metadata.Swapchain]*swapchain),
		descPools:    make(map[metadata.DescriptorPool]*descriptorPool),
		imageWriter:  make(map[metadata.Image]uint64),
	}
}

func (b *Backend) Name() string {
	return "headless"
}

// Violations lists every protocol error seen so far.
func (b *Backend) Violations() []string {
	return append([]string(nil), b.violations...)
}

func (b *Backend) Stats() Stats {
	return b.stats
}

// LiveObjects counts created objects not destroyed yet, by kind.
func (b *Backend) LiveObjects() map[string]int {
	counts := make(map[string]int)
	for _, kind := range b.live {
		counts[kind]++
	}
	return counts
}

func (b *Backend) violate(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	core.LogError("headless: %s", msg)
	b.violations = append(b.violations, msg)
}

func (b *Backend) newHandle(kind string) uint64 {
	b.nextHandle++
	b.live[b.nextHandle] = kind
	return b.nextHandle
}

func (b *Backend) isLive(h uint64, kind string) bool {
	return h != 0 && b.live[h] == kind
}

// destroy forgets h. Destroying the null handle is allowed and does nothing.
func (b *Backend) destroy(h uint64, kind string) bool {
	if h == 0 {
		return false
	}
	if b.live[h] != kind {
		b.violate("destroy of unknown %s %d", kind, h)
		return false
	}
	delete(b.live, h)
	return true
}

func (b *Backend) CreateInstance(appName string) error {
	if b.instance {
		return fmt.Errorf("instance already created")
	}
	b.instance = true
	core.LogDebug("headless instance created for %s", appName)
	return nil
}

func (b *Backend) DestroyInstance() {
	if b.surface != nil {
		b.violate("instance destroyed before its surface")
	}
	if b.device {
		b.violate("instance destroyed before the device")
	}
	b.instance = false
}

func (b *Backend) CreateSurface(source metadata.SurfaceSource) error {
	if !b.instance {
		return core.ErrNotInitialized
	}
	if source == nil {
		return fmt.Errorf("nil surface source")
	}
	b.surface = source
	return nil
}

func (b *Backend) DestroySurface() {
	for h := range b.swapchains {
		b.violate("surface destroyed before swapchain %d", h)
	}
	b.surface = nil
}

func (b *Backend) Adapters() ([]metadata.AdapterInfo, error) {
	if !b.instance || b.surface == nil {
		return nil, core.ErrNotInitialized
	}
	out := make([]metadata.AdapterInfo, len(b.opts.Adapters))
	for i, a := range b.opts.Adapters {
		a.Index = i
		out[i] = a
	}
	return out, nil
}

func (b *Backend) CreateDevice(config metadata.DeviceConfig) error {
	if config.Adapter < 0 || config.Adapter >= len(b.opts.Adapters) {
		return fmt.Errorf("adapter %d: %w", config.Adapter, core.ErrNoDevice)
	}
	adapter := b.opts.Adapters[config.Adapter]
	if (config.Features.SamplerAnisotropy && !adapter.Features.SamplerAnisotropy) ||
		(config.Features.SampleRateShading && !adapter.Features.SampleRateShading) {
		return core.ErrFeatureNotSupported
	}
	if int(config.QueueFamily) >= len(adapter.QueueFamilies) {
		return core.ErrNoGraphicsQueue
	}
	b.adapter = adapter
	b.device = true
	return nil
}

func (b *Backend) DestroyDevice() {
	if len(b.live) > 0 {
		kinds := make([]string, 0)
		for kind, n := range b.LiveObjects() {
			kinds = append(kinds, fmt.Sprintf("%d %s", n, kind))
		}
		sort.Strings(kinds)
		b.violate("device destroyed with live objects: %v", kinds)
	}
	if len(b.swapchains) > 0 {
		b.violate("device destroyed with %d swapchains", len(b.swapchains))
	}
	b.device = false
}

// WaitIdle completes every submission.
func (b *Backend) WaitIdle() error {
	b.complete(b.submitted)
	return nil
}

func (b *Backend) FormatFeatures(format metadata.Format) metadata.FormatFeatureFlags {
	for _, d := range b.opts.DepthFormats {
		if d == format {
			return metadata.FormatFeatureDepthStencilAttachment | metadata.FormatFeatureSampledImage
		}
	}
	switch format {
	case metadata.FormatD32Sfloat, metadata.FormatD32SfloatS8Uint, metadata.FormatD24UnormS8Uint:
		return 0
	}
	features := metadata.FormatFeatureSampledImage | metadata.FormatFeatureBlitSrc | metadata.FormatFeatureBlitDst
	if b.opts.LinearBlit {
		features |= metadata.FormatFeatureSampledImageFilterLinear
	}
	return features
}
