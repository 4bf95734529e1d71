package renderer

import (
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/registry"
)

type ChainState uint8

const (
	ChainUninitialized ChainState = iota
	ChainBuilt
	ChainTornDown
)

func (s ChainState) String() string {
	switch s {
	case ChainBuilt:
		return "built"
	case ChainTornDown:
		return "torn down"
	default:
		return "uninitialized"
	}
}

var preferredSurfaceFormat = metadata.SurfaceFormat{
	Format:     metadata.FormatB8G8R8A8Srgb,
	ColorSpace: metadata.ColorSpaceSrgbNonlinear,
}

// PresentationChain owns every object whose lifetime follows the surface size:
// the swapchain, its views, the shared color and depth attachments, the render
// pass and one framebuffer per presentable image.
type PresentationChain struct {
	be       Backend
	device   *DeviceContext
	factory  *Factory
	surface  metadata.SurfaceSource
	registry *registry.Registry
	mode     metadata.PresentMode

	state        ChainState
	Swapchain    metadata.Swapchain
	Format       metadata.SurfaceFormat
	Extent       metadata.Extent2D
	Images       []metadata.Image
	Views        []metadata.ImageView
	Color        *GPUImage
	Depth        *GPUImage
	RenderPass   metadata.RenderPass
	Framebuffers []metadata.Framebuffer
}

func newPresentationChain(be Backend, device *DeviceContext, factory *Factory, surface metadata.SurfaceSource, mode metadata.PresentMode) *PresentationChain {
	return &PresentationChain{
		be:       be,
		device:   device,
		factory:  factory,
		surface:  surface,
		registry: registry.New("presentation"),
		mode:     mode,
	}
}

func (pc *PresentationChain) State() ChainState {
	return pc.state
}

// Registry exposes the presentation-scoped release list.
func (pc *PresentationChain) Registry() *registry.Registry {
	return pc.registry
}

func (pc *PresentationChain) ImageCount() int {
	return len(pc.Images)
}

func chooseSurfaceFormat(formats []metadata.SurfaceFormat) metadata.SurfaceFormat {
	for _, f := range formats {
		if f == preferredSurfaceFormat {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode honours the preferred mode when available. FIFO is always supported.
func choosePresentMode(modes []metadata.PresentMode, preferred metadata.PresentMode) metadata.PresentMode {
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	return metadata.PresentModeFifo
}

func chooseExtent(caps metadata.SurfaceCapabilities, window metadata.Extent2D) metadata.Extent2D {
	extent := window
	if caps.CurrentExtent.Width != stdmath.MaxUint32 {
		extent = caps.CurrentExtent
	}
	return metadata.Extent2D{
		Width:  math.Clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// chooseImageCount asks for one image above the minimum, within the surface
// maximum and MaxSwapchainImageCount.
func chooseImageCount(caps metadata.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return min(count, MaxSwapchainImageCount)
}

func (pc *PresentationChain) windowExtent() metadata.Extent2D {
	w, h := pc.surface.GetFramebufferSize()
	return metadata.Extent2D{Width: uint32(max(w, 0)), Height: uint32(max(h, 0))}
}

// Build creates the chain. ErrSwapchainBooting is returned, with nothing
// created, while the surface has no area.
func (pc *PresentationChain) Build() error {
	support, err := pc.be.SurfaceSupport()
	if err != nil {
		return fmt.Errorf("query surface support: %w", err)
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return fmt.Errorf("surface offers no formats or present modes: %w", core.ErrFeatureNotSupported)
	}
	window := pc.windowExtent()
	extent := chooseExtent(support.Capabilities, window)
	if window.IsZero() || extent.IsZero() {
		return core.ErrSwapchainBooting
	}
	format := chooseSurfaceFormat(support.Formats)
	mode := choosePresentMode(support.PresentModes, pc.mode)

	swapchain, images, err := pc.be.CreateSwapchain(metadata.SwapchainConfig{
		ImageCount:  chooseImageCount(support.Capabilities),
		Format:      format,
		Extent:      extent,
		PresentMode: mode,
		Usage:       metadata.ImageUsageColorAttachment,
	})
	if err != nil {
		return fmt.Errorf("create swapchain: %w", err)
	}
	pc.registry.Push(disposeHandle(swapchain, pc.be.DestroySwapchain))
	if len(images) > MaxSwapchainImageCount {
		pc.registry.Flush()
		return fmt.Errorf("swapchain returned %d images: %w", len(images), core.ErrCapacityExceeded)
	}

	pc.Swapchain = swapchain
	pc.Format = format
	pc.Extent = extent
	pc.Images = images
	pc.Views = pc.Views[:0]
	pc.Framebuffers = pc.Framebuffers[:0]
	pc.Color = nil

	if err := pc.createAttachments(); err != nil {
		pc.registry.Flush()
		return err
	}
	pc.state = ChainBuilt
	core.LogInfo("presentation chain built: %d images %dx%d, format %d, present mode %d",
		len(images), extent.Width, extent.Height, format.Format, mode)
	return nil
}

func (pc *PresentationChain) createAttachments() error {
	for _, img := range pc.Images {
		view, err := pc.be.CreateImageView(metadata.ImageViewConfig{
			Image:     img,
			Format:    pc.Format.Format,
			Aspect:    metadata.ImageAspectColor,
			MipLevels: 1,
		})
		if err != nil {
			return fmt.Errorf("create swapchain image view: %w", err)
		}
		pc.registry.Push(disposeHandle(view, pc.be.DestroyImageView))
		pc.Views = append(pc.Views, view)
	}

	samples := pc.device.Samples
	if samples > metadata.SampleCount1 {
		color, err := pc.factory.CreateImage(metadata.ImageConfig{
			Width:     pc.Extent.Width,
			Height:    pc.Extent.Height,
			MipLevels: 1,
			Format:    pc.Format.Format,
			Samples:   samples,
			Usage:     metadata.ImageUsageTransientAttachment | metadata.ImageUsageColorAttachment,
		}, metadata.MemoryPropertyDeviceLocal, metadata.ImageAspectColor, pc.registry)
		if err != nil {
			return fmt.Errorf("create color attachment: %w", err)
		}
		pc.Color = color
	}

	aspect := metadata.ImageAspectDepth
	if pc.device.DepthFormat.HasStencil() {
		aspect |= metadata.ImageAspectStencil
	}
	depth, err := pc.factory.CreateImage(metadata.ImageConfig{
		Width:     pc.Extent.Width,
		Height:    pc.Extent.Height,
		MipLevels: 1,
		Format:    pc.device.DepthFormat,
		Samples:   samples,
		Usage:     metadata.ImageUsageDepthStencilAttachment,
	}, metadata.MemoryPropertyDeviceLocal, aspect, pc.registry)
	if err != nil {
		return fmt.Errorf("create depth attachment: %w", err)
	}
	pc.Depth = depth
	if err := pc.factory.TransitionImageLayout(depth, metadata.ImageLayoutUndefined, metadata.ImageLayoutDepthStencilAttachmentOptimal); err != nil {
		return err
	}

	pass, err := pc.be.CreateRenderPass(metadata.RenderPassConfig{
		ColorFormat: pc.Format.Format,
		DepthFormat: pc.device.DepthFormat,
		Samples:     samples,
	})
	if err != nil {
		return fmt.Errorf("create render pass: %w", err)
	}
	pc.registry.Push(disposeHandle(pass, pc.be.DestroyRenderPass))
	pc.RenderPass = pass

	for _, view := range pc.Views {
		attachments := []metadata.ImageView{view, depth.View}
		if pc.Color != nil {
			attachments = []metadata.ImageView{pc.Color.View, depth.View, view}
		}
		fb, err := pc.be.CreateFramebuffer(metadata.FramebufferConfig{
			RenderPass:  pass,
			Attachments: attachments,
			Extent:      pc.Extent,
		})
		if err != nil {
			return fmt.Errorf("create framebuffer: %w", err)
		}
		pc.registry.Push(disposeHandle(fb, pc.be.DestroyFramebuffer))
		pc.Framebuffers = append(pc.Framebuffers, fb)
	}
	return nil
}

// Rebuild replaces the chain after a surface change. A zero-area surface
// leaves the current chain in place and reports ErrSwapchainBooting.
func (pc *PresentationChain) Rebuild() error {
	if extent := pc.windowExtent(); extent.IsZero() {
		return core.ErrSwapchainBooting
	}
	if err := pc.be.WaitIdle(); err != nil {
		return err
	}
	pc.registry.Flush()
	return pc.Build()
}

// Teardown releases every presentation object. The device must be idle.
func (pc *PresentationChain) Teardown() {
	pc.registry.Flush()
	pc.Images, pc.Views, pc.Framebuffers = nil, nil, nil
	pc.Color, pc.Depth = nil, nil
	pc.state = ChainTornDown
}
