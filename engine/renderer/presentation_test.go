package renderer

import (
	stdmath "math"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseSurfaceFormat(t *testing.T) {
	unorm := metadata.SurfaceFormat{Format: metadata.FormatB8G8R8A8Unorm, ColorSpace: metadata.ColorSpaceSrgbNonlinear}
	assert.Equal(t, preferredSurfaceFormat, chooseSurfaceFormat([]metadata.SurfaceFormat{unorm, preferredSurfaceFormat}))
	assert.Equal(t, unorm, chooseSurfaceFormat([]metadata.SurfaceFormat{unorm}))
}

func TestChoosePresentMode(t *testing.T) {
	modes := []metadata.PresentMode{metadata.PresentModeFifo, metadata.PresentModeMailbox}
	assert.Equal(t, metadata.PresentModeMailbox, choosePresentMode(modes, metadata.PresentModeMailbox))
	assert.Equal(t, metadata.PresentModeFifo, choosePresentMode(modes, metadata.PresentModeImmediate))
	assert.Equal(t, metadata.PresentModeFifo, choosePresentMode(nil, metadata.PresentModeMailbox))
}

func TestChooseExtent(t *testing.T) {
	caps := metadata.SurfaceCapabilities{
		CurrentExtent:  metadata.Extent2D{Width: 640, Height: 480},
		MinImageExtent: metadata.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: metadata.Extent2D{Width: 4096, Height: 4096},
	}
	window := metadata.Extent2D{Width: 1280, Height: 720}
	assert.Equal(t, caps.CurrentExtent, chooseExtent(caps, window))

	// the surface follows the swapchain, the window size is clamped instead
	caps.CurrentExtent = metadata.Extent2D{Width: stdmath.MaxUint32, Height: stdmath.MaxUint32}
	assert.Equal(t, window, chooseExtent(caps, window))
	assert.Equal(t, metadata.Extent2D{Width: 4096, Height: 1}, chooseExtent(caps, metadata.Extent2D{Width: 9000, Height: 0}))
}

func TestChooseImageCount(t *testing.T) {
	assert.EqualValues(t, 3, chooseImageCount(metadata.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	assert.EqualValues(t, 2, chooseImageCount(metadata.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
	assert.EqualValues(t, 5, chooseImageCount(metadata.SurfaceCapabilities{MinImageCount: 4, MaxImageCount: 0}))
	assert.EqualValues(t, MaxSwapchainImageCount, chooseImageCount(metadata.SurfaceCapabilities{MinImageCount: 30}))
}

func TestChainBuildsAttachmentsPerImage(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	chain := h.r.chain

	assert.Equal(t, ChainBuilt, chain.State())
	assert.Equal(t, 3, chain.ImageCount())
	assert.Len(t, chain.Views, 3)
	assert.Len(t, chain.Framebuffers, 3)
	assert.Equal(t, metadata.Extent2D{Width: 800, Height: 600}, chain.Extent)
	assert.Equal(t, preferredSurfaceFormat, chain.Format)
	require.NotNil(t, chain.Color, "MSAA color attachment")
	require.NotNil(t, chain.Depth)
	assert.Equal(t, []metadata.ImageLayout{metadata.ImageLayoutDepthStencilAttachmentOptimal}, h.be.ImageLayouts(chain.Depth.Handle))
}

func TestChainWithoutMultisampling(t *testing.T) {
	cfg := testConfig()
	cfg.MSAASamples = 1
	h := newHarness(t, headless.DefaultOptions(), cfg)
	h.init(t)

	assert.Nil(t, h.r.chain.Color)
	assert.Equal(t, metadata.SampleCount1, h.r.device.Samples)
}

func TestChainBuildWhileMinimizedIsBooting(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.window.width, h.window.height = 0, 0

	err := h.r.Init(h.window)
	assert.ErrorIs(t, err, core.ErrSwapchainBooting)
	assert.Zero(t, h.be.Stats().SwapchainsCreated)
	assert.Empty(t, h.be.LiveObjects())
}

func TestChainRebuildWhileMinimizedKeepsChain(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	chain := h.r.chain
	swapchain := chain.Swapchain
	size := chain.Registry().Len()

	h.window.width = 0
	assert.ErrorIs(t, h.r.RecreateSwapchain(), core.ErrSwapchainBooting)
	assert.Equal(t, swapchain, chain.Swapchain)
	assert.Equal(t, size, chain.Registry().Len())
	assert.Equal(t, ChainBuilt, chain.State())
}

func TestChainTeardown(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	chain := h.r.chain

	require.NoError(t, h.be.WaitIdle())
	chain.Teardown()
	assert.Equal(t, ChainTornDown, chain.State())
	assert.Zero(t, chain.Registry().Len())
	assert.Zero(t, chain.ImageCount())
	assert.Zero(t, h.be.LiveObjects()["framebuffer"])
	assert.Zero(t, h.be.LiveObjects()["render pass"])
}
