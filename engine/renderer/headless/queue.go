package headless

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	kindFence     = "fence"
	kindSemaphore = "semaphore"
)

type fence struct {
	signaled bool
	// pending is the submission that signals the fence, 0 when none.
	pending uint64
}

type semaphore struct {
	signaled bool
}

type swapchain struct {
	config    metadata.SwapchainConfig
	images    []metadata.Image
	available *containers.RingQueue[uint32]
	acquired  map[uint32]bool
}

func (b *Backend) CreateSemaphore() (metadata.Semaphore, error) {
	h := metadata.Semaphore(b.newHandle(kindSemaphore))
	b.semaphores[h] = &semaphore{}
	return h, nil
}

func (b *Backend) DestroySemaphore(h metadata.Semaphore) {
	if b.destroy(uint64(h), kindSemaphore) {
		delete(b.semaphores, h)
	}
}

func (b *Backend) CreateFence(signaled bool) (metadata.Fence, error) {
	h := metadata.Fence(b.newHandle(kindFence))
	b.fences[h] = &fence{signaled: signaled}
	return h, nil
}

func (b *Backend) DestroyFence(h metadata.Fence) {
	if f, ok := b.fences[h]; ok && f.pending > b.completed {
		b.violate("fence %d destroyed while its submission is pending", h)
	}
	if b.destroy(uint64(h), kindFence) {
		delete(b.fences, h)
	}
}

// WaitFence completes the submission the fence belongs to. Waiting on an
// unsignaled fence nobody will signal reports ErrDeadlock.
func (b *Backend) WaitFence(h metadata.Fence) error {
	f, ok := b.fences[h]
	if !ok {
		return fmt.Errorf("wait on unknown fence %d", h)
	}
	b.stats.FenceWaits++
	if f.signaled {
		return nil
	}
	if f.pending == 0 {
		return fmt.Errorf("fence %d: %w", h, ErrDeadlock)
	}
	b.complete(f.pending)
	return nil
}

func (b *Backend) ResetFence(h metadata.Fence) error {
	f, ok := b.fences[h]
	if !ok {
		return fmt.Errorf("reset of unknown fence %d", h)
	}
	if f.pending > b.completed {
		b.violate("fence %d reset while its submission is pending", h)
	}
	f.signaled = false
	f.pending = 0
	return nil
}

// complete marks every submission up to seq as finished.
func (b *Backend) complete(seq uint64) {
	if seq <= b.completed {
		return
	}
	b.completed = seq
	for _, f := range b.fences {
		if f.pending != 0 && f.pending <= seq {
			f.signaled = true
			f.pending = 0
		}
	}
}

func (b *Backend) QueueWaitIdle() error {
	b.complete(b.submitted)
	return nil
}

func (b *Backend) Submit(info metadata.SubmitInfo) error {
	cb, ok := b.commands[info.CommandBuffer]
	if !ok {
		return fmt.Errorf("submit of unknown command buffer %d", info.CommandBuffer)
	}
	if cb.state != stateExecutable {
		return fmt.Errorf("submit of command buffer %d in state %s", info.CommandBuffer, cb.state)
	}
	if cb.pending > b.completed {
		b.violate("command buffer %d submitted again while pending", info.CommandBuffer)
	}
	if info.Wait != 0 {
		s, ok := b.semaphores[info.Wait]
		switch {
		case !ok:
			return fmt.Errorf("wait on unknown semaphore %d", info.Wait)
		case !s.signaled:
			b.violate("submit waits on semaphore %d that nothing signals", info.Wait)
		}
		if ok {
			s.signaled = false
		}
	}

	b.submitted++
	seq := b.submitted

	for _, img := range cb.presentWrites {
		if prev, ok := b.imageWriter[img]; ok && prev > b.completed {
			b.violate("presentable image %d written by pending submission %d and by submission %d", img, prev, seq)
		}
		b.imageWriter[img] = seq
	}
	for _, op := range cb.ops {
		op()
	}

	if info.Signal != 0 {
		s, ok := b.semaphores[info.Signal]
		if !ok {
			return fmt.Errorf("signal of unknown semaphore %d", info.Signal)
		}
		if s.signaled {
			b.violate("semaphore %d signaled twice without a wait", info.Signal)
		}
		s.signaled = true
	}
	if info.Fence != 0 {
		f, ok := b.fences[info.Fence]
		if !ok {
			return fmt.Errorf("submit with unknown fence %d", info.Fence)
		}
		if f.signaled || f.pending > b.completed {
			b.violate("fence %d submitted while signaled or pending", info.Fence)
		}
		f.signaled = false
		f.pending = seq
	}

	cb.pending = seq
	b.stats.Submits++
	b.stats.Draws += cb.draws
	return nil
}

func (b *Backend) windowExtent() metadata.Extent2D {
	if b.surface == nil {
		return metadata.Extent2D{}
	}
	w, h := b.surface.GetFramebufferSize()
	return metadata.Extent2D{Width: uint32(max(w, 0)), Height: uint32(max(h, 0))}
}

func (b *Backend) SurfaceSupport() (metadata.SurfaceSupport, error) {
	if b.surface == nil {
		return metadata.SurfaceSupport{}, core.ErrNotInitialized
	}
	caps := b.opts.Capabilities
	caps.CurrentExtent = b.windowExtent()
	return metadata.SurfaceSupport{
		Capabilities: caps,
		Formats:      append([]metadata.SurfaceFormat(nil), b.opts.Formats...),
		PresentModes: append([]metadata.PresentMode(nil), b.opts.PresentModes...),
	}, nil
}

func (b *Backend) CreateSwapchain(config metadata.SwapchainConfig) (metadata.Swapchain, []metadata.Image, error) {
	if !b.device || b.surface == nil {
		return 0, nil, core.ErrNotInitialized
	}
	if config.Extent.IsZero() {
		return 0, nil, fmt.Errorf("swapchain with zero extent")
	}
	if config.ImageCount < b.opts.Capabilities.MinImageCount {
		return 0, nil, fmt.Errorf("swapchain of %d images below surface minimum %d", config.ImageCount, b.opts.Capabilities.MinImageCount)
	}
	// Swapchains and their images are not tracked as live objects, the
	// swapchain map covers them.
	b.nextHandle++
	h := metadata.Swapchain(b.nextHandle)
	sc := &swapchain{
		config:    config,
		images:    make([]metadata.Image, config.ImageCount),
		available: containers.NewRingQueue[uint32](int(config.ImageCount)),
		acquired:  make(map[uint32]bool),
	}
	for i := range sc.images {
		b.nextHandle++
		img := metadata.Image(b.nextHandle)
		b.images[img] = &image{
			config: metadata.ImageConfig{
				Width:     config.Extent.Width,
				Height:    config.Extent.Height,
				MipLevels: 1,
				Format:    config.Format.Format,
				Samples:   metadata.SampleCount1,
				Usage:     config.Usage,
			},
			layouts:   make([]metadata.ImageLayout, 1),
			swapchain: h,
		}
		sc.images[i] = img
		_ = sc.available.Enqueue(uint32(i))
	}
	b.swapchains[h] = sc
	b.stats.SwapchainsCreated++
	return h, append([]metadata.Image(nil), sc.images...), nil
}

func (b *Backend) DestroySwapchain(h metadata.Swapchain) {
	sc, ok := b.swapchains[h]
	if !ok {
		if h != 0 {
			b.violate("destroy of unknown swapchain %d", h)
		}
		return
	}
	for _, img := range sc.images {
		if w, ok := b.imageWriter[img]; ok && w > b.completed {
			b.violate("swapchain %d destroyed while image %d is being rendered", h, img)
		}
		delete(b.images, img)
		delete(b.imageWriter, img)
	}
	delete(b.swapchains, h)
}

// AcquireNextImage reports ErrSwapchainOutOfDate once the window size no
// longer matches the swapchain extent.
func (b *Backend) AcquireNextImage(h metadata.Swapchain, signal metadata.Semaphore) (uint32, error) {
	sc, ok := b.swapchains[h]
	if !ok {
		return 0, fmt.Errorf("acquire from unknown swapchain %d", h)
	}
	if b.windowExtent() != sc.config.Extent {
		return 0, core.ErrSwapchainOutOfDate
	}
	s, ok := b.semaphores[signal]
	if !ok {
		return 0, fmt.Errorf("acquire with unknown semaphore %d", signal)
	}
	if sc.available.IsEmpty() {
		return 0, fmt.Errorf("no presentable image left to acquire: %w", ErrDeadlock)
	}
	if b.opts.AcquireOrder == AcquireNewestFirst {
		for i := 0; i < sc.available.Len()-1; i++ {
			_ = sc.available.Rotate()
		}
	}
	idx, _ := sc.available.Dequeue()
	sc.acquired[idx] = true

	if s.signaled {
		b.violate("acquire signals semaphore %d that is already signaled", signal)
	}
	s.signaled = true
	b.stats.Acquires++
	return idx, nil
}

func (b *Backend) Present(h metadata.Swapchain, imageIndex uint32, wait metadata.Semaphore) error {
	sc, ok := b.swapchains[h]
	if !ok {
		return fmt.Errorf("present to unknown swapchain %d", h)
	}
	if !sc.acquired[imageIndex] {
		b.violate("present of image %d that was not acquired", imageIndex)
	} else {
		delete(sc.acquired, imageIndex)
		_ = sc.available.Enqueue(imageIndex)
	}
	if s, ok := b.semaphores[wait]; ok {
		if !s.signaled {
			b.violate("present waits on semaphore %d that nothing signals", wait)
		}
		s.signaled = false
	}
	b.stats.Presents++
	if b.windowExtent() != sc.config.Extent {
		return core.ErrSwapchainOutOfDate
	}
	return nil
}
