package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/registry"
)

type frameBackend interface {
	SyncBackend
	SurfaceBackend
	CommandBackend
}

// FrameSlot is the synchronization state of one frame in flight.
type FrameSlot struct {
	Index int
	// ImageAvailable is signaled by acquire, RenderFinished by the submit.
	ImageAvailable metadata.Semaphore
	RenderFinished metadata.Semaphore
	InFlight       metadata.Fence
	Commands       metadata.CommandBuffer
}

// FrameRing cycles K frame slots and tracks which fence last used each
// presentable image, so two frames never render into the same image at once.
type FrameRing struct {
	be             frameBackend
	slots          []FrameSlot
	imagesInFlight []metadata.Fence
	current        int

	busyImageWaits int
}

func newFrameRing(be frameBackend, pool metadata.CommandPool, count int, reg *registry.Registry) (*FrameRing, error) {
	if count < 1 || count > MaxSwapchainImageCount {
		return nil, fmt.Errorf("frame ring of %d slots: %w", count, core.ErrCapacityExceeded)
	}
	fr := &FrameRing{be: be, slots: make([]FrameSlot, count)}
	for i := range fr.slots {
		slot := &fr.slots[i]
		slot.Index = i

		var err error
		if slot.ImageAvailable, err = be.CreateSemaphore(); err != nil {
			return nil, fmt.Errorf("create image available semaphore: %w", err)
		}
		reg.Push(disposeHandle(slot.ImageAvailable, be.DestroySemaphore))
		if slot.RenderFinished, err = be.CreateSemaphore(); err != nil {
			return nil, fmt.Errorf("create render finished semaphore: %w", err)
		}
		reg.Push(disposeHandle(slot.RenderFinished, be.DestroySemaphore))
		// Created signaled so the first wait on every slot returns at once.
		if slot.InFlight, err = be.CreateFence(true); err != nil {
			return nil, fmt.Errorf("create in-flight fence: %w", err)
		}
		reg.Push(disposeHandle(slot.InFlight, be.DestroyFence))
		if slot.Commands, err = be.AllocateCommandBuffer(pool); err != nil {
			return nil, fmt.Errorf("allocate frame command buffer: %w", err)
		}
		commands := slot.Commands
		reg.PushFunc(func() { be.FreeCommandBuffer(pool, commands) })
	}
	core.LogDebug("frame ring created with %d slots", count)
	return fr, nil
}

func (fr *FrameRing) Len() int {
	return len(fr.slots)
}

func (fr *FrameRing) Current() *FrameSlot {
	return &fr.slots[fr.current]
}

// BusyImageWaits counts acquires that had to wait for another slot's fence.
func (fr *FrameRing) BusyImageWaits() int {
	return fr.busyImageWaits
}

// ResetImages forgets image ownership and sizes the table for n images.
func (fr *FrameRing) ResetImages(n int) {
	if cap(fr.imagesInFlight) >= n {
		fr.imagesInFlight = fr.imagesInFlight[:n]
		clear(fr.imagesInFlight)
		return
	}
	fr.imagesInFlight = make([]metadata.Fence, n)
}

// BeginFrame waits for the current slot, acquires an image and claims it. On
// ErrSwapchainOutOfDate the slot fence is left signaled so the frame can be
// retried after the chain is rebuilt.
func (fr *FrameRing) BeginFrame(swapchain metadata.Swapchain) (*FrameSlot, uint32, error) {
	slot := &fr.slots[fr.current]
	if err := fr.be.WaitFence(slot.InFlight); err != nil {
		return nil, 0, fmt.Errorf("wait in-flight fence: %w", err)
	}

	image, err := fr.be.AcquireNextImage(swapchain, slot.ImageAvailable)
	if err != nil {
		return nil, 0, err
	}
	if int(image) >= len(fr.imagesInFlight) {
		return nil, 0, fmt.Errorf("acquired image %d of %d: %w", image, len(fr.imagesInFlight), core.ErrUnknown)
	}

	if owner := fr.imagesInFlight[image]; owner != 0 && owner != slot.InFlight {
		fr.busyImageWaits++
		if err := fr.be.WaitFence(owner); err != nil {
			return nil, 0, fmt.Errorf("wait image %d fence: %w", image, err)
		}
	}
	fr.imagesInFlight[image] = slot.InFlight

	if err := fr.be.ResetFence(slot.InFlight); err != nil {
		return nil, 0, fmt.Errorf("reset in-flight fence: %w", err)
	}
	return slot, image, nil
}

// EndFrame submits the slot's recorded command buffer, presents image and
// advances to the next slot. An out-of-date present is reported after the
// slot advanced since the submission already happened.
func (fr *FrameRing) EndFrame(swapchain metadata.Swapchain, image uint32) error {
	slot := &fr.slots[fr.current]
	if err := fr.be.Submit(metadata.SubmitInfo{
		CommandBuffer: slot.Commands,
		Wait:          slot.ImageAvailable,
		WaitStage:     metadata.PipelineStageColorAttachmentOutput,
		Signal:        slot.RenderFinished,
		Fence:         slot.InFlight,
	}); err != nil {
		return fmt.Errorf("submit frame: %w", err)
	}

	err := fr.be.Present(swapchain, image, slot.RenderFinished)
	fr.current = (fr.current + 1) % len(fr.slots)
	if err != nil && !errors.Is(err, core.ErrSwapchainOutOfDate) {
		return fmt.Errorf("present: %w", err)
	}
	return err
}
