package renderer

import (
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/registry"
)

// GPUBuffer is a buffer with its own memory allocation bound at offset 0.
type GPUBuffer struct {
	be     MemoryBackend
	Handle metadata.Buffer
	Memory metadata.DeviceMemory
	Size   uint64
	Usage  metadata.BufferUsageFlags
}

func (b *GPUBuffer) Release() {
	b.be.DestroyBuffer(b.Handle)
	b.be.FreeMemory(b.Memory)
	b.Handle, b.Memory = 0, 0
}

// Write copies data into host-visible buffer memory.
func (b *GPUBuffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, b.Size)
	}
	return b.be.WriteMemory(b.Memory, offset, data)
}

// GPUImage is an image, its memory and a view over every mip level.
type GPUImage struct {
	be        MemoryBackend
	Handle    metadata.Image
	Memory    metadata.DeviceMemory
	View      metadata.ImageView
	Format    metadata.Format
	Width     uint32
	Height    uint32
	MipLevels uint32
}

func (i *GPUImage) Release() {
	i.be.DestroyImageView(i.View)
	i.be.DestroyImage(i.Handle)
	i.be.FreeMemory(i.Memory)
	i.Handle, i.Memory, i.View = 0, 0, 0
}

// GPUTexture is a sampled GPUImage with its sampler.
type GPUTexture struct {
	*GPUImage
	Sampler metadata.Sampler
}

func (t *GPUTexture) Release() {
	t.be.DestroySampler(t.Sampler)
	t.Sampler = 0
	t.GPUImage.Release()
}

type handleRelease[H metadata.Handle] struct {
	handle  H
	destroy func(H)
}

func (h handleRelease[H]) Release() {
	h.destroy(h.handle)
}

// disposeHandle wraps a single backend destroy call as a Disposable.
func disposeHandle[H metadata.Handle](h H, destroy func(H)) registry.Disposable {
	return handleRelease[H]{handle: h, destroy: destroy}
}

func register(reg *registry.Registry, d registry.Disposable) {
	if reg != nil {
		reg.Push(d)
	}
}

// Factory creates GPU objects and optionally registers them for release.
type Factory struct {
	be     Backend
	device *DeviceContext
	pool   metadata.CommandPool

	uploads int
}

func NewFactory(be Backend, device *DeviceContext, pool metadata.CommandPool) *Factory {
	return &Factory{be: be, device: device, pool: pool}
}

// Uploads counts the staging copies submitted so far.
func (f *Factory) Uploads() int {
	return f.uploads
}

// CreateBuffer creates a buffer with dedicated memory of the requested properties.
func (f *Factory) CreateBuffer(size uint64, usage metadata.BufferUsageFlags, props metadata.MemoryPropertyFlags, reg *registry.Registry) (*GPUBuffer, error) {
	handle, req, err := f.be.CreateBuffer(metadata.BufferConfig{Size: size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}
	typeIndex, err := f.device.findMemoryType(req.TypeBits, props)
	if err != nil {
		f.be.DestroyBuffer(handle)
		return nil, err
	}
	memory, err := f.be.AllocateMemory(req.Size, typeIndex)
	if err != nil {
		f.be.DestroyBuffer(handle)
		return nil, fmt.Errorf("allocate buffer memory: %w", err)
	}
	if err := f.be.BindBufferMemory(handle, memory); err != nil {
		f.be.DestroyBuffer(handle)
		f.be.FreeMemory(memory)
		return nil, fmt.Errorf("bind buffer memory: %w", err)
	}
	b := &GPUBuffer{be: f.be, Handle: handle, Memory: memory, Size: size, Usage: usage}
	register(reg, b)
	return b, nil
}

func (f *Factory) createStaging(data []byte) (*GPUBuffer, error) {
	staging, err := f.CreateBuffer(uint64(len(data)), metadata.BufferUsageTransferSrc,
		metadata.MemoryPropertyHostVisible|metadata.MemoryPropertyHostCoherent, nil)
	if err != nil {
		return nil, err
	}
	if err := staging.Write(0, data); err != nil {
		staging.Release()
		return nil, err
	}
	return staging, nil
}

// UploadBuffer copies data into a new device-local buffer through a staging buffer.
func (f *Factory) UploadBuffer(data []byte, usage metadata.BufferUsageFlags, reg *registry.Registry) (*GPUBuffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("upload of an empty buffer")
	}
	staging, err := f.createStaging(data)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	dst, err := f.CreateBuffer(uint64(len(data)),
		usage|metadata.BufferUsageTransferDst|metadata.BufferUsageTransferSrc,
		metadata.MemoryPropertyDeviceLocal, nil)
	if err != nil {
		return nil, err
	}
	err = f.immediateSubmit(func(cb metadata.CommandBuffer) {
		f.be.CmdCopyBuffer(cb, metadata.BufferCopy{Src: staging.Handle, Dst: dst.Handle, Size: uint64(len(data))})
	})
	if err != nil {
		dst.Release()
		return nil, err
	}
	f.uploads++
	register(reg, dst)
	return dst, nil
}

// ReadBuffer copies a buffer created with TransferSrc usage back to the host.
func (f *Factory) ReadBuffer(src *GPUBuffer) ([]byte, error) {
	readback, err := f.CreateBuffer(src.Size, metadata.BufferUsageTransferDst,
		metadata.MemoryPropertyHostVisible|metadata.MemoryPropertyHostCoherent, nil)
	if err != nil {
		return nil, err
	}
	defer readback.Release()

	err = f.immediateSubmit(func(cb metadata.CommandBuffer) {
		f.be.CmdCopyBuffer(cb, metadata.BufferCopy{Src: src.Handle, Dst: readback.Handle, Size: src.Size})
	})
	if err != nil {
		return nil, err
	}
	out := make([]byte, src.Size)
	if err := f.be.ReadMemory(readback.Memory, 0, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateImage creates an image, binds memory to it and creates a view over all mips.
func (f *Factory) CreateImage(cfg metadata.ImageConfig, props metadata.MemoryPropertyFlags, aspect metadata.ImageAspectFlags, reg *registry.Registry) (*GPUImage, error) {
	if cfg.MipLevels == 0 {
		cfg.MipLevels = 1
	}
	if cfg.Samples == 0 {
		cfg.Samples = metadata.SampleCount1
	}
	handle, req, err := f.be.CreateImage(cfg)
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	typeIndex, err := f.device.findMemoryType(req.TypeBits, props)
	if err != nil {
		f.be.DestroyImage(handle)
		return nil, err
	}
	memory, err := f.be.AllocateMemory(req.Size, typeIndex)
	if err != nil {
		f.be.DestroyImage(handle)
		return nil, fmt.Errorf("allocate image memory: %w", err)
	}
	if err := f.be.BindImageMemory(handle, memory); err != nil {
		f.be.DestroyImage(handle)
		f.be.FreeMemory(memory)
		return nil, fmt.Errorf("bind image memory: %w", err)
	}
	view, err := f.be.CreateImageView(metadata.ImageViewConfig{
		Image:     handle,
		Format:    cfg.Format,
		Aspect:    aspect,
		MipLevels: cfg.MipLevels,
	})
	if err != nil {
		f.be.DestroyImage(handle)
		f.be.FreeMemory(memory)
		return nil, fmt.Errorf("create image view: %w", err)
	}
	img := &GPUImage{
		be:        f.be,
		Handle:    handle,
		Memory:    memory,
		View:      view,
		Format:    cfg.Format,
		Width:     cfg.Width,
		Height:    cfg.Height,
		MipLevels: cfg.MipLevels,
	}
	register(reg, img)
	return img, nil
}

// TransitionImageLayout moves every mip level of img from oldLayout to newLayout.
func (f *Factory) TransitionImageLayout(img *GPUImage, oldLayout, newLayout metadata.ImageLayout) error {
	aspect := metadata.ImageAspectColor
	switch {
	case oldLayout == metadata.ImageLayoutUndefined && newLayout == metadata.ImageLayoutTransferDstOptimal:
	case oldLayout == metadata.ImageLayoutTransferDstOptimal && newLayout == metadata.ImageLayoutShaderReadOnlyOptimal:
	case oldLayout == metadata.ImageLayoutUndefined && newLayout == metadata.ImageLayoutDepthStencilAttachmentOptimal:
		aspect = metadata.ImageAspectDepth
		if img.Format.HasStencil() {
			aspect |= metadata.ImageAspectStencil
		}
	default:
		return fmt.Errorf("unsupported layout transition %d -> %d", oldLayout, newLayout)
	}
	return f.immediateSubmit(func(cb metadata.CommandBuffer) {
		f.be.CmdImageBarrier(cb, metadata.ImageBarrier{
			Image:     img.Handle,
			OldLayout: oldLayout,
			NewLayout: newLayout,
			Aspect:    aspect,
			BaseMip:   0,
			MipCount:  img.MipLevels,
		})
	})
}

// mipLevelCount is floor(log2(max(w, h))) + 1.
func mipLevelCount(width, height uint32) uint32 {
	m := max(width, height)
	if m == 0 {
		return 1
	}
	return uint32(bits.Len32(m))
}

// CreateTexture uploads RGBA8 pixels into a sampled sRGB texture with a full
// mip chain when the format supports linear blits.
func (f *Factory) CreateTexture(width, height uint32, rgba []byte, reg *registry.Registry) (*GPUTexture, error) {
	if uint64(len(rgba)) != uint64(width)*uint64(height)*4 {
		return nil, fmt.Errorf("texture %dx%d needs %d bytes, got %d", width, height, width*height*4, len(rgba))
	}
	format := metadata.FormatR8G8B8A8Srgb
	mips := mipLevelCount(width, height)
	if !supportsLinearBlit(f.be, format) {
		core.LogWarn("format %d does not support linear blitting, textures get a single mip level", format)
		mips = 1
	}

	staging, err := f.createStaging(rgba)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	img, err := f.CreateImage(metadata.ImageConfig{
		Width:     width,
		Height:    height,
		MipLevels: mips,
		Format:    format,
		Samples:   metadata.SampleCount1,
		Usage:     metadata.ImageUsageTransferSrc | metadata.ImageUsageTransferDst | metadata.ImageUsageSampled,
	}, metadata.MemoryPropertyDeviceLocal, metadata.ImageAspectColor, nil)
	if err != nil {
		return nil, err
	}

	if err := f.TransitionImageLayout(img, metadata.ImageLayoutUndefined, metadata.ImageLayoutTransferDstOptimal); err != nil {
		img.Release()
		return nil, err
	}
	err = f.immediateSubmit(func(cb metadata.CommandBuffer) {
		f.be.CmdCopyBufferToImage(cb, metadata.BufferImageCopy{
			Src:    staging.Handle,
			Dst:    img.Handle,
			Extent: metadata.Extent2D{Width: width, Height: height},
		})
	})
	if err != nil {
		img.Release()
		return nil, err
	}
	f.uploads++

	if mips > 1 {
		err = f.generateMipmaps(img)
	} else {
		err = f.TransitionImageLayout(img, metadata.ImageLayoutTransferDstOptimal, metadata.ImageLayoutShaderReadOnlyOptimal)
	}
	if err != nil {
		img.Release()
		return nil, err
	}

	sampler, err := f.be.CreateSampler(metadata.SamplerConfig{
		MaxLod:        float32(mips),
		MaxAnisotropy: f.device.Adapter.Limits.MaxSamplerAnisotropy,
	})
	if err != nil {
		img.Release()
		return nil, fmt.Errorf("create sampler: %w", err)
	}
	tex := &GPUTexture{GPUImage: img, Sampler: sampler}
	register(reg, tex)
	return tex, nil
}

// generateMipmaps expects every level in transfer-dst layout and leaves every
// level shader-readable.
func (f *Factory) generateMipmaps(img *GPUImage) error {
	return f.immediateSubmit(func(cb metadata.CommandBuffer) {
		w, h := img.Width, img.Height
		for level := uint32(1); level < img.MipLevels; level++ {
			f.be.CmdImageBarrier(cb, metadata.ImageBarrier{
				Image:     img.Handle,
				OldLayout: metadata.ImageLayoutTransferDstOptimal,
				NewLayout: metadata.ImageLayoutTransferSrcOptimal,
				Aspect:    metadata.ImageAspectColor,
				BaseMip:   level - 1,
				MipCount:  1,
			})
			nw, nh := max(w/2, 1), max(h/2, 1)
			f.be.CmdBlitImage(cb, metadata.ImageBlit{
				Image:     img.Handle,
				SrcMip:    level - 1,
				SrcExtent: metadata.Extent2D{Width: w, Height: h},
				DstMip:    level,
				DstExtent: metadata.Extent2D{Width: nw, Height: nh},
			})
			f.be.CmdImageBarrier(cb, metadata.ImageBarrier{
				Image:     img.Handle,
				OldLayout: metadata.ImageLayoutTransferSrcOptimal,
				NewLayout: metadata.ImageLayoutShaderReadOnlyOptimal,
				Aspect:    metadata.ImageAspectColor,
				BaseMip:   level - 1,
				MipCount:  1,
			})
			w, h = nw, nh
		}
		f.be.CmdImageBarrier(cb, metadata.ImageBarrier{
			Image:     img.Handle,
			OldLayout: metadata.ImageLayoutTransferDstOptimal,
			NewLayout: metadata.ImageLayoutShaderReadOnlyOptimal,
			Aspect:    metadata.ImageAspectColor,
			BaseMip:   img.MipLevels - 1,
			MipCount:  1,
		})
	})
}

func (f *Factory) CreateSampler(cfg metadata.SamplerConfig, reg *registry.Registry) (metadata.Sampler, error) {
	s, err := f.be.CreateSampler(cfg)
	if err != nil {
		return 0, err
	}
	register(reg, disposeHandle(s, f.be.DestroySampler))
	return s, nil
}

func (f *Factory) CreateShaderModule(code []uint32, reg *registry.Registry) (metadata.ShaderModule, error) {
	m, err := f.be.CreateShaderModule(code)
	if err != nil {
		return 0, err
	}
	register(reg, disposeHandle(m, f.be.DestroyShaderModule))
	return m, nil
}

func (f *Factory) CreateDescriptorSetLayout(bindings []metadata.DescriptorBinding, reg *registry.Registry) (metadata.DescriptorSetLayout, error) {
	l, err := f.be.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return 0, err
	}
	register(reg, disposeHandle(l, f.be.DestroyDescriptorSetLayout))
	return l, nil
}

func (f *Factory) CreateDescriptorPool(cfg metadata.DescriptorPoolConfig, reg *registry.Registry) (metadata.DescriptorPool, error) {
	p, err := f.be.CreateDescriptorPool(cfg)
	if err != nil {
		return 0, err
	}
	register(reg, disposeHandle(p, f.be.DestroyDescriptorPool))
	return p, nil
}

func (f *Factory) CreatePipelineLayout(cfg metadata.PipelineLayoutConfig, reg *registry.Registry) (metadata.PipelineLayout, error) {
	l, err := f.be.CreatePipelineLayout(cfg)
	if err != nil {
		return 0, err
	}
	register(reg, disposeHandle(l, f.be.DestroyPipelineLayout))
	return l, nil
}

func (f *Factory) CreateGraphicsPipeline(cfg metadata.PipelineConfig, reg *registry.Registry) (metadata.Pipeline, error) {
	p, err := f.be.CreateGraphicsPipeline(cfg)
	if err != nil {
		return 0, err
	}
	register(reg, disposeHandle(p, f.be.DestroyPipeline))
	return p, nil
}

// immediateSubmit records with record into a one-time command buffer, submits
// it without a fence and waits for the queue to drain.
func (f *Factory) immediateSubmit(record func(cb metadata.CommandBuffer)) error {
	cb, err := f.be.AllocateCommandBuffer(f.pool)
	if err != nil {
		return fmt.Errorf("allocate single-use command buffer: %w", err)
	}
	defer f.be.FreeCommandBuffer(f.pool, cb)

	if err := f.be.BeginCommandBuffer(cb, true); err != nil {
		return err
	}
	record(cb)
	if err := f.be.EndCommandBuffer(cb); err != nil {
		return err
	}
	if err := f.be.Submit(metadata.SubmitInfo{CommandBuffer: cb}); err != nil {
		return err
	}
	return f.be.QueueWaitIdle()
}

// bytesOf views a slice of plain values as raw bytes in host order.
func bytesOf[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}
