package headless

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	kindMemory  = "memory"
	kindBuffer  = "buffer"
	kindImage   = "image"
	kindView    = "image view"
	kindSampler = "sampler"
)

type memory struct {
	typeIndex uint32
	data      []byte
}

type buffer struct {
	config metadata.BufferConfig
	memory metadata.DeviceMemory
}

type image struct {
	config  metadata.ImageConfig
	memory  metadata.DeviceMemory
	layouts []metadata.ImageLayout
	// pixels holds mip level 0 once something was copied into it.
	pixels []byte
	// swapchain images are owned by their swapchain.
	swapchain metadata.Swapchain
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}

func (b *Backend) memoryTypeBits(filter func(metadata.MemoryPropertyFlags) bool) uint32 {
	var bits uint32
	for i, t := range b.adapter.MemoryTypes {
		if filter(t.PropertyFlags) {
			bits |= 1 << uint(i)
		}
	}
	return bits
}

func (b *Backend) CreateBuffer(config metadata.BufferConfig) (metadata.Buffer, metadata.MemoryRequirements, error) {
	if !b.device {
		return 0, metadata.MemoryRequirements{}, core.ErrNotInitialized
	}
	if config.Size == 0 {
		return 0, metadata.MemoryRequirements{}, fmt.Errorf("buffer of size 0")
	}
	h := metadata.Buffer(b.newHandle(kindBuffer))
	b.buffers[h] = &buffer{config: config}
	req := metadata.MemoryRequirements{
		Size:      alignUp(config.Size, 256),
		Alignment: 256,
		TypeBits:  b.memoryTypeBits(func(metadata.MemoryPropertyFlags) bool { return true }),
	}
	return h, req, nil
}

func (b *Backend) DestroyBuffer(h metadata.Buffer) {
	if b.destroy(uint64(h), kindBuffer) {
		delete(b.buffers, h)
	}
}

func (b *Backend) CreateImage(config metadata.ImageConfig) (metadata.Image, metadata.MemoryRequirements, error) {
	if !b.device {
		return 0, metadata.MemoryRequirements{}, core.ErrNotInitialized
	}
	if config.Width == 0 || config.Height == 0 || config.MipLevels == 0 {
		return 0, metadata.MemoryRequirements{}, fmt.Errorf("image %dx%d with %d mips", config.Width, config.Height, config.MipLevels)
	}
	h := metadata.Image(b.newHandle(kindImage))
	b.images[h] = &image{config: config, layouts: make([]metadata.ImageLayout, config.MipLevels)}
	size := uint64(config.Width) * uint64(config.Height) * 4 * uint64(config.Samples)
	if config.MipLevels > 1 {
		size = size * 4 / 3
	}
	req := metadata.MemoryRequirements{
		Size:      alignUp(size, 4096),
		Alignment: 4096,
		TypeBits: b.memoryTypeBits(func(p metadata.MemoryPropertyFlags) bool {
			return p&metadata.MemoryPropertyDeviceLocal != 0
		}),
	}
	return h, req, nil
}

func (b *Backend) DestroyImage(h metadata.Image) {
	if b.destroy(uint64(h), kindImage) {
		delete(b.images, h)
		delete(b.imageWriter, h)
	}
}

func (b *Backend) AllocateMemory(size uint64, memoryTypeIndex uint32) (metadata.DeviceMemory, error) {
	if int(memoryTypeIndex) >= len(b.adapter.MemoryTypes) {
		return 0, fmt.Errorf("memory type %d: %w", memoryTypeIndex, core.ErrNoMemoryType)
	}
	h := metadata.DeviceMemory(b.newHandle(kindMemory))
	b.memories[h] = &memory{typeIndex: memoryTypeIndex, data: make([]byte, size)}
	return h, nil
}

func (b *Backend) FreeMemory(h metadata.DeviceMemory) {
	if b.destroy(uint64(h), kindMemory) {
		delete(b.memories, h)
	}
}

func (b *Backend) BindBufferMemory(h metadata.Buffer, mem metadata.DeviceMemory) error {
	buf, ok := b.buffers[h]
	m, okm := b.memories[mem]
	if !ok || !okm {
		return fmt.Errorf("bind of unknown buffer %d or memory %d", h, mem)
	}
	if uint64(len(m.data)) < buf.config.Size {
		return fmt.Errorf("memory of %d bytes too small for buffer of %d", len(m.data), buf.config.Size)
	}
	buf.memory = mem
	return nil
}

func (b *Backend) BindImageMemory(h metadata.Image, mem metadata.DeviceMemory) error {
	img, ok := b.images[h]
	m, okm := b.memories[mem]
	if !ok || !okm {
		return fmt.Errorf("bind of unknown image %d or memory %d", h, mem)
	}
	if b.adapter.MemoryTypes[m.typeIndex].PropertyFlags&metadata.MemoryPropertyDeviceLocal == 0 {
		b.violate("image %d bound to memory that is not device local", h)
	}
	img.memory = mem
	return nil
}

func (b *Backend) hostMemory(mem metadata.DeviceMemory, offset uint64, n int) (*memory, error) {
	m, ok := b.memories[mem]
	if !ok {
		return nil, fmt.Errorf("map of unknown memory %d", mem)
	}
	if b.adapter.MemoryTypes[m.typeIndex].PropertyFlags&metadata.MemoryPropertyHostVisible == 0 {
		return nil, fmt.Errorf("memory %d is not host visible", mem)
	}
	if offset+uint64(n) > uint64(len(m.data)) {
		return nil, fmt.Errorf("range %d+%d outside memory of %d bytes", offset, n, len(m.data))
	}
	return m, nil
}

func (b *Backend) WriteMemory(mem metadata.DeviceMemory, offset uint64, data []byte) error {
	m, err := b.hostMemory(mem, offset, len(data))
	if err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (b *Backend) ReadMemory(mem metadata.DeviceMemory, offset uint64, out []byte) error {
	m, err := b.hostMemory(mem, offset, len(out))
	if err != nil {
		return err
	}
	copy(out, m.data[offset:])
	return nil
}

func (b *Backend) CreateImageView(config metadata.ImageViewConfig) (metadata.ImageView, error) {
	if _, ok := b.images[config.Image]; !ok {
		return 0, fmt.Errorf("view of unknown image %d", config.Image)
	}
	h := metadata.ImageView(b.newHandle(kindView))
	b.views[h] = config
	return h, nil
}

func (b *Backend) DestroyImageView(h metadata.ImageView) {
	if b.destroy(uint64(h), kindView) {
		delete(b.views, h)
	}
}

func (b *Backend) CreateSampler(config metadata.SamplerConfig) (metadata.Sampler, error) {
	if config.MaxAnisotropy > b.adapter.Limits.MaxSamplerAnisotropy {
		return 0, fmt.Errorf("anisotropy %.1f above device limit %.1f", config.MaxAnisotropy, b.adapter.Limits.MaxSamplerAnisotropy)
	}
	return metadata.Sampler(b.newHandle(kindSampler)), nil
}

func (b *Backend) DestroySampler(h metadata.Sampler) {
	b.destroy(uint64(h), kindSampler)
}

// BufferContents returns a copy of the memory bound to h, whatever its type.
func (b *Backend) BufferContents(h metadata.Buffer) []byte {
	buf, ok := b.buffers[h]
	if !ok {
		return nil
	}
	m := b.memories[buf.memory]
	if m == nil {
		return nil
	}
	return append([]byte(nil), m.data[:buf.config.Size]...)
}

// ImagePixels returns the texels copied into mip level 0 of h.
func (b *Backend) ImagePixels(h metadata.Image) []byte {
	if img, ok := b.images[h]; ok {
		return append([]byte(nil), img.pixels...)
	}
	return nil
}

// ImageLayouts returns the current layout of every mip level of h.
func (b *Backend) ImageLayouts(h metadata.Image) []metadata.ImageLayout {
	if img, ok := b.images[h]; ok {
		return append([]metadata.ImageLayout(nil), img.layouts...)
	}
	return nil
}
