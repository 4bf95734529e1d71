package renderer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/registry"
	"github.com/spaghettifunk/lumen/engine/systems"
)

// FrameStats summarizes the last frame and the cache occupancy.
type FrameStats struct {
	Frames         uint64
	Draws          int
	Batches        int
	PipelineBinds  int
	GeometryBinds  int
	Objects        int
	Textures       int
	Meshes         int
	Materials      int
	Uploads        int
	BusyImageWaits int
	FrameTimeMS    float64
	FPS            float64
}

type frameData struct {
	objects *GPUBuffer
	set     metadata.DescriptorSet
}

// Renderer draws cached meshes with a fixed number of frames in flight. Every
// method must be called from the goroutine that called Init.
type Renderer struct {
	id         uuid.UUID
	cfg        Config
	be         Backend
	textures   TextureSource
	shaders    ShaderSource
	transforms metadata.TransformStore
	jobs       *systems.JobSystem

	deviceRegistry *registry.Registry
	device         *DeviceContext
	commandPool    metadata.CommandPool
	factory        *Factory
	frames         *FrameRing
	chain          *PresentationChain
	objectLayout   metadata.DescriptorSetLayout
	textureLayout  metadata.DescriptorSetLayout
	descriptorPool metadata.DescriptorPool
	frameData      []frameData
	resources      *ResourceCache

	objects []RenderObject
	batches []DrawBatch
	models  []math.Mat4

	metrics     *core.Metrics
	stats       FrameStats
	initialized bool
}

func New(backend Backend, cfg Config, textures TextureSource, shaders ShaderSource, transforms metadata.TransformStore, jobs *systems.JobSystem) (*Renderer, error) {
	if backend == nil {
		return nil, fmt.Errorf("renderer needs a backend")
	}
	if transforms == nil {
		return nil, fmt.Errorf("renderer needs a transform store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Renderer{
		id:         uuid.New(),
		cfg:        cfg,
		be:         backend,
		textures:   textures,
		shaders:    shaders,
		transforms: transforms,
		jobs:       jobs,
		metrics:    core.NewMetrics(),
	}, nil
}

// Init creates the device, the frame ring and the presentation chain for
// surface, then the shared descriptor state and the default texture and material.
func (r *Renderer) Init(surface metadata.SurfaceSource) (err error) {
	if r.initialized {
		return fmt.Errorf("renderer %s already initialized", r.id)
	}
	core.LogInfo("initializing renderer %s on the %s backend", r.id, r.be.Name())
	r.deviceRegistry = registry.New("device")
	defer func() {
		if err != nil {
			core.LogError("renderer initialization failed: %s", err)
			r.release()
		}
	}()

	if err := r.be.CreateInstance(r.cfg.ApplicationName); err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	r.deviceRegistry.PushFunc(r.be.DestroyInstance)
	if err := r.be.CreateSurface(surface); err != nil {
		return fmt.Errorf("create surface: %w", err)
	}
	r.deviceRegistry.PushFunc(r.be.DestroySurface)

	if r.device, err = createDeviceContext(r.be, r.cfg, r.deviceRegistry); err != nil {
		return err
	}
	if r.commandPool, err = r.be.CreateCommandPool(r.device.QueueFamily); err != nil {
		return fmt.Errorf("create command pool: %w", err)
	}
	r.deviceRegistry.Push(disposeHandle(r.commandPool, r.be.DestroyCommandPool))
	r.factory = NewFactory(r.be, r.device, r.commandPool)

	slots, err := r.ringSize()
	if err != nil {
		return err
	}
	if r.frames, err = newFrameRing(r.be, r.commandPool, slots, r.deviceRegistry); err != nil {
		return err
	}

	mode, _ := parsePresentMode(r.cfg.PresentMode)
	r.chain = newPresentationChain(r.be, r.device, r.factory, surface, mode)
	if err := r.chain.Build(); err != nil {
		return err
	}
	r.frames.ResetImages(r.chain.ImageCount())

	if err := r.createDescriptors(slots); err != nil {
		return err
	}

	r.resources = newResourceCache(resourceCacheConfig{
		Backend:       r.be,
		Factory:       r.factory,
		Device:        r.device,
		Registry:      r.deviceRegistry,
		Textures:      r.textures,
		Shaders:       r.shaders,
		Jobs:          r.jobs,
		Config:        r.cfg,
		RenderPass:    func() metadata.RenderPass { return r.chain.RenderPass },
		Pool:          r.descriptorPool,
		ObjectLayout:  r.objectLayout,
		TextureLayout: r.textureLayout,
	})
	if err := r.resources.CreateDefaultTexture(); err != nil {
		return err
	}
	if _, ok := r.cfg.material(DefaultMaterialName); ok {
		if _, _, err := r.resources.GetOrCreateMaterial(DefaultMaterialName); err != nil {
			return err
		}
	}

	r.initialized = true
	core.LogInfo("renderer initialized: %d frames in flight, %d presentable images", slots, r.chain.ImageCount())
	return nil
}

// ringSize is the configured frame count, else the image count the surface
// would get for a new presentation chain.
func (r *Renderer) ringSize() (int, error) {
	if r.cfg.FramesInFlight > 0 {
		return int(r.cfg.FramesInFlight), nil
	}
	support, err := r.be.SurfaceSupport()
	if err != nil {
		return 0, fmt.Errorf("query surface support: %w", err)
	}
	return int(chooseImageCount(support.Capabilities)), nil
}

func (r *Renderer) createDescriptors(slots int) error {
	var err error
	r.objectLayout, err = r.factory.CreateDescriptorSetLayout([]metadata.DescriptorBinding{{
		Binding: 0,
		Type:    metadata.DescriptorTypeStorageBuffer,
		Count:   1,
		Stages:  metadata.ShaderStageVertex,
	}}, r.deviceRegistry)
	if err != nil {
		return fmt.Errorf("create object set layout: %w", err)
	}
	r.textureLayout, err = r.factory.CreateDescriptorSetLayout([]metadata.DescriptorBinding{{
		Binding: 0,
		Type:    metadata.DescriptorTypeCombinedImageSampler,
		Count:   1,
		Stages:  metadata.ShaderStageFragment,
	}}, r.deviceRegistry)
	if err != nil {
		return fmt.Errorf("create texture set layout: %w", err)
	}
	r.descriptorPool, err = r.factory.CreateDescriptorPool(metadata.DescriptorPoolConfig{
		MaxSets: r.cfg.MaxTextures + uint32(slots),
		Sizes: []metadata.DescriptorPoolSize{
			{Type: metadata.DescriptorTypeStorageBuffer, Count: uint32(slots)},
			{Type: metadata.DescriptorTypeCombinedImageSampler, Count: r.cfg.MaxTextures},
		},
	}, r.deviceRegistry)
	if err != nil {
		return fmt.Errorf("create descriptor pool: %w", err)
	}

	size := uint64(r.cfg.MaxObjects) * objectDataSize
	r.frameData = make([]frameData, slots)
	for i := range r.frameData {
		buf, err := r.factory.CreateBuffer(size, metadata.BufferUsageStorageBuffer,
			metadata.MemoryPropertyHostVisible|metadata.MemoryPropertyHostCoherent, r.deviceRegistry)
		if err != nil {
			return fmt.Errorf("create object buffer %d: %w", i, err)
		}
		set, err := r.be.AllocateDescriptorSet(r.descriptorPool, r.objectLayout)
		if err != nil {
			return fmt.Errorf("allocate object set %d: %w", i, err)
		}
		r.be.UpdateDescriptorSets([]metadata.DescriptorWrite{{
			Set:         set,
			Binding:     0,
			Type:        metadata.DescriptorTypeStorageBuffer,
			Buffer:      buf.Handle,
			BufferRange: size,
		}})
		r.frameData[i] = frameData{objects: buf, set: set}
	}
	return nil
}

// AddRenderingObjectsFromEntities caches the meshes, textures and material of
// objects and appends one render object per mesh. The default material is
// used when no name is given.
func (r *Renderer) AddRenderingObjectsFromEntities(objects []metadata.SceneObject, materialName ...string) error {
	if !r.initialized {
		return core.ErrNotInitialized
	}
	name := DefaultMaterialName
	if len(materialName) > 0 && materialName[0] != "" {
		name = materialName[0]
	}

	count := 0
	paths := make([]string, 0)
	for _, obj := range objects {
		count += len(obj.Meshes)
		for _, m := range obj.Meshes {
			paths = append(paths, m.TexturePath)
		}
	}
	if len(r.objects)+count > int(r.cfg.MaxObjects) {
		return fmt.Errorf("%d render objects over a limit of %d: %w", len(r.objects)+count, r.cfg.MaxObjects, core.ErrCapacityExceeded)
	}

	_, materialSlot, err := r.resources.GetOrCreateMaterial(name)
	if err != nil {
		return err
	}
	r.resources.PrefetchTextures(paths)

	for _, obj := range objects {
		for _, src := range obj.Meshes {
			_, meshSlot, err := r.resources.GetOrCreateMesh(src)
			if err != nil {
				return err
			}
			r.objects = append(r.objects, RenderObject{
				Mesh:      meshSlot,
				Material:  materialSlot,
				Transform: obj.Transform,
			})
		}
	}
	r.batches = compactDraws(r.objects)
	core.LogDebug("%d render objects in %d batches", len(r.objects), len(r.batches))
	return nil
}

// Render draws one frame. core.ErrSwapchainOutOfDate asks the caller to
// RecreateSwapchain before the next frame.
func (r *Renderer) Render(camera metadata.Camera, sun metadata.Light, deltaTime float64) error {
	if !r.initialized {
		return core.ErrNotInitialized
	}
	slot, image, err := r.frames.BeginFrame(r.chain.Swapchain)
	if err != nil {
		return err
	}

	fd := r.frameData[slot.Index]
	r.models = objectModels(r.models, r.objects, r.resources, r.transforms)
	if len(r.models) > 0 {
		if err := fd.objects.Write(0, bytesOf(r.models)); err != nil {
			return err
		}
	}

	if err := r.be.BeginCommandBuffer(slot.Commands, false); err != nil {
		return err
	}
	counters := recordFrame(r.be, slot.Commands, r.resources, frameInputs{
		RenderPass:  r.chain.RenderPass,
		Framebuffer: r.chain.Framebuffers[image],
		Extent:      r.chain.Extent,
		ClearColor:  r.cfg.ClearColor,
		ObjectSet:   fd.set,
		Models:      r.models,
		Batches:     r.batches,
		ViewProj:    camera.View.Mul(camera.Projection),
		LightDir:    sun.Direction,
	})
	if err := r.be.EndCommandBuffer(slot.Commands); err != nil {
		return err
	}

	err = r.frames.EndFrame(r.chain.Swapchain, image)

	r.metrics.Update(deltaTime)
	r.stats.Frames++
	r.stats.Draws = counters.Draws
	r.stats.PipelineBinds = counters.PipelineBinds
	r.stats.GeometryBinds = counters.GeometryBinds
	r.stats.Batches = len(r.batches)
	return err
}

// RecreateSwapchain rebuilds the presentation chain for the current surface
// size. core.ErrSwapchainBooting means the surface has no area yet.
func (r *Renderer) RecreateSwapchain() error {
	if !r.initialized {
		return core.ErrNotInitialized
	}
	if err := r.chain.Rebuild(); err != nil {
		if !errors.Is(err, core.ErrSwapchainBooting) {
			core.LogError("presentation chain rebuild failed: %s", err)
		}
		return err
	}
	r.frames.ResetImages(r.chain.ImageCount())
	return nil
}

// Term waits for the device and releases everything in reverse creation order.
// Calling it more than once is harmless.
func (r *Renderer) Term() {
	if r.deviceRegistry == nil {
		return
	}
	r.release()
	core.LogInfo("renderer %s terminated", r.id)
}

func (r *Renderer) release() {
	if r.device != nil {
		if err := r.be.WaitIdle(); err != nil {
			core.LogError("wait idle before shutdown: %s", err)
		}
	}
	if r.chain != nil {
		r.chain.Teardown()
	}
	r.deviceRegistry.Flush()
	r.deviceRegistry = nil
	r.device, r.chain, r.frames, r.factory, r.resources = nil, nil, nil, nil, nil
	r.frameData = nil
	r.objects, r.batches, r.models = nil, nil, nil
	r.initialized = false
}

func (r *Renderer) Stats() FrameStats {
	s := r.stats
	s.Objects = len(r.objects)
	if r.resources != nil {
		s.Textures = r.resources.Textures.Len()
		s.Meshes = r.resources.Meshes.Len()
		s.Materials = r.resources.Materials.Len()
	}
	if r.factory != nil {
		s.Uploads = r.factory.Uploads()
	}
	if r.frames != nil {
		s.BusyImageWaits = r.frames.BusyImageWaits()
	}
	s.FPS, s.FrameTimeMS = r.metrics.Frame()
	return s
}

// ID identifies the renderer in logs.
func (r *Renderer) ID() uuid.UUID {
	return r.id
}
