package renderer

import (
	"fmt"
	"image"
	"image/draw"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/registry"
	"github.com/spaghettifunk/lumen/engine/systems"
)

// TextureSource decodes image files. Implementations must be safe for
// concurrent use, decoding runs on the job system.
type TextureSource interface {
	LoadImage(path string) (image.Image, error)
}

// ShaderSource loads a SPIR-V binary with its reflected interface.
type ShaderSource interface {
	LoadShader(path string) (*metadata.ShaderBinary, error)
}

// Descriptor set indices shared by every material.
const (
	objectDataSet uint32 = 0
	textureSet    uint32 = 1
)

// TextureRecord is a cached GPU texture and the descriptor set that samples it.
type TextureRecord struct {
	Name    string
	Texture *GPUTexture
	Set     metadata.DescriptorSet
}

// MeshRecord keeps the CPU data next to the uploaded buffers.
type MeshRecord struct {
	Source *metadata.MeshSource
	// Root is the model-space root transform, identity when the source has none.
	Root        math.Mat4
	Vertices    *GPUBuffer
	Indices     *GPUBuffer
	IndexCount  uint32
	TextureSlot uint32
}

type Material struct {
	Name     string
	Pipeline metadata.Pipeline
	Layout   metadata.PipelineLayout
	// PushConstantStages are the stages declaring the push constant block.
	PushConstantStages metadata.ShaderStageFlags
}

type rgbaImage struct {
	width, height uint32
	pixels        []byte
}

// ResourceCache uploads textures, meshes and materials at most once and keeps
// them until the device registry is flushed.
type ResourceCache struct {
	be        Backend
	factory   *Factory
	registry  *registry.Registry
	textures  TextureSource
	shaders   ShaderSource
	jobs      *systems.JobSystem
	cfg       Config
	device    *DeviceContext
	passFn    func() metadata.RenderPass
	pool      metadata.DescriptorPool
	texLayout metadata.DescriptorSetLayout
	objLayout metadata.DescriptorSetLayout

	Textures  *Cache[string, *TextureRecord]
	Meshes    *Cache[metadata.MeshKey, *MeshRecord]
	Materials *Cache[string, *Material]

	decodedMu sync.Mutex
	decoded   map[string]rgbaImage
}

type resourceCacheConfig struct {
	Backend       Backend
	Factory       *Factory
	Device        *DeviceContext
	Registry      *registry.Registry
	Textures      TextureSource
	Shaders       ShaderSource
	Jobs          *systems.JobSystem
	Config        Config
	RenderPass    func() metadata.RenderPass
	Pool          metadata.DescriptorPool
	ObjectLayout  metadata.DescriptorSetLayout
	TextureLayout metadata.DescriptorSetLayout
}

func newResourceCache(c resourceCacheConfig) *ResourceCache {
	return &ResourceCache{
		be:        c.Backend,
		factory:   c.Factory,
		registry:  c.Registry,
		textures:  c.Textures,
		shaders:   c.Shaders,
		jobs:      c.Jobs,
		cfg:       c.Config,
		device:    c.Device,
		passFn:    c.RenderPass,
		pool:      c.Pool,
		texLayout: c.TextureLayout,
		objLayout: c.ObjectLayout,
		Textures:  NewCache[string, *TextureRecord]("texture", c.Config.MaxTextures),
		Meshes:    NewCache[metadata.MeshKey, *MeshRecord]("mesh", c.Config.MaxMeshes),
		Materials: NewCache[string, *Material]("material", c.Config.MaxMaterials),
		decoded:   make(map[string]rgbaImage),
	}
}

// toRGBA converts any decoded image to tightly packed RGBA8.
func toRGBA(img image.Image) rgbaImage {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return rgbaImage{width: uint32(b.Dx()), height: uint32(b.Dy()), pixels: rgba.Pix}
}

// CreateDefaultTexture stores the 1x1 white texture used by meshes without a
// texture. It always lands in slot 0.
func (rc *ResourceCache) CreateDefaultTexture() error {
	if rc.Textures.Len() != 0 {
		return fmt.Errorf("default texture must be the first texture")
	}
	_, _, err := rc.Textures.GetOrCreate("", func() (*TextureRecord, error) {
		white := rgbaImage{width: 1, height: 1, pixels: []byte{0xFF, 0xFF, 0xFF, 0xFF}}
		return rc.uploadTexture(fmt.Sprintf("default-%s", uuid.NewString()), white)
	})
	return err
}

// PrefetchTextures decodes the given files on the job system. Paths already
// cached or decoded are skipped, failures are left for the synchronous load to report.
func (rc *ResourceCache) PrefetchTextures(paths []string) {
	if rc.jobs == nil {
		return
	}
	seen := make(map[string]bool)
	tasks := make([]systems.JobTask, 0, len(paths))
	for _, path := range paths {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		if _, _, ok := rc.Textures.Get(path); ok {
			continue
		}
		rc.decodedMu.Lock()
		_, ok := rc.decoded[path]
		rc.decodedMu.Unlock()
		if ok {
			continue
		}
		p := path
		tasks = append(tasks, systems.JobTask{
			JobType: systems.JOB_TYPE_RESOURCE_LOAD,
			Name:    "decode " + p,
			OnStart: func() error {
				img, err := rc.textures.LoadImage(p)
				if err != nil {
					return err
				}
				decoded := toRGBA(img)
				rc.decodedMu.Lock()
				rc.decoded[p] = decoded
				rc.decodedMu.Unlock()
				return nil
			},
		})
	}
	if len(tasks) > 0 {
		core.LogDebug("decoding %d textures on %d workers", len(tasks), rc.jobs.Workers())
		rc.jobs.RunAll(tasks)
	}
}

func (rc *ResourceCache) takeDecoded(path string) (rgbaImage, error) {
	rc.decodedMu.Lock()
	img, ok := rc.decoded[path]
	delete(rc.decoded, path)
	rc.decodedMu.Unlock()
	if ok {
		return img, nil
	}
	src, err := rc.textures.LoadImage(path)
	if err != nil {
		return rgbaImage{}, fmt.Errorf("load texture %s: %w", path, err)
	}
	return toRGBA(src), nil
}

// GetOrCreateTexture returns the record for path, uploading it on first use.
// The empty path resolves to the default texture.
func (rc *ResourceCache) GetOrCreateTexture(path string) (*TextureRecord, uint32, error) {
	return rc.Textures.GetOrCreate(path, func() (*TextureRecord, error) {
		img, err := rc.takeDecoded(path)
		if err != nil {
			return nil, err
		}
		return rc.uploadTexture(path, img)
	})
}

func (rc *ResourceCache) uploadTexture(name string, img rgbaImage) (*TextureRecord, error) {
	tex, err := rc.factory.CreateTexture(img.width, img.height, img.pixels, rc.registry)
	if err != nil {
		return nil, fmt.Errorf("texture %s: %w", name, err)
	}
	set, err := rc.be.AllocateDescriptorSet(rc.pool, rc.texLayout)
	if err != nil {
		return nil, fmt.Errorf("texture %s descriptor set: %w", name, err)
	}
	rc.be.UpdateDescriptorSets([]metadata.DescriptorWrite{{
		Set:       set,
		Binding:   0,
		Type:      metadata.DescriptorTypeCombinedImageSampler,
		ImageView: tex.View,
		Sampler:   tex.Sampler,
	}})
	core.LogDebug("texture %s uploaded (%dx%d, %d mips)", name, img.width, img.height, tex.MipLevels)
	return &TextureRecord{Name: name, Texture: tex, Set: set}, nil
}

// GetOrCreateMesh uploads the vertex and index buffers of src once per key.
func (rc *ResourceCache) GetOrCreateMesh(src *metadata.MeshSource) (*MeshRecord, uint32, error) {
	return rc.Meshes.GetOrCreate(src.Key, func() (*MeshRecord, error) {
		if len(src.Vertices) == 0 || len(src.Indices) == 0 {
			return nil, fmt.Errorf("mesh %s has no geometry", src.Key)
		}
		_, texSlot, err := rc.GetOrCreateTexture(src.TexturePath)
		if err != nil {
			return nil, err
		}
		vertices, err := rc.factory.UploadBuffer(bytesOf(src.Vertices), metadata.BufferUsageVertexBuffer, rc.registry)
		if err != nil {
			return nil, fmt.Errorf("mesh %s vertices: %w", src.Key, err)
		}
		indices, err := rc.factory.UploadBuffer(bytesOf(src.Indices), metadata.BufferUsageIndexBuffer, rc.registry)
		if err != nil {
			return nil, fmt.Errorf("mesh %s indices: %w", src.Key, err)
		}
		core.LogDebug("mesh %s uploaded (%d vertices, %d indices)", src.Key, len(src.Vertices), len(src.Indices))
		root := src.Transform
		if root == (math.Mat4{}) {
			root = math.NewMat4Identity()
		}
		return &MeshRecord{
			Source:      src,
			Root:        root,
			Vertices:    vertices,
			Indices:     indices,
			IndexCount:  uint32(len(src.Indices)),
			TextureSlot: texSlot,
		}, nil
	})
}

// GetOrCreateMaterial builds the pipeline of the configured material name once.
func (rc *ResourceCache) GetOrCreateMaterial(name string) (*Material, uint32, error) {
	return rc.Materials.GetOrCreate(name, func() (*Material, error) {
		mc, ok := rc.cfg.material(name)
		if !ok {
			return nil, fmt.Errorf("material %q is not configured", name)
		}
		return rc.buildMaterial(mc)
	})
}

// mergeBindings unions the reflected bindings of every stage per set, sorted
// by binding number.
func mergeBindings(binaries ...*metadata.ShaderBinary) (map[uint32][]metadata.DescriptorBinding, error) {
	sets := make(map[uint32][]metadata.DescriptorBinding)
	for _, bin := range binaries {
		for _, b := range bin.Bindings {
			bindings := sets[b.Set]
			found := false
			for i := range bindings {
				if bindings[i].Binding != b.Binding {
					continue
				}
				if bindings[i].Type != b.Type {
					return nil, fmt.Errorf("set %d binding %d declared as %d and %d", b.Set, b.Binding, bindings[i].Type, b.Type)
				}
				bindings[i].Stages |= bin.Stage
				found = true
			}
			if !found {
				bindings = append(bindings, metadata.DescriptorBinding{
					Binding: b.Binding,
					Type:    b.Type,
					Count:   max(b.Count, 1),
					Stages:  bin.Stage,
				})
			}
			sets[b.Set] = bindings
		}
	}
	for _, bindings := range sets {
		sort.Slice(bindings, func(i, j int) bool { return bindings[i].Binding < bindings[j].Binding })
	}
	return sets, nil
}

// checkSetConvention verifies the shaders only use the bindings the renderer
// provides: per-frame object data in set 0 and the mesh texture in set 1.
func checkSetConvention(sets map[uint32][]metadata.DescriptorBinding) error {
	expected := map[uint32]metadata.DescriptorType{
		objectDataSet: metadata.DescriptorTypeStorageBuffer,
		textureSet:    metadata.DescriptorTypeCombinedImageSampler,
	}
	for set, bindings := range sets {
		want, ok := expected[set]
		if !ok {
			return fmt.Errorf("descriptor set %d is not provided by the renderer", set)
		}
		for _, b := range bindings {
			if b.Binding != 0 || b.Type != want {
				return fmt.Errorf("set %d binding %d of type %d is not provided by the renderer", set, b.Binding, b.Type)
			}
		}
	}
	return nil
}

func (rc *ResourceCache) buildMaterial(mc MaterialConfig) (*Material, error) {
	vert, err := rc.shaders.LoadShader(mc.VertexShader)
	if err != nil {
		return nil, fmt.Errorf("material %s: %w", mc.Name, err)
	}
	frag, err := rc.shaders.LoadShader(mc.FragmentShader)
	if err != nil {
		return nil, fmt.Errorf("material %s: %w", mc.Name, err)
	}
	sets, err := mergeBindings(vert, frag)
	if err != nil {
		return nil, fmt.Errorf("material %s: %w", mc.Name, err)
	}
	if err := checkSetConvention(sets); err != nil {
		return nil, fmt.Errorf("material %s: %w", mc.Name, err)
	}

	var stages metadata.ShaderStageFlags
	for _, bin := range []*metadata.ShaderBinary{vert, frag} {
		if bin.PushConstantSize > pushConstantSize {
			return nil, fmt.Errorf("material %s: %s declares %d bytes of push constants, %d are provided",
				mc.Name, bin.Name, bin.PushConstantSize, pushConstantSize)
		}
		if bin.PushConstantSize > 0 {
			stages |= bin.Stage
		}
	}
	if stages == 0 {
		stages = metadata.ShaderStageVertex
	}

	// Modules are only needed until the pipeline exists.
	vertModule, err := rc.factory.CreateShaderModule(vert.Code, nil)
	if err != nil {
		return nil, err
	}
	defer rc.be.DestroyShaderModule(vertModule)
	fragModule, err := rc.factory.CreateShaderModule(frag.Code, nil)
	if err != nil {
		return nil, err
	}
	defer rc.be.DestroyShaderModule(fragModule)

	layout, err := rc.factory.CreatePipelineLayout(metadata.PipelineLayoutConfig{
		SetLayouts: []metadata.DescriptorSetLayout{rc.objLayout, rc.texLayout},
		PushConstants: []metadata.PushConstantRange{
			{Stages: stages, Offset: 0, Size: pushConstantSize},
		},
	}, rc.registry)
	if err != nil {
		return nil, err
	}

	pipeline, err := rc.factory.CreateGraphicsPipeline(metadata.PipelineConfig{
		Layout:        layout,
		RenderPass:    rc.passFn(),
		Vertex:        vertModule,
		Fragment:      fragModule,
		VertexStride:  metadata.VertexStride,
		Attributes:    vertexAttributes,
		Samples:       rc.device.Samples,
		SampleShading: rc.device.Samples > metadata.SampleCount1,
		DepthTest:     true,
		CullBackFaces: true,
	}, rc.registry)
	if err != nil {
		return nil, err
	}
	core.LogInfo("material %s created", mc.Name)
	return &Material{Name: mc.Name, Pipeline: pipeline, Layout: layout, PushConstantStages: stages}, nil
}

// vertexAttributes matches metadata.Vertex.
var vertexAttributes = []metadata.VertexAttribute{
	{Location: 0, Format: metadata.FormatR32G32B32Sfloat, Offset: 0},
	{Location: 1, Format: metadata.FormatR32G32B32Sfloat, Offset: 12},
	{Location: 2, Format: metadata.FormatR32G32B32Sfloat, Offset: 24},
	{Location: 3, Format: metadata.FormatR32G32Sfloat, Offset: 36},
}
