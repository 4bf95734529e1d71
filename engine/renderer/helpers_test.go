package renderer

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"
	"sync"
	"testing"
	"unsafe"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/systems"
	"github.com/stretchr/testify/require"
)

var _ Backend = (*headless.Backend)(nil)

func init() {
	core.SetLogOutput(io.Discard)
}

type fakeWindow struct {
	width, height int
}

func (w *fakeWindow) GetFramebufferSize() (int, int) {
	return w.width, w.height
}

func (w *fakeWindow) CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error) {
	return 0, nil
}

// fakeTextures serves small gradient images and counts decodes per path.
type fakeTextures struct {
	mu      sync.Mutex
	size    int
	missing map[string]bool
	loads   map[string]int
}

func newFakeTextures(size int) *fakeTextures {
	return &fakeTextures{size: size, missing: make(map[string]bool), loads: make(map[string]int)}
}

func (f *fakeTextures) LoadImage(path string) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[path]++
	if f.missing[path] {
		return nil, fmt.Errorf("%s: no such file", path)
	}
	img := image.NewNRGBA(image.Rect(0, 0, f.size, f.size))
	for y := 0; y < f.size; y++ {
		for x := 0; x < f.size; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xFF})
		}
	}
	return img, nil
}

func (f *fakeTextures) Loads(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[path]
}

// fakeShaders hands out binaries following the renderer's set layout.
type fakeShaders struct {
	loads map[string]int
	// bindings overrides the reflected bindings of a path.
	bindings map[string][]metadata.ShaderBinding
}

func newFakeShaders() *fakeShaders {
	return &fakeShaders{loads: make(map[string]int), bindings: make(map[string][]metadata.ShaderBinding)}
}

func (f *fakeShaders) LoadShader(path string) (*metadata.ShaderBinary, error) {
	f.loads[path]++
	bin := &metadata.ShaderBinary{
		Name:       path,
		EntryPoint: "main",
		Code:       []uint32{0x07230203, 0x00010000, 0, 16, 0},
	}
	if strings.HasSuffix(path, ".vert.spv") {
		bin.Stage = metadata.ShaderStageVertex
		bin.PushConstantSize = pushConstantSize
		bin.Bindings = []metadata.ShaderBinding{
			{Set: objectDataSet, Binding: 0, Type: metadata.DescriptorTypeStorageBuffer, Count: 1, Name: "objects"},
		}
	} else {
		bin.Stage = metadata.ShaderStageFragment
		bin.Bindings = []metadata.ShaderBinding{
			{Set: textureSet, Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1, Name: "texSampler"},
		}
	}
	if b, ok := f.bindings[path]; ok {
		bin.Bindings = b
	}
	return bin, nil
}

type fakeTransforms struct {
	worlds []math.Mat4
}

func (f *fakeTransforms) Add(m math.Mat4) metadata.TransformHandle {
	f.worlds = append(f.worlds, m)
	return metadata.TransformHandle(len(f.worlds) - 1)
}

func (f *fakeTransforms) World(h metadata.TransformHandle) math.Mat4 {
	return f.worlds[h]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ApplicationName = "renderer test"
	cfg.Backend = "headless"
	cfg.FramesInFlight = 2
	cfg.MaxTextures = 8
	cfg.MaxMeshes = 8
	cfg.MaxMaterials = 2
	cfg.MaxObjects = 64
	cfg.DecodeWorkers = 2
	cfg.Materials = append(cfg.Materials, MaterialConfig{
		Name:           "unlit",
		VertexShader:   "shaders/unlit.vert.spv",
		FragmentShader: "shaders/unlit.frag.spv",
	})
	return cfg
}

type harness struct {
	r          *Renderer
	be         *headless.Backend
	window     *fakeWindow
	textures   *fakeTextures
	shaders    *fakeShaders
	transforms *fakeTransforms
}

func newHarness(t *testing.T, opts headless.Options, cfg Config) *harness {
	t.Helper()
	jobs, err := systems.NewJobSystem(cfg.DecodeWorkers, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobs.Shutdown() })

	h := &harness{
		be:         headless.New(opts),
		window:     &fakeWindow{width: 800, height: 600},
		textures:   newFakeTextures(4),
		shaders:    newFakeShaders(),
		transforms: &fakeTransforms{},
	}
	h.r, err = New(h.be, cfg, h.textures, h.shaders, h.transforms, jobs)
	require.NoError(t, err)
	return h
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	require.NoError(t, h.r.Init(h.window))
	t.Cleanup(h.r.Term)
}

func cube(path string, index int, texture string) *metadata.MeshSource {
	return &metadata.MeshSource{
		Key: metadata.MeshKey{Path: path, Index: index},
		Vertices: []metadata.Vertex{
			{Position: math.NewVec3(-1, -1, 0), UV: math.NewVec2(0, 0)},
			{Position: math.NewVec3(1, -1, 0), UV: math.NewVec2(1, 0)},
			{Position: math.NewVec3(1, 1, 0), UV: math.NewVec2(1, 1)},
			{Position: math.NewVec3(-1, 1, 0), UV: math.NewVec2(0, 1)},
		},
		Indices:     []uint32{0, 1, 2, 2, 3, 0},
		TexturePath: texture,
	}
}

func testCamera() metadata.Camera {
	return metadata.Camera{
		View:       math.NewMat4LookAt(math.NewVec3(0, 0, 5), math.NewVec3Zero(), math.NewVec3Up()),
		Projection: math.NewMat4Perspective(math.DegToRad(45), 800.0/600.0, 0.1, 100),
	}
}

func testSun() metadata.Light {
	return metadata.Light{Direction: math.NewVec3(0, -1, 0)}
}
