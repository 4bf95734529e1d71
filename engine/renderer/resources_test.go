package renderer

import (
	"image"
	"image/color"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTextureIsSlotZero(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	rc := h.r.resources

	rec, slot, ok := rc.Textures.Get("")
	require.True(t, ok)
	assert.EqualValues(t, 0, slot)
	assert.Contains(t, rec.Name, "default-")
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, h.be.ImagePixels(rec.Texture.Handle))

	assert.Error(t, rc.CreateDefaultTexture())
}

func TestMeshUploadedOncePerKey(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	uploads := h.r.factory.Uploads()

	tr := h.transforms.Add(math.NewMat4Identity())
	mesh := cube("crate.obj", 0, "crate.png")
	objects := []metadata.SceneObject{
		{Meshes: []*metadata.MeshSource{mesh}, Transform: tr},
		{Meshes: []*metadata.MeshSource{cube("crate.obj", 0, "crate.png")}, Transform: tr},
	}
	require.NoError(t, h.r.AddRenderingObjectsFromEntities(objects))
	require.NoError(t, h.r.AddRenderingObjectsFromEntities(objects))

	stats := h.r.Stats()
	assert.Equal(t, 4, stats.Objects)
	assert.Equal(t, 1, stats.Meshes)
	assert.Equal(t, 2, stats.Textures)
	// one texture plus vertex and index buffers
	assert.Equal(t, uploads+3, stats.Uploads)
	assert.Equal(t, 1, h.textures.Loads("crate.png"))

	rec, _, ok := h.r.resources.Meshes.Get(mesh.Key)
	require.True(t, ok)
	assert.Equal(t, math.NewMat4Identity(), rec.Root)
	assert.EqualValues(t, 6, rec.IndexCount)
	assert.EqualValues(t, 1, rec.TextureSlot)
}

func TestMeshWithoutTextureUsesDefault(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)

	rec, _, err := h.r.resources.GetOrCreateMesh(cube("plain.obj", 0, ""))
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.TextureSlot)
	assert.Zero(t, h.textures.Loads(""))
}

func TestMeshWithoutGeometryFails(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)

	empty := &metadata.MeshSource{Key: metadata.MeshKey{Path: "empty.obj"}}
	_, _, err := h.r.resources.GetOrCreateMesh(empty)
	assert.Error(t, err)
	assert.Equal(t, 0, h.r.resources.Meshes.Len())
}

func TestMissingTextureFailsMesh(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	h.textures.missing["gone.png"] = true

	tr := h.transforms.Add(math.NewMat4Identity())
	err := h.r.AddRenderingObjectsFromEntities([]metadata.SceneObject{
		{Meshes: []*metadata.MeshSource{cube("gone.obj", 0, "gone.png")}, Transform: tr},
	})
	assert.Error(t, err)
	assert.Equal(t, 1, h.r.resources.Textures.Len())
	assert.Empty(t, h.be.Violations())
}

func TestPrefetchDecodesEachPathOnce(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	rc := h.r.resources

	rc.PrefetchTextures([]string{"a.png", "b.png", "a.png", ""})
	assert.Equal(t, 1, h.textures.Loads("a.png"))
	assert.Equal(t, 1, h.textures.Loads("b.png"))

	// decoded images are consumed by the upload, no second decode
	_, _, err := rc.GetOrCreateTexture("a.png")
	require.NoError(t, err)
	assert.Equal(t, 1, h.textures.Loads("a.png"))

	rc.PrefetchTextures([]string{"a.png"})
	assert.Equal(t, 1, h.textures.Loads("a.png"))
}

func TestMaterialCreatedOnce(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	rc := h.r.resources

	def, slot, err := rc.GetOrCreateMaterial(DefaultMaterialName)
	require.NoError(t, err)
	assert.EqualValues(t, 0, slot)
	assert.Equal(t, metadata.ShaderStageVertex, def.PushConstantStages)

	again, _, err := rc.GetOrCreateMaterial(DefaultMaterialName)
	require.NoError(t, err)
	assert.Same(t, def, again)
	assert.Equal(t, 1, h.shaders.loads["shaders/shader.vert.spv"])

	_, slot, err = rc.GetOrCreateMaterial("unlit")
	require.NoError(t, err)
	assert.EqualValues(t, 1, slot)

	_, _, err = rc.GetOrCreateMaterial("missing")
	assert.Error(t, err)

	// shader modules only live while the pipeline is built
	assert.Zero(t, h.be.LiveObjects()["shader module"])
}

func TestMaterialRejectsForeignDescriptorSets(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.shaders.bindings["shaders/unlit.frag.spv"] = []metadata.ShaderBinding{
		{Set: 2, Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1},
	}
	h.init(t)

	_, _, err := h.r.resources.GetOrCreateMaterial("unlit")
	assert.Error(t, err)
	assert.Equal(t, 1, h.r.resources.Materials.Len())
}

func TestMaterialCacheCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMaterials = 1
	h := newHarness(t, headless.DefaultOptions(), cfg)
	h.init(t)

	_, _, err := h.r.resources.GetOrCreateMaterial("unlit")
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
}

func TestMergeBindings(t *testing.T) {
	vert := &metadata.ShaderBinary{
		Stage: metadata.ShaderStageVertex,
		Bindings: []metadata.ShaderBinding{
			{Set: 0, Binding: 1, Type: metadata.DescriptorTypeUniformBuffer},
			{Set: 0, Binding: 0, Type: metadata.DescriptorTypeStorageBuffer, Count: 1},
		},
	}
	frag := &metadata.ShaderBinary{
		Stage: metadata.ShaderStageFragment,
		Bindings: []metadata.ShaderBinding{
			{Set: 0, Binding: 0, Type: metadata.DescriptorTypeStorageBuffer, Count: 1},
			{Set: 1, Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1},
		},
	}
	sets, err := mergeBindings(vert, frag)
	require.NoError(t, err)
	assert.Equal(t, []metadata.DescriptorBinding{
		{Binding: 0, Type: metadata.DescriptorTypeStorageBuffer, Count: 1, Stages: metadata.ShaderStageVertex | metadata.ShaderStageFragment},
		{Binding: 1, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Stages: metadata.ShaderStageVertex},
	}, sets[0])
	assert.Len(t, sets[1], 1)

	// set 0 binding 1 is not something the renderer provides
	assert.Error(t, checkSetConvention(sets))
	delete(sets, 0)
	assert.NoError(t, checkSetConvention(sets))

	frag.Bindings[0].Type = metadata.DescriptorTypeUniformBuffer
	_, err = mergeBindings(vert, frag)
	assert.Error(t, err)
}

func TestToRGBA(t *testing.T) {
	src := image.NewGray(image.Rect(2, 2, 4, 3))
	src.SetGray(2, 2, color.Gray{Y: 10})
	src.SetGray(3, 2, color.Gray{Y: 200})

	img := toRGBA(src)
	assert.EqualValues(t, 2, img.width)
	assert.EqualValues(t, 1, img.height)
	assert.Equal(t, []byte{10, 10, 10, 255, 200, 200, 200, 255}, img.pixels)
}
