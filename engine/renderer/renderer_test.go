package renderer

import (
	"testing"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesInputs(t *testing.T) {
	be := headless.New(headless.DefaultOptions())
	_, err := New(nil, testConfig(), nil, nil, &fakeTransforms{}, nil)
	assert.Error(t, err)
	_, err = New(be, testConfig(), nil, nil, nil, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.PresentMode = "sometimes"
	_, err = New(be, cfg, nil, nil, &fakeTransforms{}, nil)
	assert.Error(t, err)
}

func TestMethodsBeforeInit(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	assert.ErrorIs(t, h.r.Render(testCamera(), testSun(), 0), core.ErrNotInitialized)
	assert.ErrorIs(t, h.r.RecreateSwapchain(), core.ErrNotInitialized)
	assert.ErrorIs(t, h.r.AddRenderingObjectsFromEntities(nil), core.ErrNotInitialized)
	h.r.Term()
}

func TestInitTwiceFails(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	assert.Error(t, h.r.Init(h.window))
}

func TestTermRightAfterInitDoesNotBlock(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	require.NoError(t, h.r.Init(h.window))

	done := make(chan struct{})
	go func() {
		h.r.Term()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Term did not return")
	}
	assert.Empty(t, h.be.LiveObjects())
	assert.Empty(t, h.be.Violations())

	// a second Term is harmless
	h.r.Term()
}

func TestRenderAndTermReleaseEverything(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	require.NoError(t, h.r.Init(h.window))

	tr := h.transforms.Add(math.NewMat4Identity())
	require.NoError(t, h.r.AddRenderingObjectsFromEntities([]metadata.SceneObject{
		{Meshes: []*metadata.MeshSource{cube("a.obj", 0, "a.png"), cube("a.obj", 1, "")}, Transform: tr},
		{Meshes: []*metadata.MeshSource{cube("b.obj", 0, "b.png")}, Transform: tr},
	}, "unlit"))

	for i := 0; i < 4; i++ {
		require.NoError(t, h.r.Render(testCamera(), testSun(), 0.016))
	}
	stats := h.r.Stats()
	assert.EqualValues(t, 4, stats.Frames)
	assert.Equal(t, 3, stats.Draws)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 3, stats.Objects)
	assert.Equal(t, 2, stats.Materials)
	assert.Equal(t, 12, h.be.Stats().Draws)

	h.r.Term()
	assert.Empty(t, h.be.LiveObjects())
	assert.Empty(t, h.be.Violations())
}

func TestRenderWritesObjectModels(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)

	world := math.NewMat4Translation(math.NewVec3(4, 5, 6))
	tr := h.transforms.Add(world)
	require.NoError(t, h.r.AddRenderingObjectsFromEntities([]metadata.SceneObject{
		{Meshes: []*metadata.MeshSource{cube("a.obj", 0, "")}, Transform: tr},
	}))
	slot := h.r.frames.Current().Index
	require.NoError(t, h.r.Render(testCamera(), testSun(), 0.016))

	contents := h.be.BufferContents(h.r.frameData[slot].objects.Handle)
	assert.Equal(t, bytesOf([]math.Mat4{world}), contents[:objectDataSize])
}

func TestObjectCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxObjects = 2
	h := newHarness(t, headless.DefaultOptions(), cfg)
	h.init(t)

	tr := h.transforms.Add(math.NewMat4Identity())
	objects := []metadata.SceneObject{
		{Meshes: []*metadata.MeshSource{cube("a.obj", 0, ""), cube("a.obj", 1, "")}, Transform: tr},
	}
	require.NoError(t, h.r.AddRenderingObjectsFromEntities(objects))
	err := h.r.AddRenderingObjectsFromEntities(objects)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	assert.Equal(t, 2, h.r.Stats().Objects)
}

func TestResizeReportsOutOfDateThenRecovers(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	require.NoError(t, h.r.Render(testCamera(), testSun(), 0.016))

	h.window.width, h.window.height = 1024, 768
	err := h.r.Render(testCamera(), testSun(), 0.016)
	assert.ErrorIs(t, err, core.ErrSwapchainOutOfDate)

	require.NoError(t, h.r.RecreateSwapchain())
	assert.Equal(t, metadata.Extent2D{Width: 1024, Height: 768}, h.r.chain.Extent)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.r.Render(testCamera(), testSun(), 0.016))
	}
	assert.Equal(t, 2, h.be.Stats().SwapchainsCreated)
	assert.Empty(t, h.be.Violations())
}

func TestRebuildWithSameExtentKeepsRegistrySize(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	before := h.r.chain.Registry().Len()
	require.NotZero(t, before)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.r.Render(testCamera(), testSun(), 0.016))
		require.NoError(t, h.r.RecreateSwapchain())
		assert.Equal(t, before, h.r.chain.Registry().Len())
	}
	assert.Empty(t, h.be.Violations())
}

func TestMaterialsSurviveRebuild(t *testing.T) {
	h := newHarness(t, headless.DefaultOptions(), testConfig())
	h.init(t)
	tr := h.transforms.Add(math.NewMat4Identity())
	require.NoError(t, h.r.AddRenderingObjectsFromEntities([]metadata.SceneObject{
		{Meshes: []*metadata.MeshSource{cube("a.obj", 0, "")}, Transform: tr},
	}))
	pipelines := h.be.LiveObjects()["pipeline"]

	require.NoError(t, h.r.RecreateSwapchain())
	require.NoError(t, h.r.Render(testCamera(), testSun(), 0.016))
	assert.Equal(t, pipelines, h.be.LiveObjects()["pipeline"])
	assert.Empty(t, h.be.Violations())
}
