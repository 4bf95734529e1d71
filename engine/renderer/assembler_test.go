package renderer

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactDrawsSameObjects(t *testing.T) {
	for _, n := range []int{1, 2, 17, 500} {
		objects := make([]RenderObject, n)
		for i := range objects {
			objects[i] = RenderObject{Mesh: 3, Material: 1, Transform: metadata.TransformHandle(i)}
		}
		batches := compactDraws(objects)
		require.Len(t, batches, 1, "n=%d", n)
		assert.Equal(t, DrawBatch{Mesh: 3, Material: 1, First: 0, Count: n}, batches[0])
	}
	assert.Empty(t, compactDraws(nil))
}

func TestCompactDrawsNoAdjacentMatches(t *testing.T) {
	objects := []RenderObject{
		{Mesh: 0, Material: 0},
		{Mesh: 1, Material: 0},
		{Mesh: 0, Material: 0},
		{Mesh: 0, Material: 1},
		{Mesh: 1, Material: 1},
	}
	batches := compactDraws(objects)
	require.Len(t, batches, len(objects))
	for i, b := range batches {
		assert.Equal(t, i, b.First)
		assert.Equal(t, 1, b.Count)
	}
}

func TestCompactDrawsCoversEveryObjectInOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		objects := make([]RenderObject, rng.Intn(64))
		for i := range objects {
			objects[i] = RenderObject{Mesh: uint32(rng.Intn(3)), Material: uint32(rng.Intn(2))}
		}
		batches := compactDraws(objects)

		next := 0
		for i, b := range batches {
			assert.Equal(t, next, b.First, "round %d", round)
			for j := b.First; j < b.First+b.Count; j++ {
				assert.Equal(t, b.Mesh, objects[j].Mesh)
				assert.Equal(t, b.Material, objects[j].Material)
			}
			if i > 0 {
				prev := batches[i-1]
				assert.False(t, prev.Mesh == b.Mesh && prev.Material == b.Material, "adjacent batches should have merged")
			}
			next += b.Count
		}
		assert.Equal(t, len(objects), next)
	}
}

func TestPushConstantLayout(t *testing.T) {
	assert.EqualValues(t, 144, pushConstantSize)
	assert.EqualValues(t, 64, objectDataSize)
}

type fakeResources struct {
	meshes    []*MeshRecord
	materials []*Material
	sets      []metadata.DescriptorSet
}

func (f *fakeResources) mesh(slot uint32) *MeshRecord                  { return f.meshes[slot] }
func (f *fakeResources) material(slot uint32) *Material                { return f.materials[slot] }
func (f *fakeResources) textureSet(slot uint32) metadata.DescriptorSet { return f.sets[slot] }

// callRecorder keeps a readable trace of the recorded commands.
type callRecorder struct {
	calls []string
	draws []metadata.DrawIndexed
	push  [][]byte
}

func (c *callRecorder) add(format string, args ...interface{}) {
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *callRecorder) CmdCopyBuffer(metadata.CommandBuffer, metadata.BufferCopy) { c.add("copy") }
func (c *callRecorder) CmdCopyBufferToImage(metadata.CommandBuffer, metadata.BufferImageCopy) {
	c.add("copy image")
}
func (c *callRecorder) CmdImageBarrier(metadata.CommandBuffer, metadata.ImageBarrier) {
	c.add("barrier")
}
func (c *callRecorder) CmdBlitImage(metadata.CommandBuffer, metadata.ImageBlit) { c.add("blit") }
func (c *callRecorder) CmdBeginRenderPass(_ metadata.CommandBuffer, b metadata.RenderPassBegin) {
	c.add("begin pass %d fb %d", b.RenderPass, b.Framebuffer)
}
func (c *callRecorder) CmdEndRenderPass(metadata.CommandBuffer) { c.add("end pass") }
func (c *callRecorder) CmdSetViewportScissor(_ metadata.CommandBuffer, e metadata.Extent2D) {
	c.add("viewport %dx%d", e.Width, e.Height)
}
func (c *callRecorder) CmdBindPipeline(_ metadata.CommandBuffer, p metadata.Pipeline) {
	c.add("pipeline %d", p)
}
func (c *callRecorder) CmdBindVertexBuffer(_ metadata.CommandBuffer, b metadata.Buffer) {
	c.add("vertices %d", b)
}
func (c *callRecorder) CmdBindIndexBuffer(_ metadata.CommandBuffer, b metadata.Buffer, _ metadata.IndexType) {
	c.add("indices %d", b)
}
func (c *callRecorder) CmdBindDescriptorSets(_ metadata.CommandBuffer, _ metadata.PipelineLayout, first uint32, sets []metadata.DescriptorSet) {
	c.add("set %d = %v", first, sets)
}
func (c *callRecorder) CmdPushConstants(_ metadata.CommandBuffer, _ metadata.PipelineLayout, _ metadata.ShaderStageFlags, _ uint32, data []byte) {
	c.push = append(c.push, append([]byte(nil), data...))
}
func (c *callRecorder) CmdDrawIndexed(_ metadata.CommandBuffer, d metadata.DrawIndexed) {
	c.draws = append(c.draws, d)
	c.add("draw %d", d.FirstInstance)
}

func TestRecordFrameBindsOnChange(t *testing.T) {
	res := &fakeResources{
		meshes: []*MeshRecord{
			{Vertices: &GPUBuffer{Handle: 10}, Indices: &GPUBuffer{Handle: 11}, IndexCount: 36, TextureSlot: 0},
			{Vertices: &GPUBuffer{Handle: 20}, Indices: &GPUBuffer{Handle: 21}, IndexCount: 6, TextureSlot: 1},
		},
		materials: []*Material{
			{Pipeline: 100, Layout: 101, PushConstantStages: metadata.ShaderStageVertex},
			{Pipeline: 200, Layout: 201, PushConstantStages: metadata.ShaderStageVertex},
		},
		sets: []metadata.DescriptorSet{50, 51},
	}
	objects := []RenderObject{
		{Mesh: 0, Material: 0},
		{Mesh: 0, Material: 0},
		{Mesh: 1, Material: 0},
		{Mesh: 1, Material: 1},
	}
	models := make([]math.Mat4, len(objects))
	for i := range models {
		models[i] = math.NewMat4Translation(math.NewVec3(float32(i), 0, 0))
	}

	rec := &callRecorder{}
	counters := recordFrame(rec, 1, res, frameInputs{
		RenderPass:  7,
		Framebuffer: 8,
		Extent:      metadata.Extent2D{Width: 320, Height: 200},
		ObjectSet:   40,
		Models:      models,
		Batches:     compactDraws(objects),
		ViewProj:    math.NewMat4Identity(),
		LightDir:    math.NewVec3(0, -1, 0),
	})

	assert.Equal(t, []string{
		"viewport 320x200",
		"begin pass 7 fb 8",
		"pipeline 100",
		"set 0 = [40]",
		"vertices 10",
		"indices 11",
		"set 1 = [50]",
		"draw 0",
		"draw 1",
		"vertices 20",
		"indices 21",
		"set 1 = [51]",
		"draw 2",
		"pipeline 200",
		"set 0 = [40]",
		"vertices 20",
		"indices 21",
		"set 1 = [51]",
		"draw 3",
		"end pass",
	}, rec.calls)
	assert.Equal(t, frameCounters{Draws: 4, PipelineBinds: 2, GeometryBinds: 3}, counters)

	require.Len(t, rec.push, 4)
	for i, data := range rec.push {
		assert.Len(t, data, int(pushConstantSize))
		assert.Equal(t, bytesOf(models[i:i+1]), data[:64], "model of object %d", i)
	}
	assert.EqualValues(t, 36, rec.draws[0].IndexCount)
	assert.EqualValues(t, 6, rec.draws[3].IndexCount)
}

func TestRecordFrameWithoutObjects(t *testing.T) {
	rec := &callRecorder{}
	counters := recordFrame(rec, 1, &fakeResources{}, frameInputs{Extent: metadata.Extent2D{Width: 1, Height: 1}})
	assert.Equal(t, []string{"viewport 1x1", "begin pass 0 fb 0", "end pass"}, rec.calls)
	assert.Zero(t, counters.Draws)
}

func TestObjectModelsApplyMeshRoot(t *testing.T) {
	root := math.NewMat4Scale(math.NewVec3(2, 2, 2))
	res := &fakeResources{meshes: []*MeshRecord{{Root: root}}}
	transforms := &fakeTransforms{}
	world := math.NewMat4Translation(math.NewVec3(1, 2, 3))
	h := transforms.Add(world)

	models := objectModels(nil, []RenderObject{{Mesh: 0, Transform: h}, {Mesh: 0, Transform: h}}, res, transforms)
	require.Len(t, models, 2)
	assert.Equal(t, root.Mul(world), models[0])

	// the destination slice is reused
	again := objectModels(models, []RenderObject{{Mesh: 0, Transform: h}}, res, transforms)
	assert.Len(t, again, 1)
	assert.Same(t, &models[0], &again[0])
}
