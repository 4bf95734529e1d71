package renderer

import (
	"unsafe"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// RenderObject is one drawable instance: cached mesh and material slots and
// the transform it follows.
type RenderObject struct {
	Mesh      uint32
	Material  uint32
	Transform metadata.TransformHandle
}

// DrawBatch is a run of adjacent objects sharing mesh and material.
type DrawBatch struct {
	Mesh     uint32
	Material uint32
	// First is the index of the first object of the run, Count its length.
	First int
	Count int
}

// pushConstants is the per-draw block every material receives.
type pushConstants struct {
	Model    math.Mat4
	ViewProj math.Mat4
	LightDir math.Vec4
}

const pushConstantSize = uint32(unsafe.Sizeof(pushConstants{}))

// objectData is one entry of the per-frame storage buffer, indexed by
// gl_InstanceIndex in the shaders.
type objectData struct {
	Model math.Mat4
}

const objectDataSize = uint64(unsafe.Sizeof(objectData{}))

// compactDraws merges adjacent objects with the same mesh and material.
func compactDraws(objects []RenderObject) []DrawBatch {
	batches := make([]DrawBatch, 0, len(objects))
	for i, obj := range objects {
		if n := len(batches); n > 0 {
			last := &batches[n-1]
			if last.Mesh == obj.Mesh && last.Material == obj.Material {
				last.Count++
				continue
			}
		}
		batches = append(batches, DrawBatch{Mesh: obj.Mesh, Material: obj.Material, First: i, Count: 1})
	}
	return batches
}

// drawResources resolves cache slots for the assembler.
type drawResources interface {
	mesh(slot uint32) *MeshRecord
	material(slot uint32) *Material
	textureSet(slot uint32) metadata.DescriptorSet
}

func (rc *ResourceCache) mesh(slot uint32) *MeshRecord {
	return rc.Meshes.At(slot)
}

func (rc *ResourceCache) material(slot uint32) *Material {
	return rc.Materials.At(slot)
}

func (rc *ResourceCache) textureSet(slot uint32) metadata.DescriptorSet {
	return rc.Textures.At(slot).Set
}

// frameInputs is everything recordFrame reads.
type frameInputs struct {
	RenderPass  metadata.RenderPass
	Framebuffer metadata.Framebuffer
	Extent      metadata.Extent2D
	ClearColor  [4]float32
	ObjectSet   metadata.DescriptorSet
	Models      []math.Mat4
	Batches     []DrawBatch
	ViewProj    math.Mat4
	LightDir    math.Vec3
}

type frameCounters struct {
	Draws         int
	PipelineBinds int
	GeometryBinds int
}

// recordFrame records one render pass drawing every batch. The command buffer
// must be in the recording state.
func recordFrame(rec CommandRecorder, cb metadata.CommandBuffer, res drawResources, in frameInputs) frameCounters {
	var counters frameCounters

	rec.CmdSetViewportScissor(cb, in.Extent)
	rec.CmdBeginRenderPass(cb, metadata.RenderPassBegin{
		RenderPass:  in.RenderPass,
		Framebuffer: in.Framebuffer,
		Extent:      in.Extent,
		ClearColor:  in.ClearColor,
		ClearDepth:  1.0,
	})

	pc := pushConstants{ViewProj: in.ViewProj, LightDir: in.LightDir.ToVec4(0)}
	var (
		boundMaterial *Material
		boundMesh     *MeshRecord
	)
	for _, batch := range in.Batches {
		material := res.material(batch.Material)
		mesh := res.mesh(batch.Mesh)

		if material != boundMaterial {
			rec.CmdBindPipeline(cb, material.Pipeline)
			rec.CmdBindDescriptorSets(cb, material.Layout, objectDataSet, []metadata.DescriptorSet{in.ObjectSet})
			boundMaterial = material
			boundMesh = nil
			counters.PipelineBinds++
		}
		if mesh != boundMesh {
			rec.CmdBindVertexBuffer(cb, mesh.Vertices.Handle)
			rec.CmdBindIndexBuffer(cb, mesh.Indices.Handle, metadata.IndexTypeUint32)
			rec.CmdBindDescriptorSets(cb, material.Layout, textureSet, []metadata.DescriptorSet{res.textureSet(mesh.TextureSlot)})
			boundMesh = mesh
			counters.GeometryBinds++
		}

		for i := batch.First; i < batch.First+batch.Count; i++ {
			pc.Model = in.Models[i]
			rec.CmdPushConstants(cb, material.Layout, material.PushConstantStages, 0,
				unsafe.Slice((*byte)(unsafe.Pointer(&pc)), pushConstantSize))
			rec.CmdDrawIndexed(cb, metadata.DrawIndexed{
				IndexCount:    mesh.IndexCount,
				InstanceCount: 1,
				FirstIndex:    0,
				VertexOffset:  0,
				FirstInstance: uint32(i),
			})
			counters.Draws++
		}
	}

	rec.CmdEndRenderPass(cb)
	return counters
}

// objectModels resolves the world matrix of every object, premultiplied by
// its mesh's model-space root transform.
func objectModels(dst []math.Mat4, objects []RenderObject, res drawResources, transforms metadata.TransformStore) []math.Mat4 {
	dst = dst[:0]
	for _, obj := range objects {
		root := res.mesh(obj.Mesh).Root
		dst = append(dst, root.Mul(transforms.World(obj.Transform)))
	}
	return dst
}
