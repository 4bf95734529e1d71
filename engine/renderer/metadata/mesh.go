package metadata

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/math"
)

/** @brief Represents a single vertex in 3D space. */
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	Color    math.Vec3
	UV       math.Vec2
}

// Byte size of Vertex as laid out in vertex buffers.
const VertexStride uint32 = 44

// MeshKey identifies a mesh by source file and sub-mesh index.
type MeshKey struct {
	Path  string
	Index int
}

func (k MeshKey) String() string {
	return fmt.Sprintf("%s#%d", k.Path, k.Index)
}

/** @brief CPU-side mesh data handed over by the mesh importer. */
type MeshSource struct {
	Key      MeshKey
	Vertices []Vertex
	Indices  []uint32
	// TexturePath is empty when the mesh uses the default texture.
	TexturePath string
	// Transform is the model-space root transform of the sub-mesh.
	Transform math.Mat4
}

// TransformHandle indexes a transform owned by a TransformStore.
type TransformHandle uint32

// TransformStore resolves handles to world matrices. The renderer only reads it.
type TransformStore interface {
	World(h TransformHandle) math.Mat4
}

/** @brief An entity as seen by the renderer: its meshes and where it lives. */
type SceneObject struct {
	Meshes    []*MeshSource
	Transform TransformHandle
}

type Camera struct {
	View       math.Mat4
	Projection math.Mat4
}

type Light struct {
	Direction math.Vec3
}
