package scene

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// cube faces as (normal, u axis, v axis)
var cubeFaces = [6][3]math.Vec3{
	{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
	{{X: 0, Y: 0, Z: -1}, {X: -1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
	{{X: 1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: -1}, {X: 0, Y: 1, Z: 0}},
	{{X: -1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 0}},
	{{X: 0, Y: 1, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: -1}},
	{{X: 0, Y: -1, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 1}},
}

// NewCubeMesh builds an axis aligned cube of the given edge length centered
// on the origin, with counter-clockwise faces and one texture per face.
func NewCubeMesh(key metadata.MeshKey, size float32, texturePath string) *metadata.MeshSource {
	half := size * 0.5
	mesh := &metadata.MeshSource{
		Key:         key,
		Vertices:    make([]metadata.Vertex, 0, 24),
		Indices:     make([]uint32, 0, 36),
		TexturePath: texturePath,
		Transform:   math.NewMat4Identity(),
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, face := range cubeFaces {
		normal, u, v := face[0], face[1], face[2]
		base := uint32(len(mesh.Vertices))
		for _, c := range corners {
			pos := normal.Add(u.MulScalar(c[0])).Add(v.MulScalar(c[1])).MulScalar(half)
			mesh.Vertices = append(mesh.Vertices, metadata.Vertex{
				Position: pos,
				Normal:   normal,
				Color:    math.NewVec3One(),
				UV:       math.NewVec2((c[0]+1)*0.5, 1-(c[1]+1)*0.5),
			})
		}
		mesh.Indices = append(mesh.Indices, base, base+1, base+2, base+2, base+3, base)
	}
	return mesh
}
