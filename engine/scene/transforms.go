package scene

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// NoParent marks a root transform.
const NoParent = metadata.TransformHandle(^uint32(0))

type node struct {
	transform math.Transform
	parent    metadata.TransformHandle
}

// TransformStore is an append-only arena of transforms. Handles stay valid
// for the lifetime of the store, so the renderer can keep them in its draw
// list while the game mutates the transforms between frames.
type TransformStore struct {
	mu    sync.RWMutex
	nodes []node
}

func NewTransformStore() *TransformStore {
	return &TransformStore{}
}

// Add stores t and returns its handle. parent must be NoParent or a handle
// that already exists.
func (s *TransformStore) Add(t math.Transform, parent metadata.TransformHandle) (metadata.TransformHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parent != NoParent && int(parent) >= len(s.nodes) {
		return 0, fmt.Errorf("parent transform %d does not exist", parent)
	}
	s.nodes = append(s.nodes, node{transform: t, parent: parent})
	return metadata.TransformHandle(len(s.nodes) - 1), nil
}

func (s *TransformStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Update runs fn on the transform behind h.
func (s *TransformStore) Update(h metadata.TransformHandle, fn func(t *math.Transform)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.nodes[h].transform)
}

func (s *TransformStore) Translate(h metadata.TransformHandle, v math.Vec3) {
	s.Update(h, func(t *math.Transform) { t.Translate(v) })
}

func (s *TransformStore) Rotate(h metadata.TransformHandle, q math.Quaternion) {
	s.Update(h, func(t *math.Transform) { t.Rotate(q) })
}

// World returns the local matrix of h followed by those of its ancestors.
// Parents always precede their children in the arena, so the walk ends.
func (s *TransformStore) World(h metadata.TransformHandle) math.Mat4 {
	s.mu.Lock()
	defer s.mu.Unlock()

	world := s.nodes[h].transform.Local()
	for p := s.nodes[h].parent; p != NoParent; p = s.nodes[p].parent {
		world = world.Mul(s.nodes[p].transform.Local())
	}
	return world
}
