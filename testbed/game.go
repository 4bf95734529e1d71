package testbed

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/scene"
)

const (
	moveSpeed float32 = 10.0
	turnSpeed float32 = 1.0
	spinSpeed float32 = 0.5
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	services *engine.Services
	camera   *components.Camera
	sun      *components.Sun

	// transforms of the spinning cube chain, root first
	cubes []metadata.TransformHandle

	sunKeyID uint64
}

// cube describes one entry of the demo chain; each cube orbits its predecessor.
type cube struct {
	size    float32
	offset  math.Vec3
	texture string
}

var cubeChain = []cube{
	{size: 10, offset: math.NewVec3Zero(), texture: "textures/checker.png"},
	{size: 5, offset: math.NewVec3(10, 0, 1)},
	{size: 2, offset: math.NewVec3(5, 0, 1), texture: "textures/checker.png"},
}

func NewTestGame(cfg *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: cfg,
			State: &gameState{
				camera: components.NewCamera(),
				sun:    components.NewSun(),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize(services *engine.Services) error {
	core.LogDebug("TestGame Initialize fn....")

	state := g.State.(*gameState)
	state.services = services
	state.camera.SetPosition(math.NewVec3(10.5, 5.0, 30))

	objects := make([]metadata.SceneObject, 0, len(cubeChain))
	parent := scene.NoParent
	for i, c := range cubeChain {
		h, err := services.Transforms.Add(math.NewTransformFromPosition(c.offset), parent)
		if err != nil {
			return err
		}
		state.cubes = append(state.cubes, h)
		parent = h

		key := metadata.MeshKey{Path: fmt.Sprintf("cube_%d", i)}
		objects = append(objects, metadata.SceneObject{
			Meshes:    []*metadata.MeshSource{scene.NewCubeMesh(key, c.size, c.texture)},
			Transform: h,
		})
	}
	if err := services.Renderer.AddRenderingObjectsFromEntities(objects); err != nil {
		core.LogError("failed to add the test cubes: %s", err)
		return err
	}

	state.sunKeyID = services.Events.Register(core.EVENT_CODE_KEY_PRESSED, g.onKey)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	input := state.services.Input
	dt := float32(deltaTime)

	if input.IsKeyDown(core.KEY_A) {
		state.camera.Yaw(turnSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_D) {
		state.camera.Yaw(-turnSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_W) {
		state.camera.MoveForward(moveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_S) {
		state.camera.MoveBackward(moveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_SPACE) {
		state.camera.MoveUp(moveSpeed * dt)
	}

	// Spin every cube; children inherit their parent's rotation on top of their own.
	rotation := math.NewQuatFromAxisAngle(math.NewVec3Up(), spinSpeed*dt, false)
	for _, h := range state.cubes {
		state.services.Transforms.Rotate(h, rotation)
	}
	return nil
}

func (g *TestGame) Render(deltaTime float64) (metadata.Camera, metadata.Light, error) {
	state := g.State.(*gameState)
	return state.camera.Metadata(), state.sun.Light(), nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.camera.SetAspect(int(width), int(height))
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	if state.services != nil {
		state.services.Events.Unregister(core.EVENT_CODE_KEY_PRESSED, state.sunKeyID)
	}
	return nil
}

// onKey moves the sun one step per key press: E forward, Q back.
func (g *TestGame) onKey(context core.EventContext) bool {
	state := g.State.(*gameState)
	switch context.KeyCode {
	case core.KEY_E:
		state.sun.Advance(1)
	case core.KEY_Q:
		state.sun.Advance(-1)
	default:
		return false
	}
	core.LogDebug("sun day time %.2f", state.sun.DayTime)
	return true
}
