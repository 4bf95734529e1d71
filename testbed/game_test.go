package testbed

import (
	"io"
	"testing"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keys map[core.KeyCode]bool

func (k keys) IsKeyDown(key core.KeyCode) bool { return k[key] }

func newTestState(t *testing.T, pressed keys) (*TestGame, *gameState) {
	t.Helper()
	core.SetLogOutput(io.Discard)

	g := NewTestGame(engine.DefaultApplicationConfig())
	state := g.State.(*gameState)
	state.services = &engine.Services{
		Transforms: scene.NewTransformStore(),
		Events:     core.NewEventBus(),
		Input:      pressed,
	}
	h, err := state.services.Transforms.Add(math.NewTransform(), scene.NoParent)
	require.NoError(t, err)
	state.cubes = append(state.cubes, h)
	return g, state
}

func TestSunFollowsKeys(t *testing.T) {
	g, state := newTestState(t, keys{})
	start := state.sun.DayTime

	assert.True(t, g.onKey(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, KeyCode: core.KEY_E}))
	assert.InDelta(t, start+state.sun.Step, state.sun.DayTime, 1e-6)

	assert.True(t, g.onKey(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, KeyCode: core.KEY_Q}))
	assert.True(t, g.onKey(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, KeyCode: core.KEY_Q}))
	assert.InDelta(t, start-state.sun.Step, state.sun.DayTime, 1e-6)

	assert.False(t, g.onKey(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, KeyCode: core.KEY_W}))
}

func TestUpdateMovesCameraAndSpinsCubes(t *testing.T) {
	g, state := newTestState(t, keys{core.KEY_W: true})
	before := state.camera.GetPosition()
	world := state.services.Transforms.World(state.cubes[0])

	require.NoError(t, g.Update(0.5))

	assert.NotEqual(t, before, state.camera.GetPosition())
	assert.NotEqual(t, world, state.services.Transforms.World(state.cubes[0]))
}

func TestOnResizeUpdatesAspect(t *testing.T) {
	g, state := newTestState(t, keys{})
	require.NoError(t, g.OnResize(1600, 800))
	assert.InDelta(t, 2.0, state.camera.Aspect(), 1e-6)

	camera, sun, err := g.Render(0.016)
	require.NoError(t, err)
	assert.Equal(t, state.camera.Projection(), camera.Projection)
	assert.Equal(t, state.sun.Direction(), sun.Direction)
}
