package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestKeyTranslation(t *testing.T) {
	for glfwKey, want := range map[glfw.Key]core.KeyCode{
		glfw.KeyEscape: core.KEY_ESCAPE,
		glfw.KeySpace:  core.KEY_SPACE,
		glfw.KeyE:      core.KEY_E,
		glfw.KeyQ:      core.KEY_Q,
		glfw.KeyW:      core.KEY_W,
	} {
		got, ok := fromGLFWKey(glfwKey)
		assert.True(t, ok)
		assert.Equal(t, want, got)

		back, ok := toGLFWKey(got)
		assert.True(t, ok)
		assert.Equal(t, glfwKey, back)
	}

	_, ok := fromGLFWKey(glfw.KeyF1)
	assert.False(t, ok)
	_, ok = toGLFWKey(core.KeyCode(0x7F))
	assert.False(t, ok)
}

func TestCallbacksFireEvents(t *testing.T) {
	bus := core.NewEventBus()
	p := New(bus)

	var got []core.EventContext
	record := func(ctx core.EventContext) bool {
		got = append(got, ctx)
		return true
	}
	bus.Register(core.EVENT_CODE_KEY_PRESSED, record)
	bus.Register(core.EVENT_CODE_KEY_RELEASED, record)
	bus.Register(core.EVENT_CODE_RESIZED, record)
	bus.Register(core.EVENT_CODE_APPLICATION_QUIT, record)

	p.keyCallback(nil, glfw.KeyE, 0, glfw.Press, 0)
	p.keyCallback(nil, glfw.KeyE, 0, glfw.Repeat, 0)
	p.keyCallback(nil, glfw.KeyF1, 0, glfw.Press, 0)
	p.keyCallback(nil, glfw.KeyQ, 0, glfw.Release, 0)
	p.framebufferSizeCallback(nil, 640, 0)
	p.closeCallback(nil)

	if assert.Len(t, got, 4) {
		assert.Equal(t, core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, Sender: p, KeyCode: core.KEY_E}, got[0])
		assert.Equal(t, core.EVENT_CODE_KEY_RELEASED, got[1].Type)
		assert.Equal(t, core.EventContext{Type: core.EVENT_CODE_RESIZED, Sender: p, Width: 640}, got[2])
		assert.Equal(t, core.EVENT_CODE_APPLICATION_QUIT, got[3].Type)
	}
}
