package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the GLFW window and forwards its input and resize
// callbacks to the event bus.
type Platform struct {
	Window *glfw.Window

	bus       *core.EventBus
	startTime float64
}

func New(bus *core.EventBus) *Platform {
	return &Platform{bus: bus}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return core.ErrFeatureNotSupported
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	return nil
}

func (p *Platform) Shutdown() {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
}

// PumpMessages processes pending window events and reports whether the
// window is still open.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// WaitMessages blocks until at least one window event arrives. Used while
// the window is minimized.
func (p *Platform) WaitMessages() bool {
	glfw.WaitEvents()
	return !p.Window.ShouldClose()
}

// RequiredInstanceExtensions lists the Vulkan instance extensions the window
// surface needs.
func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// GetAbsoluteTime returns seconds since Startup.
func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) IsKeyDown(key core.KeyCode) bool {
	k, ok := toGLFWKey(key)
	if !ok {
		return false
	}
	return p.Window.GetKey(k) == glfw.Press
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	code, ok := fromGLFWKey(key)
	if !ok {
		return
	}
	var event core.SystemEventCode
	switch action {
	case glfw.Press:
		event = core.EVENT_CODE_KEY_PRESSED
	case glfw.Release:
		event = core.EVENT_CODE_KEY_RELEASED
	default:
		return
	}
	p.bus.Fire(core.EventContext{Type: event, Sender: p, KeyCode: code})
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.bus.Fire(core.EventContext{
		Type:   core.EVENT_CODE_RESIZED,
		Sender: p,
		Width:  uint32(max(width, 0)),
		Height: uint32(max(height, 0)),
	})
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.bus.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT, Sender: p})
}

// Letters, digits and space share their ASCII values in GLFW.
func fromGLFWKey(key glfw.Key) (core.KeyCode, bool) {
	switch {
	case key == glfw.KeyEscape:
		return core.KEY_ESCAPE, true
	case key == glfw.KeySpace,
		key >= glfw.Key0 && key <= glfw.Key9,
		key >= glfw.KeyA && key <= glfw.KeyZ:
		return core.KeyCode(key), true
	default:
		return 0, false
	}
}

func toGLFWKey(code core.KeyCode) (glfw.Key, bool) {
	if code == core.KEY_ESCAPE {
		return glfw.KeyEscape, true
	}
	key := glfw.Key(code)
	if _, ok := fromGLFWKey(key); !ok {
		return glfw.KeyUnknown, false
	}
	return key, true
}
