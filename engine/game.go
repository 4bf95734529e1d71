package engine

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/scene"
)

// Input answers keyboard polling from the game update.
type Input interface {
	IsKeyDown(key core.KeyCode) bool
}

// Services are the engine subsystems a game talks to. Valid from
// FnInitialize until FnShutdown returns.
type Services struct {
	Renderer   *renderer.Renderer
	Transforms *scene.TransformStore
	Events     *core.EventBus
	Input      Input
}

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(services *Services) error
type Update func(deltaTime float64) error

// Render returns the camera and the sun the next frame is drawn with.
type Render func(deltaTime float64) (metadata.Camera, metadata.Light, error)
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
