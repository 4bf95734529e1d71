package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
	"github.com/spaghettifunk/lumen/engine/scene"
	"github.com/spaghettifunk/lumen/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every subsystem
	EngineStageShutdown
)

// decodeQueueSize bounds the pending texture decode jobs.
const decodeQueueSize = 64

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    atomic.Bool
	isSuspended  bool
	needsRebuild bool

	bus          *core.EventBus
	platform     *platform.Platform
	assetManager *assets.AssetManager
	jobSystem    *systems.JobSystem
	transforms   *scene.TransformStore
	renderer     *renderer.Renderer

	width    uint32
	height   uint32
	clock    *core.Clock
	lastTime float64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("game and application config are required")
	}
	cfg := g.ApplicationConfig
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Application.AssetsDir)
	if err != nil {
		return nil, err
	}
	am, err := assets.NewAssetManager(root)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	js, err := systems.NewJobSystem(cfg.Renderer.DecodeWorkers, decodeQueueSize)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	bus := core.NewEventBus()
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		bus:          bus,
		platform:     platform.New(bus),
		assetManager: am,
		jobSystem:    js,
		transforms:   scene.NewTransformStore(),
		clock:        core.NewClock(),
		width:        cfg.Application.StartWidth,
		height:       cfg.Application.StartHeight,
	}
	e.isRunning.Store(true)
	return e, nil
}

// newBackend picks the graphics backend named in the renderer config.
func newBackend(cfg renderer.Config, instanceExtensions []string) (renderer.Backend, error) {
	switch cfg.Backend {
	case "vulkan":
		return vulkan.New(vulkan.Options{
			Validation:         cfg.Validation,
			InstanceExtensions: instanceExtensions,
		}), nil
	case "headless":
		return headless.New(headless.DefaultOptions()), nil
	}
	return nil, fmt.Errorf("unknown renderer backend %q", cfg.Backend)
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.gameInstance.ApplicationConfig

	// register some events
	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.bus.Register(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.bus.Register(core.EVENT_CODE_RESIZED, e.onResized)

	if err := e.platform.Startup(cfg.Application.Name,
		cfg.Application.StartPosX,
		cfg.Application.StartPosY,
		cfg.Application.StartWidth,
		cfg.Application.StartHeight); err != nil {
		return err
	}

	// initialize subsystems
	if err := e.assetManager.Initialize(); err != nil {
		return err
	}
	e.assetManager.OnChange(func(info assets.AssetInfo, op fsnotify.Op) {
		core.LogDebug("asset %s (%s) changed: %s", info.Path, info.Type, op)
	})

	backend, err := newBackend(cfg.Renderer, e.platform.RequiredInstanceExtensions())
	if err != nil {
		return err
	}
	r, err := renderer.New(backend, cfg.Renderer, e.assetManager, e.assetManager, e.transforms, e.jobSystem)
	if err != nil {
		return err
	}
	if err := r.Init(e.platform.Window); err != nil {
		return err
	}
	e.renderer = r
	core.LogInfo("renderer %s initialized on the %s backend", r.ID(), backend.Name())

	services := &Services{
		Renderer:   e.renderer,
		Transforms: e.transforms,
		Events:     e.bus,
		Input:      e.platform,
	}
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(services); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.ErrNotInitialized
	}
	if e.gameInstance.FnUpdate == nil || e.gameInstance.FnRender == nil {
		return fmt.Errorf("game must provide update and render callbacks")
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var framesSinceReport uint64

	for e.isRunning.Load() {
		if e.isSuspended {
			// Nothing to draw into until the window gets an area again.
			if !e.platform.WaitMessages() {
				e.isRunning.Store(false)
			}
			continue
		}
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if e.needsRebuild {
			if err := e.rebuild(); err != nil {
				return err
			}
			if e.needsRebuild {
				continue
			}
		}

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("Game update failed, shutting down: %s", err)
			return err
		}

		// Call the game's render routine.
		camera, sun, err := e.gameInstance.FnRender(delta)
		if err != nil {
			core.LogError("Game render failed, shutting down: %s", err)
			return err
		}

		if err := e.renderer.Render(camera, sun, delta); err != nil {
			if !errors.Is(err, core.ErrSwapchainOutOfDate) {
				core.LogError("frame failed: %s", err)
				return err
			}
			e.needsRebuild = true
		}

		framesSinceReport++
		if framesSinceReport == 600 {
			stats := e.renderer.Stats()
			core.LogDebug("fps %.0f, frame %.2fms, %d draws in %d batches, %d textures, %d meshes",
				stats.FPS, stats.FrameTimeMS, stats.Draws, stats.Batches, stats.Textures, stats.Meshes)
			framesSinceReport = 0
		}

		// Update last time
		e.lastTime = currentTime
	}

	return nil
}

// rebuild recreates the presentation chain. A surface without area leaves
// needsRebuild set so the next iteration tries again.
func (e *Engine) rebuild() error {
	err := e.renderer.RecreateSwapchain()
	switch {
	case err == nil:
		e.needsRebuild = false
		return nil
	case errors.Is(err, core.ErrSwapchainBooting):
		return nil
	default:
		return err
	}
}

// Shutdown releases the subsystems in reverse start order.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.renderer != nil {
		e.renderer.Term()
	}
	e.assetManager.Shutdown()
	if err := e.jobSystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if e.platform.Window != nil {
		e.platform.Shutdown()
	}
	e.bus.Shutdown()
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

// Stop asks the loop to exit after the current frame. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) onEvent(context core.EventContext) bool {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	if context.KeyCode == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.bus.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT, Sender: e})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	width, height := context.Width, context.Height
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	e.needsRebuild = true
	if e.gameInstance.FnOnResize == nil {
		return true
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	return true
}
