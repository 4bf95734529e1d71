package engine

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadApplicationConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[application]
name = "sandbox"
width = 800
height = 600

[log]
level = "debug"

[renderer]
backend = "headless"
msaa_samples = 2
present_mode = "fifo"
clear_color = [0.1, 0.2, 0.3, 1.0]

[[renderer.materials]]
name = "default"
vertex = "shaders/shader.vert.spv"
fragment = "shaders/shader.frag.spv"

[[renderer.materials]]
name = "unlit"
vertex = "shaders/unlit.vert.spv"
fragment = "shaders/unlit.frag.spv"
`)
	cfg, err := LoadApplicationConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sandbox", cfg.Application.Name)
	assert.EqualValues(t, 800, cfg.Application.StartWidth)
	assert.EqualValues(t, 600, cfg.Application.StartHeight)
	// Keys absent from the file keep their defaults.
	assert.EqualValues(t, 100, cfg.Application.StartPosX)
	assert.Equal(t, "assets", cfg.Application.AssetsDir)
	assert.EqualValues(t, 256, cfg.Renderer.MaxTextures)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "headless", cfg.Renderer.Backend)
	assert.EqualValues(t, 2, cfg.Renderer.MSAASamples)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1.0}, cfg.Renderer.ClearColor)
	assert.Equal(t, "sandbox", cfg.Renderer.ApplicationName)
	require.Len(t, cfg.Renderer.Materials, 2)
	assert.Equal(t, "unlit", cfg.Renderer.Materials[1].Name)
}

func TestLoadApplicationConfigKeepsDefaultMaterial(t *testing.T) {
	cfg, err := LoadApplicationConfig(writeConfig(t, "[application]\nname = \"bare\"\n"))
	require.NoError(t, err)
	assert.Equal(t, renderer.DefaultConfig().Materials, cfg.Renderer.Materials)
}

func TestLoadApplicationConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "[renderer]\nmsaa = 4\n"},
		{"unknown backend", "[renderer]\nbackend = \"metal\"\n"},
		{"bad present mode", "[renderer]\npresent_mode = \"vsync\"\n"},
		{"bad log level", "[log]\nlevel = \"loud\"\n"},
		{"empty window", "[application]\nwidth = 0\n"},
		{"single frame in flight", "[renderer]\nframes_in_flight = 1\n"},
		{"duplicate material", `
[[renderer.materials]]
name = "a"
vertex = "v.spv"
fragment = "f.spv"

[[renderer.materials]]
name = "a"
vertex = "v.spv"
fragment = "f.spv"
`},
		{"malformed", "[application\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadApplicationConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadApplicationConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewBackend(t *testing.T) {
	cfg := renderer.DefaultConfig()

	cfg.Backend = "headless"
	be, err := newBackend(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "headless", be.Name())

	cfg.Backend = "vulkan"
	be, err = newBackend(cfg, []string{"VK_KHR_surface"})
	require.NoError(t, err)
	assert.Equal(t, "vulkan", be.Name())

	cfg.Backend = "opengl"
	_, err = newBackend(cfg, nil)
	assert.Error(t, err)
}

func newTestEngine(t *testing.T, resized *[][2]uint32) *Engine {
	t.Helper()
	core.SetLogOutput(io.Discard)

	cfg := DefaultApplicationConfig()
	cfg.Application.AssetsDir = t.TempDir()
	cfg.Renderer.Backend = "headless"
	g := &Game{
		ApplicationConfig: cfg,
		FnOnResize: func(width, height uint32) error {
			*resized = append(*resized, [2]uint32{width, height})
			return nil
		},
	}
	e, err := New(g)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

func TestResizeSuspendsAndSchedulesRebuild(t *testing.T) {
	var resized [][2]uint32
	e := newTestEngine(t, &resized)
	e.bus.Register(core.EVENT_CODE_RESIZED, e.onResized)

	// Same size is not a resize.
	assert.False(t, e.bus.Fire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Width: 1280, Height: 720}))
	assert.False(t, e.needsRebuild)

	e.bus.Fire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Width: 0, Height: 0})
	assert.True(t, e.isSuspended)
	assert.Empty(t, resized)

	e.bus.Fire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Width: 1024, Height: 768})
	assert.False(t, e.isSuspended)
	assert.True(t, e.needsRebuild)
	assert.Equal(t, [][2]uint32{{1024, 768}}, resized)

	w, h := e.GetFramebufferSize()
	assert.EqualValues(t, 1024, w)
	assert.EqualValues(t, 768, h)
}

func TestEscapeQuits(t *testing.T) {
	var resized [][2]uint32
	e := newTestEngine(t, &resized)
	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.bus.Register(core.EVENT_CODE_KEY_PRESSED, e.onKey)

	assert.False(t, e.bus.Fire(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, KeyCode: core.KEY_W}))
	assert.True(t, e.isRunning.Load())

	assert.True(t, e.bus.Fire(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, KeyCode: core.KEY_ESCAPE}))
	assert.False(t, e.isRunning.Load())
}

func TestRunBeforeInitialize(t *testing.T) {
	var resized [][2]uint32
	e := newTestEngine(t, &resized)
	assert.ErrorIs(t, e.Run(), core.ErrNotInitialized)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())
	// A second shutdown is a no-op.
	require.NoError(t, e.Shutdown())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultApplicationConfig()
	cfg.Renderer.DecodeWorkers = 0
	_, err := New(&Game{ApplicationConfig: cfg})
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}
