package renderer

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// MaxSwapchainImageCount bounds the presentation chain and the frame ring.
const MaxSwapchainImageCount = 16

// DefaultMaterialName is used when AddRenderingObjectsFromEntities gets no material.
const DefaultMaterialName = "default"

type MaterialConfig struct {
	Name           string `toml:"name"`
	VertexShader   string `toml:"vertex"`
	FragmentShader string `toml:"fragment"`
}

type Config struct {
	ApplicationName string `toml:"-"`
	// Backend is "vulkan" or "headless".
	Backend    string `toml:"backend"`
	Validation bool   `toml:"validation"`
	// MSAASamples is clamped to what the device supports.
	MSAASamples uint32 `toml:"msaa_samples"`
	// FramesInFlight of 0 sizes the ring after the presentation image count.
	FramesInFlight uint32 `toml:"frames_in_flight"`
	// PresentMode is "mailbox", "fifo", "fifo_relaxed" or "immediate".
	PresentMode   string           `toml:"present_mode"`
	MaxTextures   uint32           `toml:"max_textures"`
	MaxMeshes     uint32           `toml:"max_meshes"`
	MaxMaterials  uint32           `toml:"max_materials"`
	MaxObjects    uint32           `toml:"max_objects"`
	ClearColor    [4]float32       `toml:"clear_color"`
	DecodeWorkers int              `toml:"decode_workers"`
	Materials     []MaterialConfig `toml:"materials"`
}

func DefaultConfig() Config {
	return Config{
		ApplicationName: "lumen",
		Backend:         "vulkan",
		Validation:      false,
		MSAASamples:     4,
		FramesInFlight:  0,
		PresentMode:     "mailbox",
		MaxTextures:     256,
		MaxMeshes:       1024,
		MaxMaterials:    16,
		MaxObjects:      4096,
		ClearColor:      [4]float32{0.0, 0.0, 0.0, 1.0},
		DecodeWorkers:   4,
		Materials: []MaterialConfig{
			{
				Name:           DefaultMaterialName,
				VertexShader:   "shaders/shader.vert.spv",
				FragmentShader: "shaders/shader.frag.spv",
			},
		},
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case "vulkan", "headless":
	default:
		return fmt.Errorf("unknown renderer backend %q", c.Backend)
	}
	if _, err := parsePresentMode(c.PresentMode); err != nil {
		return err
	}
	if c.FramesInFlight == 1 || c.FramesInFlight > MaxSwapchainImageCount {
		return fmt.Errorf("frames_in_flight must be 0 or between 2 and %d, got %d", MaxSwapchainImageCount, c.FramesInFlight)
	}
	if c.MaxTextures == 0 || c.MaxMeshes == 0 || c.MaxMaterials == 0 || c.MaxObjects == 0 {
		return fmt.Errorf("cache capacities must be greater than zero")
	}
	if c.DecodeWorkers < 1 {
		return fmt.Errorf("decode_workers must be at least 1")
	}
	seen := make(map[string]bool, len(c.Materials))
	for _, m := range c.Materials {
		if m.Name == "" || m.VertexShader == "" || m.FragmentShader == "" {
			return fmt.Errorf("material %q needs a name, a vertex and a fragment shader", m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("material %q declared twice", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

func (c Config) material(name string) (MaterialConfig, bool) {
	for _, m := range c.Materials {
		if m.Name == name {
			return m, true
		}
	}
	return MaterialConfig{}, false
}

func parsePresentMode(mode string) (metadata.PresentMode, error) {
	switch strings.ToLower(mode) {
	case "", "mailbox":
		return metadata.PresentModeMailbox, nil
	case "fifo":
		return metadata.PresentModeFifo, nil
	case "fifo_relaxed":
		return metadata.PresentModeFifoRelaxed, nil
	case "immediate":
		return metadata.PresentModeImmediate, nil
	}
	return metadata.PresentModeFifo, fmt.Errorf("unknown present mode %q", mode)
}
