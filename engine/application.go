package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

type WindowConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting position x axis.
	StartPosX uint32 `toml:"x"`
	// Window starting position y axis.
	StartPosY uint32 `toml:"y"`
	// Window starting width.
	StartWidth uint32 `toml:"width"`
	// Window starting height.
	StartHeight uint32 `toml:"height"`
	// AssetsDir is the root of the watched asset tree, relative to the working directory.
	AssetsDir string `toml:"assets_dir"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type ApplicationConfig struct {
	Application WindowConfig    `toml:"application"`
	Log         LogConfig       `toml:"log"`
	Renderer    renderer.Config `toml:"renderer"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Application: WindowConfig{
			Name:        "Lumen",
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
			AssetsDir:   "assets",
		},
		Log: LogConfig{
			Level: "info",
		},
		Renderer: renderer.DefaultConfig(),
	}
}

// LoadApplicationConfig decodes path over the defaults. Unknown keys are
// rejected so typos do not silently fall back to a default.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	cfg := DefaultApplicationConfig()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Materials listed in the file replace the defaults instead of merging into them.
	cfg.Renderer.Materials = nil
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("config %s: %s", path, strict.String())
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if len(cfg.Renderer.Materials) == 0 {
		cfg.Renderer.Materials = renderer.DefaultConfig().Materials
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}
	if c.Application.StartWidth == 0 || c.Application.StartHeight == 0 {
		return fmt.Errorf("window size %dx%d is invalid", c.Application.StartWidth, c.Application.StartHeight)
	}
	if c.Application.AssetsDir == "" {
		return fmt.Errorf("assets_dir cannot be empty")
	}
	if err := core.ValidLogLevel(c.Log.Level); err != nil {
		return err
	}
	c.Renderer.ApplicationName = c.Application.Name
	return c.Renderer.Validate()
}
