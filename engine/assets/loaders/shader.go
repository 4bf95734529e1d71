package loaders

import (
	"fmt"
	"path/filepath"
)

type ShaderLoader struct{}

// Load reads a SPIR-V binary and reflects its stage, descriptor bindings
// and push constant block.
func (sl *ShaderLoader) Load(path string) (any, error) {
	code, err := ReadWords(path)
	if err != nil {
		return nil, err
	}
	shader, err := ReflectSPIRV(code)
	if err != nil {
		return nil, fmt.Errorf("reflect %s: %w", path, err)
	}
	shader.Name = filepath.Base(path)
	return shader, nil
}
