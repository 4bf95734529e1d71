package loaders

import (
	"fmt"
	"image"
	"os"

	// decoders picked up by image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type TextureLoader struct{}

// Load decodes any registered image format. The renderer converts the
// result to RGBA8 itself.
func (tl *TextureLoader) Load(path string) (any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("image %s (%s) is empty", path, format)
	}
	return img, nil
}
