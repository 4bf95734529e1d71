package loaders

import (
	"encoding/binary"
	"fmt"
	"os"
)

// ReadWords reads a file of little-endian 32-bit words, the on-disk layout
// glslc produces for SPIR-V.
func ReadWords(path string) ([]uint32, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bytesToWords(buf)
}

func bytesToWords(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("binary size %d is not a multiple of 4", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words, nil
}
