package loaders

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

// moduleBuilder emits a SPIR-V instruction stream by hand.
type moduleBuilder struct {
	words []uint32
}

func newModuleBuilder() *moduleBuilder {
	return &moduleBuilder{words: []uint32{spirvMagic, 0x00010000, 0, 64, 0}}
}

func (b *moduleBuilder) op(code uint32, args ...uint32) *moduleBuilder {
	b.words = append(b.words, uint32(len(args)+1)<<16|code)
	b.words = append(b.words, args...)
	return b
}

func (b *moduleBuilder) name(id uint32, s string) *moduleBuilder {
	return b.op(opName, append([]uint32{id}, encodeString(s)...)...)
}

func encodeString(s string) []uint32 {
	buf := append([]byte(s), 0)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	words := make([]uint32, len(buf)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return words
}

// vertexModule mirrors the default vertex shader interface: a push
// constant block {mat4 model; mat4 viewProj; vec4 lightDir}, a storage
// buffer of models in set 0 and two combined samplers in set 1.
func vertexModule() *moduleBuilder {
	b := newModuleBuilder()
	b.op(opEntryPoint, append([]uint32{0, 1}, encodeString("main")...)...)
	b.name(11, "objects").name(18, "textures").name(9, "ObjectBuffer")

	b.op(opDecorate, 5, decorationBlock)
	b.op(opMemberDecorate, 5, 0, decorationOffset, 0)
	b.op(opMemberDecorate, 5, 0, decorationMatrixStride, 16)
	b.op(opMemberDecorate, 5, 1, decorationOffset, 64)
	b.op(opMemberDecorate, 5, 1, decorationMatrixStride, 16)
	b.op(opMemberDecorate, 5, 2, decorationOffset, 128)
	b.op(opDecorate, 9, decorationBlock)
	b.op(opDecorate, 11, decorationDescriptorSet, 0)
	b.op(opDecorate, 11, decorationBinding, 0)
	b.op(opDecorate, 18, decorationDescriptorSet, 1)
	b.op(opDecorate, 18, decorationBinding, 0)

	b.op(opTypeFloat, 2, 32)
	b.op(opTypeVector, 3, 2, 4)
	b.op(opTypeMatrix, 4, 3, 4)
	b.op(opTypeStruct, 5, 4, 4, 3)
	b.op(opTypePointer, 6, storagePushConstant, 5)
	b.op(opVariable, 6, 7, storagePushConstant)

	b.op(opTypeRuntimeArray, 8, 4)
	b.op(opTypeStruct, 9, 8)
	b.op(opTypePointer, 10, storageStorageBuffer, 9)
	b.op(opVariable, 10, 11, storageStorageBuffer)

	b.op(opTypeImage, 12, 2, 1, 0, 0, 0, 1, 0)
	b.op(opTypeSampledImage, 13, 12)
	b.op(opTypeInt, 14, 32, 0)
	b.op(opConstant, 14, 15, 2)
	b.op(opTypeArray, 16, 13, 15)
	b.op(opTypePointer, 17, storageUniformConstant, 16)
	b.op(opVariable, 17, 18, storageUniformConstant)
	return b
}

func TestReflectVertexModule(t *testing.T) {
	shader, err := ReflectSPIRV(vertexModule().words)
	require.NoError(t, err)

	assert.Equal(t, metadata.ShaderStageVertex, shader.Stage)
	assert.Equal(t, "main", shader.EntryPoint)
	assert.EqualValues(t, 144, shader.PushConstantSize)
	assert.Equal(t, []metadata.ShaderBinding{
		{Set: 0, Binding: 0, Type: metadata.DescriptorTypeStorageBuffer, Count: 1, Name: "objects"},
		{Set: 1, Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 2, Name: "textures"},
	}, shader.Bindings)
}

func TestReflectSortsBindings(t *testing.T) {
	b := newModuleBuilder()
	b.op(opEntryPoint, append([]uint32{4, 1}, encodeString("main")...)...)
	b.op(opTypeSampler, 2)
	b.op(opTypePointer, 3, storageUniformConstant, 2)
	for i, sb := range [][2]uint32{{1, 3}, {0, 2}, {1, 0}} {
		id := uint32(10 + i)
		b.op(opVariable, 3, id, storageUniformConstant)
		b.op(opDecorate, id, decorationDescriptorSet, sb[0])
		b.op(opDecorate, id, decorationBinding, sb[1])
	}
	// inputs carry no set decoration and are skipped
	b.op(opVariable, 3, 20, 1)

	shader, err := ReflectSPIRV(b.words)
	require.NoError(t, err)
	assert.Equal(t, metadata.ShaderStageFragment, shader.Stage)
	assert.Zero(t, shader.PushConstantSize)
	require.Len(t, shader.Bindings, 3)
	got := [][2]uint32{}
	for _, binding := range shader.Bindings {
		assert.Equal(t, metadata.DescriptorTypeSampler, binding.Type)
		got = append(got, [2]uint32{binding.Set, binding.Binding})
	}
	assert.Equal(t, [][2]uint32{{0, 2}, {1, 0}, {1, 3}}, got)
}

func TestReflectUniformAndStorageImage(t *testing.T) {
	b := newModuleBuilder()
	b.op(opEntryPoint, append([]uint32{5, 1}, encodeString("main")...)...)
	b.op(opTypeFloat, 2, 32)
	b.op(opTypeStruct, 3, 2)
	b.op(opDecorate, 3, decorationBlock)
	b.op(opTypePointer, 4, storageUniform, 3)
	b.op(opVariable, 4, 5, storageUniform)
	b.op(opDecorate, 5, decorationDescriptorSet, 0)
	b.op(opDecorate, 5, decorationBinding, 0)
	b.op(opTypeImage, 6, 2, 1, 0, 0, 0, imageSampledStore, 1)
	b.op(opTypePointer, 7, storageUniformConstant, 6)
	b.op(opVariable, 7, 8, storageUniformConstant)
	b.op(opDecorate, 8, decorationDescriptorSet, 0)
	b.op(opDecorate, 8, decorationBinding, 1)

	shader, err := ReflectSPIRV(b.words)
	require.NoError(t, err)
	assert.Equal(t, metadata.ShaderStageCompute, shader.Stage)
	require.Len(t, shader.Bindings, 2)
	assert.Equal(t, metadata.DescriptorTypeUniformBuffer, shader.Bindings[0].Type)
	assert.Equal(t, metadata.DescriptorTypeStorageImage, shader.Bindings[1].Type)
}

func TestReflectRejectsBadModules(t *testing.T) {
	_, err := ReflectSPIRV([]uint32{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	_, err = ReflectSPIRV([]uint32{0xDEADBEEF, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	_, err = ReflectSPIRV(newModuleBuilder().words)
	assert.ErrorIs(t, err, ErrInvalidSPIRV, "no entry point")

	truncated := vertexModule().words
	truncated = append(truncated, 4<<16|opDecorate, 1)
	_, err = ReflectSPIRV(truncated)
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	tooManySets := vertexModule()
	tooManySets.op(opVariable, 17, 30, storageUniformConstant)
	tooManySets.op(opDecorate, 30, decorationDescriptorSet, 4)
	tooManySets.op(opDecorate, 30, decorationBinding, 0)
	_, err = ReflectSPIRV(tooManySets.words)
	assert.Error(t, err)

	unbounded := vertexModule()
	unbounded.op(opTypeRuntimeArray, 31, 13)
	unbounded.op(opTypePointer, 32, storageUniformConstant, 31)
	unbounded.op(opVariable, 32, 33, storageUniformConstant)
	unbounded.op(opDecorate, 33, decorationDescriptorSet, 1)
	unbounded.op(opDecorate, 33, decorationBinding, 1)
	_, err = ReflectSPIRV(unbounded.words)
	assert.Error(t, err)
}

func TestDecodeString(t *testing.T) {
	assert.Equal(t, "main", decodeString(encodeString("main")))
	assert.Equal(t, "abc", decodeString(encodeString("abc")))
	assert.Equal(t, "", decodeString(nil))
}

func writeWords(t *testing.T, path string, words []uint32) {
	t.Helper()
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func TestShaderLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shader.vert.spv")
	writeWords(t, path, vertexModule().words)

	res, err := (&ShaderLoader{}).Load(path)
	require.NoError(t, err)
	shader := res.(*metadata.ShaderBinary)
	assert.Equal(t, "shader.vert.spv", shader.Name)
	assert.Equal(t, vertexModule().words, shader.Code)

	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))
	_, err = (&ShaderLoader{}).Load(path)
	assert.Error(t, err)

	_, err = (&ShaderLoader{}).Load(filepath.Join(dir, "missing.spv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(2, 1, color.NRGBA{B: 255, A: 255})
	return img
}

func TestTextureLoaderDecodesFormats(t *testing.T) {
	dir := t.TempDir()
	encoders := map[string]func(f *os.File) error{
		"a.png": func(f *os.File) error { return png.Encode(f, testImage()) },
		"a.bmp": func(f *os.File) error { return bmp.Encode(f, testImage()) },
	}
	for name, encode := range encoders {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, encode(f))
		require.NoError(t, f.Close())

		res, err := (&TextureLoader{}).Load(path)
		require.NoError(t, err, name)
		img := res.(image.Image)
		assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds(), name)
		r, _, _, _ := img.At(0, 0).RGBA()
		assert.EqualValues(t, 0xFFFF, r, name)
		_, _, b, _ := img.At(2, 1).RGBA()
		assert.EqualValues(t, 0xFFFF, b, name)
	}
}

func TestTextureLoaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err := (&TextureLoader{}).Load(path)
	assert.Error(t, err)
}

func TestBytesToWords(t *testing.T) {
	words, err := bytesToWords([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 1}, words)

	_, err = bytesToWords([]byte{1, 2})
	assert.Error(t, err)
}
