package assets

import (
	"encoding/binary"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	core.SetLogLevel("error")
}

// minimal fragment shader: entry point only
var fragmentWords = []uint32{
	0x07230203, 0x00010000, 0, 8, 0,
	5<<16 | 15, 4, 1, 0x6e69616d, 0,
}

func writeShader(t *testing.T, path string) {
	t.Helper()
	buf := make([]byte, len(fragmentWords)*4)
	for i, w := range fragmentWords {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 4, 4))))
	require.NoError(t, f.Close())
}

func newManager(t *testing.T) (*AssetManager, string) {
	t.Helper()
	dir := t.TempDir()
	writeShader(t, filepath.Join(dir, "shaders", "shader.frag.spv"))
	writePNG(t, filepath.Join(dir, "textures", "crate.png"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("skip"), 0o644))

	am, err := NewAssetManager(dir)
	require.NoError(t, err)
	require.NoError(t, am.Initialize())
	t.Cleanup(am.Shutdown)
	return am, dir
}

func TestInitializeIndexesKnownFiles(t *testing.T) {
	am, _ := newManager(t)
	assert.Equal(t, 2, am.Len())

	info, ok := am.Lookup("shaders/shader.frag.spv")
	require.True(t, ok)
	assert.Equal(t, AssetTypeShader, info.Type)
	_, ok = am.Lookup("README.txt")
	assert.False(t, ok)
}

func TestInitializeRejectsMissingDir(t *testing.T) {
	am, err := NewAssetManager(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Error(t, am.Initialize())
}

func TestLoadShaderAndImage(t *testing.T) {
	am, _ := newManager(t)

	shader, err := am.LoadShader("shaders/shader.frag.spv")
	require.NoError(t, err)
	assert.Equal(t, metadata.ShaderStageFragment, shader.Stage)
	assert.Equal(t, "main", shader.EntryPoint)

	img, err := am.LoadImage("textures/crate.png")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = am.LoadImage("shaders/shader.frag.spv")
	assert.Error(t, err)
	_, err = am.LoadShader("textures/missing.spv")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestLoadIndexesFilesNotSeenYet(t *testing.T) {
	am, dir := newManager(t)
	am.Shutdown()

	writePNG(t, filepath.Join(dir, "textures", "late.png"))
	_, err := am.LoadImage("textures/late.png")
	require.NoError(t, err)
	_, ok := am.Lookup("textures/late.png")
	assert.True(t, ok)
}

func TestWatcherTracksChanges(t *testing.T) {
	am, dir := newManager(t)

	var mu sync.Mutex
	ops := map[string]fsnotify.Op{}
	am.OnChange(func(info AssetInfo, op fsnotify.Op) {
		mu.Lock()
		defer mu.Unlock()
		ops[info.Path] |= op
	})
	seen := func(path string, op fsnotify.Op) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			return ops[path].Has(op)
		}
	}

	writePNG(t, filepath.Join(dir, "textures", "new.png"))
	assert.Eventually(t, seen("textures/new.png", fsnotify.Create), 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "textures", "crate.png")))
	assert.Eventually(t, seen("textures/crate.png", fsnotify.Remove), 5*time.Second, 10*time.Millisecond)
	_, ok := am.Lookup("textures/crate.png")
	assert.False(t, ok)
}

func TestDetermineAssetType(t *testing.T) {
	assert.Equal(t, AssetTypeShader, determineAssetType("a/b.vert.spv"))
	assert.Equal(t, AssetTypeImage, determineAssetType("A.PNG"))
	assert.Equal(t, AssetTypeImage, determineAssetType("x.webp"))
	assert.Equal(t, AssetTypeModel, determineAssetType("m.obj"))
	assert.Equal(t, AssetTypeNone, determineAssetType("notes.md"))
}

func TestShutdownTwice(t *testing.T) {
	am, _ := newManager(t)
	am.Shutdown()
	am.Shutdown()
}
