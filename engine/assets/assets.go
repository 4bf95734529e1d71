package assets

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeImage
	AssetTypeShader
	AssetTypeModel
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeImage:
		return "image"
	case AssetTypeShader:
		return "shader"
	case AssetTypeModel:
		return "model"
	default:
		return "none"
	}
}

var ErrAssetNotFound = errors.New("asset not found")

type AssetInfo struct {
	// Path is relative to the assets directory, with forward slashes.
	Path     string
	Type     AssetType
	Modified time.Time
}

// ChangeFunc is called from the watcher goroutine when an indexed asset is
// created, written or removed.
type ChangeFunc func(info AssetInfo, op fsnotify.Op)

// AssetManager keeps an index of the files under the assets directory,
// updated from filesystem notifications, and decodes them on request.
// LoadImage and LoadShader are safe for concurrent use.
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[AssetType]Loader

	mutex     sync.RWMutex
	listeners []ChangeFunc

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

func NewAssetManager(root string) (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		root:     filepath.Clean(root),
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[AssetType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}
	am.registerLoader(AssetTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(AssetTypeImage, &loaders.TextureLoader{})
	return am, nil
}

// Initialize indexes the assets directory and starts watching it.
func (am *AssetManager) Initialize() error {
	info, err := os.Stat(am.root)
	if err != nil {
		return fmt.Errorf("assets directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("assets path %s is not a directory", am.root)
	}
	if err := am.watchRecursive(am.root); err != nil {
		return err
	}

	am.wg.Add(1)
	go am.start()
	core.LogInfo("asset manager indexed %d files under %s", am.Len(), am.root)
	return nil
}

// Shutdown stops the watcher. It is safe to call more than once.
func (am *AssetManager) Shutdown() {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	am.wg.Wait()
	am.fsnotify.Close()
}

// OnChange registers fn for index changes.
func (am *AssetManager) OnChange(fn ChangeFunc) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.listeners = append(am.listeners, fn)
}

func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Lookup returns the index entry for a path relative to the assets directory.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.ToSlash(filepath.Clean(path))]
	return info, ok
}

// LoadAsset decodes the asset at path with the loader for its type. Files
// that exist on disk but have not been indexed yet are indexed first.
func (am *AssetManager) LoadAsset(path string) (any, error) {
	asset, ok := am.Lookup(path)
	if !ok {
		full := am.fullPath(path)
		if _, err := os.Stat(full); err != nil {
			return nil, fmt.Errorf("%s: %w", path, ErrAssetNotFound)
		}
		am.handleFileEvent(full)
		if asset, ok = am.Lookup(path); !ok {
			return nil, fmt.Errorf("%s: unknown asset type", path)
		}
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type %s", asset.Type)
	}
	return loader.Load(am.fullPath(asset.Path))
}

func (am *AssetManager) LoadImage(path string) (image.Image, error) {
	res, err := am.LoadAsset(path)
	if err != nil {
		return nil, err
	}
	img, ok := res.(image.Image)
	if !ok {
		return nil, fmt.Errorf("%s is not an image", path)
	}
	return img, nil
}

func (am *AssetManager) LoadShader(path string) (*metadata.ShaderBinary, error) {
	res, err := am.LoadAsset(path)
	if err != nil {
		return nil, err
	}
	shader, ok := res.(*metadata.ShaderBinary)
	if !ok {
		return nil, fmt.Errorf("%s is not a shader binary", path)
	}
	return shader, nil
}

func (am *AssetManager) fullPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(am.root, filepath.FromSlash(path))
}

func (am *AssetManager) relPath(full string) (string, bool) {
	rel, err := filepath.Rel(am.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op.Has(fsnotify.Create) {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op.Has(fsnotify.Create) || e.Op.Has(fsnotify.Write) {
				am.handleFileEvent(e.Name)
			}
			if e.Op.Has(fsnotify.Remove) || e.Op.Has(fsnotify.Rename) {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			return
		}
	}
}

// watchRecursive adds every directory under path to the watch list and
// indexes the files it finds.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// handleFileEvent indexes a created or modified file.
func (am *AssetManager) handleFileEvent(full string) {
	rel, ok := am.relPath(full)
	if !ok {
		return
	}
	assetType := determineAssetType(rel)
	if assetType == AssetTypeNone {
		return
	}

	info := AssetInfo{Path: rel, Type: assetType, Modified: time.Now()}
	am.mutex.Lock()
	_, known := am.assets[rel]
	am.assets[rel] = info
	listeners := am.listeners
	am.mutex.Unlock()

	op := fsnotify.Write
	if !known {
		op = fsnotify.Create
	}
	for _, fn := range listeners {
		fn(info, op)
	}
}

// removeAsset drops a deleted or renamed file from the index.
func (am *AssetManager) removeAsset(full string) {
	rel, ok := am.relPath(full)
	if !ok {
		return
	}
	am.mutex.Lock()
	info, known := am.assets[rel]
	delete(am.assets, rel)
	listeners := am.listeners
	am.mutex.Unlock()

	if !known {
		return
	}
	for _, fn := range listeners {
		fn(info, fsnotify.Remove)
	}
}

func determineAssetType(path string) AssetType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return AssetTypeShader
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return AssetTypeImage
	case ".obj", ".gltf", ".glb":
		return AssetTypeModel
	default:
		return AssetTypeNone
	}
}
