package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/vortex/engine/core"
)

type AssetInfo struct {
	Path       string
	Type       ResourceType
	LastLoaded time.Time
}

// AssetManager indexes everything under the assets directory and keeps the
// index fresh through a recursive fsnotify watch. Loaders are registered
// per resource type by the application.
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[ResourceType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string) error {
	go am.start()

	if err := am.addRecursive(assetsDir); err != nil {
		return err
	}
	return nil
}

// RegisterLoader wires a loader for one asset type.
func (am *AssetManager) RegisterLoader(assetType ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

// addRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

// LoadAsset resolves the asset by its indexed path and hands it to the
// loader for its type. A missing asset or a failed decode is fatal to
// startup; callers do not retry.
func (am *AssetManager) LoadAsset(path string, resourceType ResourceType) (*Resource, error) {
	am.mutex.RLock()
	asset, exists := am.assets[path]
	loader, loaderExists := am.loaders[resourceType]
	am.mutex.RUnlock()

	if !exists {
		err := fmt.Errorf("asset not found: %s", path)
		core.LogError(err.Error())
		return nil, err
	}
	if !loaderExists {
		err := fmt.Errorf("no loader registered for asset type: %d", resourceType)
		core.LogError(err.Error())
		return nil, err
	}

	am.mutex.Lock()
	asset.LastLoaded = time.Now()
	am.assets[path] = asset
	am.mutex.Unlock()

	return loader.Load(path)
}

func (am *AssetManager) UnloadAsset(res *Resource) error {
	am.mutex.RLock()
	asset, exists := am.assets[res.FullPath]
	am.mutex.RUnlock()
	if !exists {
		return nil
	}
	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil
	}
	return loader.Unload(res)
}

func (am *AssetManager) Shutdown() {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return
	}
	am.isClosed = true
	close(am.done)
}

func (am *AssetManager) start() {
	for {
		select {
		case e := <-am.fsnotify.Events:
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					am.watchRecursive(e.Name, false)
				}
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			// Can't stat a deleted path, so drop it from both the index and
			// the watch list unconditionally.
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
				am.fsnotify.Remove(e.Name)
			}

		case e := <-am.fsnotify.Errors:
			core.LogError(e.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files it passes on the way.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	wd = wd + "/"
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(strings.TrimPrefix(walkPath, wd))
		return nil
	})
}

func (am *AssetManager) handleFileEvent(path string) {
	assetType := determineAssetType(path)
	if assetType == ResourceTypeNone {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path:       path,
		Type:       assetType,
		LastLoaded: time.Now(),
	}
}

func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, path)
}

func determineAssetType(path string) ResourceType {
	switch filepath.Ext(path) {
	case ".spv":
		return ResourceTypeShader
	case ".png", ".jpg", ".bmp":
		return ResourceTypeImage
	case ".obj":
		return ResourceTypeModel
	default:
		return ResourceTypeNone
	}
}
