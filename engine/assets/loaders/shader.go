package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/vortex/engine/assets"
	"github.com/spaghettifunk/vortex/engine/core"
)

// ShaderLoader reads compiled SPIR-V blobs. The blob is handed to the
// pipeline factory as-is; a malformed file fails loudly at load time
// instead of at pipeline creation.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string) (*assets.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		core.LogError("unable to read shader module: %s", path)
		return nil, err
	}
	if len(data) == 0 || len(data)%4 != 0 {
		err := fmt.Errorf("%w: shader '%s' is not a SPIR-V blob (%d bytes)", core.ErrAssetDecode, path, len(data))
		core.LogError(err.Error())
		return nil, err
	}
	return &assets.Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (sl *ShaderLoader) Unload(*assets.Resource) error {
	return nil
}
