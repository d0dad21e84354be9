package loaders

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaghettifunk/vortex/engine/assets"
	"github.com/spaghettifunk/vortex/engine/core"
)

// ModelLoader parses wavefront OBJ files into a position-only mesh.
// Faces are triangulated with a fan; normals and texture coordinates are
// ignored.
type ModelLoader struct{}

func (ml *ModelLoader) Load(path string) (*assets.Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	model := &assets.ModelData{}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				continue
			}
			for _, f := range fields[1:4] {
				value, err := strconv.ParseFloat(f, 32)
				if err != nil {
					err := fmt.Errorf("%w: model '%s': bad vertex %q", core.ErrAssetDecode, path, f)
					core.LogError(err.Error())
					return nil, err
				}
				model.Positions = append(model.Positions, float32(value))
			}
		case "f":
			indices := make([]uint32, 0, len(fields)-1)
			for _, f := range fields[1:] {
				// v, v/vt, v/vt/vn and v//vn all start with the position index.
				vertex := strings.SplitN(f, "/", 2)[0]
				value, err := strconv.ParseInt(vertex, 10, 32)
				if err != nil || value == 0 {
					err := fmt.Errorf("%w: model '%s': bad face index %q", core.ErrAssetDecode, path, f)
					core.LogError(err.Error())
					return nil, err
				}
				if value < 0 {
					value = int64(len(model.Positions)/3) + value
				} else {
					value--
				}
				indices = append(indices, uint32(value))
			}
			for i := 2; i < len(indices); i++ {
				model.Indices = append(model.Indices, indices[0], indices[i-1], indices[i])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &assets.Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		DataSize: uint64(len(model.Positions) * 4),
		Data:     model,
	}, nil
}

func (ml *ModelLoader) Unload(*assets.Resource) error {
	return nil
}
