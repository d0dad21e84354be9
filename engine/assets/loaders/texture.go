package loaders

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	// Decoders registered for image.Decode.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"github.com/spaghettifunk/vortex/engine/assets"
	"github.com/spaghettifunk/vortex/engine/core"
)

// TextureLoader decodes an image file into tightly packed RGBA pixels.
type TextureLoader struct{}

func (tl *TextureLoader) Load(path string) (*assets.Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		err := fmt.Errorf("%w: texture '%s': %s", core.ErrAssetDecode, path, err)
		core.LogError(err.Error())
		return nil, err
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	return &assets.Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		DataSize: uint64(len(rgba.Pix)),
		Data: &assets.ImageData{
			ChannelCount: 4,
			Width:        uint32(bounds.Dx()),
			Height:       uint32(bounds.Dy()),
			Pixels:       rgba.Pix,
		},
	}, nil
}

func (tl *TextureLoader) Unload(*assets.Resource) error {
	return nil
}
