package loaders_test

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vortex/engine/assets"
	"github.com/spaghettifunk/vortex/engine/assets/loaders"
	"github.com/spaghettifunk/vortex/engine/core"
)

func TestShaderLoaderAcceptsSpirvBlob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triangle_vert.spv")
	blob := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x05, 0x01, 0x00}
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	loader := &loaders.ShaderLoader{}
	res, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "triangle_vert", res.Name)
	assert.Equal(t, uint64(8), res.DataSize)
	assert.Equal(t, blob, res.Data.([]byte))
}

func TestShaderLoaderRejectsTruncatedBlob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.spv")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := (&loaders.ShaderLoader{}).Load(path)
	assert.ErrorIs(t, err, core.ErrAssetDecode)
}

func TestTextureLoaderDecodesToRGBA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixel.png")
	img := image.NewRGBA(image.Rect(0, 0, 2, 3))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	res, err := (&loaders.TextureLoader{}).Load(path)
	require.NoError(t, err)

	data := res.Data.(*assets.ImageData)
	assert.Equal(t, uint32(2), data.Width)
	assert.Equal(t, uint32(3), data.Height)
	assert.Equal(t, uint8(4), data.ChannelCount)
	assert.Len(t, data.Pixels, 2*3*4)
}

func TestModelLoaderParsesTriangulatedQuad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quad.obj")
	obj := `# quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1/1/1 2/2/1 3/3/1 4/4/1
`
	require.NoError(t, os.WriteFile(path, []byte(obj), 0o644))

	res, err := (&loaders.ModelLoader{}).Load(path)
	require.NoError(t, err)

	model := res.Data.(*assets.ModelData)
	assert.Len(t, model.Positions, 12)
	// Fan triangulation of the quad.
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, model.Indices)
}

func TestModelLoaderNegativeIndices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.obj")
	obj := "v 0 0 0\nv 1 0 0\nv 0 1 0\nf -3 -2 -1\n"
	require.NoError(t, os.WriteFile(path, []byte(obj), 0o644))

	res, err := (&loaders.ModelLoader{}).Load(path)
	require.NoError(t, err)

	model := res.Data.(*assets.ModelData)
	assert.Equal(t, []uint32{0, 1, 2}, model.Indices)
}

func TestModelLoaderRejectsMalformedFace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.obj")
	require.NoError(t, os.WriteFile(path, []byte("v 0 0 0\nf a b c\n"), 0o644))

	_, err := (&loaders.ModelLoader{}).Load(path)
	assert.ErrorIs(t, err, core.ErrAssetDecode)
}
