package assets_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vortex/engine/assets"
	"github.com/spaghettifunk/vortex/engine/assets/loaders"
)

func newManager(t *testing.T, root string) *assets.AssetManager {
	t.Helper()
	am, err := assets.NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(root))
	t.Cleanup(am.Shutdown)
	return am
}

func TestLoadAssetThroughIndex(t *testing.T) {
	root := t.TempDir()
	shaderPath := filepath.Join(root, "shaders", "test_vert.spv")
	require.NoError(t, os.MkdirAll(filepath.Dir(shaderPath), 0o755))
	require.NoError(t, os.WriteFile(shaderPath, []byte{1, 2, 3, 4}, 0o644))

	am := newManager(t, root)
	am.RegisterLoader(assets.ResourceTypeShader, &loaders.ShaderLoader{})

	res, err := am.LoadAsset(shaderPath, assets.ResourceTypeShader)
	require.NoError(t, err)
	assert.Equal(t, "test_vert", res.Name)
	assert.Equal(t, []byte{1, 2, 3, 4}, res.Data.([]byte))

	require.NoError(t, am.UnloadAsset(res))
}

func TestLoadAssetUnknownPath(t *testing.T) {
	am := newManager(t, t.TempDir())
	am.RegisterLoader(assets.ResourceTypeShader, &loaders.ShaderLoader{})

	_, err := am.LoadAsset("nowhere/missing.spv", assets.ResourceTypeShader)
	assert.Error(t, err)
}

func TestLoadAssetWithoutLoader(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "mesh.obj")
	require.NoError(t, os.WriteFile(path, []byte("v 0 0 0\n"), 0o644))

	am := newManager(t, root)

	_, err := am.LoadAsset(path, assets.ResourceTypeModel)
	assert.Error(t, err)
}

func TestShutdownIsIdempotent(t *testing.T) {
	am, err := assets.NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(t.TempDir()))

	am.Shutdown()
	am.Shutdown()
}
