package engine

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/vortex/engine/core"
)

// ApplicationConfig is loaded once at boot from a TOML file. Zero values
// fall back to the defaults below; a missing file is not an error.
type ApplicationConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting position, if the window system honors it.
	StartPosX uint32 `toml:"start_pos_x"`
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting size.
	StartWidth  uint32 `toml:"start_width"`
	StartHeight uint32 `toml:"start_height"`
	// Number of swapchain back buffers.
	BufferCount uint32 `toml:"buffer_count"`
	// Particles in the simulation.
	ParticleCount uint32 `toml:"particle_count"`
	// Enables the GPU validation layer. Observational only.
	EnableValidation bool `toml:"enable_validation"`
	// Root directory watched for assets.
	AssetRoot string `toml:"asset_root"`
	LogLevel  string `toml:"log_level"`
}

func DefaultConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:          "Vortex",
		StartPosX:     100,
		StartPosY:     100,
		StartWidth:    1280,
		StartHeight:   720,
		BufferCount:   2,
		ParticleCount: 10000,
		AssetRoot:     "assets",
		LogLevel:      "info",
	}
}

// LoadConfig reads the TOML file at path over the defaults. A missing file
// returns the defaults untouched; a malformed file is an error.
func LoadConfig(path string) (*ApplicationConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogDebug("no config file at '%s', using defaults", path)
			return config, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, config); err != nil {
		core.LogError("malformed config '%s': %s", path, err)
		return nil, err
	}

	if level, err := log.ParseLevel(config.LogLevel); err == nil {
		core.SetLogLevel(level)
	}
	return config, nil
}
