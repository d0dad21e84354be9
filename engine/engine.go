package engine

import (
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/vortex/engine/assets"
	"github.com/spaghettifunk/vortex/engine/assets/loaders"
	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu/vulkan"
	"github.com/spaghettifunk/vortex/engine/platform"
	"github.com/spaghettifunk/vortex/engine/renderer"
)

type Stage uint8

const (
	EngineStageUninitialized Stage = iota
	EngineStageInitializing
	EngineStageInitialized
	EngineStageRunning
	EngineStageShuttingDown
)

// Engine owns the driver loop: window, asset manager, renderer. One frame
// is processed per loop iteration; the renderer handles all GPU pacing.
type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool
	isSuspended  bool

	platform     *platform.Platform
	assetManager *assets.AssetManager
	renderer     *renderer.Renderer

	width  uint32
	height uint32

	clock    *core.Clock
	lastTime float64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultConfig()
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		clock:        core.NewClock(),
		platform:     platform.New(),
		assetManager: am,
		isRunning:    true,
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	config := e.gameInstance.ApplicationConfig

	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)

	if err := e.platform.Startup(config.Name, config.StartPosX, config.StartPosY,
		config.StartWidth, config.StartHeight); err != nil {
		return err
	}

	if err := e.assetManager.Initialize(config.AssetRoot); err != nil {
		return err
	}
	e.assetManager.RegisterLoader(assets.ResourceTypeShader, &loaders.ShaderLoader{})
	e.assetManager.RegisterLoader(assets.ResourceTypeImage, &loaders.TextureLoader{})
	e.assetManager.RegisterLoader(assets.ResourceTypeModel, &loaders.ModelLoader{})

	shaders, err := e.loadShaders(config.AssetRoot)
	if err != nil {
		return err
	}

	backend, err := vulkan.NewBackend(vulkan.BackendConfig{
		ApplicationName:  config.Name,
		Window:           e.platform.Window,
		EnableValidation: config.EnableValidation,
	})
	if err != nil {
		return err
	}

	e.renderer, err = renderer.New(backend, e.platform.Window, shaders, renderer.Config{
		Width:         config.StartWidth,
		Height:        config.StartHeight,
		BufferCount:   config.BufferCount,
		ParticleCount: config.ParticleCount,
	})
	if err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// loadShaders resolves the three compiled SPIR-V blobs through the asset
// manager. Missing shaders are fatal to startup.
func (e *Engine) loadShaders(assetRoot string) (renderer.ShaderSet, error) {
	var set renderer.ShaderSet
	for _, s := range []struct {
		name string
		dst  *[]byte
	}{
		{"particle_vert.spv", &set.Vertex},
		{"particle_frag.spv", &set.Pixel},
		{"nbody_comp.spv", &set.Compute},
	} {
		res, err := e.assetManager.LoadAsset(filepath.Join(assetRoot, "shaders", s.name), assets.ResourceTypeShader)
		if err != nil {
			return set, err
		}
		*s.dst = res.Data.([]byte)
	}
	return set, nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	go core.ProcessEvents()

	for e.isRunning {
		if !e.platform.PumpMessages() {
			e.isRunning = false
		}
		if e.isSuspended || !e.isRunning {
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := platform.GetAbsoluteTime()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(e, delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				e.isRunning = false
				break
			}
		}

		if err := e.renderer.Frame(float32(delta)); err != nil {
			core.LogError("frame failed, shutting down: %s", err)
			e.isRunning = false
			break
		}

		core.MetricsUpdate(platform.GetAbsoluteTime() - frameStartTime)
		e.lastTime = currentTime
	}

	return e.Shutdown()
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("game shutdown failed: %s", err)
		}
	}
	if e.renderer != nil {
		if err := e.renderer.Shutdown(); err != nil {
			core.LogError("renderer shutdown failed: %s", err)
		}
	}
	e.assetManager.Shutdown()
	if err := core.EventSystemShutdown(); err != nil {
		return err
	}
	return e.platform.Shutdown()
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

// GetFramebufferSize returns the width and height of the application
// framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("application quit requested, shutting down")
		e.isRunning = false
	}
}

func (e *Engine) onResized(context core.EventContext) {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong payload for event type %d", context.Type)
		return
	}

	// Minimization suspends the loop; the window is fixed-size otherwise.
	if se.WindowWidth == 0 || se.WindowHeight == 0 {
		core.LogInfo("window minimized, suspending")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("window restored, resuming")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		e.gameInstance.FnOnResize(se.WindowWidth, se.WindowHeight)
	}
}
