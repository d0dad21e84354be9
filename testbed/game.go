package testbed

import (
	"github.com/spaghettifunk/vortex/engine"
	"github.com/spaghettifunk/vortex/engine/core"
)

// TestGame is the demo application: it lets the simulation run and slowly
// orbits the camera around the particle cloud.
type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32
}

const orbitSpeed = 0.15 // radians per second

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	adapter := e.Renderer().Adapter()
	core.LogInfo("testbed running on '%s'", adapter.Name)
	return nil
}

func (g *TestGame) Update(e *engine.Engine, deltaTime float64) error {
	e.Renderer().Camera.Orbit(float32(orbitSpeed * deltaTime))
	return nil
}

func (g *TestGame) OnResize(width, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	fps, frameTime := core.MetricsFrame()
	core.LogInfo("testbed done (%.1f fps, %.2fms avg frame)", fps, frameTime)
	return nil
}
