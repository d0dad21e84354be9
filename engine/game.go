package engine

// Game is the application-provided callback set. The engine owns the loop
// and the renderer; the game reacts at the hook points.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(e *Engine) error
type Update func(e *Engine, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
