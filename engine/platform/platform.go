package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/vortex/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread.
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(keyCallback)
	p.Window.SetFramebufferSizeCallback(framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	glfw.Terminate()
	return nil
}

// PumpMessages drains OS events. Returns false once the window wants to
// close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

func GetAbsoluteTime() float64 {
	return glfw.GetTime()
}

func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	}
}

func framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{
			WindowWidth:  uint32(width),
			WindowHeight: uint32(height),
		},
	})
}
