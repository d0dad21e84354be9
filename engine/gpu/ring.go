package gpu

import (
	"github.com/spaghettifunk/vortex/engine/core"
)

// PresentationRing owns the K back buffers and the rotation between the
// one the graphics queue targets and the one on screen. The cursor is
// advanced by the presentation engine inside Present, never guessed.
type PresentationRing struct {
	swapchain Swapchain
	buffers   []*Tracked
}

func NewPresentationRing(device Device, surface Surface, config SwapchainConfig) (*PresentationRing, error) {
	swapchain, err := device.NewSwapchain(surface, config)
	if err != nil {
		core.LogError("failed to create swapchain: %s", err)
		return nil, err
	}

	buffers := make([]*Tracked, swapchain.BufferCount())
	for i := range buffers {
		// Back buffers start out presentable; the first frame transitions
		// them to render target before drawing.
		buffers[i] = NewTracked(swapchain.Buffer(i), StatePresent)
	}

	return &PresentationRing{
		swapchain: swapchain,
		buffers:   buffers,
	}, nil
}

func (pr *PresentationRing) BufferCount() int {
	return pr.swapchain.BufferCount()
}

// CurrentIndex must be re-queried after every Present: the displayable
// buffer index is reassigned by the presentation engine.
func (pr *PresentationRing) CurrentIndex() int {
	return pr.swapchain.CurrentIndex()
}

// CurrentBuffer returns the tracked back buffer the graphics queue should
// target this frame.
func (pr *PresentationRing) CurrentBuffer() *Tracked {
	return pr.buffers[pr.swapchain.CurrentIndex()]
}

// Present records the presentable transition for the current back buffer,
// submits the frame's graphics commands, and asks the display engine to
// show the image. Immediate mode: no sync interval. The returned token is
// the graphics fence value for the submission.
func (pr *PresentationRing) Present(ctx *CommandContext) (uint64, error) {
	pr.CurrentBuffer().TransitionTo(ctx.List(), StatePresent)

	token, err := ctx.Submit()
	if err != nil {
		return 0, err
	}

	if err := pr.swapchain.Present(); err != nil {
		core.LogError("present failed: %s", err)
		return 0, err
	}
	return token, nil
}

func (pr *PresentationRing) Destroy() {
	// Back-buffer resources are owned by the swapchain; only the tracking
	// wrappers are dropped here.
	pr.buffers = nil
	if pr.swapchain != nil {
		pr.swapchain.Destroy()
		pr.swapchain = nil
	}
}
