package soft

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/vortex/engine/gpu"
)

// swapchain owns K back-buffer images and the display cursor. Present is
// immediate: no sync interval. The flip executes on the graphics queue's
// goroutine so the journal sequences it after work submitted ahead of it;
// Present blocks until the flip has run, since callers re-query the index.
type swapchain struct {
	device  *Device
	buffers []*resource

	mu       sync.Mutex
	current  int
	presents int
}

func newSwapchain(device *Device, config gpu.SwapchainConfig) *swapchain {
	buffers := make([]*resource, config.BufferCount)
	for i := range buffers {
		buffers[i] = &resource{
			name:   fmt.Sprintf("backbuffer_%d", i),
			kind:   resourceBackBuffer,
			size:   uint64(config.Width) * uint64(config.Height) * 4,
			device: device,
		}
	}
	return &swapchain{
		device:  device,
		buffers: buffers,
	}
}

func (sc *swapchain) BufferCount() int {
	return len(sc.buffers)
}

func (sc *swapchain) CurrentIndex() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.current
}

func (sc *swapchain) Buffer(index int) gpu.Resource {
	return sc.buffers[index]
}

func (sc *swapchain) Present() error {
	flipped := make(chan struct{})
	if err := sc.device.graphics.enqueue(workItem{present: sc, flipped: flipped}); err != nil {
		return err
	}
	<-flipped
	return nil
}

// flip advances the display cursor. Runs on the queue goroutine, never on
// the submitting thread.
func (sc *swapchain) flip(queue gpu.QueueKind) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.device.journal.record(Event{
		Queue:    queue,
		Kind:     EventPresent,
		Resource: sc.buffers[sc.current].name,
	})
	sc.current = (sc.current + 1) % len(sc.buffers)
	sc.presents++
}

// PresentCount reports how many presents have been executed. Test hook.
func (sc *swapchain) PresentCount() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.presents
}

func (sc *swapchain) Destroy() {
	for _, b := range sc.buffers {
		b.Destroy()
	}
	sc.buffers = nil
}
