package soft

import (
	"sync"

	"github.com/spaghettifunk/vortex/engine/core"
)

// fence is a CPU-waitable monotonic counter. The queue goroutines advance
// it; frontend goroutines block on the condition variable, which is the
// "efficient blocking wait" the contract requires (no spinning, no
// timeout).
type fence struct {
	mu        sync.Mutex
	cond      *sync.Cond
	completed uint64
	lost      bool
}

func newFence() *fence {
	f := &fence{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *fence) WaitUntil(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.completed < value && !f.lost {
		f.cond.Wait()
	}
	if f.lost {
		return core.ErrDeviceLost
	}
	return nil
}

// signalTo advances the completed counter. Values never regress.
func (f *fence) signalTo(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.completed {
		f.completed = value
		f.cond.Broadcast()
	}
}

// markLost wakes all waiters with a device-lost result. Test hook.
func (f *fence) markLost() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost = true
	f.cond.Broadcast()
}

func (f *fence) Destroy() {}
