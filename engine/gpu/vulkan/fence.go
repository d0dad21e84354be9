package vulkan

import (
	"fmt"
	"math"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vortex/engine/core"
)

// Fence emulates a monotonically increasing fence value on top of binary
// vk.Fence objects. Each Signal submits one binary fence to the queue and a
// retire goroutine advances the completed value once it fires. Because a
// queue executes submissions in order, values retire in order too.
type Fence struct {
	device *Device

	mu        sync.Mutex
	cond      *sync.Cond
	completed uint64
	lost      bool
	free      []vk.Fence
	inFlight  int
	destroyed bool
}

func newFence(device *Device) (*Fence, error) {
	f := &Fence{device: device}
	f.cond = sync.NewCond(&f.mu)
	return f, nil
}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// WaitUntil blocks until the fence reaches value. There is no timeout; a
// stalled queue is a bug to surface, not to paper over.
func (f *Fence) WaitUntil(value uint64) error {
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

// acquire hands out a reset binary fence for one queue signal.
func (f *Fence) acquire() (vk.Fence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.free); n > 0 {
		handle := f.free[n-1]
		f.free = f.free[:n-1]
		f.inFlight++
		return handle, nil
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var handle vk.Fence
	if res := vk.CreateFence(f.device.logicalDevice, &fenceCreateInfo, f.device.allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create fence with `%s`", ResultString(res))
		core.LogError(err.Error())
		return vk.NullFence, err
	}
	f.inFlight++
	return handle, nil
}

// retire waits for the binary fence, advances the completed value and
// recycles the handle. Runs on its own goroutine per signal.
func (f *Fence) retire(handle vk.Fence, value uint64) {
	result := vk.WaitForFences(f.device.logicalDevice, 1, []vk.Fence{handle}, vk.True, math.MaxUint64)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--

	if result == vk.ErrorDeviceLost {
		core.LogError("fence wait failed: VK_ERROR_DEVICE_LOST")
		f.lost = true
		f.cond.Broadcast()
		return
	}
	if result != vk.Success {
		core.LogError("fence wait failed with `%s`", ResultString(result))
	}

	if value > f.completed {
		f.completed = value
		f.cond.Broadcast()
	}

	if f.destroyed {
		vk.DestroyFence(f.device.logicalDevice, handle, f.device.allocator)
		return
	}
	vk.ResetFences(f.device.logicalDevice, 1, []vk.Fence{handle})
	f.free = append(f.free, handle)
}

func (f *Fence) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return
	}
	f.destroyed = true
	for _, handle := range f.free {
		vk.DestroyFence(f.device.logicalDevice, handle, f.device.allocator)
	}
	f.free = nil
}
