package gpu

import (
	"fmt"

	"github.com/spaghettifunk/vortex/engine/core"
)

// FenceSync owns one queue's monotonically increasing counter. Signal
// values are never reused and never skip; LastSignaled is the value the
// queue will eventually complete, CompletedValue the value it has.
type FenceSync struct {
	queue Queue
	fence Fence
	value uint64
}

func NewFenceSync(device Device, queue Queue) (*FenceSync, error) {
	fence, err := device.NewFence()
	if err != nil {
		core.LogError("failed to create fence for %s queue: %s", queue.Kind(), err)
		return nil, err
	}
	return &FenceSync{
		queue: queue,
		fence: fence,
	}, nil
}

// Signal enqueues a GPU-side signal behind the queue's submitted work and
// returns the new counter value.
func (fs *FenceSync) Signal() (uint64, error) {
	fs.value++
	if err := fs.queue.Signal(fs.fence, fs.value); err != nil {
		return 0, fmt.Errorf("failed to signal %s queue fence: %w", fs.queue.Kind(), err)
	}
	return fs.value, nil
}

// WaitUntil blocks until the GPU-reported completed value reaches value.
// A device-lost result is fatal to the session; there is no retry.
func (fs *FenceSync) WaitUntil(value uint64) error {
	if err := fs.fence.WaitUntil(value); err != nil {
		core.LogError("%s queue fence wait failed: %s", fs.queue.Kind(), err)
		return err
	}
	return nil
}

func (fs *FenceSync) CompletedValue() uint64 {
	return fs.fence.CompletedValue()
}

func (fs *FenceSync) LastSignaled() uint64 {
	return fs.value
}

// SignalAndWait signals and then blocks until that signal completes - the
// full-pipeline flush used at initialization and shutdown.
func (fs *FenceSync) SignalAndWait() error {
	v, err := fs.Signal()
	if err != nil {
		return err
	}
	return fs.WaitUntil(v)
}

func (fs *FenceSync) Destroy() {
	if fs.fence != nil {
		fs.fence.Destroy()
		fs.fence = nil
	}
}
