package vulkan

import (
	"errors"
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

// Queue wraps one vk.Queue. The mutex serializes QueueSubmit calls since
// Vulkan queues are externally synchronized.
type Queue struct {
	device *Device
	kind   gpu.QueueKind
	handle vk.Queue
	mu     sync.Mutex
}

func newQueueWrapper(device *Device, kind gpu.QueueKind, handle vk.Queue) *Queue {
	return &Queue{
		device: device,
		kind:   kind,
		handle: handle,
	}
}

func (q *Queue) Kind() gpu.QueueKind {
	return q.kind
}

func (q *Queue) Submit(list gpu.CommandList) error {
	cl, ok := list.(*CommandList)
	if !ok {
		return errors.New("command list was not created by this device")
	}
	if !cl.closed {
		return errors.New("command list must be closed before submission")
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cl.handle},
	}

	// A list that rendered to a swapchain image must wait for the acquire
	// and flag completion for the present.
	if cl.presentTarget != nil {
		sc := cl.presentTarget.swapchain
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{sc.imageAvailableSemaphore}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{sc.renderCompleteSemaphore}
		sc.renderPending = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if res := vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		err := fmt.Errorf("failed to submit command list to %s queue with `%s`", q.kind, ResultString(res))
		core.LogError(err.Error())
		return err
	}
	return nil
}

// Signal enqueues an empty submission carrying a binary fence, then lets the
// Fence retire the monotonic value once the GPU passes this point.
func (q *Queue) Signal(f gpu.Fence, value uint64) error {
	vf, ok := f.(*Fence)
	if !ok {
		return errors.New("fence was not created by this device")
	}

	handle, err := vf.acquire()
	if err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo,
	}

	q.mu.Lock()
	res := vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, handle)
	q.mu.Unlock()

	if res != vk.Success {
		err := fmt.Errorf("failed to submit fence signal to %s queue with `%s`", q.kind, ResultString(res))
		core.LogError(err.Error())
		return err
	}

	go vf.retire(handle, value)
	return nil
}
