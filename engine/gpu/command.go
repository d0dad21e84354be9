package gpu

import (
	"github.com/spaghettifunk/vortex/engine/core"
)

// CommandContext pairs one reusable command list with the fence that
// throttles its reuse. One context per queue is the reference design: the
// wait-before-reset in Begin is what bounds frames in flight to one. A
// pool of N contexts indexed by frame%N would reuse this type unchanged.
type CommandContext struct {
	list      CommandList
	queue     Queue
	sync      *FenceSync
	recording bool
	// Fence value of this context's last submission. Zero means the
	// context has never been submitted.
	pendingValue uint64
}

func NewCommandContext(device Device, kind QueueKind, sync *FenceSync) (*CommandContext, error) {
	list, err := device.NewCommandList(kind)
	if err != nil {
		core.LogError("failed to create %s command list: %s", kind, err)
		return nil, err
	}
	return &CommandContext{
		list:  list,
		queue: device.Queue(kind),
		sync:  sync,
	}, nil
}

// Begin resets the list for a new recording pass. Calling it while the
// previous submission is still executing is a programming error, not a
// recoverable condition: resetting an in-flight list is undefined GPU
// behavior, so the violation surfaces as core.ErrContextInFlight.
func (cc *CommandContext) Begin(pipeline Pipeline) error {
	if cc.recording {
		return core.ErrContextInFlight
	}
	if cc.pendingValue > cc.sync.CompletedValue() {
		core.LogError("Begin called on a %s context whose submission %d has not completed", cc.queue.Kind(), cc.pendingValue)
		return core.ErrContextInFlight
	}
	if err := cc.list.Reset(pipeline); err != nil {
		return err
	}
	cc.recording = true
	return nil
}

// List exposes the recording surface between Begin and Submit.
func (cc *CommandContext) List() CommandList {
	return cc.list
}

// Submit closes the list, hands it to the queue, and signals the fence
// behind it. The returned token is the fence value that completes when
// this submission finishes; submission order on the queue is the program
// order of Submit calls.
func (cc *CommandContext) Submit() (uint64, error) {
	if !cc.recording {
		return 0, core.ErrContextNotRecording
	}
	if err := cc.list.Close(); err != nil {
		return 0, err
	}
	if err := cc.queue.Submit(cc.list); err != nil {
		return 0, err
	}
	value, err := cc.sync.Signal()
	if err != nil {
		return 0, err
	}
	cc.recording = false
	cc.pendingValue = value
	return value, nil
}

// WaitForGPU blocks until this context's last submission has completed.
// This is the per-frame throttling point.
func (cc *CommandContext) WaitForGPU() error {
	if cc.pendingValue == 0 {
		return nil
	}
	return cc.sync.WaitUntil(cc.pendingValue)
}

// PendingValue returns the token of the last submission (zero if none).
func (cc *CommandContext) PendingValue() uint64 {
	return cc.pendingValue
}
