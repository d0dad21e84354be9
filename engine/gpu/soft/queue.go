package soft

import (
	"errors"
	"sync"
	"time"

	"github.com/spaghettifunk/vortex/engine/containers"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

const pendingQueueDepth = 256

// workItem is one entry in a queue's FIFO: a batch of recorded ops, a
// fence signal, a swapchain flip, or an idle sentinel used by WaitIdle.
type workItem struct {
	ops     []op
	signal  *fence
	value   uint64
	idle    chan struct{}
	present *swapchain
	flipped chan struct{}
}

// queue executes submissions on its own goroutine, strictly in submission
// order. The CPU never blocks on Submit; it blocks only in fence waits,
// which mirrors how a hardware queue behaves.
type queue struct {
	kind    gpu.QueueKind
	device  *Device
	mu      sync.Mutex
	cond    *sync.Cond
	pending *containers.RingQueue[workItem]
	closed  bool

	// execDelay stretches execution of each submission. Tests use it to
	// force the race a missing fence wait would otherwise only sometimes
	// expose.
	execDelay time.Duration
}

func newQueue(kind gpu.QueueKind, device *Device) *queue {
	q := &queue{
		kind:    kind,
		device:  device,
		pending: containers.NewRingQueue[workItem](pendingQueueDepth),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *queue) Kind() gpu.QueueKind {
	return q.kind
}

func (q *queue) Submit(list gpu.CommandList) error {
	cl, ok := list.(*commandList)
	if !ok {
		return errors.New("command list was not created by this device")
	}
	if !cl.closed {
		return errors.New("command list must be closed before submission")
	}
	return q.enqueue(workItem{ops: cl.snapshot()})
}

func (q *queue) Signal(f gpu.Fence, value uint64) error {
	sf, ok := f.(*fence)
	if !ok {
		return errors.New("fence was not created by this device")
	}
	return q.enqueue(workItem{signal: sf, value: value})
}

func (q *queue) enqueue(item workItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("queue is shut down")
	}
	if err := q.pending.Enqueue(item); err != nil {
		return err
	}
	q.cond.Signal()
	return nil
}

// waitIdle blocks until everything submitted so far has executed.
func (q *queue) waitIdle() {
	done := make(chan struct{})
	if err := q.enqueue(workItem{idle: done}); err != nil {
		return
	}
	<-done
}

func (q *queue) shutdown() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *queue) run() {
	for {
		q.mu.Lock()
		for q.pending.IsEmpty() && !q.closed {
			q.cond.Wait()
		}
		if q.pending.IsEmpty() && q.closed {
			q.mu.Unlock()
			return
		}
		item, _ := q.pending.Dequeue()
		delay := q.execDelay
		q.mu.Unlock()

		q.execute(item, delay)
	}
}

func (q *queue) execute(item workItem, delay time.Duration) {
	switch {
	case item.idle != nil:
		close(item.idle)
	case item.present != nil:
		item.present.flip(q.kind)
		close(item.flipped)
	case item.signal != nil:
		q.device.journal.record(Event{
			Queue: q.kind,
			Kind:  EventSignal,
			Value: item.value,
		})
		item.signal.signalTo(item.value)
	default:
		if delay > 0 {
			time.Sleep(delay)
		}
		for _, o := range item.ops {
			q.executeOp(o)
		}
	}
}

func (q *queue) executeOp(o op) {
	journal := q.device.journal
	switch o.kind {
	case opBarrier:
		journal.record(Event{
			Queue:    q.kind,
			Kind:     EventBarrier,
			Resource: o.barrierRes.name,
			From:     o.from,
			To:       o.to,
		})
	case opWrite:
		if o.uploadDst.data != nil {
			copy(o.uploadDst.data, o.uploadData)
		}
		journal.record(Event{
			Queue:    q.kind,
			Kind:     EventWrite,
			Resource: o.uploadDst.name,
		})
	default:
		for _, r := range o.reads {
			journal.record(Event{
				Queue:    q.kind,
				Kind:     EventRead,
				Resource: r.name,
			})
		}
		for _, w := range o.writes {
			journal.record(Event{
				Queue:    q.kind,
				Kind:     EventWrite,
				Resource: w.name,
			})
		}
	}
}
