package soft

import (
	"sync"

	"github.com/spaghettifunk/vortex/engine/gpu"
)

type EventKind int

const (
	EventRead EventKind = iota
	EventWrite
	EventBarrier
	EventSignal
	EventPresent
	EventRelease
)

func (k EventKind) String() string {
	switch k {
	case EventRead:
		return "read"
	case EventWrite:
		return "write"
	case EventBarrier:
		return "barrier"
	case EventSignal:
		return "signal"
	case EventPresent:
		return "present"
	case EventRelease:
		return "release"
	}
	return "unknown"
}

// Event is one entry in the device's execution journal. Seq is a global
// monotonic sequence number assigned at execution time, so cross-queue
// ordering claims can be checked after the fact.
type Event struct {
	Seq      uint64
	Queue    gpu.QueueKind
	Kind     EventKind
	Resource string
	// Value is the fence value for EventSignal entries.
	Value uint64
	// From/To are populated for EventBarrier entries.
	From gpu.ResourceState
	To   gpu.ResourceState
}

// Journal records what the software queues actually executed, in the
// order they executed it. Tests use it to verify the synchronization
// protocol instead of trusting the CPU-side call order.
type Journal struct {
	mu     sync.Mutex
	seq    uint64
	events []Event
}

func (j *Journal) record(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	e.Seq = j.seq
	j.events = append(j.events, e)
}

// Events returns a snapshot of the journal.
func (j *Journal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Event, len(j.events))
	copy(out, j.events)
	return out
}

// First returns the first event matching the predicate, or false.
func (j *Journal) First(match func(Event) bool) (Event, bool) {
	for _, e := range j.Events() {
		if match(e) {
			return e, true
		}
	}
	return Event{}, false
}
