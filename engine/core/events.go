package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Resized/resolution changed from the OS.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

// SystemEvent carries the payload of EVENT_CODE_RESIZED.
type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type FnOnEvent func(context EventContext)

type eventSystemState struct {
	mutex      sync.RWMutex
	registered map[SystemEventCode][]FnOnEvent
	pending    chan EventContext
	done       chan struct{}
}

var onceEvent sync.Once
var eventState *eventSystemState = nil

func EventSystemInitialize() bool {
	onceEvent.Do(func() {
		eventState = &eventSystemState{
			registered: make(map[SystemEventCode][]FnOnEvent),
			pending:    make(chan EventContext, 256),
			done:       make(chan struct{}),
		}
	})
	return eventState != nil
}

func EventSystemShutdown() error {
	if eventState != nil {
		close(eventState.done)
	}
	return nil
}

func EventRegister(code SystemEventCode, callback FnOnEvent) {
	eventState.mutex.Lock()
	defer eventState.mutex.Unlock()
	eventState.registered[code] = append(eventState.registered[code], callback)
}

// EventFire enqueues the event for delivery by ProcessEvents. Fire-and-forget;
// a full queue drops the event with a warning rather than blocking the frame.
func EventFire(context EventContext) {
	select {
	case eventState.pending <- context:
	default:
		LogWarn("event queue full, dropping event code %d", context.Type)
	}
}

// ProcessEvents drains the pending queue until shutdown. Run on its own
// goroutine by the engine.
func ProcessEvents() {
	for {
		select {
		case <-eventState.done:
			return
		case ctx := <-eventState.pending:
			eventState.mutex.RLock()
			listeners := eventState.registered[ctx.Type]
			eventState.mutex.RUnlock()
			for _, fn := range listeners {
				fn(ctx)
			}
		}
	}
}
