package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode uint16

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01
	// Keyboard key pressed, KeyCode holds the key.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02
	// Keyboard key released, KeyCode holds the key.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03
	// Resized/resolution changed from the OS, Width and Height hold the new framebuffer size.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Key codes follow the ASCII upper-case letters for A..Z.
type KeyCode uint16

const (
	KEY_ESCAPE KeyCode = 0x1B
	KEY_SPACE  KeyCode = 0x20
	KEY_A      KeyCode = 0x41
	KEY_D      KeyCode = 0x44
	KEY_E      KeyCode = 0x45
	KEY_Q      KeyCode = 0x51
	KEY_S      KeyCode = 0x53
	KEY_W      KeyCode = 0x57
)

type EventContext struct {
	Type    SystemEventCode
	Sender  interface{}
	KeyCode KeyCode
	Width   uint32
	Height  uint32
}

// Should return true if handled.
type FnOnEvent func(context EventContext) bool

type registeredEvent struct {
	id       uint64
	callback FnOnEvent
}

// EventBus dispatches events synchronously on the goroutine that fires them.
type EventBus struct {
	mu         sync.RWMutex
	nextID     uint64
	registered map[SystemEventCode][]registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]registeredEvent),
	}
}

// Register returns an id that can be passed to Unregister.
func (eb *EventBus) Register(code SystemEventCode, onEvent FnOnEvent) uint64 {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	eb.registered[code] = append(eb.registered[code], registeredEvent{id: eb.nextID, callback: onEvent})
	return eb.nextID
}

func (eb *EventBus) Unregister(code SystemEventCode, id uint64) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	events := eb.registered[code]
	for i := range events {
		if events[i].id == id {
			eb.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire stops at the first listener that reports the event as handled.
func (eb *EventBus) Fire(context EventContext) bool {
	eb.mu.RLock()
	events := append([]registeredEvent(nil), eb.registered[context.Type]...)
	eb.mu.RUnlock()

	for _, e := range events {
		if e.callback(context) {
			return true
		}
	}
	return false
}

// Shutdown drops every listener.
func (eb *EventBus) Shutdown() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.registered = make(map[SystemEventCode][]registeredEvent)
}
