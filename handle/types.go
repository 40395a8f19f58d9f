package handle

// Handle is an opaque reference to a value in a Table.
// The low 16 bits hold the slot index plus one, the high 16 bits the slot
// generation. Handle 0 is reserved and always invalid.
type Handle uint32

const (
	slotBits = 16
	slotMask = 1<<slotBits - 1

	// MaxLive is the largest number of simultaneously live handles.
	MaxLive = slotMask
)

func makeHandle(slot int, gen uint16) Handle {
	return Handle(uint32(gen)<<slotBits | uint32(slot+1))
}

func (h Handle) slot() int {
	return int(uint32(h)&slotMask) - 1
}

func (h Handle) generation() uint16 {
	return uint16(uint32(h) >> slotBits)
}

// EventType identifies a handle lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRemoved
	EventBorrowed
	EventReturned
)

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnHandleEvent calls f(e).
func (f ObserverFunc) OnHandleEvent(e Event) {
	f(e)
}
