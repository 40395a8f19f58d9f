package handle

import (
	"errors"
	"sync"
)

var (
	ErrClosed            = errors.New("handle table closed")
	ErrStale             = errors.New("handle is not live")
	ErrOutstandingBorrow = errors.New("cannot remove handle with outstanding borrows")
	ErrFull              = errors.New("handle table full")
)

// Table maps handles to values of type T.
// Freed slots are reused with a bumped generation, so a handle that was
// removed keeps failing lookups even after its slot holds a new value.
type Table[T any] struct {
	entries   []entry[T]
	freeList  []int
	observers map[int]Observer
	returned  *sync.Cond
	nextObs   int
	borrows   int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry[T any] struct {
	value       T
	borrowCount uint32
	gen         uint16
	valid       bool
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	t := &Table[T]{
		entries:   make([]entry[T], 0, 16),
		freeList:  make([]int, 0, 8),
		observers: make(map[int]Observer),
	}
	t.returned = sync.NewCond(&t.mu)
	return t
}

// Insert stores a value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	var slot int
	if len(t.freeList) > 0 {
		slot = t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
	} else {
		if len(t.entries) >= MaxLive {
			t.mu.Unlock()
			return 0, ErrFull
		}
		t.entries = append(t.entries, entry[T]{})
		slot = len(t.entries) - 1
	}

	e := &t.entries[slot]
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}
	e.value = value
	e.valid = true
	e.borrowCount = 0
	h := makeHandle(slot, e.gen)
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Value: value})
	return h, nil
}

// lookup returns the live entry for h. Caller holds mu.
func (t *Table[T]) lookup(h Handle) (*entry[T], bool) {
	if h == 0 {
		return nil, false
	}
	slot := h.slot()
	if slot < 0 || slot >= len(t.entries) {
		return nil, false
	}
	e := &t.entries[slot]
	if !e.valid || e.gen != h.generation() {
		return nil, false
	}
	return e, true
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(h Handle) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero T
	if t.closed {
		return zero, ErrClosed
	}
	e, ok := t.lookup(h)
	if !ok {
		return zero, ErrStale
	}
	return e.value, nil
}

// Borrow retrieves a value and pins it until Return is called.
// Remove fails while borrows are outstanding.
func (t *Table[T]) Borrow(h Handle) (T, error) {
	t.mu.Lock()
	var zero T
	if t.closed {
		t.mu.Unlock()
		return zero, ErrClosed
	}
	e, ok := t.lookup(h)
	if !ok {
		t.mu.Unlock()
		return zero, ErrStale
	}
	e.borrowCount++
	t.borrows++
	value := e.value
	t.mu.Unlock()

	t.notify(Event{Type: EventBorrowed, Handle: h, Value: value})
	return value, nil
}

// Return releases one borrow taken with Borrow. It keeps working while
// Close is waiting for borrows to drain.
func (t *Table[T]) Return(h Handle) error {
	t.mu.Lock()
	e, ok := t.lookup(h)
	if !ok || e.borrowCount == 0 {
		t.mu.Unlock()
		return ErrStale
	}
	e.borrowCount--
	t.borrows--
	if t.borrows == 0 {
		t.returned.Broadcast()
	}
	value := e.value
	t.mu.Unlock()

	t.notify(Event{Type: EventReturned, Handle: h, Value: value})
	return nil
}

// Remove invalidates h and returns its value.
func (t *Table[T]) Remove(h Handle) (T, error) {
	t.mu.Lock()
	var zero T
	if t.closed {
		t.mu.Unlock()
		return zero, ErrClosed
	}
	e, ok := t.lookup(h)
	if !ok {
		t.mu.Unlock()
		return zero, ErrStale
	}
	if e.borrowCount > 0 {
		t.mu.Unlock()
		return zero, ErrOutstandingBorrow
	}

	value := e.value
	e.value = zero
	e.valid = false
	t.freeList = append(t.freeList, h.slot())
	t.mu.Unlock()

	t.notify(Event{Type: EventRemoved, Handle: h, Value: value})
	return value, nil
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all live handles until fn returns false.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(makeHandle(i, e.gen), e.value) {
				break
			}
		}
	}
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (t *Table[T]) Subscribe(o Observer) (unsubscribe func()) {
	t.obsMu.Lock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = o
	t.obsMu.Unlock()

	return func() {
		t.obsMu.Lock()
		delete(t.observers, id)
		t.obsMu.Unlock()
	}
}

// Close stops accepting new handles and borrows, waits until every
// outstanding borrow has been returned, then invalidates all live handles.
// release is called for each value that was live.
func (t *Table[T]) Close(release func(Handle, T)) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for t.borrows > 0 {
		t.returned.Wait()
	}

	type live struct {
		value T
		h     Handle
	}
	var drained []live
	var zero T
	for i := range t.entries {
		e := &t.entries[i]
		if e.valid {
			drained = append(drained, live{h: makeHandle(i, e.gen), value: e.value})
			e.valid = false
			e.value = zero
		}
	}
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()

	for _, l := range drained {
		if release != nil {
			release(l.h, l.value)
		}
		t.notify(Event{Type: EventRemoved, Handle: l.h, Value: l.value})
	}
	return nil
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
