// Package handle provides a generation-checked handle table.
//
// Engines identify client contexts with small integers that may be reused
// once a context is destroyed. Handing those integers out directly lets a
// caller holding a destroyed id reach whatever context later takes the same
// number. The Table here stands between callers and engine ids: each handle
// encodes a slot and a generation, and the generation changes every time the
// slot is reused.
//
// # Handle Table
//
//	table := handle.NewTable[*session]()
//
//	// Insert a value, get a handle
//	h, err := table.Insert(s)
//
//	// Retrieve value by handle
//	s, err := table.Get(h)
//
//	// Remove and get value
//	s, err := table.Remove(h) // ErrStale on the second call
//
// # Borrows
//
// Borrow pins a value while a call is using it. Remove fails with
// ErrOutstandingBorrow until every borrow has been returned:
//
//	s, err := table.Borrow(h)
//	if err != nil {
//	    return err
//	}
//	defer table.Return(h)
//
// Close refuses new borrows and waits for the outstanding ones to be
// returned before it releases any value.
//
// # Observers
//
// Register observers to track handle lifecycle events:
//
//	stop := table.Subscribe(handle.ObserverFunc(func(e handle.Event) {
//	    switch e.Type {
//	    case handle.EventCreated:
//	        live.Inc()
//	    case handle.EventRemoved:
//	        live.Dec()
//	    }
//	}))
//	defer stop()
//
// Observers are called synchronously after the table lock is released.
package handle
