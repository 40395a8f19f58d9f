package handle

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type testObserver struct {
	events []Event
	mu     sync.Mutex
}

func (o *testObserver) OnHandleEvent(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func TestTable_Basic(t *testing.T) {
	table := NewTable[string]()

	h, err := table.Insert("test value")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, err := table.Get(h)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	val, err = table.Remove(h)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	if _, err := table.Get(h); !errors.Is(err, ErrStale) {
		t.Fatalf("Expected ErrStale after Remove, got %v", err)
	}
}

func TestTable_DoubleRemove(t *testing.T) {
	table := NewTable[int]()
	h, _ := table.Insert(1)

	if _, err := table.Remove(h); err != nil {
		t.Fatalf("first Remove failed: %v", err)
	}
	if _, err := table.Remove(h); !errors.Is(err, ErrStale) {
		t.Fatalf("second Remove should fail with ErrStale, got %v", err)
	}
}

func TestTable_StaleHandleAfterReuse(t *testing.T) {
	table := NewTable[string]()

	old, _ := table.Insert("old")
	if _, err := table.Remove(old); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	fresh, _ := table.Insert("new")
	if fresh.slot() != old.slot() {
		t.Fatalf("expected slot reuse, got slots %d and %d", old.slot(), fresh.slot())
	}
	if fresh == old {
		t.Fatal("reused slot must produce a different handle")
	}

	if _, err := table.Get(old); !errors.Is(err, ErrStale) {
		t.Fatalf("old handle should be stale, got %v", err)
	}
	if _, err := table.Remove(old); !errors.Is(err, ErrStale) {
		t.Fatalf("removing old handle should fail, got %v", err)
	}
	if v, err := table.Get(fresh); err != nil || v != "new" {
		t.Fatalf("fresh handle lookup = %q, %v", v, err)
	}
}

func TestTable_Borrow(t *testing.T) {
	table := NewTable[int]()
	h, _ := table.Insert(100)

	v, err := table.Borrow(h)
	if err != nil || v != 100 {
		t.Fatalf("Borrow = %d, %v", v, err)
	}

	if _, err := table.Remove(h); !errors.Is(err, ErrOutstandingBorrow) {
		t.Fatalf("Remove should fail with outstanding borrow, got %v", err)
	}

	if err := table.Return(h); err != nil {
		t.Fatalf("Return failed: %v", err)
	}

	if _, err := table.Remove(h); err != nil {
		t.Fatalf("Remove should succeed after returning borrow: %v", err)
	}
}

func TestTable_MultipleBorrows(t *testing.T) {
	table := NewTable[int]()
	h, _ := table.Insert(1)

	for i := 0; i < 5; i++ {
		if _, err := table.Borrow(h); err != nil {
			t.Fatalf("Borrow %d failed: %v", i, err)
		}
	}

	if _, err := table.Remove(h); !errors.Is(err, ErrOutstandingBorrow) {
		t.Fatal("Remove should fail with outstanding borrows")
	}

	for i := 0; i < 5; i++ {
		if err := table.Return(h); err != nil {
			t.Fatalf("Return %d failed: %v", i, err)
		}
	}

	if err := table.Return(h); !errors.Is(err, ErrStale) {
		t.Fatalf("extra Return should fail, got %v", err)
	}

	if _, err := table.Remove(h); err != nil {
		t.Fatalf("Remove should succeed after returning all borrows: %v", err)
	}
}

func TestTable_InvalidHandle(t *testing.T) {
	table := NewTable[int]()

	if _, err := table.Get(0); !errors.Is(err, ErrStale) {
		t.Fatal("Handle 0 should be invalid")
	}
	if _, err := table.Borrow(0); !errors.Is(err, ErrStale) {
		t.Fatal("Handle 0 should fail Borrow")
	}
	if err := table.Return(0); !errors.Is(err, ErrStale) {
		t.Fatal("Handle 0 should fail Return")
	}
	if _, err := table.Remove(0); !errors.Is(err, ErrStale) {
		t.Fatal("Handle 0 should fail Remove")
	}
	if _, err := table.Get(999); !errors.Is(err, ErrStale) {
		t.Fatal("Non-existent handle should be invalid")
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable[int]()
	h1, _ := table.Insert(1)
	h2, _ := table.Insert(2)

	released := map[Handle]int{}
	if err := table.Close(func(h Handle, v int) { released[h] = v }); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(released) != 2 || released[h1] != 1 || released[h2] != 2 {
		t.Fatalf("unexpected released set %v", released)
	}

	if _, err := table.Insert(3); !errors.Is(err, ErrClosed) {
		t.Fatal("Expected ErrClosed after Close")
	}
	if _, err := table.Get(h1); !errors.Is(err, ErrClosed) {
		t.Fatal("Expected ErrClosed from Get after Close")
	}

	if err := table.Close(nil); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
}

func TestTable_CloseWaitsForBorrows(t *testing.T) {
	table := NewTable[int]()
	h, _ := table.Insert(7)
	if _, err := table.Borrow(h); err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}

	var mu sync.Mutex
	var released []int
	closed := make(chan struct{})
	go func() {
		table.Close(func(_ Handle, v int) {
			mu.Lock()
			released = append(released, v)
			mu.Unlock()
		})
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a borrow was outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	mu.Lock()
	n := len(released)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("released %d values while borrowed", n)
	}

	// no new borrows once closing has started
	if _, err := table.Borrow(h); !errors.Is(err, ErrClosed) {
		t.Fatalf("Borrow during Close = %v, want ErrClosed", err)
	}

	if err := table.Return(h); err != nil {
		t.Fatalf("Return during Close failed: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not finish after the borrow was returned")
	}
	if len(released) != 1 || released[0] != 7 {
		t.Fatalf("released = %v, want [7]", released)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable[string]()
	obs := &testObserver{}
	stop := table.Subscribe(obs)

	h, _ := table.Insert("test")
	table.Borrow(h)
	table.Return(h)
	table.Remove(h)

	want := []EventType{EventCreated, EventBorrowed, EventReturned, EventRemoved}
	if len(obs.events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(obs.events))
	}
	for i, typ := range want {
		if obs.events[i].Type != typ {
			t.Errorf("event %d type = %v, want %v", i, obs.events[i].Type, typ)
		}
		if obs.events[i].Handle != h {
			t.Errorf("event %d handle = %v, want %v", i, obs.events[i].Handle, h)
		}
	}

	stop()
	table.Insert("other")
	if len(obs.events) != len(want) {
		t.Fatal("Observer should not receive events after unsubscribe")
	}
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable[int]()
	var live int
	table.Subscribe(ObserverFunc(func(e Event) {
		switch e.Type {
		case EventCreated:
			live++
		case EventRemoved:
			live--
		}
	}))

	h1, _ := table.Insert(1)
	table.Insert(2)
	table.Remove(h1)

	if live != 1 {
		t.Fatalf("live = %d, want 1", live)
	}
	table.Close(nil)
	if live != 0 {
		t.Fatalf("live after Close = %d, want 0", live)
	}
}

func TestTable_Len(t *testing.T) {
	table := NewTable[string]()

	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 initially")
	}

	h1, _ := table.Insert("a")
	h2, _ := table.Insert("b")
	table.Insert("c")

	if table.Len() != 3 {
		t.Fatalf("Expected Len() == 3, got %d", table.Len())
	}

	table.Remove(h1)
	if table.Len() != 2 {
		t.Fatalf("Expected Len() == 2, got %d", table.Len())
	}

	table.Remove(h2)
	if table.Len() != 1 {
		t.Fatalf("Expected Len() == 1, got %d", table.Len())
	}
}

func TestTable_Each(t *testing.T) {
	table := NewTable[string]()

	table.Insert("a")
	table.Insert("b")
	table.Insert("c")

	seen := map[string]bool{}
	table.Each(func(h Handle, v string) bool {
		got, err := table.Get(h)
		if err != nil || got != v {
			t.Errorf("Each handle %v does not resolve to %q", h, v)
		}
		seen[v] = true
		return true
	})
	if len(seen) != 3 {
		t.Fatalf("Expected to iterate over 3 items, got %d", len(seen))
	}

	count := 0
	table.Each(func(h Handle, v string) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Expected to iterate over 1 item (early term), got %d", count)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable[int]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h, err := table.Insert(id)
			if err != nil {
				t.Errorf("Insert: %v", err)
				return
			}
			if _, err := table.Borrow(h); err != nil {
				t.Errorf("Borrow: %v", err)
			}
			table.Return(h)
			if v, err := table.Remove(h); err != nil || v != id {
				t.Errorf("Remove = %d, %v; want %d", v, err, id)
			}
		}(i)
	}

	wg.Wait()
	if table.Len() != 0 {
		t.Fatalf("Len = %d after concurrent churn", table.Len())
	}
}

func TestHandleEncoding(t *testing.T) {
	h := makeHandle(4, 7)
	if h.slot() != 4 {
		t.Errorf("slot = %d, want 4", h.slot())
	}
	if h.generation() != 7 {
		t.Errorf("generation = %d, want 7", h.generation())
	}
	if makeHandle(0, 0) == 0 {
		t.Error("slot 0 must not encode to handle 0")
	}
}
