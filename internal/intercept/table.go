// Package intercept implements the typed event dispatcher interceptors
// attach to: one ordered, stably-detachable callback table per event family
// (spec §4.F).
package intercept

import "sync"

// Table is one event family's callback registry: event -> ordered callbacks,
// plus id -> event for O(1) detach lookup (spec §3, "Interceptor table").
// Id 0 is reserved to mean "not attached".
type Table[E comparable, P any] struct {
	mu        sync.RWMutex
	nextID    uint64
	callbacks map[E][]entry[P]
	owner     map[uint64]E
}

type entry[P any] struct {
	id uint64
	fn func(P)
}

// NewTable constructs an empty table for one event family.
func NewTable[E comparable, P any]() *Table[E, P] {
	return &Table[E, P]{
		callbacks: make(map[E][]entry[P]),
		owner:     make(map[uint64]E),
	}
}

// Attach registers fn under event, firing after any callback already
// attached to the same event, and returns a stable non-zero id for Detach.
func (t *Table[E, P]) Attach(event E, fn func(P)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	t.callbacks[event] = append(t.callbacks[event], entry[P]{id: id, fn: fn})
	t.owner[id] = event
	return id
}

// Detach removes the callback registered under id. Reports whether it was
// found (a caller detaching twice, or with a stale id, is a no-op).
func (t *Table[E, P]) Detach(id uint64) bool {
	if id == 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	event, ok := t.owner[id]
	if !ok {
		return false
	}
	delete(t.owner, id)

	list := t.callbacks[event]
	for i, e := range list {
		if e.id == id {
			t.callbacks[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return true
}

// Fire invokes every callback attached to event, in attach order, with
// payload. Dispatch is synchronous on the calling goroutine (spec §4.F).
// The callback slice is snapshotted under the read lock so a callback that
// attaches or detaches another callback mid-dispatch cannot deadlock or
// corrupt iteration.
func (t *Table[E, P]) Fire(event E, payload P) {
	t.mu.RLock()
	list := append([]entry[P](nil), t.callbacks[event]...)
	t.mu.RUnlock()

	for _, e := range list {
		e.fn(payload)
	}
}

// Len reports how many callbacks are attached to event, for tests and the
// admin/metrics surface.
func (t *Table[E, P]) Len(event E) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.callbacks[event])
}
