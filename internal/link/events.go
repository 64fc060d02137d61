package link

import (
	"slices"
	"sync"
)

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// handlers is a subscriber list. Every subscriber receives every event, in
// registration order, on the emitting goroutine.
type handlers[T any] struct {
	mu   sync.Mutex
	seq  uint64
	subs []subscriber[T]
}

// add registers fn and returns a function that removes it again.
func (h *handlers[T]) add(fn func(T)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	id := h.seq
	h.subs = append(h.subs, subscriber[T]{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.subs = slices.DeleteFunc(h.subs, func(s subscriber[T]) bool { return s.id == id })
	}
}

func (h *handlers[T]) emit(v T) {
	h.mu.Lock()
	subs := slices.Clone(h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

func (h *handlers[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
