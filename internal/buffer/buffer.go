package buffer

import (
	"sync"
)

// Buffer holds staged entries until a store flushes them.
type Buffer[T any] struct {
	mu sync.Mutex
	ts []T
}

func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

func (b *Buffer[T]) Add(es ...T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ts = append(b.ts, es...)
}

// Len reports the number of staged entries.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ts)
}

// Drain empties the buffer and returns what it held, in staging order.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	es := b.ts
	b.ts = nil
	b.mu.Unlock()
	return es
}

// Reset discards every staged entry.
func (b *Buffer[T]) Reset() {
	b.Drain()
}
