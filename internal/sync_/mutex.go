package sync_

import "sync"

// Mutexed couples a value with the mutex that guards it, so the value can only be reached with the lock held.
type Mutexed[T any] struct {
	mu    sync.Mutex
	value T
}

func NewMutexed[T any](value T) *Mutexed[T] {
	return &Mutexed[T]{value: value}
}

func (m *Mutexed[T]) Locked(f func(T) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(m.value)
}

// Update runs f with the lock held against a pointer to the value, for value types that need replacing in place.
func (m *Mutexed[T]) Update(f func(*T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.value)
}

func (m *Mutexed[T]) Get() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}
