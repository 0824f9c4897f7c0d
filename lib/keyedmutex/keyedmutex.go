package keyedmutex

import "sync"

// KeyedMutex provides non-blocking mutual exclusion per string key. A key is
// held from a successful TryLock until Unlock.
type KeyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func New() *KeyedMutex {
	return &KeyedMutex{
		held: make(map[string]struct{}),
	}
}

// TryLock acquires key if it is free and reports whether it did. It never
// blocks.
func (m *KeyedMutex) TryLock(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.held[key]; taken {
		return false
	}

	m.held[key] = struct{}{}
	return true
}

func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.held, key)
}
