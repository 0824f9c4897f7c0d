package keyedmutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryLockPerKey(t *testing.T) {
	m := New()

	assert.True(t, m.TryLock("alice"))
	assert.False(t, m.TryLock("alice"))
	assert.True(t, m.TryLock("bob"))

	m.Unlock("alice")
	assert.True(t, m.TryLock("alice"))
}

func TestTryLockUnderContention(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.TryLock("key") {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
}
