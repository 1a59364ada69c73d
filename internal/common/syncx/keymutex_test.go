package syncx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	const workers = 50
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(1)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()

	unlock1 := km.Lock(1)
	defer unlock1()

	// Must not deadlock while key 1 is held.
	unlock2 := km.Lock(2)
	unlock2()
}

func TestLockReleasableAndReacquirable(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock(1)
	unlock()

	unlock = km.Lock(1)
	unlock()
}

func TestEntriesFreedAfterLastUnlock(t *testing.T) {
	km := NewKeyedMutex()

	unlock1 := km.Lock(1)
	unlock2 := km.Lock(2)
	unlock1()
	unlock2()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
