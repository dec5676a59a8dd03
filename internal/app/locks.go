package app

import "sync"

// keyedMutex serializes work per key so distinct objects and relationship
// quadruples proceed fully in parallel. Entries are never reaped; the key
// space (object ids in flight) stays small relative to the data.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// newKeyedMutex constructs an empty keyed mutex.
func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*sync.Mutex{}}
}

// Lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
