package mutex

import (
	"sync"
)

// KeyedMutex hands out one mutex per key so work on the same key is serialized.
// Entries are reference counted and dropped once nobody holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty KeyedMutex
func New() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyEntry)}
}

func (km *KeyedMutex) acquire(key string) *keyEntry {
	km.mu.Lock()
	defer km.mu.Unlock()

	e, ok := km.entries[key]
	if !ok {
		e = &keyEntry{}
		km.entries[key] = e
	}
	e.refs++
	return e
}

func (km *KeyedMutex) release(key string, e *keyEntry) {
	km.mu.Lock()
	defer km.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(km.entries, key)
	}
}

// Lock blocks until key is free and returns the matching unlock function
func (km *KeyedMutex) Lock(key string) (unlock func()) {
	e := km.acquire(key)
	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			km.release(key, e)
		})
	}
}

// Size returns the number of keys currently held or waited on
func (km *KeyedMutex) Size() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.entries)
}
