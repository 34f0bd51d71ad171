// Package keylock provides striped mutexes for serializing work per string
// key without holding one lock per live key.
package keylock

import (
	"hash/fnv"
	"sync"
)

// DefaultStripes balances contention against memory for request-path use.
const DefaultStripes = 256

// KeyedMutex serializes callers sharing the same key. Distinct keys map onto
// a fixed set of stripes, so unrelated keys rarely contend and the zero-size
// cost per key is constant.
type KeyedMutex struct {
	stripes []sync.Mutex
}

// New creates a KeyedMutex with the given number of stripes. Values below 1
// fall back to DefaultStripes.
func New(stripes int) *KeyedMutex {
	if stripes < 1 {
		stripes = DefaultStripes
	}
	return &KeyedMutex{stripes: make([]sync.Mutex, stripes)}
}

// Lock acquires the stripe owning key, blocking until it is available.
func (m *KeyedMutex) Lock(key string) {
	m.stripes[m.index(key)].Lock()
}

// Unlock releases the stripe owning key.
func (m *KeyedMutex) Unlock(key string) {
	m.stripes[m.index(key)].Unlock()
}

func (m *KeyedMutex) index(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.stripes)))
}
