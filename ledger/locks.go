package ledger

import (
	"fmt"
	"sync"
)

// keyedLocks serialises buy/sell per (user, simulation, coin) key. Different
// keys proceed independently. Mutexes are created on demand and kept for the
// process lifetime; the key space is bounded by active traders.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func holdingKey(userID string, simulationID *string, coinID string) string {
	sim := ""
	if simulationID != nil {
		sim = *simulationID
	}
	return fmt.Sprintf("%s|%s|%s", userID, sim, coinID)
}

func (k *keyedLocks) lock(key string) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}
