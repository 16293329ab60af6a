package scheduler

import (
	"sync"

	"github.com/google/uuid"
)

// keyedLocks hands out one mutex per appointment id. The per-id mutex is the
// single-flight guard for cascade operations: Arm uses TryLock to drop a
// concurrent caller, Disarm and CancelNags block on Lock.
//
// Locks are never removed from the map. The set of appointments a process
// touches is small and bounded by user data, so the few bytes per id are not
// worth a reference-counting scheme.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// get returns the mutex for the given id, creating it on first use.
func (k *keyedLocks) get(id uuid.UUID) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	if l, ok := k.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	k.locks[id] = l
	return l
}
