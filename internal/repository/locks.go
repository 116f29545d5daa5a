package repository

import (
	"sync"

	"github.com/google/uuid"
)

// EntityLocks serializes writes per entity id so a concurrent reroute
// evaluation and a telemetry-driven update cannot lose each other's writes.
// Reads stay lock-free and see the last committed state.
type EntityLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewEntityLocks() *EntityLocks {
	return &EntityLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock acquires the per-id mutex and returns its unlock func.
func (e *EntityLocks) Lock(id uuid.UUID) func() {
	e.mu.Lock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
