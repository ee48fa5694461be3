package world

import (
	"sync"

	"github.com/google/uuid"
	"github.com/l1jgo/blockstream/internal/core/ecs"
)

// Table maps a network-visible key to an entity handle. Reads run
// concurrently from the protocol dispatcher; writes happen only on join and
// leave and hold the lock briefly.
type Table[K comparable] struct {
	mu sync.RWMutex
	m  map[K]ecs.EntityID
}

func NewTable[K comparable]() *Table[K] {
	return &Table[K]{m: make(map[K]ecs.EntityID, 64)}
}

func (t *Table[K]) Insert(k K, id ecs.EntityID) {
	t.mu.Lock()
	t.m[k] = id
	t.mu.Unlock()
}

// Remove deletes k only while it still maps to id, so a late removal for a
// departed entity cannot drop a newer entity that reused the key.
func (t *Table[K]) Remove(k K, id ecs.EntityID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.m[k]; ok && cur == id {
		delete(t.m, k)
		return true
	}
	return false
}

func (t *Table[K]) Get(k K) (ecs.EntityID, bool) {
	t.mu.RLock()
	id, ok := t.m[k]
	t.mu.RUnlock()
	return id, ok
}

func (t *Table[K]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// EntityIDLookup resolves the numeric entity id clients use in packets.
type EntityIDLookup = Table[int32]

// PlayerUUIDLookup resolves a player's profile UUID.
type PlayerUUIDLookup = Table[uuid.UUID]

// Lookups bundles both tables; one instance is shared process-wide.
type Lookups struct {
	EntityIDs   *EntityIDLookup
	PlayerUUIDs *PlayerUUIDLookup
}

func NewLookups() *Lookups {
	return &Lookups{
		EntityIDs:   NewTable[int32](),
		PlayerUUIDs: NewTable[uuid.UUID](),
	}
}

// Insert registers a joined player in both tables under its client-visible
// numeric id and profile UUID.
func (l *Lookups) Insert(netID int32, id ecs.EntityID, u uuid.UUID) {
	l.EntityIDs.Insert(netID, id)
	l.PlayerUUIDs.Insert(u, id)
}

// Remove drops a departed player from both tables.
func (l *Lookups) Remove(netID int32, id ecs.EntityID, u uuid.UUID) {
	l.EntityIDs.Remove(netID, id)
	l.PlayerUUIDs.Remove(u, id)
}
