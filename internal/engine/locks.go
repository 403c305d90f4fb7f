package engine

import (
	"context"
	"sync"

	"github.com/roach88/forge/internal/ir"
)

// entityLocks hands out one mutex per entity id. Entries are never removed,
// so a deleted and recreated id keeps serialising on the same mutex.
type entityLocks struct {
	mu    sync.Mutex
	locks map[ir.EntityID]*sync.Mutex
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[ir.EntityID]*sync.Mutex)}
}

func (l *entityLocks) get(id ir.EntityID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// heldLocks is an immutable list of the entity locks held by the current
// call chain.
type heldLocks struct {
	id     ir.EntityID
	parent *heldLocks
}

type heldKey struct{}

func holds(ctx context.Context, id ir.EntityID) bool {
	for h, _ := ctx.Value(heldKey{}).(*heldLocks); h != nil; h = h.parent {
		if h.id == id {
			return true
		}
	}
	return false
}

func withHeld(ctx context.Context, id ir.EntityID) context.Context {
	parent, _ := ctx.Value(heldKey{}).(*heldLocks)
	return context.WithValue(ctx, heldKey{}, &heldLocks{id: id, parent: parent})
}

// withEntity runs fn with the entity's lock held, acquiring it unless ctx
// already holds it. fn receives the context it must pass to nested calls.
func (e *Engine) withEntity(ctx context.Context, id ir.EntityID, fn func(ctx context.Context, ent *ir.Entity, et *ir.EntityType) error) error {
	if !holds(ctx, id) {
		m := e.locks.get(id)
		m.Lock()
		defer m.Unlock()
		ctx = withHeld(ctx, id)
	}

	ent, ok := e.lookup(id)
	if !ok {
		return entityNotFound(id)
	}
	et, ok := e.schema.EntityType(ent.Type)
	if !ok {
		return unknownEntityType(ent.Type)
	}
	return fn(ctx, ent, et)
}
