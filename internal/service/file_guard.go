package service

import (
	"context"
	"sync"
)

// ExportedFileGuard is an exported alias so _test packages can test the guard.
type ExportedFileGuard = fileGuard

// ─────────────────────────────────────────────────────────────
// fileGuard: one exclusive section per dataset file
// ─────────────────────────────────────────────────────────────

// fileGuard serializes load-mutate-persist-reindex cycles per dataset key.
// Different keys never block each other. Callers count as in flight from the
// moment they ask for a key, so WaitAll never misses one that is about to
// take it.
type fileGuard struct {
	mu       sync.Mutex
	slots    map[string]chan struct{}
	inflight int
	idle     chan struct{} // closed when inflight drops to zero
}

// slot returns the key's slot and counts the caller in flight.
func (g *fileGuard) slot(key string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slots == nil {
		g.slots = make(map[string]chan struct{})
	}
	ch, ok := g.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		g.slots[key] = ch
	}
	if g.inflight == 0 {
		g.idle = make(chan struct{})
	}
	g.inflight++
	return ch
}

func (g *fileGuard) done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inflight--
	if g.inflight == 0 {
		close(g.idle)
		g.idle = nil
	}
}

// Lock blocks until key is free or ctx is done.
func (g *fileGuard) Lock(ctx context.Context, key string) error {
	ch := g.slot(key)
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		g.done()
		return ctx.Err()
	}
}

// TryLock takes key if it is free. Returns false if it is held.
func (g *fileGuard) TryLock(key string) bool {
	ch := g.slot(key)
	select {
	case ch <- struct{}{}:
		return true
	default:
		g.done()
		return false
	}
}

// Unlock releases key. Must be called after a successful Lock or TryLock.
func (g *fileGuard) Unlock(key string) {
	g.mu.Lock()
	ch := g.slots[key]
	g.mu.Unlock()
	<-ch
	g.done()
}

// WaitAll blocks until no key is held or awaited, or ctx is cancelled.
func (g *fileGuard) WaitAll(ctx context.Context) {
	g.mu.Lock()
	idle := g.idle
	g.mu.Unlock()
	if idle == nil {
		return
	}
	select {
	case <-idle:
	case <-ctx.Done():
	}
}
