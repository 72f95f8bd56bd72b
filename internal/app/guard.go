package app

import "sync"

// submitGuard deduplicates in-flight mutating actions. An acquire for an
// action/entity pair that is already held fails immediately instead of
// queueing, so a double click cannot issue the same remote call twice.
type submitGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newSubmitGuard() *submitGuard {
	return &submitGuard{inflight: make(map[string]struct{})}
}

func (g *submitGuard) acquire(action, entityID string) bool {
	key := action + ":" + entityID
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.inflight[key]; held {
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

// busy reports whether any mutating action is currently in flight.
func (g *submitGuard) busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight) > 0
}

func (g *submitGuard) release(action, entityID string) {
	key := action + ":" + entityID
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}
