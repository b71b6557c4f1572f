package workflow

import (
	"sync"
	"time"
)

// Registry maps page sessions onto controller instances so each session
// gets its own single-flight workflow. Idle entries are evicted lazily once
// they exceed the TTL; busy controllers are never evicted.
type Registry struct {
	factory func() *Controller
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	ctrl     *Controller
	lastSeen time.Time
}

func NewRegistry(factory func() *Controller, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		factory: factory,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
	}
}

// Controller returns the controller owned by sessionID, creating it on
// first use.
func (r *Registry) Controller(sessionID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	entry, ok := r.entries[sessionID]
	if !ok {
		entry = &registryEntry{ctrl: r.factory()}
		r.entries[sessionID] = entry
	}
	entry.lastSeen = now
	return entry.ctrl
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sweep(now time.Time) {
	for id, entry := range r.entries {
		if now.Sub(entry.lastSeen) > r.ttl && !entry.ctrl.Busy() {
			delete(r.entries, id)
		}
	}
}
