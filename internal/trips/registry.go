package trips

import (
	"sync"
	"time"

	"github.com/richxcame/safecommute/pkg/eventbus"
	"github.com/richxcame/safecommute/pkg/session"
)

// Registry hands out one Manager per session: a user id together with the
// credential it was presented with.
type Registry struct {
	backend  Backend
	eventBus eventbus.Publisher
	now      func() time.Time

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry creates an empty registry.
func NewRegistry(backend Backend) *Registry {
	return &Registry{
		backend:  backend,
		now:      time.Now,
		managers: make(map[string]*Manager),
	}
}

// SetEventBus sets the event bus on every current and future manager.
func (r *Registry) SetEventBus(pub eventbus.Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventBus = pub
	for _, m := range r.managers {
		m.SetEventBus(pub)
	}
}

// For returns the manager for sess, creating it on first use. The manager is
// marked active under the registry lock so Prune cannot drop it from under
// the caller.
func (r *Registry) For(sess session.Session) *Manager {
	key := sess.UserID + ":" + sess.Fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[key]; ok {
		m.mu.Lock()
		m.touch()
		m.mu.Unlock()
		return m
	}
	m := NewManager(sess, r.backend)
	m.now = r.now
	m.lastActivity = r.now()
	m.eventBus = r.eventBus
	r.managers[key] = m
	return m
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Prune drops managers with no trip in progress that were idle for longer than idle.
func (r *Registry) Prune(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, m := range r.managers {
		if m.idleSince(cutoff) {
			delete(r.managers, key)
			removed++
		}
	}
	return removed
}
