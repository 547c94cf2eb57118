package coordinator

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/lockstep/pkg/metrics"
)

// Registry maps client identities to their live sessions.
//
// It is written by the coordinator loop and read concurrently by status
// queries, so every method is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ordinal  uint64

	ackTimeout time.Duration
	metrics    metrics.CoordinatorMetrics
}

// NewRegistry creates an empty registry. Sessions it creates wait at most
// ackTimeout for each acknowledgement; zero disables the timeout.
func NewRegistry(ackTimeout time.Duration, m metrics.CoordinatorMetrics) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		ackTimeout: ackTimeout,
		metrics:    m,
	}
}

// Register creates a session for conn under id. If id already has a session
// the existing one is returned with created=false and conn is left untouched.
func (r *Registry) Register(id Identity, conn net.Conn) (*Session, bool) {
	key := id.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[key]; ok {
		return existing, false
	}
	r.ordinal++
	s := newSession(r.ordinal, id, conn, r.ackTimeout, r.metrics)
	r.sessions[key] = s
	r.updateGauge()
	return s, true
}

// Remove deletes the entry for key if it still points to s. It reports
// whether an entry was removed.
func (r *Registry) Remove(key string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[key]
	if !ok || current != s {
		return false
	}
	delete(r.sessions, key)
	r.updateGauge()
	return true
}

// Get returns the session registered under key.
func (r *Registry) Get(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Has reports whether id has a registered session.
func (r *Registry) Has(id Identity) bool {
	_, ok := r.Get(id.Key())
	return ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of the registered sessions in registration order.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ordinal < out[j].ordinal })
	return out
}

// Keys returns the keys of the registered sessions in registration order.
func (r *Registry) Keys() []string {
	sessions := r.Sessions()
	keys := make([]string, len(sessions))
	for i, s := range sessions {
		keys[i] = s.Key()
	}
	return keys
}

func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.SetSessions(len(r.sessions))
	}
}
