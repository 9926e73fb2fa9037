package core

import (
	"sync"

	"github.com/concord-im/concord/internal/metrics"
)

// Registry is the shared table of live sessions keyed by authenticated user
// id. Every read and write happens under a single mutex, including iteration
// for dispatch, so enqueue order onto any session matches lock-acquisition
// order. Per-user sets are pruned as soon as their last session is removed.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[string]*Session)}
}

// Insert registers a session under a user id. Re-inserting the same session is
// a no-op.
func (r *Registry) Insert(userID string, sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[string]*Session)
		r.sessions[userID] = set
	}
	if _, ok := set[sess.ID]; !ok {
		metrics.RegisteredSessions.Inc()
	}
	set[sess.ID] = sess
}

// Remove unregisters the (userID, sessionID) pair and reports whether it was
// present. Sibling sessions of the same user are untouched.
func (r *Registry) Remove(userID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		return false
	}
	if _, ok := set[sessionID]; !ok {
		return false
	}
	delete(set, sessionID)
	metrics.RegisteredSessions.Dec()
	if len(set) == 0 {
		delete(r.sessions, userID)
	}
	return true
}

// HasSessions reports whether the user has at least one live session.
func (r *Registry) HasSessions(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[userID]) > 0
}

// SessionsFor returns a snapshot of the user's sessions; empty for unknown
// users. The snapshot goes stale as soon as the lock is released, so callers
// must not cache it.
func (r *Registry) SessionsFor(userID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.sessions[userID]
	out := make([]*Session, 0, len(set))
	for _, sess := range set {
		out = append(out, sess)
	}
	return out
}

// enqueueUser pushes a frame to every session of one user while holding the
// registry lock. Returns the number of sessions reached.
func (r *Registry) enqueueUser(userID string, frame []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enqueueUserLocked(userID, frame)
}

// enqueueUsers pushes a frame to every session of each listed user.
func (r *Registry) enqueueUsers(userIDs []string, frame []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, userID := range userIDs {
		n += r.enqueueUserLocked(userID, frame)
	}
	return n
}

// enqueueAll pushes a frame to every registered session.
func (r *Registry) enqueueAll(frame []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for userID := range r.sessions {
		n += r.enqueueUserLocked(userID, frame)
	}
	return n
}

func (r *Registry) enqueueUserLocked(userID string, frame []byte) int {
	set := r.sessions[userID]
	for _, sess := range set {
		sess.Send(frame)
	}
	return len(set)
}
