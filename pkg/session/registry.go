// Package session owns the user-to-connection mapping. The registry is the
// single source of truth for "is this user online"; no other component
// mutates it.
package session

import (
	"sync"
	"time"

	"github.com/mahaj/chatstra/pkg/transport"
)

type Transition int

const (
	Online Transition = iota
	Offline
)

func (t Transition) String() string {
	if t == Online {
		return "online"
	}
	return "offline"
}

// Session is one active connection owned by a user.
type Session struct {
	UserID   string
	Handle   transport.Handle
	JoinedAt time.Time
}

// TransitionFunc observes a user going online (first handle registered) or
// offline (last handle deregistered).
type TransitionFunc func(userID string, t Transition)

// Registry maps user ids to their active connection handles. All mutations
// are serialized behind a mutex so connect/disconnect races on the same user
// cannot lose updates.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]map[string]transport.Handle
	owner    map[string]string // handle key -> user id
	joined   map[string]time.Time
	watchers []TransitionFunc
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]transport.Handle),
		owner:  make(map[string]string),
		joined: make(map[string]time.Time),
	}
}

// Watch adds a transition observer. Observers are called after the registry
// state has changed, outside the registry lock, so they may call back into
// the registry. Watch must be called before the registry is shared across
// goroutines.
func (r *Registry) Watch(fn TransitionFunc) {
	r.watchers = append(r.watchers, fn)
}

// Register adds a handle under userID. Registering the same handle twice is a
// no-op.
func (r *Registry) Register(userID string, h transport.Handle) {
	key := h.Key()

	r.mu.Lock()
	if _, dup := r.owner[key]; dup {
		r.mu.Unlock()
		return
	}
	first := len(r.byUser[userID]) == 0
	if first {
		r.byUser[userID] = make(map[string]transport.Handle)
	}
	r.byUser[userID][key] = h
	r.owner[key] = userID
	r.joined[key] = time.Now()
	r.mu.Unlock()

	if first {
		r.notify(userID, Online)
	}
}

// Deregister removes the handle. Returns false if the handle was not
// registered. When the owning user has no remaining handles an offline
// transition is emitted.
func (r *Registry) Deregister(h transport.Handle) bool {
	key := h.Key()

	r.mu.Lock()
	userID, ok := r.owner[key]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.owner, key)
	delete(r.joined, key)
	delete(r.byUser[userID], key)
	last := len(r.byUser[userID]) == 0
	if last {
		delete(r.byUser, userID)
	}
	r.mu.Unlock()

	if last {
		r.notify(userID, Offline)
	}
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// HandlesFor returns the active handles of a user, possibly empty. The slice
// is a snapshot; handles may deregister concurrently.
func (r *Registry) HandlesFor(userID string) []transport.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]transport.Handle, 0, len(r.byUser[userID]))
	for _, h := range r.byUser[userID] {
		handles = append(handles, h)
	}
	return handles
}

// SessionsFor returns the full session records of a user.
func (r *Registry) SessionsFor(userID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]Session, 0, len(r.byUser[userID]))
	for key, h := range r.byUser[userID] {
		sessions = append(sessions, Session{UserID: userID, Handle: h, JoinedAt: r.joined[key]})
	}
	return sessions
}

func (r *Registry) notify(userID string, t Transition) {
	for _, fn := range r.watchers {
		fn(userID, t)
	}
}
