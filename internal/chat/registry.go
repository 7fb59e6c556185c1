package chat

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Transport is the registry's handle on a live connection. Implementations
// must serialize their own writes; Send is called from many publishers.
type Transport interface {
	SessionID() uuid.UUID
	Send(env *Envelope) error
	Close() error
}

// Registry maps broadcast-group keys to the transports currently joined to
// them. It is the only shared mutable state in the chat layer; every access
// goes through the lock. Groups are created on first join and discarded
// when their last member leaves.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]map[Transport]struct{}
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]map[Transport]struct{})}
}

// Join adds t to the group for key, creating the group if absent.
// Idempotent.
func (r *Registry) Join(key string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[key]
	if !ok {
		members = make(map[Transport]struct{})
		r.groups[key] = members
	}
	members[t] = struct{}{}
}

// Leave removes t from the group for key. Leaving a group t never joined,
// or a group that no longer exists, is a no-op.
func (r *Registry) Leave(key string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(key, t)
}

func (r *Registry) removeLocked(key string, t Transport) {
	members, ok := r.groups[key]
	if !ok {
		return
	}
	delete(members, t)
	if len(members) == 0 {
		delete(r.groups, key)
	}
}

// Publish delivers env to every member of key, skipping exclude when it is
// non-nil. Delivery is best-effort per member: a failed Send evicts that
// member and delivery continues to the rest. Publishing to an absent group
// is a no-op.
func (r *Registry) Publish(key string, env *Envelope, exclude Transport) {
	r.mu.RLock()
	var failed []Transport
	for t := range r.groups[key] {
		if t == exclude {
			continue
		}
		if err := t.Send(env); err != nil {
			failed = append(failed, t)
		}
	}
	r.mu.RUnlock()

	if len(failed) == 0 {
		return
	}
	r.mu.Lock()
	for _, t := range failed {
		slog.Warn("evicting unreachable group member", "room_key", key, "session_id", t.SessionID())
		r.removeLocked(key, t)
	}
	r.mu.Unlock()
}

// GroupSize reports the current member count for key; zero means the group
// does not exist.
func (r *Registry) GroupSize(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[key])
}

// Shutdown closes every registered transport and clears all groups. Session
// goroutines observe the closed connection and run their normal teardown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, members := range r.groups {
		for t := range members {
			_ = t.Close()
		}
		delete(r.groups, key)
	}
}
