package client

import (
	"errors"
	"fmt"
	"sync"

	"chatbroker/internal/proto"
)

var (
	ErrEmptyName = errors.New("name cannot be empty")
	ErrNameTaken = errors.New("name already in use")
	ErrUnknown   = errors.New("unknown client handle")
)

// Registry maps connection handles to live clients and enforces display-name
// uniqueness. All operations are atomic with respect to one another.
type Registry struct {
	mu       sync.RWMutex
	clients  map[Handle]*Client
	byName   map[string]Handle
	nextID   uint64
	nextAnon uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[Handle]*Client),
		byName:  make(map[string]Handle),
	}
}

// Register inserts the client with a fresh handle, a placeholder name of the
// form anon<N> (N strictly increasing for the broker's lifetime) and the
// Lobby as its current room. It returns the assigned name.
func (r *Registry) Register(c *Client) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.nextAnon++
	name := fmt.Sprintf("anon%d", r.nextAnon)

	c.handle = Handle(r.nextID)
	c.setName(name)
	c.setRoom(proto.LobbyName)

	r.clients[c.handle] = c
	r.byName[name] = c.handle
	return name
}

// Unregister removes the client and returns its final name and room. Called
// once per session at teardown.
func (r *Registry) Unregister(h Handle) (name, room string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[h]
	if !ok {
		return "", "", false
	}
	name = c.Name()
	room = c.Room()
	delete(r.byName, name)
	delete(r.clients, h)
	return name, room, true
}

// Rename replaces the client's display name. The uniqueness check and the
// write happen in one critical section. Renaming to the current name is
// rejected as a duplicate.
func (r *Registry) Rename(h Handle, newName string) (old string, err error) {
	if newName == "" {
		return "", ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[h]
	if !ok {
		return "", ErrUnknown
	}
	if _, taken := r.byName[newName]; taken {
		return "", ErrNameTaken
	}

	old = c.Name()
	delete(r.byName, old)
	r.byName[newName] = h
	c.setName(newName)
	return old, nil
}

// Get returns the client for a handle.
func (r *Registry) Get(h Handle) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[h]
	return c, ok
}

// FindByName resolves a display name to its client.
func (r *Registry) FindByName(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	c, ok := r.clients[h]
	return c, ok
}

// SetRoom updates the client's current-room field only. The caller keeps room
// membership in step (see the dispatcher's room-change sequence).
func (r *Registry) SetRoom(h Handle, room string) {
	r.mu.RLock()
	c, ok := r.clients[h]
	r.mu.RUnlock()
	if ok {
		c.setRoom(room)
	}
}

// Snapshot returns all live clients, for global fan-out.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Len reports the number of live clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
