// Package room holds the registry of chat rooms: the Lobby bootstrap,
// password checks, ownership rules and member sets. Members are referenced by
// connection handle only; the client registry owns the clients themselves.
package room

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"chatbroker/internal/client"
	"chatbroker/internal/proto"
)

// ErrExists reports a name collision on create.
var ErrExists = errors.New("room already exists")

// DeleteStatus is the outcome of a delete request.
type DeleteStatus int

const (
	Deleted DeleteStatus = iota
	NotFound
	IsLobby
	NotOwner
)

// room is one live room. A nil hash means the room is open; otherwise the
// room is locked and joins must present the exact password it was created
// with.
type room struct {
	name    string
	hash    []byte
	owner   client.Handle
	members map[client.Handle]struct{}
}

func (r *room) locked() bool { return r.hash != nil }

// passwordKey folds a password of any length into bcrypt's input. bcrypt caps
// its input at 72 bytes; hashing first keeps longer passwords valid.
func passwordKey(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}

// Registry is the concurrent table of rooms. The Lobby exists from
// construction until process exit.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

// NewRegistry returns a registry holding only the Lobby: open, unowned,
// undeletable.
func NewRegistry() *Registry {
	return &Registry{
		rooms: map[string]*room{
			proto.LobbyName: {
				name:    proto.LobbyName,
				owner:   client.None,
				members: make(map[client.Handle]struct{}),
			},
		},
	}
}

// Create inserts a new empty room owned by owner. A non-empty password locks
// the room; it is stored as a bcrypt hash.
func (r *Registry) Create(name, password string, owner client.Handle) error {
	var hash []byte
	if password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword(passwordKey(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash room password: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[name]; exists {
		return ErrExists
	}
	r.rooms[name] = &room{
		name:    name,
		hash:    hash,
		owner:   owner,
		members: make(map[client.Handle]struct{}),
	}
	return nil
}

// Join adds the handle to the named room's member set. It reports false when
// the room is missing or locked and the supplied password does not match.
// An empty password always fails against a locked room.
func (r *Registry) Join(h client.Handle, name, password string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return false
	}
	if rm.locked() {
		if password == "" {
			return false
		}
		if bcrypt.CompareHashAndPassword(rm.hash, passwordKey(password)) != nil {
			return false
		}
	}
	rm.members[h] = struct{}{}
	return true
}

// Leave removes the handle from the named room's member set. A missing room
// is a no-op.
func (r *Registry) Leave(h client.Handle, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[name]; ok {
		delete(rm.members, h)
	}
}

// Delete removes the room and returns a snapshot of its former members. The
// Lobby is undeletable and only the owner may delete a room.
func (r *Registry) Delete(name string, requester client.Handle) ([]client.Handle, DeleteStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil, NotFound
	}
	if name == proto.LobbyName {
		return nil, IsLobby
	}
	if rm.owner != requester {
		return nil, NotOwner
	}

	members := make([]client.Handle, 0, len(rm.members))
	for h := range rm.members {
		members = append(members, h)
	}
	delete(r.rooms, name)
	return members, Deleted
}

// Members returns a snapshot of the named room's member set.
func (r *Registry) Members(name string) []client.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil
	}
	out := make([]client.Handle, 0, len(rm.members))
	for h := range rm.members {
		out = append(out, h)
	}
	return out
}

// Snapshot returns the catalogue rows: Lobby first, remaining rooms sorted by
// name so the payload is deterministic.
func (r *Registry) Snapshot() []proto.RoomEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]proto.RoomEntry, 0, len(r.rooms))
	entries = append(entries, proto.RoomEntry{Name: proto.LobbyName})
	rest := make([]proto.RoomEntry, 0, len(r.rooms)-1)
	for name, rm := range r.rooms {
		if name == proto.LobbyName {
			continue
		}
		rest = append(rest, proto.RoomEntry{Name: name, Locked: rm.locked()})
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Name < rest[j].Name })
	return append(entries, rest...)
}

// Len reports the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
