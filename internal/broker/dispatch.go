package broker

import (
	"errors"

	"go.uber.org/zap"

	"chatbroker/internal/client"
	"chatbroker/internal/proto"
	"chatbroker/internal/room"
)

// dispatch routes one framed line. Usage errors go back to the sender as
// [system] lines and never end the session.
func (b *Broker) dispatch(c *client.Client, line string) {
	req := proto.Parse(line)
	switch req.Kind {
	case proto.KindName:
		b.handleName(c, req)
	case proto.KindMsg:
		b.handleMsg(c, req)
	case proto.KindRooms:
		b.deliver(c, proto.Catalogue(b.rooms.Snapshot()))
	case proto.KindCreate:
		b.handleCreate(c, req)
	case proto.KindJoin:
		b.handleJoin(c, req)
	case proto.KindLeave:
		b.handleLeave(c)
	case proto.KindDelete:
		b.handleDelete(c, req)
	case proto.KindUnknown:
		b.sendSystem(c, "Unknown command. Try /name, /msg, /rooms, /create, /join, /leave or /delete.")
	default:
		b.handleChat(c, req.Text)
	}
}

func (b *Broker) handleName(c *client.Client, req proto.Request) {
	old, err := b.clients.Rename(c.Handle(), req.Name)
	switch {
	case errors.Is(err, client.ErrEmptyName):
		b.sendSystem(c, "Name cannot be empty.")
	case errors.Is(err, client.ErrNameTaken):
		b.sendSystem(c, "Name already in use.")
	case err != nil:
		b.logger.Warn("rename failed", zap.Error(err))
	default:
		if !b.quiet(old) && !b.quiet(req.Name) {
			b.broadcastAll(proto.System(old+" is now known as "+req.Name+"."), client.None)
		}
		b.events.Event("%s renamed to %s", old, req.Name)
	}
}

func (b *Broker) handleMsg(c *client.Client, req proto.Request) {
	if req.Target == "" || req.Text == "" {
		b.sendSystem(c, "Usage: /msg <user> <message>")
		return
	}
	target, ok := b.clients.FindByName(req.Target)
	if !ok {
		b.sendSystem(c, "User not found: "+req.Target)
		return
	}
	payload := proto.Private(c.Name(), req.Text)
	b.deliver(target, payload)
	b.deliver(c, payload)
	b.events.Event("[private] %s -> %s: %s", c.Name(), req.Target, req.Text)
}

func (b *Broker) handleCreate(c *client.Client, req proto.Request) {
	if req.Room == "" {
		b.sendSystem(c, "Usage: /create <room> [password]")
		return
	}
	if err := b.rooms.Create(req.Room, req.Password, c.Handle()); err != nil {
		if errors.Is(err, room.ErrExists) {
			b.sendSystem(c, "Room already exists.")
		} else {
			b.logger.Warn("create room failed", zap.String("room", req.Room), zap.Error(err))
			b.sendSystem(c, "Unable to create room.")
		}
		return
	}
	b.metrics.RoomsActive.Set(float64(b.rooms.Len()))
	b.broadcastCatalogue()
	if !b.moveToRoom(c, req.Room, req.Password) {
		b.sendSystem(c, "Room created, but unable to join.")
		return
	}
	b.sendSystem(c, "Room created and joined: "+req.Room)
}

func (b *Broker) handleJoin(c *client.Client, req proto.Request) {
	if req.Room == "" {
		b.sendSystem(c, "Usage: /join <room> [password]")
		return
	}
	if !b.moveToRoom(c, req.Room, req.Password) {
		b.sendSystem(c, "Unable to join room. Check name or password.")
	}
}

// moveToRoom performs the atomic room change: verify-and-join the target,
// leave the old room, update the client record, then emit the presence lines
// and the mover's ROOM| assignment. Joining the current room re-checks the
// password and re-sends the assignment but broadcasts nothing.
func (b *Broker) moveToRoom(c *client.Client, target, password string) bool {
	h := c.Handle()
	current := c.Room()

	if !b.rooms.Join(h, target, password) {
		return false
	}
	moved := current != target
	if moved && current != "" {
		b.rooms.Leave(h, current)
		if !b.quiet(c.Name()) {
			b.systemToRoom(current, c.Name()+" left the room.", h)
		}
	}
	b.clients.SetRoom(h, target)
	b.deliver(c, proto.RoomAssignment(target))
	if moved {
		if !b.quiet(c.Name()) {
			b.systemToRoom(target, c.Name()+" joined the room.", h)
		}
		b.events.Event("%s joined room %s", c.Name(), target)
	}
	return true
}

func (b *Broker) handleLeave(c *client.Client) {
	current := c.Room()
	if current == "" || current == proto.LobbyName {
		b.sendSystem(c, "You are already in the Lobby.")
		return
	}
	// Add to the Lobby before removing from the old room so the client is
	// never in zero rooms.
	h := c.Handle()
	b.rooms.Join(h, proto.LobbyName, "")
	b.rooms.Leave(h, current)
	if !b.quiet(c.Name()) {
		b.systemToRoom(current, c.Name()+" left the room.", h)
	}
	b.clients.SetRoom(h, proto.LobbyName)
	b.deliver(c, proto.RoomAssignment(proto.LobbyName))
	b.sendSystem(c, "Moved to Lobby.")
}

func (b *Broker) handleDelete(c *client.Client, req proto.Request) {
	if req.Room == "" {
		b.sendSystem(c, "Usage: /delete <room>")
		return
	}
	members, status := b.rooms.Delete(req.Room, c.Handle())
	switch status {
	case room.NotFound:
		b.sendSystem(c, "Room not found.")
		return
	case room.IsLobby:
		b.sendSystem(c, "The Lobby cannot be deleted.")
		return
	case room.NotOwner:
		b.sendSystem(c, "Only the room owner can delete it.")
		return
	}

	for _, h := range members {
		b.clients.SetRoom(h, proto.LobbyName)
		b.rooms.Join(h, proto.LobbyName, "")
		if member, ok := b.clients.Get(h); ok {
			b.deliver(member, proto.RoomAssignment(proto.LobbyName))
			b.sendSystem(member, "Room deleted. You have been moved to Lobby.")
		}
	}
	b.metrics.RoomsActive.Set(float64(b.rooms.Len()))
	b.broadcastCatalogue()
	b.events.Event("%s deleted room %s", c.Name(), req.Room)
}

func (b *Broker) handleChat(c *client.Client, text string) {
	current := c.Room()
	if current == "" {
		b.sendSystem(c, "Join a room before chatting.")
		return
	}
	b.broadcastRoom(current, proto.RoomChat(current, c.Name(), text), client.None)
	b.events.Event("[%s] %s: %s", current, c.Name(), text)
}
