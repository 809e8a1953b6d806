package broker

import (
	"bufio"
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"chatbroker/internal/client"
	"chatbroker/internal/proto"
)

// The welcome banner sent once a session becomes active.
var welcomeLines = []string{
	"Welcome! Set your name with /name <nickname>.",
	"Use /msg <user> <message> for private chats.",
	"Rooms: /create <room> [password], /join <room> [password], /leave, /delete <room>.",
}

// handleConn runs one session: activation, the framed read loop feeding the
// dispatcher, and teardown. It is the only goroutine that mutates this
// client's registry record.
func (b *Broker) handleConn(conn net.Conn) {
	defer b.sessions.Done()

	c := client.New(conn, b.cfg.SendQueueSize, b.cfg.WriteTimeout)
	name := b.clients.Register(c)

	b.metrics.ConnectionsActive.Inc()
	b.metrics.ConnectionsTotal.Inc()

	logger := b.logger.With(
		zap.String("session", c.ID().String()),
		zap.String("peer", conn.RemoteAddr().String()),
	)
	logger.Info("session active", zap.String("name", name))

	b.rooms.Join(c.Handle(), proto.LobbyName, "")
	b.deliver(c, proto.RoomAssignment(proto.LobbyName))
	b.deliver(c, proto.Catalogue(b.rooms.Snapshot()))
	for _, line := range welcomeLines {
		b.sendSystem(c, line)
	}
	b.broadcastCatalogue()
	if !b.quiet(name) {
		b.systemToRoom(proto.LobbyName, name+" joined the room Lobby.", c.Handle())
	}
	b.events.Event("%s joined the room Lobby.", name)

	reader := proto.NewLineReader(conn, b.cfg.MaxLineBytes)
	for {
		line, err := reader.Next()
		if err != nil {
			switch {
			case errors.Is(err, bufio.ErrTooLong):
				logger.Warn("line overflow, dropping connection")
			case errors.Is(err, io.EOF):
			default:
				logger.Debug("read failed", zap.Error(err))
			}
			break
		}
		b.dispatch(c, line)
	}

	b.teardown(c, logger)
}

// teardown runs the CLOSING state exactly once per session: the client leaves
// the registries, its old room hears it left, the socket closes, and everyone
// gets the farewell.
func (b *Broker) teardown(c *client.Client, logger *zap.Logger) {
	defer b.metrics.ConnectionsActive.Dec()

	name, roomName, ok := b.clients.Unregister(c.Handle())
	if !ok {
		c.Close()
		return
	}
	if roomName != "" {
		b.rooms.Leave(c.Handle(), roomName)
		if !b.quiet(name) {
			b.systemToRoom(roomName, name+" left the room.", c.Handle())
		}
	}
	c.Close()
	if !b.quiet(name) {
		b.broadcastAll(proto.System(name+" left the chat."), client.None)
	}
	b.events.Event("%s left the chat.", name)
	logger.Info("session closed", zap.String("name", name))
}
