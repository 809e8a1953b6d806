// Package broker is the core of the chat service: the TCP accept loop, one
// session per connection, the command dispatcher, and the fan-out discipline
// over the client and room registries.
//
// Lock ordering: when an operation needs both registries it takes the room
// registry first, then the client registry. Fan-out additionally serializes
// enqueue loops behind fanMu so every recipient of a broadcast observes the
// same total order.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"chatbroker/internal/chatlog"
	"chatbroker/internal/client"
	"chatbroker/internal/config"
	"chatbroker/internal/metrics"
	"chatbroker/internal/proto"
	"chatbroker/internal/room"
)

// Broker owns the registries, the log sink and the listener.
type Broker struct {
	cfg     *config.Config
	clients *client.Registry
	rooms   *room.Registry
	events  *chatlog.Log
	logger  *zap.Logger
	metrics *metrics.Registry

	ln       net.Listener
	sessions sync.WaitGroup

	// fanMu serializes broadcast enqueue loops so that any two broadcasts
	// reach every shared recipient in the same relative order.
	fanMu sync.Mutex
}

// New wires a broker; Listen must be called before Serve.
func New(cfg *config.Config, events *chatlog.Log, logger *zap.Logger, m *metrics.Registry) *Broker {
	b := &Broker{
		cfg:     cfg,
		clients: client.NewRegistry(),
		rooms:   room.NewRegistry(),
		events:  events,
		logger:  logger,
		metrics: m,
	}
	m.RoomsActive.Set(float64(b.rooms.Len()))
	return b
}

// Listen binds the TCP listening socket. IPv4 only; the Go runtime sets
// SO_REUSEADDR on listeners by default.
func (b *Broker) Listen() error {
	ln, err := net.Listen("tcp4", b.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", b.cfg.Addr(), err)
	}
	b.ln = ln
	return nil
}

// Addr returns the bound listener address.
func (b *Broker) Addr() net.Addr { return b.ln.Addr() }

// Serve accepts connections until ctx is cancelled or the listener fails,
// spawning one session per connection. It returns nil on a clean stop.
func (b *Broker) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.ln.Close()
	}()

	for {
		conn, err := b.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			b.logger.Error("accept failed", zap.Error(err))
			return err
		}
		b.sessions.Add(1)
		go b.handleConn(conn)
	}
}

// Shutdown closes the listener and every live connection, then waits for the
// sessions to finish their teardown.
func (b *Broker) Shutdown() {
	if b.ln != nil {
		b.ln.Close()
	}
	for _, c := range b.clients.Snapshot() {
		c.Close()
	}
	b.sessions.Wait()
}

// ClientCount reports the number of live clients, for the ops surface.
func (b *Broker) ClientCount() int { return b.clients.Len() }

// RoomList returns the current catalogue rows, for the ops surface.
func (b *Broker) RoomList() []proto.RoomEntry { return b.rooms.Snapshot() }

// quiet reports whether presence broadcasts about this name are suppressed.
func (b *Broker) quiet(name string) bool {
	return b.cfg.QuietPrefix != "" && strings.HasPrefix(name, b.cfg.QuietPrefix)
}
