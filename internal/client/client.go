// Package client holds the per-connection record and the registry of live
// clients. A Client owns its socket's write side through a bounded outbound
// queue so that one slow peer never stalls a broadcast.
package client

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle identifies one live connection for the lifetime of the process.
// Room member sets reference clients by Handle only.
type Handle uint64

// None is the invalid handle. System-created rooms are owned by it.
const None Handle = 0

// Client is one connected peer. The name and room fields are mutated only
// through the Registry so uniqueness checks stay atomic.
type Client struct {
	handle Handle
	id     uuid.UUID
	conn   net.Conn

	out          chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration

	mu   sync.RWMutex
	name string
	room string
}

// New wraps an accepted connection and starts its writer goroutine.
func New(conn net.Conn, queueSize int, writeTimeout time.Duration) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	c := &Client{
		id:           uuid.New(),
		conn:         conn,
		out:          make(chan []byte, queueSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	go c.writeLoop()
	return c
}

// Handle returns the client's connection handle. Zero until registered.
func (c *Client) Handle() Handle { return c.handle }

// ID returns the session correlation ID used in log fields.
func (c *Client) ID() uuid.UUID { return c.id }

// RemoteAddr reports the peer address.
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Name returns the current display name.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Room returns the current room name.
func (c *Client) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *Client) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *Client) setRoom(room string) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

// Enqueue hands a fully assembled line to the writer. It never blocks: a full
// queue means the peer is too slow to keep up, so the connection is closed
// and false is returned. The caller must not mutate the registries; cleanup
// happens when the owning session observes the closed socket.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- payload:
		return true
	case <-c.done:
		return false
	default:
		c.Close()
		return false
	}
}

// writeLoop delivers queued payloads. net.Conn.Write loops over short writes
// itself, so a nil error means every byte went out.
func (c *Client) writeLoop() {
	for {
		select {
		case payload := <-c.out:
			if c.writeTimeout > 0 {
				c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if _, err := c.conn.Write(payload); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close shuts the connection down once. Safe to call from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Done is closed when the client has been shut down.
func (c *Client) Done() <-chan struct{} { return c.done }
