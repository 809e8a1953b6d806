package broker

import (
	"chatbroker/internal/client"
	"chatbroker/internal/proto"
)

// deliver hands one payload to one peer. A failed enqueue means the peer is
// dead or too slow; its own session observes the closed socket and cleans up.
func (b *Broker) deliver(c *client.Client, payload []byte) {
	if c.Enqueue(payload) {
		b.metrics.MessagesDelivered.Inc()
	} else {
		b.metrics.BroadcastDropped.Inc()
	}
}

// sendSystem sends a system notice to a single peer.
func (b *Broker) sendSystem(c *client.Client, text string) {
	b.deliver(c, proto.System(text))
}

// broadcastAll delivers the payload to every live client except exclude.
func (b *Broker) broadcastAll(payload []byte, exclude client.Handle) {
	b.fanMu.Lock()
	defer b.fanMu.Unlock()
	for _, c := range b.clients.Snapshot() {
		if c.Handle() == exclude {
			continue
		}
		b.deliver(c, payload)
	}
}

// broadcastRoom delivers the payload to every member of the named room except
// exclude. Chat lines pass client.None so the sender sees its own echo.
func (b *Broker) broadcastRoom(roomName string, payload []byte, exclude client.Handle) {
	b.fanMu.Lock()
	defer b.fanMu.Unlock()
	for _, h := range b.rooms.Members(roomName) {
		if h == exclude {
			continue
		}
		if c, ok := b.clients.Get(h); ok {
			b.deliver(c, payload)
		}
	}
}

// systemToRoom broadcasts a system notice into a room.
func (b *Broker) systemToRoom(roomName, text string, exclude client.Handle) {
	b.broadcastRoom(roomName, proto.System(text), exclude)
}

// broadcastCatalogue pushes the current ROOMS| payload to everyone.
func (b *Broker) broadcastCatalogue() {
	b.broadcastAll(proto.Catalogue(b.rooms.Snapshot()), client.None)
}
