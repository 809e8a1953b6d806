package broker

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"chatbroker/internal/chatlog"
	"chatbroker/internal/config"
	"chatbroker/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type brokerFixture struct {
	broker  *Broker
	addr    string
	logPath string
}

func startBroker(t *testing.T, mutate func(*config.Config)) *brokerFixture {
	t.Helper()

	logPath := filepath.Join(t.TempDir(), "chat.log")
	events, err := chatlog.Open(logPath)
	require.NoError(t, err)

	cfg := &config.Config{
		Host:          "127.0.0.1",
		Port:          0,
		WriteTimeout:  2 * time.Second,
		SendQueueSize: 256,
		MaxLineBytes:  64 * 1024,
	}
	if mutate != nil {
		mutate(cfg)
	}

	b := New(cfg, events, zaptest.NewLogger(t), metrics.NewRegistry())
	require.NoError(t, b.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		b.Serve(ctx)
		close(served)
	}()

	t.Cleanup(func() {
		cancel()
		<-served
		b.Shutdown()
		events.Close()
	})

	return &brokerFixture{broker: b, addr: b.Addr().String(), logPath: logPath}
}

type testConn struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	tc := &testConn{t: t, conn: conn, reader: bufio.NewReader(conn)}
	t.Cleanup(func() { conn.Close() })
	return tc
}

func (tc *testConn) send(line string) {
	tc.t.Helper()
	_, err := tc.conn.Write([]byte(line + "\n"))
	require.NoError(tc.t, err)
}

func (tc *testConn) readLine() string {
	tc.t.Helper()
	tc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := tc.reader.ReadString('\n')
	require.NoError(tc.t, err, "waiting for a line")
	return strings.TrimRight(line, "\r\n")
}

func (tc *testConn) expect(want string) {
	tc.t.Helper()
	assert.Equal(tc.t, want, tc.readLine())
}

// drainUntil discards lines until marker arrives.
func (tc *testConn) drainUntil(marker string) {
	tc.t.Helper()
	for i := 0; i < 100; i++ {
		if tc.readLine() == marker {
			return
		}
	}
	tc.t.Fatalf("marker %q never arrived", marker)
}

// drainHandshake consumes the six lines every new connection receives: the
// room assignment, the catalogue, three welcome notices and the catalogue
// broadcast triggered by its own arrival.
func (tc *testConn) drainHandshake() {
	tc.t.Helper()
	for i := 0; i < 6; i++ {
		tc.readLine()
	}
}

func TestHandshake(t *testing.T) {
	fx := startBroker(t, nil)
	a := dial(t, fx.addr)

	a.expect("ROOM|Lobby")
	a.expect("ROOMS|Lobby|open")
	a.expect("[system] Welcome! Set your name with /name <nickname>.")
	a.expect("[system] Use /msg <user> <message> for private chats.")
	a.expect("[system] Rooms: /create <room> [password], /join <room> [password], /leave, /delete <room>.")
	a.expect("ROOMS|Lobby|open")
}

func TestSecondClientAnnouncedToLobby(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()

	b := dial(t, fx.addr)
	b.drainHandshake()

	a.expect("ROOMS|Lobby|open")
	a.expect("[system] anon2 joined the room Lobby.")
}

func TestRename(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()
	b := dial(t, fx.addr)
	b.drainHandshake()
	a.drainUntil("[system] anon2 joined the room Lobby.")

	a.send("/name alice")
	a.expect("[system] anon1 is now known as alice.")
	b.expect("[system] anon1 is now known as alice.")

	b.send("/name alice")
	b.expect("[system] Name already in use.")

	b.send("/name")
	b.expect("[system] Name cannot be empty.")

	// Renaming to one's own current name is also a duplicate.
	a.send("/name alice")
	a.expect("[system] Name already in use.")
}

func TestCreateJoinWithPassword(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()
	b := dial(t, fx.addr)
	b.drainHandshake()
	a.drainUntil("[system] anon2 joined the room Lobby.")

	a.send("/name alice")
	a.expect("[system] anon1 is now known as alice.")
	b.expect("[system] anon1 is now known as alice.")

	a.send("/create chess secret")
	a.expect("ROOMS|Lobby|open|chess|locked")
	a.expect("ROOM|chess")
	a.expect("[system] Room created and joined: chess")
	b.expect("ROOMS|Lobby|open|chess|locked")
	b.expect("[system] alice left the room.")

	b.send("/join chess")
	b.expect("[system] Unable to join room. Check name or password.")
	b.send("/join chess wrong")
	b.expect("[system] Unable to join room. Check name or password.")

	b.send("/join chess secret")
	b.expect("ROOM|chess")
	a.expect("[system] anon2 joined the room.")
}

func TestRoomChatFanout(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()
	b := dial(t, fx.addr)
	b.drainHandshake()
	a.drainUntil("[system] anon2 joined the room Lobby.")

	a.send("/name alice")
	a.expect("[system] anon1 is now known as alice.")
	b.expect("[system] anon1 is now known as alice.")

	a.send("/create chess")
	a.drainUntil("[system] Room created and joined: chess")
	b.drainUntil("[system] alice left the room.")

	b.send("/join chess")
	b.expect("ROOM|chess")
	a.expect("[system] anon2 joined the room.")

	// Chat is echoed to everyone in the room, sender included.
	a.send("hello")
	a.expect("[chess] alice: hello")
	b.expect("[chess] alice: hello")

	b.send("hi there")
	a.expect("[chess] anon2: hi there")
	b.expect("[chess] anon2: hi there")
}

func TestPrivateMessage(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()
	b := dial(t, fx.addr)
	b.drainHandshake()
	a.drainUntil("[system] anon2 joined the room Lobby.")

	a.send("/name alice")
	a.expect("[system] anon1 is now known as alice.")
	b.expect("[system] anon1 is now known as alice.")

	a.send("/msg anon2 ping")
	a.expect("[private] alice: ping")
	b.expect("[private] alice: ping")

	a.send("/msg ghost ping")
	a.expect("[system] User not found: ghost")

	a.send("/msg anon2")
	a.expect("[system] Usage: /msg <user> <message>")
}

func TestDeleteRoom(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()
	b := dial(t, fx.addr)
	b.drainHandshake()
	a.drainUntil("[system] anon2 joined the room Lobby.")

	a.send("/create chess secret")
	a.drainUntil("[system] Room created and joined: chess")
	b.drainUntil("[system] anon1 left the room.")

	b.send("/join chess secret")
	b.expect("ROOM|chess")
	a.expect("[system] anon2 joined the room.")

	// Only the owner may delete.
	b.send("/delete chess")
	b.expect("[system] Only the room owner can delete it.")

	b.send("/delete ghost")
	b.expect("[system] Room not found.")
	b.send("/delete Lobby")
	b.expect("[system] The Lobby cannot be deleted.")

	a.send("/delete chess")
	for _, tc := range []*testConn{a, b} {
		tc.expect("ROOM|Lobby")
		tc.expect("[system] Room deleted. You have been moved to Lobby.")
		tc.expect("ROOMS|Lobby|open")
	}
}

func TestLeave(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()

	a.send("/leave")
	a.expect("[system] You are already in the Lobby.")

	a.send("/create den")
	a.drainUntil("[system] Room created and joined: den")

	a.send("/leave")
	a.expect("ROOM|Lobby")
	a.expect("[system] Moved to Lobby.")

	// The ack follows the registry mutation, so the record and the member
	// sets agree by now: Lobby only, never zero rooms.
	b := fx.broker
	c := b.clients.Snapshot()[0]
	assert.Equal(t, "Lobby", c.Room())
	assert.Contains(t, b.rooms.Members("Lobby"), c.Handle())
	assert.Empty(t, b.rooms.Members("den"))
}

func TestJoinCurrentRoomIsQuiet(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()
	b := dial(t, fx.addr)
	b.drainHandshake()
	a.drainUntil("[system] anon2 joined the room Lobby.")

	// Rejoining the current room re-sends the assignment only; the other
	// member must not see a duplicate join broadcast.
	a.send("/join Lobby")
	a.expect("ROOM|Lobby")

	a.send("marker")
	a.expect("[Lobby] anon1: marker")
	b.expect("[Lobby] anon1: marker")
}

func TestUnknownCommandRejected(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()

	a.send("/frobnicate now")
	a.expect("[system] Unknown command. Try /name, /msg, /rooms, /create, /join, /leave or /delete.")
}

func TestRoomsIsIdempotent(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()

	a.send("/rooms")
	a.expect("ROOMS|Lobby|open")
	a.send("/rooms")
	a.expect("ROOMS|Lobby|open")
}

func TestDisconnectFarewell(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()
	b := dial(t, fx.addr)
	b.drainHandshake()
	a.drainUntil("[system] anon2 joined the room Lobby.")

	b.conn.Close()

	a.expect("[system] anon2 left the room.")
	a.expect("[system] anon2 left the chat.")
}

func TestQuietPrefixSuppressesPresence(t *testing.T) {
	fx := startBroker(t, func(cfg *config.Config) { cfg.QuietPrefix = "Bot" })

	a := dial(t, fx.addr)
	a.drainHandshake()
	b := dial(t, fx.addr)
	b.drainHandshake()
	a.drainUntil("[system] anon2 joined the room Lobby.")

	b.send("/name Bot7")
	a.send("marker")
	// The rename broadcast was suppressed: the next line A sees is its own
	// chat echo. Chat from the bot still flows.
	a.expect("[Lobby] anon1: marker")
	b.drainUntil("[Lobby] anon1: marker")

	b.send("beep")
	a.expect("[Lobby] Bot7: beep")
}

func TestChatOrderingAcrossSenders(t *testing.T) {
	fx := startBroker(t, nil)

	sender1 := dial(t, fx.addr)
	sender1.drainHandshake()
	sender2 := dial(t, fx.addr)
	sender2.drainHandshake()
	recv1 := dial(t, fx.addr)
	recv1.drainHandshake()
	recv2 := dial(t, fx.addr)
	recv2.drainHandshake()

	sender1.send("/create race")
	sender1.drainUntil("[system] Room created and joined: race")
	for _, tc := range []*testConn{sender2, recv1, recv2} {
		tc.send("/join race")
		tc.drainUntil("ROOM|race")
	}

	// Sync point: everyone is in the room once the marker arrives.
	sender1.send("start")
	recv1.drainUntil("[race] anon1: start")
	recv2.drainUntil("[race] anon1: start")
	sender2.drainUntil("[race] anon1: start")

	const perSender = 30
	var wg sync.WaitGroup
	for i, tc := range []*testConn{sender1, sender2} {
		wg.Add(1)
		go func(id int, tc *testConn) {
			defer wg.Done()
			for n := 0; n < perSender; n++ {
				tc.send(fmt.Sprintf("s%d-%d", id, n))
			}
		}(i+1, tc)
	}
	wg.Wait()

	read := func(tc *testConn) []string {
		lines := make([]string, 0, 2*perSender)
		for len(lines) < 2*perSender {
			lines = append(lines, tc.readLine())
		}
		return lines
	}
	got1 := read(recv1)
	got2 := read(recv2)

	// Every recipient observes the same total order, and each sender's own
	// lines appear in the order it sent them.
	assert.Equal(t, got1, got2)
	for id := 1; id <= 2; id++ {
		next := 0
		prefix := fmt.Sprintf("[race] anon%d: s%d-", id, id)
		for _, line := range got1 {
			if strings.HasPrefix(line, prefix) {
				assert.Equal(t, fmt.Sprintf("%s%d", prefix, next), line)
				next++
			}
		}
		assert.Equal(t, perSender, next)
	}
}

func TestOverlongLineDropsConnection(t *testing.T) {
	fx := startBroker(t, func(cfg *config.Config) { cfg.MaxLineBytes = 128 })

	a := dial(t, fx.addr)
	a.drainHandshake()
	b := dial(t, fx.addr)
	b.drainHandshake()
	a.drainUntil("[system] anon2 joined the room Lobby.")

	b.send(strings.Repeat("x", 1024))

	a.expect("[system] anon2 left the room.")
	a.expect("[system] anon2 left the chat.")
}

func TestEventLog(t *testing.T) {
	fx := startBroker(t, nil)

	a := dial(t, fx.addr)
	a.drainHandshake()

	a.send("/name alice")
	a.expect("[system] anon1 is now known as alice.")
	a.send("/create chess")
	a.drainUntil("[system] Room created and joined: chess")
	a.send("hello")
	a.expect("[chess] alice: hello")

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(fx.logPath)
		return err == nil && strings.Contains(string(data), "[chess] alice: hello")
	}, 2*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(fx.logPath)
	require.NoError(t, err)
	log := string(data)
	assert.Contains(t, log, "anon1 joined the room Lobby.")
	assert.Contains(t, log, "anon1 renamed to alice")
	assert.Contains(t, log, "alice joined room chess")
}

func TestMembershipInvariant(t *testing.T) {
	fx := startBroker(t, nil)

	conns := make([]*testConn, 0, 8)
	for i := 0; i < 8; i++ {
		tc := dial(t, fx.addr)
		tc.drainHandshake()
		conns = append(conns, tc)
	}

	for i, tc := range conns {
		tc.send(fmt.Sprintf("/create side%d", i))
		tc.drainUntil(fmt.Sprintf("[system] Room created and joined: side%d", i))
	}

	// Every client is a member of exactly the room its record names.
	b := fx.broker
	for _, c := range b.clients.Snapshot() {
		members := b.rooms.Members(c.Room())
		assert.Contains(t, members, c.Handle())
		assert.Len(t, members, 1)
	}
	assert.Equal(t, 9, b.rooms.Len())
	assert.Empty(t, b.rooms.Members("Lobby"))
}
