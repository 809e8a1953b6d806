// Stress harness for the chat broker: N bots connect over TCP, spread across
// shared rooms, chat at a paced rate and report counters at the end.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"chatbroker/internal/proto"
)

var (
	addr        = flag.String("addr", "127.0.0.1:5555", "broker address")
	numBots     = flag.Int("bots", 50, "number of concurrent bots")
	numRooms    = flag.Int("rooms", 5, "number of shared rooms")
	numMessages = flag.Int("messages", 10, "messages per bot")
	msgRate     = flag.Float64("rate", 20, "messages per second per bot")
	timeout     = flag.Duration("timeout", 2*time.Minute, "overall run deadline")
)

// testStats tracks harness counters across bots.
type testStats struct {
	Connected        int32
	FailedDials      int32
	Renames          int32
	RoomsJoined      int32
	MessagesSent     int32
	MessagesReceived int32
	Errors           int32
}

var stats testStats

func main() {
	flag.Parse()

	log.Println("Starting broker stress test...")
	log.Printf("Configuration: %d bots, %d rooms, %d messages per bot at %.1f msg/s",
		*numBots, *numRooms, *numMessages, *msgRate)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var wg sync.WaitGroup
	startTime := time.Now()

	for i := 0; i < *numBots; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runBot(ctx, id)
		}(i)
	}

	wg.Wait()
	printStats(time.Since(startTime))
}

func printStats(duration time.Duration) {
	log.Println("=== Stress Test Results ===")
	log.Printf("Duration: %v", duration)
	log.Printf("Connected: %d", atomic.LoadInt32(&stats.Connected))
	log.Printf("Failed Dials: %d", atomic.LoadInt32(&stats.FailedDials))
	log.Printf("Renames: %d", atomic.LoadInt32(&stats.Renames))
	log.Printf("Rooms Joined: %d", atomic.LoadInt32(&stats.RoomsJoined))
	log.Printf("Messages Sent: %d", atomic.LoadInt32(&stats.MessagesSent))
	log.Printf("Messages Received: %d", atomic.LoadInt32(&stats.MessagesReceived))
	log.Printf("Errors: %d", atomic.LoadInt32(&stats.Errors))

	expected := int32(*numBots * *numMessages)
	sent := atomic.LoadInt32(&stats.MessagesSent)
	successRate := float64(sent) / float64(expected) * 100
	log.Printf("Send Success Rate: %.2f%%", successRate)
	if successRate >= 95 && atomic.LoadInt32(&stats.Errors) == 0 {
		log.Println("Test PASSED")
	} else {
		log.Println("Test FAILED")
	}
}

func runBot(ctx context.Context, id int) {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", *addr)
	if err != nil {
		atomic.AddInt32(&stats.FailedDials, 1)
		log.Printf("[Bot %d] Dial failed: %v", id, err)
		return
	}
	defer conn.Close()
	atomic.AddInt32(&stats.Connected, 1)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		readLines(id, conn)
	}()

	send := func(line string) bool {
		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			atomic.AddInt32(&stats.Errors, 1)
			log.Printf("[Bot %d] Send failed: %v", id, err)
			return false
		}
		return true
	}

	name := fmt.Sprintf("Bot%d", id)
	if send("/name " + name) {
		atomic.AddInt32(&stats.Renames, 1)
	}

	// Every room gets /create once per cohort member; the broker answers
	// "Room already exists." to all but the first, which is fine here.
	room := fmt.Sprintf("stress%d", id%*numRooms)
	send("/create " + room)
	if send("/join " + room) {
		atomic.AddInt32(&stats.RoomsJoined, 1)
	}

	// One private ping to a cohort neighbour. The neighbour may not have
	// renamed yet; "User not found" replies are expected noise.
	send(fmt.Sprintf("/msg Bot%d ping from %s", (id+1)%*numBots, name))

	limiter := rate.NewLimiter(rate.Limit(*msgRate), 1)
	for i := 0; i < *numMessages; i++ {
		if err := limiter.Wait(ctx); err != nil {
			atomic.AddInt32(&stats.Errors, 1)
			break
		}
		if !send(fmt.Sprintf("message %d from %s", i+1, name)) {
			break
		}
		atomic.AddInt32(&stats.MessagesSent, 1)
	}

	// Let in-flight broadcasts drain before tearing the connection down.
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
	}

	send("/leave")
	conn.Close()

	select {
	case <-readerDone:
	case <-time.After(5 * time.Second):
		log.Printf("[Bot %d] Reader timeout", id)
	}
}

func readLines(id int, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), proto.DefaultMaxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		atomic.AddInt32(&stats.MessagesReceived, 1)
		if strings.HasPrefix(line, proto.SystemPrefix) && strings.Contains(line, "Unable to") {
			atomic.AddInt32(&stats.Errors, 1)
			log.Printf("[Bot %d] Received: %s", id, line)
		}
	}
}
