// Interactive terminal client for the chat broker.
//
// Usage: client [host] [port]
//
// Lines typed on stdin go to the server as-is. Incoming lines are printed
// with the current room shown in the prompt. Type /quit to exit.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"chatbroker/internal/proto"
)

func main() {
	host := "127.0.0.1"
	port := "5555"
	if len(os.Args) >= 2 {
		host = os.Args[1]
	}
	if len(os.Args) >= 3 {
		port = os.Args[2]
	}

	addr := net.JoinHostPort(host, port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Connected to %s. Type /quit to exit.\n", addr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 4096), proto.DefaultMaxLineBytes)
		for scanner.Scan() {
			line := scanner.Text()
			if room, ok := strings.CutPrefix(line, proto.RoomAssignPrefix); ok {
				fmt.Printf("-- now in room %s --\n", room)
				continue
			}
			if payload, ok := strings.CutPrefix(line, proto.CataloguePrefix); ok {
				printCatalogue(payload)
				continue
			}
			fmt.Println(line)
		}
		fmt.Println("Disconnected from server.")
	}()

	stdin := bufio.NewScanner(os.Stdin)
	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}
		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
			break
		}
		select {
		case <-done:
			return
		default:
		}
	}

	conn.Close()
	<-done
}

// printCatalogue renders a "name|state|name|state" payload as a room list.
func printCatalogue(payload string) {
	fmt.Println("Rooms:")
	fields := strings.Split(payload, "|")
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Printf("  [%s] %s\n", fields[i+1], fields[i])
	}
}
