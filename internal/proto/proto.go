// Package proto defines the newline-delimited wire protocol spoken between
// the broker and its clients: the server line shapes, the client command
// grammar, and the line framer.
package proto

import "strings"

// LobbyName is the default room every client starts in. It always exists and
// can never be deleted.
const LobbyName = "Lobby"

// Server line prefixes. Clients display any line they do not recognize as
// plain text, so these are the only shapes that carry meaning.
const (
	SystemPrefix     = "[system] "
	PrivatePrefix    = "[private] "
	RoomAssignPrefix = "ROOM|"
	CataloguePrefix  = "ROOMS|"
)

// RoomEntry is one catalogue row.
type RoomEntry struct {
	Name   string
	Locked bool
}

// System formats a system notice line.
func System(text string) []byte {
	return []byte(SystemPrefix + text + "\n")
}

// RoomAssignment formats the line that moves the recipient into a room.
func RoomAssignment(room string) []byte {
	return []byte(RoomAssignPrefix + room + "\n")
}

// Private formats a private message line as seen by both sender and target.
func Private(sender, text string) []byte {
	return []byte(PrivatePrefix + sender + ": " + text + "\n")
}

// RoomChat formats an ordinary chat line scoped to a room.
func RoomChat(room, sender, text string) []byte {
	return []byte("[" + room + "] " + sender + ": " + text + "\n")
}

// Catalogue formats the room catalogue. An empty catalogue is "ROOMS|".
func Catalogue(entries []RoomEntry) []byte {
	var sb strings.Builder
	sb.WriteString(CataloguePrefix)
	for i, e := range entries {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(e.Name)
		sb.WriteByte('|')
		if e.Locked {
			sb.WriteString("locked")
		} else {
			sb.WriteString("open")
		}
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}

// Trim strips the whitespace both sides of the protocol ignore.
func Trim(s string) string {
	return strings.Trim(s, " \t\r\n")
}
