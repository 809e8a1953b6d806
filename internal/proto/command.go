package proto

import "strings"

// Kind identifies what a parsed client line asks the broker to do.
type Kind int

const (
	// KindChat is any line that does not start with "/".
	KindChat Kind = iota
	KindName
	KindMsg
	KindRooms
	KindCreate
	KindJoin
	KindLeave
	KindDelete
	// KindUnknown is a "/" line with an unrecognized verb.
	KindUnknown
)

// Request is one parsed client line. Only the fields relevant to Kind are
// populated; empty required fields are the dispatcher's usage errors.
type Request struct {
	Kind     Kind
	Name     string // /name: requested nickname (rest of line, trimmed)
	Target   string // /msg: recipient nickname
	Room     string // /create, /join, /delete
	Password string // /create, /join
	Text     string // chat body or /msg body
}

// Parse classifies a framed line. The line is assumed to be already trimmed
// and non-empty.
func Parse(line string) Request {
	if !strings.HasPrefix(line, "/") {
		return Request{Kind: KindChat, Text: line}
	}

	verb, rest, _ := strings.Cut(line, " ")
	rest = Trim(rest)

	switch verb {
	case "/name":
		return Request{Kind: KindName, Name: rest}
	case "/msg":
		target, body, _ := strings.Cut(rest, " ")
		return Request{Kind: KindMsg, Target: target, Text: Trim(body)}
	case "/rooms":
		return Request{Kind: KindRooms}
	case "/create":
		req := Request{Kind: KindCreate}
		req.Room, req.Password = roomAndPassword(rest)
		return req
	case "/join":
		req := Request{Kind: KindJoin}
		req.Room, req.Password = roomAndPassword(rest)
		return req
	case "/leave":
		return Request{Kind: KindLeave}
	case "/delete":
		fields := strings.Fields(rest)
		req := Request{Kind: KindDelete}
		if len(fields) > 0 {
			req.Room = fields[0]
		}
		return req
	default:
		return Request{Kind: KindUnknown}
	}
}

// roomAndPassword splits "<room> [password]"; extra tokens are ignored.
func roomAndPassword(rest string) (room, password string) {
	fields := strings.Fields(rest)
	if len(fields) > 0 {
		room = fields[0]
	}
	if len(fields) > 1 {
		password = fields[1]
	}
	return room, password
}
