package protocol

import "fmt"

// State is the protocol state a connection is in. It selects the packet
// table used by the codecs.
type State int

const (
	Handshaking State = iota
	Status
	Login
	Play
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Status:
		return "status"
	case Login:
		return "login"
	case Play:
		return "play"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState maps a state name back to its State.
func ParseState(name string) (State, error) {
	switch name {
	case "handshaking":
		return Handshaking, nil
	case "status":
		return Status, nil
	case "login":
		return Login, nil
	case "play":
		return Play, nil
	}
	return 0, fmt.Errorf("unknown protocol state %q", name)
}

// Direction is the side a packet is bound for.
type Direction uint8

const (
	ToClient Direction = iota
	ToServer
)

func (d Direction) String() string {
	switch d {
	case ToClient:
		return "toClient"
	case ToServer:
		return "toServer"
	}
	return "unknownDirection"
}

// Inbound is the direction a peer reads. A client reads toClient packets.
func Inbound(isServer bool) Direction {
	if isServer {
		return ToServer
	}
	return ToClient
}

// Outbound is the direction a peer writes.
func Outbound(isServer bool) Direction {
	if isServer {
		return ToClient
	}
	return ToServer
}
