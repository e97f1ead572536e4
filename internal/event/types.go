package event

import "github.com/Versifine/mcclient/internal/protocol"

// Session events. Decoded packets are published as *protocol.Packet under
// their own name and EventPacket, and as RawEvent under RawPrefix+name
// and EventRaw.
const (
	EventConnect    = "connect"
	EventState      = "state"
	EventPacket     = "packet"
	EventRaw        = "raw"
	EventLegacyPing = "legacy_server_list_ping"
	EventError      = "error"
	EventEnd        = "end"

	RawPrefix = "raw."
)

const (
	// ReasonSocketClosed is the end reason when the transport went away
	// without an explicit End.
	ReasonSocketClosed     = "SocketClosed"
	ReasonKeepAliveTimeout = "KeepAliveTimeout"
)

type StateChange struct {
	Old protocol.State
	New protocol.State
}

// RawEvent carries the frame payload a packet was decoded from.
type RawEvent struct {
	Data []byte
	Meta protocol.Metadata
}

// LegacyPingEvent carries the bytes of a pre-netty server list ping.
type LegacyPingEvent struct {
	Data []byte
}

type ErrorEvent struct {
	Err error
}

type EndEvent struct {
	Reason string
}
