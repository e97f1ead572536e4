package protocol

const MaxPacketSize = 2097152 // 2MB

// Metadata describes where a packet was decoded.
type Metadata struct {
	Name      string
	State     State
	Direction Direction
	Size      int
}

// Packet is a named packet as produced by a codec. Params is owned by the
// codec and not interpreted here.
type Packet struct {
	Name   string
	Params any
	Raw    []byte
	Meta   Metadata
}
