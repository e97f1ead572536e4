package codec

import (
	"fmt"

	"github.com/Versifine/mcclient/internal/protocol"
)

// Binding is the pair of codecs active for one protocol state: the encoder
// for what this side writes and the decoder for what it reads. A session
// swaps whole bindings on a state change, never individual codecs.
type Binding struct {
	version   int
	state     protocol.State
	encodeDir protocol.Direction
	decodeDir protocol.Direction
	encoder   Codec
	decoder   Codec
}

// Bind asks provider for the codecs of state. isServer selects which
// direction is written and which is read.
func Bind(provider Provider, version int, isServer bool, state protocol.State) (*Binding, error) {
	b := &Binding{
		version:   version,
		state:     state,
		encodeDir: protocol.Outbound(isServer),
		decodeDir: protocol.Inbound(isServer),
	}
	var err error
	encKey := Key{Version: version, State: state, Direction: b.encodeDir}
	if b.encoder, err = provider.Codec(encKey); err != nil {
		return nil, fmt.Errorf("codec %s: %w", encKey, err)
	}
	decKey := Key{Version: version, State: state, Direction: b.decodeDir}
	if b.decoder, err = provider.Codec(decKey); err != nil {
		return nil, fmt.Errorf("codec %s: %w", decKey, err)
	}
	return b, nil
}

func (b *Binding) State() protocol.State { return b.state }

// Decode turns one frame payload into a packet tagged with the bound state
// and the inbound direction.
func (b *Binding) Decode(frame []byte) (*protocol.Packet, error) {
	d, err := b.decoder.Decode(frame)
	if err != nil {
		return nil, protocol.NewCodecError("deserialization", b.state, b.decodeDir, err)
	}
	size := d.Size
	if size == 0 {
		size = len(frame)
	}
	return &protocol.Packet{
		Name:   d.Name,
		Params: d.Params,
		Raw:    frame,
		Meta: protocol.Metadata{
			Name:      d.Name,
			State:     b.state,
			Direction: b.decodeDir,
			Size:      size,
		},
	}, nil
}

// Encode serialises a named packet with the outbound codec.
func (b *Binding) Encode(name string, params any) ([]byte, error) {
	data, err := b.encoder.Encode(name, params)
	if err != nil {
		return nil, protocol.NewCodecError("serialization", b.state, b.encodeDir, err)
	}
	return data, nil
}
