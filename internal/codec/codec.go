// Package codec binds packet codecs to the protocol state of a session.
//
// A Codec turns named packets into packet bytes (id + fields) and back for
// one (protocol version, state, direction). Codecs come from a Provider;
// the session does not know how fields are laid out.
package codec

import (
	"errors"
	"fmt"

	"github.com/Versifine/mcclient/internal/protocol"
)

var (
	ErrParamsType = errors.New("unexpected packet params type")
	// ErrUnsupportedVersion is returned by Builtin for login and play keys of
	// a protocol version it has no tables for.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// Decoded is the result of decoding one packet.
type Decoded struct {
	Name   string
	Params any
	Size   int
}

// Codec encodes and decodes the packets of a single packet table.
// Implementations must be safe for concurrent use.
type Codec interface {
	Encode(name string, params any) ([]byte, error)
	Decode(data []byte) (Decoded, error)
}

// Key selects a packet table.
type Key struct {
	Version   int
	State     protocol.State
	Direction protocol.Direction
}

func (k Key) String() string {
	return fmt.Sprintf("%s;%s;%d", k.State, k.Direction, k.Version)
}

// Provider hands out codecs. Requests with an identical key may return the
// same instance.
type Provider interface {
	Codec(key Key) (Codec, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(key Key) (Codec, error)

func (f ProviderFunc) Codec(key Key) (Codec, error) { return f(key) }

// paramsAs accepts either T or *T as packet params.
func paramsAs[T any](params any) (T, error) {
	switch p := params.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: got %T, want %T", ErrParamsType, params, zero)
}
