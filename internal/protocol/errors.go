package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrVarIntTooLong  = errors.New("varint is too long")
	ErrPacketTooLarge = errors.New("packet size exceeds maximum allowed")
	ErrInvalidPacket  = errors.New("invalid packet structure")
	ErrInvalidLength  = errors.New("invalid length prefix")

	ErrEncryptionInstalled = errors.New("encryption already enabled")
	ErrInvalidThreshold    = errors.New("invalid compression threshold")
)

// FramingError reports a malformed length prefix. The stream cannot be
// resynchronised afterwards, so it is fatal to the connection.
type FramingError struct {
	Err error
}

func (e *FramingError) Error() string { return "framing error: " + e.Err.Error() }
func (e *FramingError) Unwrap() error { return e.Err }

// DecompressionError reports a frame whose body could not be inflated.
// The frame is dropped and the session continues.
type DecompressionError struct {
	DeclaredLen   int
	CompressedLen int
	Err           error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("problem inflating chunk (uncompressed length %d, compressed length %d): %v",
		e.DeclaredLen, e.CompressedLen, e.Err)
}

func (e *DecompressionError) Unwrap() error { return e.Err }

// SizeMismatchError is returned alongside a payload whose inflated size
// differs from the declared one.
type SizeMismatchError struct {
	Declared int
	Actual   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("uncompressed length should be %d but is %d", e.Declared, e.Actual)
}

// UnknownPacketError is returned by codecs for a name or id absent from
// the packet table of the bound state.
type UnknownPacketError struct {
	Name string
	ID   int32
}

func (e *UnknownPacketError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown packet %q", e.Name)
	}
	return fmt.Sprintf("unknown packet id 0x%02x", e.ID)
}

// FieldError locates a codec failure inside a packet, e.g. "encryption_begin.publicKey".
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }
func (e *FieldError) Unwrap() error { return e.Err }

// CodecError is a serialization or deserialization failure tagged with the
// state and direction of the codec that produced it.
type CodecError struct {
	Op        string // "serialization" or "deserialization"
	State     State
	Direction Direction
	Field     string // state.direction[.packet.field]
	Err       error
}

func (e *CodecError) Error() string {
	op := e.Op
	if op == "" {
		op = "codec"
	}
	return fmt.Sprintf("%s error for %s : %v", capitalize(op), e.Field, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// NewCodecError builds a CodecError whose field path starts with the state
// and direction, followed by the path carried by a FieldError in err.
func NewCodecError(op string, state State, dir Direction, err error) *CodecError {
	field := state.String() + "." + dir.String()
	var fe *FieldError
	if errors.As(err, &fe) && fe.Field != "" {
		field += "." + fe.Field
	}
	return &CodecError{Op: op, State: state, Direction: dir, Field: field, Err: err}
}

// EncryptionSetupError covers a second attempt to enable encryption and
// failures to build the cipher.
type EncryptionSetupError struct {
	Err error
}

func (e *EncryptionSetupError) Error() string { return "encryption setup: " + e.Err.Error() }
func (e *EncryptionSetupError) Unwrap() error { return e.Err }

// AuthenticationError is a failed session-server join.
type AuthenticationError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthenticationError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
	case e.Err != nil:
		return "authentication failed: " + e.Err.Error()
	case e.Message != "":
		return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication failed (status %d)", e.StatusCode)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TransportError wraps a read or write failure on the underlying connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "transport " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Fatal reports whether err must end the session.
func Fatal(err error) bool {
	var (
		framing   *FramingError
		auth      *AuthenticationError
		transport *TransportError
		setup     *EncryptionSetupError
	)
	switch {
	case errors.As(err, &framing), errors.As(err, &auth), errors.As(err, &transport):
		return true
	case errors.As(err, &setup):
		return !errors.Is(setup.Err, ErrEncryptionInstalled)
	}
	return false
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
