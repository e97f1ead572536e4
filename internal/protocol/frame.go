package protocol

import (
	"crypto/cipher"
	"fmt"
)

// LegacyPingMarker is the first byte of a pre-1.7 server list ping.
const LegacyPingMarker = 0xFE

// AppendFrame appends payload to dst prefixed with its VarInt length.
func AppendFrame(dst, payload []byte) []byte {
	dst = AppendVarint(dst, int32(len(payload)))
	return append(dst, payload...)
}

// Frame is one unit popped from a Splitter. Legacy frames carry the raw
// bytes of a legacy server list ping instead of a length-delimited payload.
type Frame struct {
	Payload []byte
	Legacy  bool
}

// Splitter cuts a byte stream into frames. Bytes are accumulated across
// Write calls, so frame boundaries may fall anywhere in the input chunks.
type Splitter struct {
	buf        []byte
	off        int
	seenFrame  bool
	legacyPing bool
}

func NewSplitter() *Splitter {
	return &Splitter{}
}

// RecognizeLegacyPing toggles legacy ping detection. It only takes effect
// before the first frame has been popped.
func (s *Splitter) RecognizeLegacyPing(on bool) {
	s.legacyPing = on
}

// Write appends a chunk read from the transport. The chunk is copied.
func (s *Splitter) Write(p []byte) {
	if s.off > 0 && s.off >= len(s.buf)/2 {
		n := copy(s.buf, s.buf[s.off:])
		s.buf = s.buf[:n]
		s.off = 0
	}
	s.buf = append(s.buf, p...)
}

// Buffered returns the number of bytes not yet consumed by Next.
func (s *Splitter) Buffered() int {
	return len(s.buf) - s.off
}

// XORBuffered runs the unconsumed bytes through stream in place.
func (s *Splitter) XORBuffered(stream cipher.Stream) {
	rest := s.buf[s.off:]
	stream.XORKeyStream(rest, rest)
}

// Next pops the next complete frame. ok is false when more input is needed.
// The returned payload does not alias the internal buffer.
func (s *Splitter) Next() (frame Frame, ok bool, err error) {
	rest := s.buf[s.off:]
	if len(rest) == 0 {
		return Frame{}, false, nil
	}
	if s.legacyPing && !s.seenFrame && rest[0] == LegacyPingMarker {
		s.seenFrame = true
		payload := append([]byte(nil), rest...)
		s.reset()
		return Frame{Payload: payload, Legacy: true}, true, nil
	}

	length, n, err := DecodeVarint(rest)
	if err != nil {
		return Frame{}, false, &FramingError{Err: err}
	}
	if n == 0 {
		return Frame{}, false, nil
	}
	if length < 0 {
		return Frame{}, false, &FramingError{Err: fmt.Errorf("%w: %d", ErrInvalidLength, length)}
	}
	if length > MaxPacketSize {
		return Frame{}, false, &FramingError{Err: fmt.Errorf("%w: %d", ErrPacketTooLarge, length)}
	}
	if len(rest)-n < int(length) {
		return Frame{}, false, nil
	}

	payload := make([]byte, length)
	copy(payload, rest[n:])
	s.off += n + int(length)
	s.seenFrame = true
	if s.off == len(s.buf) {
		s.reset()
	}
	return Frame{Payload: payload}, true, nil
}

func (s *Splitter) reset() {
	s.buf = s.buf[:0]
	s.off = 0
}
